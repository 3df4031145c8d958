package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"campusnotes/internal/auth"
	apperrors "campusnotes/internal/errors"
	"campusnotes/internal/mail"
	"campusnotes/internal/model"
	"campusnotes/internal/repository"
)

// DefaultResetTokenTTL is how long a reset link stays usable.
const DefaultResetTokenTTL = 15 * time.Minute

// PasswordConfig tunes PasswordService.
type PasswordConfig struct {
	ResetTTL    time.Duration
	BcryptCost  int
	FrontendURL string
}

// PasswordService runs the forgot/reset password flows.
type PasswordService interface {
	// RequestReset issues a reset token for a password account and mails it.
	// Unknown and federated-only emails are a silent no-op, and a failed
	// delivery is only logged. Only storage failures are returned.
	RequestReset(ctx context.Context, email string) error
	// VerifyResetToken reports whether token could be used right now.
	VerifyResetToken(ctx context.Context, token string) (bool, error)
	// ResetPassword consumes token, sets the new password and revokes every
	// session of the user.
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type passwordService struct {
	users  repository.UserRepository
	resets repository.PasswordResetRepository
	mailer mail.Mailer
	cached UserService
	cfg    PasswordConfig
	logger *slog.Logger
	now    func() time.Time
	// Per-user issuance locks
	userMutexes sync.Map
}

// NewPasswordService creates a new password service. cached may be nil.
func NewPasswordService(users repository.UserRepository, resets repository.PasswordResetRepository, mailer mail.Mailer, cached UserService, cfg PasswordConfig, logger *slog.Logger) PasswordService {
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultBcryptCost
	}
	return &passwordService{
		users:  users,
		resets: resets,
		mailer: mailer,
		cached: cached,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// getMutex returns the issuance mutex of a user.
func (s *passwordService) getMutex(userID uuid.UUID) *sync.Mutex {
	value, _ := s.userMutexes.LoadOrStore(userID.String(), &sync.Mutex{})
	return value.(*sync.Mutex)
}

func (s *passwordService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.DebugContext(ctx, "password reset for unknown email ignored")
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	if !user.HasPassword() {
		s.logger.DebugContext(ctx, "password reset for federated account ignored", "user_id", user.ID)
		return nil
	}

	token, err := s.issue(ctx, user)
	if err != nil {
		return err
	}

	msg, err := mail.PasswordResetEmail(user.Email, user.Name, mail.ResetLink(s.cfg.FrontendURL, token), s.cfg.ResetTTL)
	if err != nil {
		s.logger.ErrorContext(ctx, "render password reset email", "user_id", user.ID, "err", err)
		return nil
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "password reset email not delivered", "user_id", user.ID, "err", err)
		return nil
	}
	s.logger.InfoContext(ctx, "password reset email sent", "user_id", user.ID)
	return nil
}

// issue stores a fresh request for user and returns its plaintext token.
func (s *passwordService) issue(ctx context.Context, user *model.User) (string, error) {
	mu := s.getMutex(user.ID)
	mu.Lock()
	defer mu.Unlock()

	token, err := auth.NewOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	req := &model.PasswordResetRequest{
		UserID:    user.ID,
		TokenHash: auth.HashToken(token),
		ExpiresAt: s.now().Add(s.cfg.ResetTTL),
	}
	if err := s.resets.Issue(ctx, req); err != nil {
		return "", fmt.Errorf("store reset request: %w", err)
	}
	return token, nil
}

func (s *passwordService) VerifyResetToken(ctx context.Context, token string) (bool, error) {
	if !auth.IsResetTokenFormat(token) {
		return false, nil
	}
	_, err := s.resets.FindActiveByHash(ctx, auth.HashToken(token), s.now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find reset request: %w", err)
	}
	return true, nil
}

func (s *passwordService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !auth.IsResetTokenFormat(token) {
		return apperrors.ErrInvalidResetToken
	}
	if !auth.PasswordFits(newPassword) {
		return apperrors.ErrPasswordTooLong
	}

	req, err := s.resets.FindActiveByHash(ctx, auth.HashToken(token), s.now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrInvalidResetToken
		}
		return fmt.Errorf("find reset request: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	revoked, err := s.resets.CompleteReset(ctx, req.ID, req.UserID, string(hashed), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrResetRequestUnavailable) || errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrInvalidResetToken
		}
		return fmt.Errorf("complete reset: %w", err)
	}

	if s.cached != nil {
		s.cached.Invalidate(ctx, req.UserID)
	}
	s.logger.InfoContext(ctx, "password reset completed", "user_id", req.UserID, "revoked_sessions", revoked)
	return nil
}
