package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"campusnotes/internal/auth"
	apperrors "campusnotes/internal/errors"
	"campusnotes/internal/model"
	"campusnotes/internal/repository"
)

// DefaultBcryptCost is used when AuthConfig.BcryptCost is unset.
const DefaultBcryptCost = 10

// SignupInput carries the fields of a new password account.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Role     model.Role
	Branch   string
	Semester int
	Section  string
}

// FederatedPrincipal is an identity already verified by an external provider.
type FederatedPrincipal struct {
	Subject string
	Email   string
	Name    string
}

// AuthResult is returned by every flow that signs a user in.
type AuthResult struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

// AuthConfig tunes AuthService.
type AuthConfig struct {
	AllowedDomains []string
	BcryptCost     int
}

// AuthService handles authentication operations.
type AuthService interface {
	Signup(ctx context.Context, in SignupInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	FederatedLogin(ctx context.Context, p FederatedPrincipal) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (accessToken string, err error)
	Logout(ctx context.Context, refreshToken string) error
}

type authService struct {
	users      repository.UserRepository
	tokens     repository.RefreshTokenRepository
	jwtService *auth.JWTService
	cfg        AuthConfig
	logger     *slog.Logger
	// dummyHash is compared against when no account hash exists so a failed
	// login costs one bcrypt comparison whatever the cause.
	dummyHash []byte
	now       func() time.Time
}

// NewAuthService creates a new authentication service.
func NewAuthService(users repository.UserRepository, tokens repository.RefreshTokenRepository, jwtService *auth.JWTService, cfg AuthConfig, logger *slog.Logger) (AuthService, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultBcryptCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("campusnotes-timing-equalizer"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	return &authService{
		users:      users,
		tokens:     tokens,
		jwtService: jwtService,
		cfg:        cfg,
		logger:     logger,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

// Signup creates a password account and signs it in.
func (s *authService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	email := auth.NormalizeEmail(in.Email)
	if !auth.EmailDomainAllowed(email, s.cfg.AllowedDomains) {
		return nil, apperrors.ErrEmailDomainNotAllowed
	}
	if !auth.PasswordFits(in.Password) {
		return nil, apperrors.ErrPasswordTooLong
	}

	_, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return nil, apperrors.ErrUserAlreadyExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check user existence: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	passwordHash := string(hashed)

	role := in.Role
	if role == "" {
		role = model.RoleStudent
	}
	user := &model.User{
		Name:         in.Name,
		Email:        email,
		Role:         role,
		Branch:       in.Branch,
		Semester:     in.Semester,
		Section:      in.Section,
		PasswordHash: &passwordHash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// lost a race with a concurrent signup for the same email
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID, "role", user.Role)

	return s.issueSession(ctx, user)
}

// Login authenticates with email and password.
func (s *authService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if user == nil || !user.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, apperrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	return s.issueSession(ctx, user)
}

// FederatedLogin signs in a principal verified by the identity provider,
// linking it to an existing account by email or creating a password-less one.
func (s *authService) FederatedLogin(ctx context.Context, p FederatedPrincipal) (*AuthResult, error) {
	email := auth.NormalizeEmail(p.Email)
	if !auth.EmailDomainAllowed(email, s.cfg.AllowedDomains) {
		return nil, apperrors.ErrEmailDomainNotAllowed
	}

	user, err := s.users.FindByGoogleID(ctx, p.Subject)
	if err == nil {
		return s.issueSession(ctx, user)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find user by identity: %w", err)
	}

	subject := p.Subject
	user, err = s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if user.GoogleID == nil {
			user.GoogleID = &subject
			if err := s.users.Update(ctx, user); err != nil {
				return nil, fmt.Errorf("link identity: %w", err)
			}
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = &model.User{
			Name:     p.Name,
			Email:    email,
			Role:     model.RoleStudent,
			GoogleID: &subject,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, fmt.Errorf("create federated user: %w", err)
			}
			// a concurrent first login of the same principal already created it
			existing, findErr := s.users.FindByGoogleID(ctx, p.Subject)
			if findErr != nil {
				return nil, apperrors.ErrUserAlreadyExists
			}
			return s.issueSession(ctx, existing)
		}
		s.logger.InfoContext(ctx, "federated user created", "user_id", user.ID)
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}

	return s.issueSession(ctx, user)
}

// Refresh validates a refresh token and returns a new access token. The
// refresh token itself stays valid until it expires or is revoked.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", apperrors.ErrInvalidRefreshToken
	}

	row, err := s.tokens.FindByHash(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("find refresh token: %w", err)
	}
	if row.UserID.String() != claims.UserID {
		return "", apperrors.ErrInvalidRefreshToken
	}
	if row.Expired(s.now()) {
		if err := s.tokens.DeleteByID(ctx, row.ID); err != nil {
			s.logger.WarnContext(ctx, "delete expired refresh token", "err", err)
		}
		return "", apperrors.ErrInvalidRefreshToken
	}

	user, err := s.users.FindByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	accessToken, err := s.jwtService.GenerateAccessToken(user.ID.String(), user.Email, string(user.Role))
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return accessToken, nil
}

// Logout revokes one refresh token. Unknown tokens are not an error.
func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.tokens.DeleteByHash(ctx, auth.HashToken(refreshToken)); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (s *authService) issueSession(ctx context.Context, user *model.User) (*AuthResult, error) {
	accessToken, err := s.jwtService.GenerateAccessToken(user.ID.String(), user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refreshToken, expiresAt, err := s.jwtService.GenerateRefreshToken(user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	row := &model.RefreshToken{
		UserID:    user.ID,
		TokenHash: auth.HashToken(refreshToken),
		ExpiresAt: expiresAt,
	}
	if err := s.tokens.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResult{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
