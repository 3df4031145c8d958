package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campusnotes/internal/model"
)

// ErrResetRequestUnavailable is returned when a reset request cannot be
// consumed because it is already used, expired or gone.
var ErrResetRequestUnavailable = errors.New("reset request unavailable")

// PasswordResetRepository defines password reset persistence operations.
type PasswordResetRepository interface {
	// Issue marks every unused request of req.UserID as used and inserts req,
	// serialized per user.
	Issue(ctx context.Context, req *model.PasswordResetRequest) error
	// FindActiveByHash returns the unused request with the digest that is
	// still valid at now.
	FindActiveByHash(ctx context.Context, tokenHash string, now time.Time) (*model.PasswordResetRequest, error)
	// Consume flips used to true exactly once.
	Consume(ctx context.Context, id uuid.UUID, now time.Time) error
	// CompleteReset consumes the request, stores the new password hash and
	// revokes every refresh token of the user in one transaction.
	CompleteReset(ctx context.Context, requestID, userID uuid.UUID, passwordHash string, now time.Time) (revoked int64, err error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type passwordResetRepository struct {
	db *gorm.DB
}

// NewPasswordResetRepository creates a new password reset repository.
func NewPasswordResetRepository(db *gorm.DB) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

// Issue locks the owning user row so concurrent issues for one user queue up
// behind each other.
func (r *passwordResetRepository) Issue(ctx context.Context, req *model.PasswordResetRequest) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", req.UserID).
			First(&owner).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.PasswordResetRequest{}).
			Where("user_id = ? AND used = ?", req.UserID, false).
			Update("used", true).Error; err != nil {
			return err
		}

		return tx.Create(req).Error
	})
}

func (r *passwordResetRepository) FindActiveByHash(ctx context.Context, tokenHash string, now time.Time) (*model.PasswordResetRequest, error) {
	var req model.PasswordResetRequest
	if err := r.db.WithContext(ctx).
		Where("token_hash = ? AND used = ? AND expires_at > ?", tokenHash, false, now).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *passwordResetRepository) Consume(ctx context.Context, id uuid.UUID, now time.Time) error {
	return consume(r.db.WithContext(ctx), id, now)
}

func (r *passwordResetRepository) CompleteReset(ctx context.Context, requestID, userID uuid.UUID, passwordHash string, now time.Time) (int64, error) {
	var revoked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := consume(tx, requestID, now); err != nil {
			return err
		}

		if err := tx.Model(&model.User{}).
			Where("id = ?", userID).
			Update("password_hash", passwordHash).Error; err != nil {
			return err
		}

		res := tx.Where("user_id = ?", userID).Delete(&model.RefreshToken{})
		if res.Error != nil {
			return res.Error
		}
		revoked = res.RowsAffected
		return nil
	})
	return revoked, err
}

func (r *passwordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", before).Delete(&model.PasswordResetRequest{})
	return res.RowsAffected, res.Error
}

// consume is a conditional update; losing a race shows up as zero rows.
func consume(db *gorm.DB, id uuid.UUID, now time.Time) error {
	res := db.Model(&model.PasswordResetRequest{}).
		Where("id = ? AND used = ? AND expires_at > ?", id, false, now).
		Update("used", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrResetRequestUnavailable
	}
	return nil
}
