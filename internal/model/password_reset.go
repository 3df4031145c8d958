package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PasswordResetRequest is one outstanding password reset attempt.
// Used only ever moves from false to true.
type PasswordResetRequest struct {
	ID        uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	UserID    uuid.UUID `json:"userId" gorm:"type:char(36);not null;index"`
	TokenHash string    `json:"-" gorm:"type:char(64);uniqueIndex;not null"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null;index"`
	Used      bool      `json:"used" gorm:"not null;default:false;index"`
	CreatedAt time.Time `json:"createdAt"`
}

// BeforeCreate sets UUID before creating the record.
func (r *PasswordResetRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Active reports whether the request can still be consumed at now.
func (r *PasswordResetRequest) Active(now time.Time) bool {
	return !r.Used && r.ExpiresAt.After(now)
}
