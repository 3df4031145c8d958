package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the academic role of a user.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// User represents a registered member of the institution.
type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name         string    `json:"name" gorm:"size:255;not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Role         Role      `json:"role" gorm:"type:varchar(20);not null;default:'student'"`
	Branch       string    `json:"branch,omitempty" gorm:"size:100"`
	Semester     int       `json:"semester,omitempty"`
	Section      string    `json:"section,omitempty" gorm:"size:20"`
	PasswordHash *string   `json:"-" gorm:"size:255"` // nil for federated-only accounts
	GoogleID     *string   `json:"-" gorm:"uniqueIndex;size:255"`
	Reputation   int       `json:"reputation" gorm:"not null;default:0"`
	UploadCount  int       `json:"uploadCount" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BeforeCreate sets UUID before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// PublicUser is the projection of a user returned to clients.
type PublicUser struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	Branch      string    `json:"branch,omitempty"`
	Semester    int       `json:"semester,omitempty"`
	Section     string    `json:"section,omitempty"`
	Reputation  int       `json:"reputation"`
	UploadCount int       `json:"uploadCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Public returns the client-facing projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Branch:      u.Branch,
		Semester:    u.Semester,
		Section:     u.Section,
		Reputation:  u.Reputation,
		UploadCount: u.UploadCount,
		CreatedAt:   u.CreatedAt,
	}
}
