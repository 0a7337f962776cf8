package models

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrUnhashedPassword is returned when a user is saved with a password value that is not a bcrypt hash.
var ErrUnhashedPassword = errors.New("password must be hashed before persisting")

// User represents a blog account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null" json:"username"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"isAdmin"`
	Provider     string    `gorm:"size:32;index:idx_users_provider" json:"provider,omitempty"`
	ProviderID   string    `gorm:"size:255;index:idx_users_provider" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Posts        []Post    `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Comments     []Comment `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// NormalizeEmail trims and lower-cases an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CanModify reports whether the user may mutate a resource owned by ownerID.
func (u *User) CanModify(ownerID uint) bool {
	if u == nil {
		return false
	}
	return u.ID == ownerID || u.IsAdmin
}

// BeforeSave refuses to write a password value that is not a bcrypt hash.
// Hashing itself happens explicitly in the registration flow.
func (u *User) BeforeSave(tx *gorm.DB) error {
	if u.PasswordHash == "" {
		return nil
	}
	if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
		return ErrUnhashedPassword
	}
	return nil
}
