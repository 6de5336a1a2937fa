package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session stores a refresh-token grant. Only the SHA-256 of the token
// is persisted; the raw value is handed to the client once.
type Session struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	TokenHash string    `gorm:"uniqueIndex;size:64;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time

	User *User `gorm:"constraint:OnDelete:CASCADE"`
}

// BeforeCreate hook
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Expired reports whether the grant can no longer be redeemed.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}
