package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a tenant account
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	Username      string    `gorm:"uniqueIndex;size:39;not null"`
	Email         string    `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash  string    `gorm:"size:255;not null"`
	DisplayName   string    `gorm:"size:100"`
	IsAdmin       bool      `gorm:"default:false"`
	IsActive      bool      `gorm:"default:true"`
	EmailVerified bool      `gorm:"default:false"`
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`

	// Relations
	Profile       *Profile       `gorm:"constraint:OnDelete:CASCADE"`
	CustomDomains []CustomDomain `gorm:"constraint:OnDelete:CASCADE"`
}

// BeforeCreate hook
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
