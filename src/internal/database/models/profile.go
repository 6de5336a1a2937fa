package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CanonicalPreference selects which host form is authoritative for a
// profile's custom domain.
type CanonicalPreference string

const (
	CanonicalAuto   CanonicalPreference = "auto"
	CanonicalWWW    CanonicalPreference = "www"
	CanonicalNonWWW CanonicalPreference = "non-www"
)

// Profile represents a tenant's public link-in-bio page
type Profile struct {
	ID                  uuid.UUID           `gorm:"type:uuid;primary_key"`
	UserID              uuid.UUID           `gorm:"type:uuid;uniqueIndex;not null"`
	DisplayName         string              `gorm:"size:100"`
	Bio                 string              `gorm:"size:500"`
	AvatarURL           string              `gorm:"size:255"`
	Theme               string              `gorm:"size:30;default:'default'"`
	CanonicalPreference CanonicalPreference `gorm:"size:10;default:'auto'"`
	ForceHTTPS          bool                `gorm:"column:force_https;default:true"`
	// Published is an explicit action; fresh profiles stay private.
	Published bool `gorm:"default:false"`
	CreatedAt           time.Time
	UpdatedAt           time.Time

	// Relations
	User  *User         `gorm:"constraint:OnDelete:CASCADE"`
	Links []ProfileLink `gorm:"constraint:OnDelete:CASCADE"`
}

// ProfileLink is a single link block on a profile page
type ProfileLink struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	ProfileID uuid.UUID `gorm:"type:uuid;index;not null"`
	Title     string    `gorm:"size:100;not null"`
	URL       string    `gorm:"size:2048;not null"`
	Position  int       `gorm:"default:0"`
	Enabled   bool      `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate hook
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CanonicalPreference == "" {
		p.CanonicalPreference = CanonicalAuto
	}
	return nil
}

// BeforeCreate hook
func (l *ProfileLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
