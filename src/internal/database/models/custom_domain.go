package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DomainStatus is the lifecycle state of a custom domain claim.
type DomainStatus string

const (
	DomainStatusPendingDNS  DomainStatus = "pending_dns"
	DomainStatusVerifiedDNS DomainStatus = "verified_dns"
	DomainStatusActive      DomainStatus = "active"
	DomainStatusRejected    DomainStatus = "rejected"
	DomainStatusFailed      DomainStatus = "failed"
)

// domainStatusAliases maps legacy status spellings onto the canonical
// enumeration. Normalization happens once at the data-access boundary;
// the rest of the system only sees canonical values.
var domainStatusAliases = map[string]DomainStatus{
	"pending":       DomainStatusPendingDNS,
	"pending_dns":   DomainStatusPendingDNS,
	"verified":      DomainStatusVerifiedDNS,
	"verified_dns":  DomainStatusVerifiedDNS,
	"active":        DomainStatusActive,
	"active_manual": DomainStatusActive,
	"rejected":      DomainStatusRejected,
	"failed":        DomainStatusFailed,
}

// NormalizeDomainStatus maps a raw status string (including legacy
// aliases) to its canonical value. The second return is false for
// unrecognized input.
func NormalizeDomainStatus(raw string) (DomainStatus, bool) {
	s, ok := domainStatusAliases[raw]
	return s, ok
}

// domainTransitions defines the legal state machine edges. No status
// write outside this map is permitted.
var domainTransitions = map[DomainStatus][]DomainStatus{
	DomainStatusPendingDNS:  {DomainStatusVerifiedDNS, DomainStatusFailed, DomainStatusPendingDNS},
	DomainStatusVerifiedDNS: {DomainStatusActive, DomainStatusFailed, DomainStatusRejected, DomainStatusPendingDNS},
	DomainStatusActive:      {DomainStatusRejected, DomainStatusPendingDNS},
	DomainStatusFailed:      {DomainStatusPendingDNS, DomainStatusRejected},
	DomainStatusRejected:    {},
}

// CanTransitionTo checks whether a transition from this status to the
// target is allowed.
func (s DomainStatus) CanTransitionTo(to DomainStatus) bool {
	for _, allowed := range domainTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsValid returns whether this is a recognized canonical status.
func (s DomainStatus) IsValid() bool {
	_, ok := domainTransitions[s]
	return ok
}

// IsTerminal reports whether the status is absorbing: nothing leaves it
// except record deletion.
func (s DomainStatus) IsTerminal() bool {
	return s == DomainStatusRejected
}

// String returns the string representation.
func (s DomainStatus) String() string {
	return string(s)
}

// CustomDomain is one claimed custom domain. The domain string is
// unique across all tenants regardless of status, and status is only
// ever written by the domains service.
type CustomDomain struct {
	ID                uuid.UUID    `gorm:"type:uuid;primary_key"`
	Domain            string       `gorm:"uniqueIndex;size:253;not null"`
	UserID            uuid.UUID    `gorm:"type:uuid;index;not null"`
	Status            DomainStatus `gorm:"size:32;not null;default:'pending_dns'"`
	VerificationToken string       `gorm:"size:64;not null"`
	DNSVerified       bool         `gorm:"default:false"`
	IsPrimary         bool         `gorm:"default:false"`
	FailureCount      int          `gorm:"default:0"`
	// PendingSince marks the most recent entry into pending_dns; the
	// scheduler's abandonment window is measured from it.
	PendingSince  time.Time
	LastCheckedAt *time.Time
	VerifiedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Relations
	User *User `gorm:"constraint:OnDelete:CASCADE"`
}

// BeforeCreate hook
func (d *CustomDomain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UserID == uuid.Nil {
		return gorm.ErrInvalidData
	}
	if d.Status == "" {
		d.Status = DomainStatusPendingDNS
	}
	return nil
}

// AfterFind normalizes legacy status spellings read from storage.
func (d *CustomDomain) AfterFind(tx *gorm.DB) error {
	if s, ok := NormalizeDomainStatus(string(d.Status)); ok {
		d.Status = s
	}
	return nil
}
