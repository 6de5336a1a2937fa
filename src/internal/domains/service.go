package domains

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/casapps/caslinks/src/internal/database/models"
	"github.com/casapps/caslinks/src/internal/email"
)

// Service owns the custom-domain lifecycle. Every status write in the
// system goes through it; handlers, the scheduler and admin tooling
// request transitions and get an error back instead of mutating rows.
type Service struct {
	db           *gorm.DB
	cfg          *viper.Viper
	verifier     *Verifier
	emailService *email.Service

	// flight collapses concurrent verification attempts per domain ID
	// so overlapping timers never issue two simultaneous lookups for
	// one domain.
	flight singleflight.Group
}

// NewService creates a new domain service
func NewService(db *gorm.DB, cfg *viper.Viper, verifier *Verifier, emailService *email.Service) *Service {
	if verifier == nil {
		verifier = NewVerifier(cfg)
	}
	return &Service{
		db:           db,
		cfg:          cfg,
		verifier:     verifier,
		emailService: emailService,
	}
}

// Claim registers a domain for a tenant and mints its verification
// token. The domain string is globally unique: a claim fails when any
// record for it exists, whatever its status or owner.
func (s *Service) Claim(userID uuid.UUID, domain string) (*models.CustomDomain, error) {
	domain = NormalizeDomain(domain)
	if err := ValidateDomainName(domain, s.cfg.GetString("platform.domain")); err != nil {
		return nil, err
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	record := &models.CustomDomain{
		Domain:            domain,
		UserID:            userID,
		Status:            models.DomainStatusPendingDNS,
		VerificationToken: token,
		PendingSince:      time.Now().UTC(),
	}

	// Serialized check-and-write; the unique index on domain is the
	// backstop against claims racing past the existence check.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CustomDomain{}).Where("domain = ?", domain).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check domain claim: %w", err)
		}
		if count > 0 {
			return ErrDomainAlreadyClaimed
		}
		if err := tx.Create(record).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDomainAlreadyClaimed
			}
			return fmt.Errorf("failed to create domain record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// GetByID fetches one domain record.
func (s *Service) GetByID(id uuid.UUID) (*models.CustomDomain, error) {
	var record models.CustomDomain
	if err := s.db.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDomainNotFound
		}
		return nil, fmt.Errorf("failed to load domain record: %w", err)
	}
	return &record, nil
}

// GetByDomain fetches the record for a normalized domain string.
func (s *Service) GetByDomain(domain string) (*models.CustomDomain, error) {
	var record models.CustomDomain
	if err := s.db.First(&record, "domain = ?", NormalizeDomain(domain)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDomainNotFound
		}
		return nil, fmt.Errorf("failed to load domain record: %w", err)
	}
	return &record, nil
}

// ListByOwner returns all domain records claimed by a tenant.
func (s *Service) ListByOwner(userID uuid.UUID) ([]models.CustomDomain, error) {
	var records []models.CustomDomain
	if err := s.db.Where("user_id = ?", userID).Order("created_at").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	return records, nil
}

// VerifyNow runs one verification attempt for a domain and applies the
// outcome to the lifecycle. Concurrent callers for the same domain ID
// join the in-flight attempt. The returned error is the verification
// reason: nil on success, ErrDNSNotPropagated / ErrTokenMismatch when
// the domain is not verified yet, or a non-retryable service error.
func (s *Service) VerifyNow(ctx context.Context, id uuid.UUID) (*models.CustomDomain, error) {
	type outcome struct {
		record *models.CustomDomain
		reason error
	}

	v, err, _ := s.flight.Do(id.String(), func() (interface{}, error) {
		record, reason := s.verifyOnce(ctx, id)
		if record == nil {
			return nil, reason
		}
		return &outcome{record: record, reason: reason}, nil
	})
	if err != nil {
		return nil, err
	}

	o := v.(*outcome)
	return o.record, o.reason
}

// verifyOnce performs the lookups and the resulting transition. It
// returns (nil, err) only for service-level failures; otherwise the
// refreshed record plus the verification reason.
func (s *Service) verifyOnce(ctx context.Context, id uuid.UUID) (*models.CustomDomain, error) {
	record, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	switch record.Status {
	case models.DomainStatusPendingDNS, models.DomainStatusVerifiedDNS:
	default:
		return record, fmt.Errorf("%w: cannot verify a domain in status %s", ErrIllegalTransition, record.Status)
	}

	result, verr := s.verifier.Verify(ctx, record.Domain, record.VerificationToken)
	now := time.Now().UTC()

	if verr != nil {
		// Transient resolver failure: bump the check timestamp, leave
		// the failure counter alone, and only give up when the
		// abandonment window has passed.
		if s.windowExceeded(record, now) {
			return s.markFailed(record, now)
		}
		if err := s.db.Model(record).Update("last_checked_at", now).Error; err != nil {
			return nil, fmt.Errorf("failed to record check time: %w", err)
		}
		record.LastCheckedAt = &now
		slog.Debug("domain verification deferred",
			"domain", record.Domain, "error", verr)
		return record, verr
	}

	if result.Verified() {
		return s.markVerified(record, record.VerificationToken, now)
	}

	// Definite mismatch: authoritative answers came back wrong.
	record.FailureCount++
	if record.FailureCount >= s.maxFailures() || s.windowExceeded(record, now) {
		return s.markFailed(record, now)
	}

	updates := map[string]interface{}{
		"failure_count":   record.FailureCount,
		"dns_verified":    false,
		"last_checked_at": now,
	}
	if err := s.db.Model(record).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to record verification failure: %w", err)
	}
	record.DNSVerified = false
	record.LastCheckedAt = &now
	return record, Reason(result, nil)
}

// markVerified applies a successful verification: verified_dns with
// the cache bits set, optionally straight to active when auto
// activation is configured. The result only counts for the token the
// lookups ran against: a regenerate, retry or reject landing while the
// resolver call was in flight supersedes it, and the stale win is
// dropped instead of committed.
func (s *Service) markVerified(record *models.CustomDomain, token string, now time.Time) (*models.CustomDomain, error) {
	superseded := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var fresh models.CustomDomain
		if err := tx.First(&fresh, "id = ?", record.ID).Error; err != nil {
			return fmt.Errorf("failed to reload domain record: %w", err)
		}
		*record = fresh
		if record.VerificationToken != token ||
			(record.Status != models.DomainStatusPendingDNS && record.Status != models.DomainStatusVerifiedDNS) {
			superseded = true
			return nil
		}

		if record.Status == models.DomainStatusPendingDNS {
			if err := s.transition(tx, record, models.DomainStatusVerifiedDNS); err != nil {
				return err
			}
		}
		updates := map[string]interface{}{
			"dns_verified":    true,
			"verified_at":     now,
			"last_checked_at": now,
			"failure_count":   0,
		}
		if err := tx.Model(record).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to store verification result: %w", err)
		}
		record.DNSVerified = true
		record.VerifiedAt = &now
		record.LastCheckedAt = &now
		record.FailureCount = 0

		if s.cfg.GetBool("domains.auto_activate") && record.Status == models.DomainStatusVerifiedDNS {
			if err := s.transition(tx, record, models.DomainStatusActive); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if superseded {
		slog.Debug("stale verification result dropped",
			"domain", record.Domain, "status", record.Status)
		return record, ErrDNSNotPropagated
	}

	if record.Status == models.DomainStatusActive && s.emailService != nil {
		s.emailService.NotifyDomainActivated(record.UserID, record.Domain)
	}
	return record, nil
}

// markFailed moves a record into failed after the retry budget or the
// abandonment window is exhausted.
func (s *Service) markFailed(record *models.CustomDomain, now time.Time) (*models.CustomDomain, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, record, models.DomainStatusFailed); err != nil {
			return err
		}
		updates := map[string]interface{}{
			"dns_verified":    false,
			"last_checked_at": now,
			"failure_count":   record.FailureCount,
			"is_primary":      false,
		}
		if err := tx.Model(record).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to store failure: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	record.DNSVerified = false
	record.IsPrimary = false
	record.LastCheckedAt = &now

	if s.emailService != nil {
		s.emailService.NotifyDomainFailed(record.UserID, record.Domain)
	}
	return record, ErrVerificationTimedOut
}

// Activate promotes a verified domain to active. Operator or
// auto-policy action; requires a successful verification under the
// currently stored token.
func (s *Service) Activate(id uuid.UUID, makePrimary bool) (*models.CustomDomain, error) {
	record, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record.Status != models.DomainStatusVerifiedDNS || !record.DNSVerified {
		return nil, fmt.Errorf("%w: only a DNS-verified domain can be activated", ErrIllegalTransition)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, record, models.DomainStatusActive); err != nil {
			return err
		}
		if makePrimary {
			return s.setPrimaryTx(tx, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.emailService != nil {
		s.emailService.NotifyDomainActivated(record.UserID, record.Domain)
	}
	return record, nil
}

// Reject marks a domain rejected. Terminal: only removal and a fresh
// claim can follow.
func (s *Service) Reject(id uuid.UUID) (*models.CustomDomain, error) {
	record, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, record, models.DomainStatusRejected); err != nil {
			return err
		}
		if record.IsPrimary {
			if err := tx.Model(record).Update("is_primary", false).Error; err != nil {
				return fmt.Errorf("failed to clear primary flag: %w", err)
			}
			record.IsPrimary = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SetPrimary makes a domain the canonical one for its owner. Only an
// active record may be primary; any competing primary for the same
// owner is cleared in the same transaction.
func (s *Service) SetPrimary(id, userID uuid.UUID) (*models.CustomDomain, error) {
	record, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, ErrNotOwner
	}
	if record.Status != models.DomainStatusActive {
		return nil, fmt.Errorf("%w: only an active domain can be primary", ErrPrimaryConflict)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.setPrimaryTx(tx, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) setPrimaryTx(tx *gorm.DB, record *models.CustomDomain) error {
	if err := tx.Model(&models.CustomDomain{}).
		Where("user_id = ? AND id <> ?", record.UserID, record.ID).
		Update("is_primary", false).Error; err != nil {
		return fmt.Errorf("failed to clear previous primary: %w", err)
	}
	if err := tx.Model(record).Update("is_primary", true).Error; err != nil {
		return fmt.Errorf("failed to set primary: %w", err)
	}
	record.IsPrimary = true
	return nil
}

// RegenerateToken mints a fresh verification token. Regeneration is a
// lifecycle event: it invalidates any prior verification, so the
// record drops back to pending_dns whatever it was, except from the
// absorbing rejected state.
func (s *Service) RegenerateToken(id, userID uuid.UUID) (*models.CustomDomain, error) {
	record, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, ErrNotOwner
	}
	if record.Status == models.DomainStatusRejected {
		return nil, fmt.Errorf("%w: rejected domains cannot regenerate tokens", ErrIllegalTransition)
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, record, models.DomainStatusPendingDNS); err != nil {
			return err
		}
		updates := map[string]interface{}{
			"verification_token": token,
			"dns_verified":       false,
			"is_primary":         false,
			"failure_count":      0,
			"verified_at":        nil,
			"pending_since":      now,
		}
		if err := tx.Model(record).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to store regenerated token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	record.VerificationToken = token
	record.DNSVerified = false
	record.IsPrimary = false
	record.FailureCount = 0
	record.VerifiedAt = nil
	record.PendingSince = now
	return record, nil
}

// Retry re-submits a failed domain for verification, resetting the
// failure budget and the abandonment window.
func (s *Service) Retry(id, userID uuid.UUID) (*models.CustomDomain, error) {
	record, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, ErrNotOwner
	}
	if record.Status != models.DomainStatusFailed {
		return nil, fmt.Errorf("%w: only a failed domain can be retried", ErrIllegalTransition)
	}

	now := time.Now().UTC()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, record, models.DomainStatusPendingDNS); err != nil {
			return err
		}
		updates := map[string]interface{}{
			"failure_count": 0,
			"dns_verified":  false,
			"pending_since": now,
		}
		if err := tx.Model(record).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to reset domain for retry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	record.FailureCount = 0
	record.DNSVerified = false
	record.PendingSince = now
	return record, nil
}

// Remove deletes a domain record. Idempotent: removing a domain that
// does not exist is not an error.
func (s *Service) Remove(id, userID uuid.UUID) error {
	result := s.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.CustomDomain{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove domain: %w", result.Error)
	}
	return nil
}

// ActivePrimaryDomain returns the tenant's canonical custom domain,
// or "" when no active primary domain exists.
func (s *Service) ActivePrimaryDomain(userID uuid.UUID) (string, error) {
	var record models.CustomDomain
	err := s.db.
		Where("user_id = ? AND is_primary = ? AND status = ?", userID, true, models.DomainStatusActive).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load primary domain: %w", err)
	}
	return record.Domain, nil
}

// DueForCheck returns pending and verified records whose backoff has
// elapsed, oldest check first.
func (s *Service) DueForCheck(now time.Time, limit int) ([]models.CustomDomain, error) {
	base := s.checkInterval()

	var candidates []models.CustomDomain
	err := s.db.
		Where("status IN ?", []models.DomainStatus{models.DomainStatusPendingDNS, models.DomainStatusVerifiedDNS}).
		Where("last_checked_at IS NULL OR last_checked_at <= ?", now.Add(-base)).
		Order("last_checked_at").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due domains: %w", err)
	}

	// The base interval is the floor; per-record backoff grows with
	// accumulated failures and is applied here rather than in SQL.
	due := candidates[:0]
	for _, record := range candidates {
		if record.LastCheckedAt == nil || now.Sub(*record.LastCheckedAt) >= s.backoffFor(record.FailureCount) {
			due = append(due, record)
		}
	}
	return due, nil
}

// transition is the single place that writes status. It validates the
// edge against the state machine and persists the new value.
func (s *Service) transition(tx *gorm.DB, record *models.CustomDomain, to models.DomainStatus) error {
	if !record.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, record.Status, to)
	}
	if err := tx.Model(record).Update("status", to).Error; err != nil {
		return fmt.Errorf("failed to transition %s -> %s: %w", record.Status, to, err)
	}
	record.Status = to
	return nil
}

func (s *Service) maxFailures() int {
	if n := s.cfg.GetInt("domains.max_failures"); n > 0 {
		return n
	}
	return 20
}

func (s *Service) checkInterval() time.Duration {
	if d := s.cfg.GetDuration("domains.check_interval"); d > 0 {
		return d
	}
	return 30 * time.Second
}

func (s *Service) backoffFor(failures int) time.Duration {
	backoff := s.checkInterval() * time.Duration(failures+1)
	max := s.cfg.GetDuration("domains.max_backoff")
	if max <= 0 {
		max = 15 * time.Minute
	}
	if backoff > max {
		return max
	}
	return backoff
}

func (s *Service) windowExceeded(record *models.CustomDomain, now time.Time) bool {
	window := s.cfg.GetDuration("domains.max_verify_window")
	if window <= 0 {
		window = 48 * time.Hour
	}
	start := record.PendingSince
	if start.IsZero() {
		start = record.CreatedAt
	}
	return now.Sub(start) > window
}

// isUniqueViolation detects duplicate-key errors across the supported
// database drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
