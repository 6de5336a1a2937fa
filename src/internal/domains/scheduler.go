package domains

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// Scheduler re-verifies pending domains in the background until they
// succeed, an operator rejects them, or the failure policy gives up.
// Request handling never performs live DNS lookups; this loop and the
// manual verify endpoint are the only callers of the verifier, and
// they share the service's per-domain single-flight.
type Scheduler struct {
	service  *Service
	interval time.Duration
	batch    int
}

// NewScheduler creates a verification scheduler
func NewScheduler(service *Service, cfg *viper.Viper) *Scheduler {
	interval := cfg.GetDuration("domains.check_interval")
	if interval <= 0 {
		interval = 30 * time.Second
	}
	batch := cfg.GetInt("domains.check_batch")
	if batch <= 0 {
		batch = 50
	}
	return &Scheduler{
		service:  service,
		interval: interval,
		batch:    batch,
	}
}

// Start runs the scheduler loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("domain verification scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("domain verification scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick verifies every record whose backoff has elapsed. At most one
// verifier call per record per tick; records whose owner removed them
// mid-flight simply come back as not found and are skipped.
func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.service.DueForCheck(time.Now().UTC(), s.batch)
	if err != nil {
		slog.Error("failed to load domains due for verification", "error", err)
		return
	}

	for _, record := range due {
		if ctx.Err() != nil {
			return
		}

		_, reason := s.service.VerifyNow(ctx, record.ID)
		switch {
		case reason == nil:
			slog.Info("domain verified", "domain", record.Domain)
		case errors.Is(reason, ErrVerificationTimedOut):
			slog.Warn("domain verification gave up", "domain", record.Domain)
		case errors.Is(reason, ErrDomainNotFound):
			// Removed while queued; nothing to do.
		case IsRetryable(reason):
			slog.Debug("domain not verified yet", "domain", record.Domain, "reason", reason)
		default:
			slog.Error("domain verification error", "domain", record.Domain, "error", reason)
		}
	}
}
