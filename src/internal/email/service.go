package email

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/caslinks/src/internal/database/models"
)

// Service handles email notifications
type Service struct {
	db     *gorm.DB
	cfg    *viper.Viper
	mailer *Mailer
}

// NewService creates a new email service
func NewService(db *gorm.DB, cfg *viper.Viper) *Service {
	return &Service{
		db:     db,
		cfg:    cfg,
		mailer: NewMailer(cfg),
	}
}

// NotifyDomainActivated tells the owning tenant that their custom
// domain is live. Best effort: failures are logged, never surfaced to
// the lifecycle machinery.
func (s *Service) NotifyDomainActivated(userID uuid.UUID, domain string) {
	s.notify(userID, domain,
		fmt.Sprintf("Your custom domain %s is now active", domain),
		fmt.Sprintf("Your custom domain %s has been verified and activated. "+
			"Visitors can now reach your page at https://%s.", domain, domain),
	)
}

// NotifyDomainFailed tells the owning tenant that verification gave up
// after the retry window.
func (s *Service) NotifyDomainFailed(userID uuid.UUID, domain string) {
	s.notify(userID, domain,
		fmt.Sprintf("Verification failed for custom domain %s", domain),
		fmt.Sprintf("We could not verify ownership of %s within the allowed window. "+
			"Check your DNS records and retry verification from your dashboard.", domain),
	)
}

func (s *Service) notify(userID uuid.UUID, domain, subject, body string) {
	if !s.cfg.GetBool("email.enabled") {
		return
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		slog.Warn("domain notification skipped, owner not found",
			"user_id", userID, "domain", domain, "error", err)
		return
	}

	if err := s.mailer.Send(user.Email, user.DisplayName, subject, body); err != nil {
		slog.Warn("failed to send domain notification",
			"user_id", userID, "domain", domain, "error", err)
	}
}
