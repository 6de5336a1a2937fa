package email

import (
	"crypto/tls"
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/gomail.v2"
)

// Mailer handles sending emails
type Mailer struct {
	cfg    *viper.Viper
	dialer *gomail.Dialer
}

// NewMailer creates a new mailer instance
func NewMailer(cfg *viper.Viper) *Mailer {
	var dialer *gomail.Dialer

	if cfg.GetBool("email.enabled") {
		host := cfg.GetString("email.smtp.host")
		port := cfg.GetInt("email.smtp.port")
		username := cfg.GetString("email.smtp.username")
		password := cfg.GetString("email.smtp.password")

		dialer = gomail.NewDialer(host, port, username, password)

		// Configure TLS
		if cfg.GetBool("email.smtp.use_tls") {
			dialer.TLSConfig = &tls.Config{
				ServerName:         host,
				InsecureSkipVerify: cfg.GetBool("email.smtp.skip_verify"),
			}
		}
	}

	return &Mailer{
		cfg:    cfg,
		dialer: dialer,
	}
}

// Send sends a plain-text email message
func (m *Mailer) Send(toEmail, toName, subject, body string) error {
	if !m.cfg.GetBool("email.enabled") {
		return fmt.Errorf("email sending is disabled")
	}

	if m.dialer == nil {
		return fmt.Errorf("email dialer not configured")
	}

	message := gomail.NewMessage()
	message.SetHeader("From", m.formatAddress(
		m.cfg.GetString("email.from.address"),
		m.cfg.GetString("email.from.name"),
	))
	message.SetHeader("To", m.formatAddress(toEmail, toName))
	message.SetHeader("Subject", subject)
	message.SetHeader("X-Mailer", "CasLinks")
	message.SetBody("text/plain", body)

	return m.dialer.DialAndSend(message)
}

// formatAddress formats an email address with an optional display name
func (m *Mailer) formatAddress(address, name string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}
