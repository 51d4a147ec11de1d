package notification

import (
	"fmt"
	"net/smtp"

	"github.com/winfeed/backend/internal/config"
	"github.com/winfeed/backend/internal/logging"
)

// Service sends best-effort email notifications. Delivery runs outside the
// calling transaction and failure never fails the triggering operation.
type Service struct {
	cfg config.SMTPConfig
}

// NewService creates a new notification service
func NewService(cfg config.SMTPConfig) *Service {
	return &Service{cfg: cfg}
}

// NotifyTokenGrant tells a user they received VIP tokens. Safe to call on a
// nil service.
func (s *Service) NotifyTokenGrant(email string, count int) {
	if s == nil {
		return
	}
	subject := "Your VIP tokens have arrived"
	body := fmt.Sprintf("You have been granted %d VIP token(s). Redeem them from your account page.", count)
	go s.send(email, subject, body)
}

// NotifyReferralReward tells a referrer their invite paid out
func (s *Service) NotifyReferralReward(email, amount string) {
	if s == nil {
		return
	}
	subject := "Referral reward credited"
	body := fmt.Sprintf("A friend joined with your invite code. $%s has been credited to your wallet.", amount)
	go s.send(email, subject, body)
}

func (s *Service) send(to, subject, body string) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		s.cfg.FromEmail, to, subject, body,
	))

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.FromEmail, []string{to}, msg); err != nil {
		logger := logging.NewLogger("notification")
		logger.Warn().
			Err(err).
			Str("to", to).
			Str("subject", subject).
			Msg("Failed to send notification email")
	}
}
