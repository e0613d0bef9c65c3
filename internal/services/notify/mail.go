package notify

import (
	"context"
	"fmt"

	"github.com/xelth-com/eckbackoffice/internal/config"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// Dialer sends composed messages; *gomail.Dialer satisfies it
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailSink e-mails events to their recipient
type MailSink struct {
	db     *gorm.DB
	dialer Dialer
	from   string
}

// NewMailSink returns nil when SMTP is not configured
func NewMailSink(db *gorm.DB, cfg config.MailConfig) *MailSink {
	if cfg.Host == "" {
		return nil
	}
	return &MailSink{
		db:     db,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// NewMailSinkWithDialer is used when the transport is provided by the caller
func NewMailSinkWithDialer(db *gorm.DB, dialer Dialer, from string) *MailSink {
	return &MailSink{db: db, dialer: dialer, from: from}
}

// Publish implements Sink. Broadcast events and recipients without e-mail are skipped.
func (s *MailSink) Publish(ctx context.Context, ev Event) error {
	if s == nil || ev.RecipientID == nil {
		return nil
	}
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "email", "name").First(&user, *ev.RecipientID).Error; err != nil {
		return fmt.Errorf("load mail recipient %d: %w", *ev.RecipientID, err)
	}
	if user.Email == "" {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", user.Email)
	m.SetHeader("Subject", subjectFor(ev.Type))
	m.SetBody("text/plain", ev.Message)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail to %s: %w", user.Email, err)
	}
	return nil
}

func subjectFor(eventType string) string {
	switch eventType {
	case TypeClientApproved:
		return "Demande client approuvée"
	case TypeClientRejected:
		return "Demande client rejetée"
	case TypeClientSubmitted:
		return "Nouvelle demande client"
	default:
		return "Notification"
	}
}
