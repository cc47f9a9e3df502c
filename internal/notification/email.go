// Package notification delivers manager alerts, stakeholder notifications,
// and outbound SMS for the call pipeline.
package notification

import (
	"context"
	"fmt"
	"net"
	"time"

	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// EmailSender delivers notification email over the tenant's SMTP server.
type EmailSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewEmailSender creates an email sender, or nil when email is disabled.
func NewEmailSender(cfg config.EmailConfig) *EmailSender {
	if !cfg.IsEmailEnabled() {
		return nil
	}
	return &EmailSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

// FromAddress returns the configured sender address, used as the operations
// inbox when a notification has no explicit recipient.
func (s *EmailSender) FromAddress() string {
	if s == nil {
		return ""
	}
	return s.fromEmail
}

func (s *EmailSender) Send(ctx context.Context, toEmail, subject, body string) error {
	if s == nil {
		return apperr.New(apperr.KindValidation, "email delivery not configured")
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid notification recipient", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "smtp send failed", err)
	}
	return nil
}
