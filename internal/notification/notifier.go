package notification

import (
	"context"
	"fmt"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/platform/config"
	"voicedesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Notifier composes email and SMS delivery behind the activity contract.
type Notifier struct {
	email      *EmailSender
	sms        *SMSClient
	appBaseURL string
	log        *logger.Logger
}

// New creates the notifier. Either channel may be nil; sends over a missing
// channel fail with a non-retryable configuration error.
func New(email *EmailSender, sms *SMSClient, cfg config.NotificationConfig, log *logger.Logger) *Notifier {
	return &Notifier{
		email:      email,
		sms:        sms,
		appBaseURL: cfg.GetAppBaseURL(),
		log:        log,
	}
}

// SendManagerAlert emails the operations inbox about an urgent mid-call
// action, with a deep link to the live call.
func (n *Notifier) SendManagerAlert(ctx context.Context, alert activity.ManagerAlert) error {
	subject := fmt.Sprintf("Urgent: %s (live call)", alert.Action)
	body := fmt.Sprintf(
		"Caller %s needs immediate attention.\n\nAction: %s\n\nCall: %s/calls/%s",
		alert.Phone, alert.Action, n.appBaseURL, alert.CallID,
	)

	if err := n.email.Send(ctx, n.email.FromAddress(), subject, body); err != nil {
		return err
	}

	n.log.Warn("manager alert raised",
		"call_id", alert.CallID.String(), "action", alert.Action)
	return nil
}

// SendNotification delivers a stakeholder notification by email. Without an
// explicit recipient it goes to the operations inbox.
func (n *Notifier) SendNotification(ctx context.Context, notif activity.Notification) error {
	recipient := notif.Recipient
	if recipient == "" {
		recipient = n.email.FromAddress()
	}

	body := notif.Body
	if notif.CallID != uuid.Nil {
		body = fmt.Sprintf("%s\n\nCall: %s/calls/%s", notif.Body, n.appBaseURL, notif.CallID)
	}

	return n.email.Send(ctx, recipient, notif.Subject, body)
}

// SendSMS sends a text message through the gateway.
func (n *Notifier) SendSMS(ctx context.Context, msg activity.SMSMessage) error {
	return n.sms.Send(ctx, msg.To, msg.Body)
}

var _ activity.Notifier = (*Notifier)(nil)
