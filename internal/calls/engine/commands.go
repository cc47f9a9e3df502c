package engine

import (
	"context"
	"strconv"
	"time"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/internal/calls/domain"
	"voicedesk_backend/platform/apperr"
)

// dispatchCommand executes one voice-agent function call. An unknown command
// is an error for that event only; the caller absorbs it into the error count.
func (w *CallWorkflow) dispatchCommand(ctx context.Context, event domain.FunctionCallEvent) error {
	switch event.Name {
	case domain.FunctionUpdateScore:
		return w.cmdUpdateScore(event)
	case domain.FunctionScheduleAppointment:
		return w.cmdScheduleAppointment(ctx, event)
	case domain.FunctionTransferToHuman:
		w.requestTransfer(ctx, domain.TransferRequest{
			Reason:    stringParam(event.Parameters, "reason"),
			Priority:  stringParam(event.Parameters, "priority"),
			Notes:     stringParam(event.Parameters, "notes"),
			AgentType: stringParam(event.Parameters, "agentType"),
		})
		return nil
	case domain.FunctionSendSMS:
		return w.cmdSendSMS(ctx, event)
	case domain.FunctionProcessPayment:
		return w.cmdProcessPayment(ctx, event)
	default:
		return apperr.New(apperr.KindBadRequest, "unknown function call").WithOp(event.Name)
	}
}

// cmdUpdateScore applies an agent-driven score. Unlike transcript analysis,
// which tracks the latest model read, an explicit update only ever raises the
// score.
func (w *CallWorkflow) cmdUpdateScore(event domain.FunctionCallEvent) error {
	score, ok := floatParam(event.Parameters, "score")
	if !ok {
		return apperr.New(apperr.KindValidation, "update_score requires a numeric score")
	}
	if score > w.status.LeadScore {
		w.status.LeadScore = score
	}
	if reason := stringParam(event.Parameters, "reason"); reason != "" {
		w.status.AddNextAction("score update: " + reason)
	}
	return nil
}

func (w *CallWorkflow) cmdScheduleAppointment(ctx context.Context, event domain.FunctionCallEvent) error {
	startTime, ok := timeParam(event.Parameters, "startTime")
	if !ok {
		return apperr.New(apperr.KindValidation, "schedule_appointment requires an RFC3339 startTime")
	}

	return activity.RunVoid(ctx, w.gw, w.cp, "schedule-appointment", func(ctx context.Context) error {
		return w.acts.Scheduler.ScheduleAppointment(ctx, activity.AppointmentRequest{
			TenantID:  w.call.TenantID,
			LeadID:    w.call.LeadID,
			CallID:    w.call.CallID,
			StartTime: startTime,
			Notes:     stringParam(event.Parameters, "notes"),
		})
	})
}

func (w *CallWorkflow) cmdSendSMS(ctx context.Context, event domain.FunctionCallEvent) error {
	body := stringParam(event.Parameters, "message")
	if body == "" {
		return apperr.New(apperr.KindValidation, "send_sms requires a message")
	}
	to := stringParam(event.Parameters, "to")
	if to == "" {
		to = w.call.Phone
	}

	return activity.RunVoid(ctx, w.gw, w.cp, "send-sms", func(ctx context.Context) error {
		return w.acts.Notifier.SendSMS(ctx, activity.SMSMessage{
			TenantID: w.call.TenantID,
			To:       to,
			Body:     body,
		})
	})
}

func (w *CallWorkflow) cmdProcessPayment(ctx context.Context, event domain.FunctionCallEvent) error {
	amount, ok := floatParam(event.Parameters, "amountCents")
	if !ok || amount <= 0 {
		return apperr.New(apperr.KindValidation, "process_payment requires a positive amountCents")
	}
	currency := stringParam(event.Parameters, "currency")
	if currency == "" {
		currency = "USD"
	}

	result, err := activity.Run(ctx, w.gw, w.cp, "process-payment", func(ctx context.Context) (activity.PaymentResult, error) {
		return w.acts.Payments.ProcessPayment(ctx, activity.PaymentRequest{
			TenantID:    w.call.TenantID,
			LeadID:      w.call.LeadID,
			CallID:      w.call.CallID,
			AmountCents: int64(amount),
			Currency:    currency,
			Reference:   stringParam(event.Parameters, "reference"),
		})
	})
	if err != nil {
		return err
	}

	w.status.AddNextAction("payment " + result.Status + ": " + result.TransactionID)
	return nil
}

// Function-call parameters arrive as loosely typed JSON; these helpers accept
// the encodings providers actually send.

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func timeParam(params map[string]any, key string) (time.Time, bool) {
	s, ok := params[key].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
