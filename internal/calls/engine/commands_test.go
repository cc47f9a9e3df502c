package engine

import (
	"context"
	"testing"
	"time"

	"voicedesk_backend/internal/calls/domain"
)

func functionCall(name string, params map[string]any) domain.FunctionCallEvent {
	return domain.FunctionCallEvent{Name: name, Parameters: params, Timestamp: time.Now()}
}

func TestUpdateScoreOnlyRaises(t *testing.T) {
	h := newHarness()
	_ = h.wf.Begin(context.Background())

	_ = h.signal(t, domain.ChannelFunctionCall, functionCall(domain.FunctionUpdateScore, map[string]any{"score": 8.0}))
	if got := h.status(t).LeadScore; got != 8 {
		t.Fatalf("LeadScore = %v, want 8", got)
	}

	// A lower explicit score is ignored; transcript analysis may lower the
	// score but the agent command never does.
	_ = h.signal(t, domain.ChannelFunctionCall, functionCall(domain.FunctionUpdateScore, map[string]any{"score": 3.0}))
	if got := h.status(t).LeadScore; got != 8 {
		t.Errorf("LeadScore = %v, want unchanged 8", got)
	}
}

func TestUpdateScoreAcceptsStringEncoding(t *testing.T) {
	h := newHarness()
	_ = h.wf.Begin(context.Background())

	_ = h.signal(t, domain.ChannelFunctionCall, functionCall(domain.FunctionUpdateScore, map[string]any{"score": "6.5"}))
	if got := h.status(t).LeadScore; got != 6.5 {
		t.Errorf("LeadScore = %v, want 6.5 from string-encoded score", got)
	}
}

func TestUpdateScoreWithoutScoreCountsError(t *testing.T) {
	h := newHarness()
	_ = h.wf.Begin(context.Background())

	if err := h.signal(t, domain.ChannelFunctionCall, functionCall(domain.FunctionUpdateScore, nil)); err != nil {
		t.Fatalf("function-call signal returned %v, want nil (error absorbed)", err)
	}
	if got := h.status(t).ErrorCount; got != 1 {
		t.Errorf("ErrorCount = %d, want 1", got)
	}
}

func TestUnknownFunctionCountsErrorOnly(t *testing.T) {
	h := newHarness()
	_ = h.wf.Begin(context.Background())

	if err := h.signal(t, domain.ChannelFunctionCall, functionCall("summon_wizard", nil)); err != nil {
		t.Fatalf("function-call signal returned %v, want nil", err)
	}
	status := h.status(t)
	if status.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", status.ErrorCount)
	}
	if h.wf.Done() {
		t.Error("unknown function terminated the call")
	}
}

func TestScheduleAppointmentBooksVisit(t *testing.T) {
	h := newHarness()
	_ = h.wf.Begin(context.Background())

	start := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	_ = h.signal(t, domain.ChannelFunctionCall, functionCall(domain.FunctionScheduleAppointment, map[string]any{
		"startTime": start.Format(time.RFC3339),
		"notes":     "bring replacement parts",
	}))

	if len(h.sched.appointments) != 1 {
		t.Fatalf("appointments = %d, want 1", len(h.sched.appointments))
	}
	appt := h.sched.appointments[0]
	if !appt.StartTime.Equal(start) {
		t.Errorf("StartTime = %v, want %v", appt.StartTime, start)
	}
	if appt.Notes != "bring replacement parts" {
		t.Errorf("Notes = %q", appt.Notes)
	}
	if appt.TenantID != h.call.TenantID || appt.LeadID != h.call.LeadID {
		t.Error("appointment not bound to the call's tenant and lead")
	}
}

func TestScheduleAppointmentRejectsBadTime(t *testing.T) {
	h := newHarness()
	_ = h.wf.Begin(context.Background())

	_ = h.signal(t, domain.ChannelFunctionCall, functionCall(domain.FunctionScheduleAppointment, map[string]any{
		"startTime": "next tuesday",
	}))

	if len(h.sched.appointments) != 0 {
		t.Error("appointment booked from an unparseable time")
	}
	if got := h.status(t).ErrorCount; got != 1 {
		t.Errorf("ErrorCount = %d, want 1", got)
	}
}

func TestSendSMSDefaultsToCallerNumber(t *testing.T) {
	h := newHarness()
	_ = h.wf.Begin(context.Background())

	_ = h.signal(t, domain.ChannelFunctionCall, functionCall(domain.FunctionSendSMS, map[string]any{
		"message": "Your appointment is confirmed.",
	}))

	if len(h.notifier.sms) != 1 {
		t.Fatalf("sms sent = %d, want 1", len(h.notifier.sms))
	}
	if h.notifier.sms[0].To != h.call.Phone {
		t.Errorf("To = %q, want the caller's number %q", h.notifier.sms[0].To, h.call.Phone)
	}
}

func TestProcessPaymentRecordsTransaction(t *testing.T) {
	h := newHarness()
	_ = h.wf.Begin(context.Background())

	_ = h.signal(t, domain.ChannelFunctionCall, functionCall(domain.FunctionProcessPayment, map[string]any{
		"amountCents": 12500.0,
		"currency":    "EUR",
		"reference":   "deposit",
	}))

	if len(h.payments.requests) != 1 {
		t.Fatalf("payment requests = %d, want 1", len(h.payments.requests))
	}
	req := h.payments.requests[0]
	if req.AmountCents != 12500 || req.Currency != "EUR" {
		t.Errorf("payment request = %+v", req)
	}

	status := h.status(t)
	if len(status.NextActions) != 1 || status.NextActions[0] != "payment captured: tx-1" {
		t.Errorf("NextActions = %v", status.NextActions)
	}
}

func TestProcessPaymentRejectsNonPositiveAmount(t *testing.T) {
	h := newHarness()
	_ = h.wf.Begin(context.Background())

	_ = h.signal(t, domain.ChannelFunctionCall, functionCall(domain.FunctionProcessPayment, map[string]any{
		"amountCents": 0.0,
	}))

	if len(h.payments.requests) != 0 {
		t.Error("zero-amount payment reached the gateway")
	}
	if got := h.status(t).ErrorCount; got != 1 {
		t.Errorf("ErrorCount = %d, want 1", got)
	}
}

func TestTransferFunctionBehavesLikeTransferSignal(t *testing.T) {
	h := newHarness()
	_ = h.wf.Begin(context.Background())

	_ = h.signal(t, domain.ChannelFunctionCall, functionCall(domain.FunctionTransferToHuman, map[string]any{
		"reason":   "complex pricing question",
		"priority": "normal",
	}))

	if len(h.transfer.handoffs) != 1 {
		t.Fatalf("handoffs = %d, want 1", len(h.transfer.handoffs))
	}
	if h.transfer.handoffs[0].Request.Reason != "complex pricing question" {
		t.Errorf("handoff reason = %q", h.transfer.handoffs[0].Request.Reason)
	}
	if !h.wf.Done() {
		t.Error("workflow not done after function-call transfer")
	}
}
