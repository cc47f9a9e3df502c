package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/internal/calls/domain"
	"voicedesk_backend/internal/events"
	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/logger"

	"github.com/google/uuid"
)

func fastGateway() *activity.Gateway {
	return activity.NewGateway(activity.RetryPolicy{
		StartToClose:    time.Second,
		InitialInterval: time.Millisecond,
		BackoffFactor:   2,
		MaxInterval:     2 * time.Millisecond,
		MaxAttempts:     2,
	}, 0, logger.New("development"))
}

type fakeAnalyzer struct {
	result     activity.AnalysisResult
	analyzeErr error
	summary    activity.SummaryResult
	summaryErr error
	fn         func(activity.AnalysisRequest) activity.AnalysisResult

	analyzeCalls []activity.AnalysisRequest
}

func (a *fakeAnalyzer) AnalyzeTranscript(_ context.Context, req activity.AnalysisRequest) (activity.AnalysisResult, error) {
	a.analyzeCalls = append(a.analyzeCalls, req)
	if a.fn != nil {
		return a.fn(req), a.analyzeErr
	}
	return a.result, a.analyzeErr
}

func (a *fakeAnalyzer) GenerateSummary(context.Context, activity.SummaryRequest) (activity.SummaryResult, error) {
	return a.summary, a.summaryErr
}

func (a *fakeAnalyzer) QualityCheck(context.Context, activity.QualityCheckRequest) (activity.QualityCheckResult, error) {
	return activity.QualityCheckResult{}, nil
}

type fakeCallStore struct {
	createErr error
	updateErr error

	created   []domain.CallContext
	updated   []activity.FinalRecord
	analytics []activity.AnalyticsRecord
}

func (s *fakeCallStore) CreateCallRecord(_ context.Context, call domain.CallContext) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, call)
	return nil
}

func (s *fakeCallStore) UpdateCallRecord(_ context.Context, record activity.FinalRecord) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = append(s.updated, record)
	return nil
}

func (s *fakeCallStore) StoreAnalytics(_ context.Context, record activity.AnalyticsRecord) error {
	s.analytics = append(s.analytics, record)
	return nil
}

type fakeLeadStore struct {
	updates []activity.LeadScoreUpdate
}

func (s *fakeLeadStore) UpdateLeadScore(_ context.Context, update activity.LeadScoreUpdate) error {
	s.updates = append(s.updates, update)
	return nil
}

type fakeNotifier struct {
	alertErr error

	alerts []activity.ManagerAlert
	sent   []activity.Notification
	sms    []activity.SMSMessage
}

func (n *fakeNotifier) SendManagerAlert(_ context.Context, alert activity.ManagerAlert) error {
	if n.alertErr != nil {
		return n.alertErr
	}
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *fakeNotifier) SendNotification(_ context.Context, notif activity.Notification) error {
	n.sent = append(n.sent, notif)
	return nil
}

func (n *fakeNotifier) SendSMS(_ context.Context, msg activity.SMSMessage) error {
	n.sms = append(n.sms, msg)
	return nil
}

type fakeCRM struct{ updates []activity.CRMUpdate }

func (c *fakeCRM) UpdateCRM(_ context.Context, update activity.CRMUpdate) error {
	c.updates = append(c.updates, update)
	return nil
}

type fakeAutomation struct{ triggers []activity.AutomationTrigger }

func (a *fakeAutomation) TriggerAutomation(_ context.Context, trigger activity.AutomationTrigger) error {
	a.triggers = append(a.triggers, trigger)
	return nil
}

type fakePayments struct {
	result activity.PaymentResult
	err    error

	requests []activity.PaymentRequest
}

func (p *fakePayments) ProcessPayment(_ context.Context, req activity.PaymentRequest) (activity.PaymentResult, error) {
	p.requests = append(p.requests, req)
	return p.result, p.err
}

type fakeScheduler struct {
	appointments []activity.AppointmentRequest
	followUps    []activity.FollowUpRequest
}

func (s *fakeScheduler) ScheduleAppointment(_ context.Context, req activity.AppointmentRequest) error {
	s.appointments = append(s.appointments, req)
	return nil
}

func (s *fakeScheduler) ScheduleFollowUp(_ context.Context, req activity.FollowUpRequest) error {
	s.followUps = append(s.followUps, req)
	return nil
}

type fakeTransfers struct {
	err      error
	handoffs []activity.TransferHandoff
}

func (t *fakeTransfers) HandleTransfer(_ context.Context, handoff activity.TransferHandoff) error {
	if t.err != nil {
		return t.err
	}
	t.handoffs = append(t.handoffs, handoff)
	return nil
}

type fakeArchive struct{ archived []activity.ArchiveRequest }

func (a *fakeArchive) ArchiveCall(_ context.Context, req activity.ArchiveRequest) error {
	a.archived = append(a.archived, req)
	return nil
}

type fakeQueue struct {
	err  error
	jobs []activity.PostCallJob
}

func (q *fakeQueue) Enqueue(_ context.Context, job activity.PostCallJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *fakeBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *fakeBus) PublishSync(_ context.Context, event events.Event) error {
	b.Publish(context.Background(), event)
	return nil
}

func (b *fakeBus) Subscribe(string, events.Handler) {}

func (b *fakeBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

type harness struct {
	wf       *CallWorkflow
	call     domain.CallContext
	analyzer *fakeAnalyzer
	calls    *fakeCallStore
	leads    *fakeLeadStore
	notifier *fakeNotifier
	payments *fakePayments
	sched    *fakeScheduler
	transfer *fakeTransfers
	archive  *fakeArchive
	queue    *fakeQueue
	bus      *fakeBus
}

func newHarness() *harness {
	h := &harness{
		call: domain.CallContext{
			CallID:    uuid.New(),
			TenantID:  uuid.New(),
			LeadID:    uuid.New(),
			Phone:     "+15551234567",
			Provider:  "vapi",
			Direction: "inbound",
			StartedAt: time.Now().UTC().Add(-time.Minute),
		},
		analyzer: &fakeAnalyzer{},
		calls:    &fakeCallStore{},
		leads:    &fakeLeadStore{},
		notifier: &fakeNotifier{},
		payments: &fakePayments{result: activity.PaymentResult{TransactionID: "tx-1", Status: "captured"}},
		sched:    &fakeScheduler{},
		transfer: &fakeTransfers{},
		archive:  &fakeArchive{},
		queue:    &fakeQueue{},
		bus:      &fakeBus{},
	}

	acts := activity.Set{
		Analyzer:   h.analyzer,
		Calls:      h.calls,
		Leads:      h.leads,
		Notifier:   h.notifier,
		CRM:        &fakeCRM{},
		Automation: &fakeAutomation{},
		Payments:   h.payments,
		Scheduler:  h.sched,
		Transfers:  h.transfer,
		Archive:    h.archive,
		Queue:      h.queue,
	}
	h.wf = New(h.call, nil, fastGateway(), acts, h.bus, logger.New("development"))
	return h
}

func (h *harness) signal(t *testing.T, channel string, payload any) error {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal signal payload: %v", err)
	}
	return h.wf.HandleSignal(context.Background(), channel, raw)
}

func (h *harness) status(t *testing.T) domain.CallStatus {
	t.Helper()
	result, err := h.wf.HandleQuery(domain.QueryCallStatus)
	if err != nil {
		t.Fatalf("status query: %v", err)
	}
	return result.(domain.CallStatus)
}

func TestWorkflowHappyPath(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.analyzer.result = activity.AnalysisResult{
		Qualification: domain.Qualification{Need: 7, Timeline: 6, Overall: 6.5},
		Score:         7.5,
	}
	h.analyzer.summary = activity.SummaryResult{Summary: "Boiler replacement inquiry, high intent."}

	if err := h.wf.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if len(h.calls.created) != 1 {
		t.Fatalf("call record created %d times, want 1", len(h.calls.created))
	}
	if got := h.status(t); got.Stage != domain.StageActive {
		t.Errorf("stage after Begin = %s, want active", got.Stage)
	}

	for i := 0; i < 3; i++ {
		if err := h.signal(t, domain.ChannelTranscript, domain.TranscriptEvent{
			Speaker: "customer", Text: "I need a new boiler", Timestamp: time.Now(),
		}); err != nil {
			t.Fatalf("transcript signal %d: %v", i, err)
		}
	}

	status := h.status(t)
	if status.LeadScore != 7.5 {
		t.Errorf("LeadScore = %v, want 7.5", status.LeadScore)
	}
	if status.Qualification.Need != 7 {
		t.Errorf("Qualification.Need = %d, want 7", status.Qualification.Need)
	}
	if status.Progress != 3*domain.ProgressPerTranscript {
		t.Errorf("Progress = %d, want %d", status.Progress, 3*domain.ProgressPerTranscript)
	}

	if err := h.signal(t, domain.ChannelCallEnd, domain.CallEndEvent{
		EndedAt: time.Now().UTC(), Reason: "caller hung up",
	}); err != nil {
		t.Fatalf("call-end signal: %v", err)
	}
	if !h.wf.Done() {
		t.Fatal("workflow not done after call end")
	}

	outcome, err := h.wf.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if outcome != domain.RecordStatusCompleted {
		t.Errorf("outcome = %q, want completed", outcome)
	}

	if len(h.calls.updated) != 1 {
		t.Fatalf("final record written %d times, want 1", len(h.calls.updated))
	}
	record := h.calls.updated[0]
	if record.Status != domain.RecordStatusCompleted || record.Summary == "" {
		t.Errorf("final record = %+v", record)
	}
	if len(h.calls.analytics) != 1 {
		t.Errorf("analytics stored %d times, want 1", len(h.calls.analytics))
	}
	if len(h.leads.updates) != 1 || h.leads.updates[0].Score != 7.5 {
		t.Errorf("lead score updates = %+v", h.leads.updates)
	}
	if len(h.archive.archived) != 1 {
		t.Errorf("archive writes = %d, want 1", len(h.archive.archived))
	}
	if len(h.queue.jobs) != 1 {
		t.Fatalf("post-call jobs = %d, want 1", len(h.queue.jobs))
	}
	if job := h.queue.jobs[0]; job.Attempt != 1 || job.FinalStatus != domain.RecordStatusCompleted {
		t.Errorf("post-call job = %+v", job)
	}

	status = h.status(t)
	if status.Stage != domain.StageCompleted || status.Progress != domain.ProgressComplete {
		t.Errorf("final status = %+v", status)
	}

	names := h.bus.names()
	if len(names) != 2 || names[0] != "calls.call.started" || names[1] != "calls.call.completed" {
		t.Errorf("published events = %v", names)
	}
}

func TestWorkflowAnalysisWindowIsBounded(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.wf.Begin(ctx)

	for i := 0; i < 8; i++ {
		_ = h.signal(t, domain.ChannelTranscript, domain.TranscriptEvent{
			Speaker: "customer", Text: "hello", Timestamp: time.Now(),
		})
	}

	last := h.analyzer.analyzeCalls[len(h.analyzer.analyzeCalls)-1]
	if len(last.Window) != analysisWindowSize {
		t.Errorf("analysis window = %d events, want %d", len(last.Window), analysisWindowSize)
	}
}

func TestWorkflowAnalysisFailureNeverAbortsCall(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.analyzer.analyzeErr = apperr.Validation("model rejected input")
	_ = h.wf.Begin(ctx)

	if err := h.signal(t, domain.ChannelTranscript, domain.TranscriptEvent{
		Speaker: "customer", Text: "hi", Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("transcript signal returned %v, want nil despite analysis failure", err)
	}

	status := h.status(t)
	if status.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", status.ErrorCount)
	}
	if status.Stage != domain.StageActive {
		t.Errorf("stage = %s, want active (call keeps going)", status.Stage)
	}
	if status.Progress != domain.ProgressPerTranscript {
		t.Errorf("Progress = %d, want it to advance past the failed analysis", status.Progress)
	}
}

func TestWorkflowProgressCapsUntilFinalize(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.wf.Begin(ctx)

	for i := 0; i < 30; i++ {
		_ = h.signal(t, domain.ChannelTranscript, domain.TranscriptEvent{
			Speaker: "customer", Text: "more", Timestamp: time.Now(),
		})
	}
	if got := h.status(t).Progress; got != domain.ProgressCapActive {
		t.Errorf("Progress = %d, want capped at %d", got, domain.ProgressCapActive)
	}

	_ = h.signal(t, domain.ChannelCallEnd, domain.CallEndEvent{EndedAt: time.Now().UTC()})
	if _, err := h.wf.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got := h.status(t).Progress; got != domain.ProgressComplete {
		t.Errorf("Progress after finalize = %d, want %d", got, domain.ProgressComplete)
	}
}

func TestWorkflowUrgentActionsRaiseManagerAlerts(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.analyzer.result = activity.AnalysisResult{
		UrgentActions: []string{"review mention of lawyer"},
	}
	_ = h.wf.Begin(ctx)

	_ = h.signal(t, domain.ChannelTranscript, domain.TranscriptEvent{
		Speaker: "customer", Text: "I will call my lawyer", Timestamp: time.Now(),
	})

	if len(h.notifier.alerts) != 1 {
		t.Fatalf("manager alerts = %d, want 1", len(h.notifier.alerts))
	}
	if h.notifier.alerts[0].Action != "review mention of lawyer" {
		t.Errorf("alert action = %q", h.notifier.alerts[0].Action)
	}

	status := h.status(t)
	if len(status.NextActions) != 1 {
		t.Errorf("NextActions = %v, want the urgent action recorded", status.NextActions)
	}

	var sawAlert bool
	for _, name := range h.bus.names() {
		if name == "calls.alert.raised" {
			sawAlert = true
		}
	}
	if !sawAlert {
		t.Error("ManagerAlertRaised event not published")
	}
}

func TestWorkflowManagerAlertFailureOnlyCountsError(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.analyzer.result = activity.AnalysisResult{UrgentActions: []string{"check complaint"}}
	h.notifier.alertErr = apperr.Validation("smtp rejected")
	_ = h.wf.Begin(ctx)

	_ = h.signal(t, domain.ChannelTranscript, domain.TranscriptEvent{
		Speaker: "customer", Text: "complaint", Timestamp: time.Now(),
	})

	if got := h.status(t).ErrorCount; got != 1 {
		t.Errorf("ErrorCount = %d, want 1", got)
	}
	for _, name := range h.bus.names() {
		if name == "calls.alert.raised" {
			t.Error("alert event published despite delivery failure")
		}
	}
}

func TestWorkflowUnknownChannelCountsError(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.wf.Begin(ctx)

	err := h.wf.HandleSignal(ctx, "mystery", json.RawMessage(`{}`))
	if apperr.GetKind(err) != apperr.KindBadRequest {
		t.Errorf("unknown channel error = %v, want bad request", err)
	}
	if got := h.status(t).ErrorCount; got != 1 {
		t.Errorf("ErrorCount = %d, want 1", got)
	}
	if h.wf.Done() {
		t.Error("unknown channel terminated the call")
	}
}

func TestWorkflowRejectsSignalsWhenTerminal(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.wf.Begin(ctx)
	_ = h.signal(t, domain.ChannelCallEnd, domain.CallEndEvent{EndedAt: time.Now().UTC()})
	if _, err := h.wf.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	err := h.signal(t, domain.ChannelTranscript, domain.TranscriptEvent{Text: "late"})
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Errorf("signal after completion = %v, want conflict", err)
	}
}

func TestWorkflowTransferEndsCallWithHandoffSnapshot(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.wf.Begin(ctx)

	for i := 0; i < 15; i++ {
		_ = h.signal(t, domain.ChannelTranscript, domain.TranscriptEvent{
			Speaker: "customer", Text: "context", Timestamp: time.Now(),
		})
	}
	if err := h.signal(t, domain.ChannelTransferRequest, domain.TransferRequest{
		Reason: "caller asked for a human", Priority: "high",
	}); err != nil {
		t.Fatalf("transfer signal: %v", err)
	}

	if len(h.transfer.handoffs) != 1 {
		t.Fatalf("handoffs = %d, want 1", len(h.transfer.handoffs))
	}
	handoff := h.transfer.handoffs[0]
	if len(handoff.RecentTranscripts) != handoffSnapshotSize {
		t.Errorf("handoff snapshot = %d transcripts, want %d", len(handoff.RecentTranscripts), handoffSnapshotSize)
	}
	if !h.wf.Done() {
		t.Fatal("workflow not done after successful transfer")
	}

	outcome, err := h.wf.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if outcome != domain.RecordStatusTransferred {
		t.Errorf("outcome = %q, want transferred", outcome)
	}
	if h.calls.updated[0].Status != domain.RecordStatusTransferred {
		t.Errorf("record status = %q, want transferred", h.calls.updated[0].Status)
	}
}

func TestWorkflowFailedHandoffStillTransfersCall(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.transfer.err = apperr.Validation("no agents on shift")
	_ = h.wf.Begin(ctx)

	if err := h.signal(t, domain.ChannelTransferRequest, domain.TransferRequest{Reason: "human please"}); err != nil {
		t.Fatalf("transfer signal: %v", err)
	}

	// The transfer intent decides the outcome; the failed handoff only costs
	// an error count.
	if !h.wf.Done() {
		t.Fatal("workflow not done after transfer request")
	}
	if got := h.status(t).ErrorCount; got != 1 {
		t.Errorf("ErrorCount = %d, want 1", got)
	}

	outcome, err := h.wf.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if outcome != domain.RecordStatusTransferred {
		t.Errorf("outcome = %q, want transferred despite the failed handoff", outcome)
	}
	if h.calls.updated[0].Status != domain.RecordStatusTransferred {
		t.Errorf("record status = %q, want transferred", h.calls.updated[0].Status)
	}
}

func TestWorkflowTransferRecordsNextAction(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.wf.Begin(ctx)

	if err := h.signal(t, domain.ChannelTransferRequest, domain.TransferRequest{Reason: "pricing question"}); err != nil {
		t.Fatalf("transfer signal: %v", err)
	}

	status := h.status(t)
	if len(status.NextActions) != 1 || status.NextActions[0] != "transfer to human agent: pricing question" {
		t.Errorf("NextActions = %v, want the transfer marker", status.NextActions)
	}
}

func TestWorkflowBeginFailureFailsCall(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.calls.createErr = apperr.Validation("tenant suspended")

	if err := h.wf.Begin(ctx); err == nil {
		t.Fatal("Begin returned nil for a permanent record failure")
	}
	if !h.wf.Done() {
		t.Fatal("workflow not done after failed Begin")
	}

	outcome, err := h.wf.Finalize(ctx)
	if err == nil {
		t.Fatal("Finalize returned nil for a failed workflow")
	}
	if outcome != domain.RecordStatusFailed {
		t.Errorf("outcome = %q, want failed", outcome)
	}

	var sawFailed bool
	for _, name := range h.bus.names() {
		if name == "calls.call.failed" {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Error("CallFailed event not published")
	}
}

func TestWorkflowFinalRecordFailureFailsCall(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.wf.Begin(ctx)
	_ = h.signal(t, domain.ChannelCallEnd, domain.CallEndEvent{EndedAt: time.Now().UTC()})

	h.calls.updateErr = apperr.Validation("row vanished")
	outcome, err := h.wf.Finalize(ctx)
	if err == nil {
		t.Fatal("Finalize returned nil despite record failure")
	}
	if outcome != domain.RecordStatusFailed {
		t.Errorf("outcome = %q, want failed", outcome)
	}
	if got := h.status(t).Stage; got != domain.StageFailed {
		t.Errorf("stage = %s, want failed", got)
	}
}

func TestWorkflowEnqueueFailureDegradesToErrorCount(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.queue.err = apperr.Validation("queue not configured")
	_ = h.wf.Begin(ctx)
	_ = h.signal(t, domain.ChannelCallEnd, domain.CallEndEvent{EndedAt: time.Now().UTC()})

	outcome, err := h.wf.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if outcome != domain.RecordStatusCompleted {
		t.Errorf("outcome = %q, want completed despite enqueue failure", outcome)
	}
	if got := h.status(t).ErrorCount; got != 1 {
		t.Errorf("ErrorCount = %d, want 1", got)
	}
}

func TestWorkflowCeilingExpiryEndsCallNormally(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.wf.Begin(ctx)

	h.wf.ExpireCeiling()
	if !h.wf.Done() {
		t.Fatal("workflow not done after ceiling expiry")
	}
	if got := h.status(t).Stage; got != domain.StageCompleting {
		t.Errorf("stage = %s, want completing", got)
	}

	outcome, err := h.wf.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if outcome != domain.RecordStatusCompleted {
		t.Errorf("outcome = %q, want completed (ceiling is a normal end)", outcome)
	}
}

func TestWorkflowLeadScoreQuery(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.analyzer.result = activity.AnalysisResult{
		Score:         8,
		Qualification: domain.Qualification{Budget: 9},
	}
	_ = h.wf.Begin(ctx)
	_ = h.signal(t, domain.ChannelTranscript, domain.TranscriptEvent{Speaker: "customer", Text: "budget ready"})

	result, err := h.wf.HandleQuery(domain.QueryLeadScore)
	if err != nil {
		t.Fatalf("lead-score query: %v", err)
	}
	view := result.(LeadScoreView)
	if view.LeadScore != 8 || view.Qualification.Budget != 9 {
		t.Errorf("lead score view = %+v", view)
	}
}

func TestWorkflowUnknownQueryChannel(t *testing.T) {
	h := newHarness()
	if _, err := h.wf.HandleQuery("mystery"); apperr.GetKind(err) != apperr.KindBadRequest {
		t.Errorf("unknown query = %v, want bad request", err)
	}
}

func TestWorkflowMetricsQueryFreezesDurationAfterEnd(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.wf.Begin(ctx)

	endedAt := h.call.StartedAt.Add(90 * time.Second)
	_ = h.signal(t, domain.ChannelCallEnd, domain.CallEndEvent{EndedAt: endedAt})

	result, err := h.wf.HandleQuery(domain.QueryCallMetrics)
	if err != nil {
		t.Fatalf("metrics query: %v", err)
	}
	metrics := result.(domain.CallMetrics)
	if metrics.DurationSeconds != 90 {
		t.Errorf("DurationSeconds = %v, want frozen at 90", metrics.DurationSeconds)
	}
}

// Every transcript handler moves score and progress in lockstep, so a query
// racing the signal stream must observe both from the same commit or neither.
func TestWorkflowQueriesNeverObservePartialHandlerState(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.analyzer.fn = func(req activity.AnalysisRequest) activity.AnalysisResult {
		return activity.AnalysisResult{Score: req.CurrentScore + 1}
	}
	_ = h.wf.Begin(ctx)

	const transcriptCount = 19 // keeps progress under the active-stage cap

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var lastScore float64
		for {
			select {
			case <-stop:
				return
			default:
			}
			result, err := h.wf.HandleQuery(domain.QueryCallStatus)
			if err != nil {
				t.Errorf("status query during signals: %v", err)
				return
			}
			status := result.(domain.CallStatus)
			if status.LeadScore < lastScore {
				t.Errorf("LeadScore went backwards: %v after %v", status.LeadScore, lastScore)
				return
			}
			lastScore = status.LeadScore
			if status.Progress != domain.ProgressPerTranscript*int(status.LeadScore) {
				t.Errorf("torn snapshot: Progress = %d with LeadScore %v", status.Progress, status.LeadScore)
				return
			}
		}
	}()

	for i := 0; i < transcriptCount; i++ {
		if err := h.signal(t, domain.ChannelTranscript, domain.TranscriptEvent{
			Speaker: "customer", Text: "streaming", Timestamp: time.Now(),
		}); err != nil {
			close(stop)
			wg.Wait()
			t.Fatalf("transcript signal %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	if got := h.status(t).LeadScore; got != transcriptCount {
		t.Errorf("final LeadScore = %v, want %d", got, transcriptCount)
	}
}
