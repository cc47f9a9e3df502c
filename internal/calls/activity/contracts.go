package activity

import (
	"context"
	"time"

	"voicedesk_backend/internal/calls/domain"

	"github.com/google/uuid"
)

// AnalysisRequest carries the bounded context window for one transcript analysis.
type AnalysisRequest struct {
	Call                 domain.CallContext
	Window               []domain.TranscriptEvent
	CurrentScore         float64
	CurrentQualification domain.Qualification
}

// AnalysisResult is the model's updated read of the lead.
type AnalysisResult struct {
	Qualification domain.Qualification `json:"qualification"`
	Score         float64              `json:"score"`
	Sentiment     string               `json:"sentiment"`
	UrgentActions []string             `json:"urgentActions,omitempty"`
}

// SummaryRequest asks for a call summary over the full history.
type SummaryRequest struct {
	Call          domain.CallContext
	Transcripts   []domain.TranscriptEvent
	FunctionCalls []domain.FunctionCallEvent
	Qualification domain.Qualification
	Score         float64
	Outcome       string
}

// SummaryResult is the generated call summary.
type SummaryResult struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights,omitempty"`
}

// QualityCheckRequest asks for a post-call quality assessment.
type QualityCheckRequest struct {
	CallID        uuid.UUID
	TenantID      uuid.UUID
	LeadID        uuid.UUID
	Summary       string
	Score         float64
	Qualification domain.Qualification
}

// QualityCheckResult drives the conditional steps of the post-call loop.
type QualityCheckResult struct {
	QualityScore    float64       `json:"qualityScore"`
	ScoreAdjustment float64       `json:"scoreAdjustment"`
	FollowUpNeeded  bool          `json:"followUpNeeded"`
	FollowUpDelay   time.Duration `json:"followUpDelay"`
	Notes           string        `json:"notes,omitempty"`
}

// Analyzer performs transcript and summary inference.
type Analyzer interface {
	AnalyzeTranscript(ctx context.Context, req AnalysisRequest) (AnalysisResult, error)
	GenerateSummary(ctx context.Context, req SummaryRequest) (SummaryResult, error)
	QualityCheck(ctx context.Context, req QualityCheckRequest) (QualityCheckResult, error)
}

// FinalRecord is the terminal state persisted on the call record.
type FinalRecord struct {
	CallID          uuid.UUID
	TenantID        uuid.UUID
	Status          string
	LeadScore       float64
	Qualification   domain.Qualification
	Summary         string
	ErrorCount      int
	EndedAt         time.Time
	DurationSeconds float64
}

// AnalyticsRecord captures derived metrics for reporting.
type AnalyticsRecord struct {
	CallID   uuid.UUID
	TenantID uuid.UUID
	Metrics  domain.CallMetrics
}

// CallStore persists call records and analytics.
type CallStore interface {
	CreateCallRecord(ctx context.Context, call domain.CallContext) error
	UpdateCallRecord(ctx context.Context, record FinalRecord) error
	StoreAnalytics(ctx context.Context, record AnalyticsRecord) error
}

// LeadScoreUpdate propagates a call's scoring outcome to the lead.
type LeadScoreUpdate struct {
	LeadID        uuid.UUID
	TenantID      uuid.UUID
	Score         float64
	Qualification domain.Qualification
	Source        string
}

// LeadStore persists lead scoring state.
type LeadStore interface {
	UpdateLeadScore(ctx context.Context, update LeadScoreUpdate) error
}

// ManagerAlert is an urgent, inline notification raised mid-call.
type ManagerAlert struct {
	TenantID uuid.UUID
	CallID   uuid.UUID
	LeadID   uuid.UUID
	Action   string
	Phone    string
}

// Notification is a stakeholder notification dispatched post-call.
type Notification struct {
	TenantID  uuid.UUID
	LeadID    uuid.UUID
	CallID    uuid.UUID
	Kind      string
	Subject   string
	Body      string
	Recipient string
}

// SMSMessage is an outbound text message.
type SMSMessage struct {
	TenantID uuid.UUID
	To       string
	Body     string
}

// Notifier dispatches alerts, notifications, and SMS.
type Notifier interface {
	SendManagerAlert(ctx context.Context, alert ManagerAlert) error
	SendNotification(ctx context.Context, n Notification) error
	SendSMS(ctx context.Context, msg SMSMessage) error
}

// CRMUpdate enriches the CRM contact with the call outcome.
type CRMUpdate struct {
	TenantID      uuid.UUID
	LeadID        uuid.UUID
	CallID        uuid.UUID
	Score         float64
	Qualification domain.Qualification
	Summary       string
	Status        string
}

// CRMClient pushes call outcomes into the CRM.
type CRMClient interface {
	UpdateCRM(ctx context.Context, update CRMUpdate) error
}

// AutomationTrigger fires a named marketing-automation or integration hook.
type AutomationTrigger struct {
	TenantID uuid.UUID
	LeadID   uuid.UUID
	CallID   uuid.UUID
	Trigger  string
	Payload  map[string]any
}

// AutomationClient fires downstream automation and integration triggers.
type AutomationClient interface {
	TriggerAutomation(ctx context.Context, trigger AutomationTrigger) error
}

// PaymentRequest charges a caller mid-call.
type PaymentRequest struct {
	TenantID    uuid.UUID
	LeadID      uuid.UUID
	CallID      uuid.UUID
	AmountCents int64
	Currency    string
	Reference   string
}

// PaymentResult is the gateway's answer to a charge.
type PaymentResult struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

// PaymentProcessor charges callers through the payment gateway.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error)
}

// AppointmentRequest books a visit requested during the call.
type AppointmentRequest struct {
	TenantID  uuid.UUID
	LeadID    uuid.UUID
	CallID    uuid.UUID
	StartTime time.Time
	Notes     string
}

// FollowUpRequest schedules a delayed follow-up touch.
type FollowUpRequest struct {
	TenantID uuid.UUID
	LeadID   uuid.UUID
	CallID   uuid.UUID
	DueAt    time.Time
	Reason   string
}

// Scheduler books appointments and follow-ups.
type Scheduler interface {
	ScheduleAppointment(ctx context.Context, req AppointmentRequest) error
	ScheduleFollowUp(ctx context.Context, req FollowUpRequest) error
}

// TransferHandoff is the context snapshot handed to the human agent desk.
type TransferHandoff struct {
	Call              domain.CallContext
	Request           domain.TransferRequest
	Score             float64
	Qualification     domain.Qualification
	RecentTranscripts []domain.TranscriptEvent
}

// TransferDesk routes callers to human agents.
type TransferDesk interface {
	HandleTransfer(ctx context.Context, handoff TransferHandoff) error
}

// ArchiveRequest stores the full call history in object storage.
type ArchiveRequest struct {
	Call          domain.CallContext
	Transcripts   []domain.TranscriptEvent
	FunctionCalls []domain.FunctionCallEvent
	Summary       string
	Metrics       domain.CallMetrics
}

// Archiver writes call archives to object storage.
type Archiver interface {
	ArchiveCall(ctx context.Context, req ArchiveRequest) error
}

// PostCallJob is the work item handed to the asynchronous post-call loop.
type PostCallJob struct {
	CallID        uuid.UUID            `json:"callId"`
	TenantID      uuid.UUID            `json:"tenantId"`
	LeadID        uuid.UUID            `json:"leadId"`
	Phone         string               `json:"phone"`
	Summary       string               `json:"summary"`
	Score         float64              `json:"score"`
	Qualification domain.Qualification `json:"qualification"`
	FinalStatus   string               `json:"finalStatus"`
	Attempt       int                  `json:"attempt"`
}

// PostCallQueue hands a finished call to the background processing pipeline.
type PostCallQueue interface {
	Enqueue(ctx context.Context, job PostCallJob) error
}

// Set bundles every activity implementation the engine and post-call loop use.
type Set struct {
	Analyzer   Analyzer
	Calls      CallStore
	Leads      LeadStore
	Notifier   Notifier
	CRM        CRMClient
	Automation AutomationClient
	Payments   PaymentProcessor
	Scheduler  Scheduler
	Transfers  TransferDesk
	Archive    Archiver
	Queue      PostCallQueue
}
