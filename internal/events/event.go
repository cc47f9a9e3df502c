// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"voicedesk_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Call Domain Events
// =============================================================================

// CallStarted is published when a call workflow begins executing.
type CallStarted struct {
	BaseEvent
	CallID   uuid.UUID `json:"callId"`
	TenantID uuid.UUID `json:"tenantId"`
	LeadID   uuid.UUID `json:"leadId"`
	Provider string    `json:"provider"`
	Phone    string    `json:"phone"`
}

func (e CallStarted) EventName() string { return "calls.call.started" }

// CallCompleted is published when a call reaches the Completed stage.
type CallCompleted struct {
	BaseEvent
	CallID      uuid.UUID `json:"callId"`
	TenantID    uuid.UUID `json:"tenantId"`
	LeadID      uuid.UUID `json:"leadId"`
	FinalStatus string    `json:"finalStatus"` // "completed" or "transferred"
	LeadScore   float64   `json:"leadScore"`
	ErrorCount  int       `json:"errorCount"`
}

func (e CallCompleted) EventName() string { return "calls.call.completed" }

// CallFailed is published when finalization fails and the call is marked Failed.
type CallFailed struct {
	BaseEvent
	CallID   uuid.UUID `json:"callId"`
	TenantID uuid.UUID `json:"tenantId"`
	Reason   string    `json:"reason"`
}

func (e CallFailed) EventName() string { return "calls.call.failed" }

// CallTransferRequested is published when a caller asks for a human agent.
type CallTransferRequested struct {
	BaseEvent
	CallID    uuid.UUID `json:"callId"`
	TenantID  uuid.UUID `json:"tenantId"`
	Reason    string    `json:"reason"`
	Priority  string    `json:"priority"`
	AgentType string    `json:"agentType"`
}

func (e CallTransferRequested) EventName() string { return "calls.call.transfer_requested" }

// ManagerAlertRaised is published when transcript analysis flags an urgent
// action requiring immediate human attention.
type ManagerAlertRaised struct {
	BaseEvent
	CallID   uuid.UUID `json:"callId"`
	TenantID uuid.UUID `json:"tenantId"`
	LeadID   uuid.UUID `json:"leadId"`
	Action   string    `json:"action"`
}

func (e ManagerAlertRaised) EventName() string { return "calls.alert.raised" }

// =============================================================================
// Post-Call Domain Events
// =============================================================================

// PostCallCompleted is published when the post-call recovery loop finishes a job.
type PostCallCompleted struct {
	BaseEvent
	CallID   uuid.UUID `json:"callId"`
	TenantID uuid.UUID `json:"tenantId"`
	LeadID   uuid.UUID `json:"leadId"`
	Attempt  int       `json:"attempt"`
}

func (e PostCallCompleted) EventName() string { return "postcall.job.completed" }

// PostCallManualReviewRequired is published when a post-call job exhausts its
// retry budget and lands in the needs-manual-review terminal state.
type PostCallManualReviewRequired struct {
	BaseEvent
	CallID   uuid.UUID `json:"callId"`
	TenantID uuid.UUID `json:"tenantId"`
	LeadID   uuid.UUID `json:"leadId"`
	Attempts int       `json:"attempts"`
	Reason   string    `json:"reason"`
}

func (e PostCallManualReviewRequired) EventName() string { return "postcall.job.manual_review_required" }
