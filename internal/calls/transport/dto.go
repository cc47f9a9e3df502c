// Package transport defines the HTTP request and response shapes for the
// calls module.
package transport

import (
	"encoding/json"
	"time"

	"voicedesk_backend/internal/calls/domain"

	"github.com/google/uuid"
)

// StartCallRequest is the request body for starting a call workflow.
type StartCallRequest struct {
	CallID    *uuid.UUID        `json:"callId,omitempty"`
	LeadID    uuid.UUID         `json:"leadId" validate:"required"`
	Phone     string            `json:"phone" validate:"required,phone_e164"`
	Provider  string            `json:"provider" validate:"required,min=2,max=50"`
	Direction string            `json:"direction,omitempty" validate:"omitempty,oneof=inbound outbound"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// StartCallResponse is returned when a call workflow is accepted.
type StartCallResponse struct {
	CallID uuid.UUID `json:"callId"`
	Stage  string    `json:"stage"`
}

// WebhookEventRequest is one event pushed by the call platform. The data shape
// depends on the event type and is decoded by the engine.
type WebhookEventRequest struct {
	CallID    uuid.UUID       `json:"callId" validate:"required"`
	Type      string          `json:"type" validate:"required,oneof=transcript function-call call-end transfer-request"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data" validate:"required"`
}

// WebhookAck confirms a webhook event was accepted for processing.
type WebhookAck struct {
	CallID   uuid.UUID `json:"callId"`
	Accepted bool      `json:"accepted"`
}

// CallStatusResponse is the status query result.
type CallStatusResponse struct {
	CallID          uuid.UUID            `json:"callId"`
	Stage           string               `json:"stage"`
	Progress        int                  `json:"progress"`
	CurrentActivity string               `json:"currentActivity,omitempty"`
	LeadScore       float64              `json:"leadScore"`
	Qualification   domain.Qualification `json:"qualification"`
	NextActions     []string             `json:"nextActions,omitempty"`
	ErrorCount      int                  `json:"errorCount"`
}

// LeadScoreResponse is the lead-score query result.
type LeadScoreResponse struct {
	CallID        uuid.UUID            `json:"callId"`
	LeadScore     float64              `json:"leadScore"`
	Qualification domain.Qualification `json:"qualification"`
}

// StatusFromDomain maps engine status onto the response shape.
func StatusFromDomain(callID uuid.UUID, status domain.CallStatus) CallStatusResponse {
	return CallStatusResponse{
		CallID:          callID,
		Stage:           string(status.Stage),
		Progress:        status.Progress,
		CurrentActivity: status.CurrentActivity,
		LeadScore:       status.LeadScore,
		Qualification:   status.Qualification,
		NextActions:     status.NextActions,
		ErrorCount:      status.ErrorCount,
	}
}
