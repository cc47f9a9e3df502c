package domain

import "time"

// Signal channel names. Signals for one call are delivered and processed in
// arrival order; there is no ordering guarantee across calls.
const (
	ChannelTranscript      = "transcript"
	ChannelFunctionCall    = "function-call"
	ChannelCallEnd         = "call-end"
	ChannelTransferRequest = "transfer-request"
)

// Query channel names. Queries are synchronous, side-effect-free reads.
const (
	QueryCallStatus  = "call-status"
	QueryCallMetrics = "call-metrics"
	QueryLeadScore   = "lead-score"
)

// Function-call command names understood by the dispatcher.
const (
	FunctionUpdateScore         = "update_score"
	FunctionScheduleAppointment = "schedule_appointment"
	FunctionTransferToHuman     = "transfer_to_human"
	FunctionSendSMS             = "send_sms"
	FunctionProcessPayment      = "process_payment"
)

// TranscriptEvent is one utterance from the live call.
type TranscriptEvent struct {
	Speaker    string    `json:"speaker"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Emotions   []string  `json:"emotions,omitempty"`
	Keywords   []string  `json:"keywords,omitempty"`
}

// FunctionCallEvent is a tool invocation requested by the voice agent.
type FunctionCallEvent struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// CallEndEvent signals that the call platform terminated the call.
type CallEndEvent struct {
	EndedAt  time.Time `json:"endedAt"`
	Duration float64   `json:"duration"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
}

// TransferRequest signals that the caller should be handed to a human agent.
type TransferRequest struct {
	Reason    string `json:"reason"`
	Priority  string `json:"priority,omitempty"`
	Notes     string `json:"notes,omitempty"`
	AgentType string `json:"agentType,omitempty"`
}
