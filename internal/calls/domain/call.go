// Package domain defines the call-lifecycle domain model: call identity,
// mutable call status, qualification scoring, signal payloads, and derived
// metrics. Everything here is plain data plus pure functions; orchestration
// lives in the engine package.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stage is the lifecycle stage of a call workflow.
type Stage string

const (
	StageStarting   Stage = "starting"
	StageActive     Stage = "active"
	StageProcessing Stage = "processing"
	StageCompleting Stage = "completing"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Terminal reports whether the stage is final.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Final record statuses persisted on the call record.
const (
	RecordStatusCompleted   = "completed"
	RecordStatusTransferred = "transferred"
	RecordStatusFailed      = "failed"
)

// Progress bookkeeping. Each analyzed transcript advances progress by a fixed
// increment; progress is capped below 100 until finalization succeeds.
const (
	ProgressPerTranscript = 5
	ProgressCapActive     = 95
	ProgressComplete      = 100
)

// CallContext identifies one call. Created once at workflow start and
// immutable for the call's lifetime.
type CallContext struct {
	CallID    uuid.UUID         `json:"callId"`
	TenantID  uuid.UUID         `json:"tenantId"`
	LeadID    uuid.UUID         `json:"leadId"`
	Phone     string            `json:"phone"`
	Provider  string            `json:"provider"`
	Direction string            `json:"direction"`
	StartedAt time.Time         `json:"startedAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Qualification is the six-dimension lead scoring model, each dimension 1-10.
// A zero value means the dimension has not been assessed yet.
type Qualification struct {
	Pain      int     `json:"pain"`
	Authority int     `json:"authority"`
	Need      int     `json:"need"`
	Timeline  int     `json:"timeline"`
	Budget    int     `json:"budget"`
	Fit       int     `json:"fit"`
	Overall   float64 `json:"overall"`
}

// MergeReplace overwrites each assessed (non-zero) field of the update onto q.
// A later, lower-confidence analysis can overwrite a higher one; this tracks
// the most recent signal rather than monotonically improving.
func (q *Qualification) MergeReplace(update Qualification) {
	if update.Pain != 0 {
		q.Pain = update.Pain
	}
	if update.Authority != 0 {
		q.Authority = update.Authority
	}
	if update.Need != 0 {
		q.Need = update.Need
	}
	if update.Timeline != 0 {
		q.Timeline = update.Timeline
	}
	if update.Budget != 0 {
		q.Budget = update.Budget
	}
	if update.Fit != 0 {
		q.Fit = update.Fit
	}
	if update.Overall != 0 {
		q.Overall = update.Overall
	}
}

// Assessed reports whether any dimension has been scored.
func (q Qualification) Assessed() bool {
	return q != Qualification{}
}

// CallStatus is the mutable, single-writer state of a call. Only the engine
// mutates it; queries receive an immutable snapshot copy.
type CallStatus struct {
	Stage           Stage         `json:"stage"`
	Progress        int           `json:"progress"`
	CurrentActivity string        `json:"currentActivity"`
	LeadScore       float64       `json:"leadScore"`
	Qualification   Qualification `json:"qualification"`
	NextActions     []string      `json:"nextActions,omitempty"`
	ErrorCount      int           `json:"errorCount"`
}

// Clone returns a deep copy safe to hand to readers.
func (s CallStatus) Clone() CallStatus {
	out := s
	if s.NextActions != nil {
		out.NextActions = make([]string, len(s.NextActions))
		copy(out.NextActions, s.NextActions)
	}
	return out
}

// AddNextAction appends an action marker unless it is already pending.
func (s *CallStatus) AddNextAction(action string) {
	for _, existing := range s.NextActions {
		if existing == action {
			return
		}
	}
	s.NextActions = append(s.NextActions, action)
}

// AdvanceProgress raises progress by the transcript increment, capped so the
// bar never reports done before finalization.
func (s *CallStatus) AdvanceProgress() {
	s.Progress += ProgressPerTranscript
	if s.Progress > ProgressCapActive {
		s.Progress = ProgressCapActive
	}
}
