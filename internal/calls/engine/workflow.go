// Package engine implements the call-lifecycle reducer: one workflow per
// call, driven by journaled signals, with every external effect routed through
// the activity gateway. A single goroutine owns all mutable state; queries are
// answered from an atomically committed snapshot and never touch the inbox.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/internal/calls/domain"
	"voicedesk_backend/internal/calls/durable"
	"voicedesk_backend/internal/events"
	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/logger"
)

// Analysis window and handoff snapshot sizes.
const (
	analysisWindowSize  = 5
	handoffSnapshotSize = 10
)

// CallWorkflow is the reducer for one call. The runtime's actor goroutine is
// the only writer; readers go through the snapshot.
type CallWorkflow struct {
	call domain.CallContext
	gw   *activity.Gateway
	cp   activity.Checkpointer
	acts activity.Set
	bus  events.Bus
	log  *logger.Logger
	now  func() time.Time

	// Single-writer state, owned by the actor goroutine.
	status        domain.CallStatus
	transcripts   []domain.TranscriptEvent
	functionCalls []domain.FunctionCallEvent
	transferCount int
	ended         bool
	endedAt       time.Time
	endReason     string
	outcome       string
	failReason    string

	// Snapshot committed after every handler, read by queries.
	snapMu      sync.RWMutex
	snapStatus  domain.CallStatus
	snapMetrics domain.CallMetrics
	snapEnded   time.Time
}

// New builds a workflow for the given call. The checkpointer is the call's
// durable session; passing nil runs without replay protection (tests only).
func New(call domain.CallContext, cp activity.Checkpointer, gw *activity.Gateway, acts activity.Set, bus events.Bus, log *logger.Logger) *CallWorkflow {
	wf := &CallWorkflow{
		call: call,
		gw:   gw,
		cp:   cp,
		acts: acts,
		bus:  bus,
		log:  log.WithCallID(call.CallID.String()),
		now:  time.Now,
		status: domain.CallStatus{
			Stage: domain.StageStarting,
		},
	}
	wf.commit()
	return wf
}

// NewFactory adapts New into the runtime's workflow factory.
func NewFactory(gw *activity.Gateway, acts activity.Set, bus events.Bus, log *logger.Logger) durable.Factory {
	return func(call domain.CallContext, sess *durable.Session) durable.Workflow {
		return New(call, sess, gw, acts, bus, log)
	}
}

// Begin creates the call record and moves the workflow to Active. A permanent
// record-creation failure fails the whole workflow; nothing else can.
func (w *CallWorkflow) Begin(ctx context.Context) error {
	err := activity.RunVoid(ctx, w.gw, w.cp, "create-call-record", func(ctx context.Context) error {
		return w.acts.Calls.CreateCallRecord(ctx, w.call)
	})
	if err != nil {
		w.failReason = fmt.Sprintf("create call record: %v", err)
		w.status.Stage = domain.StageFailed
		w.ended = true
		w.endedAt = w.now()
		w.commit()
		return err
	}

	w.status.Stage = domain.StageActive
	w.status.CurrentActivity = "listening"
	w.commit()

	w.publish(events.CallStarted{
		BaseEvent: events.NewBaseEvent(),
		CallID:    w.call.CallID,
		TenantID:  w.call.TenantID,
		LeadID:    w.call.LeadID,
		Provider:  w.call.Provider,
		Phone:     w.call.Phone,
	})
	return nil
}

// HandleSignal dispatches one signal. Per-event processing failures raise the
// error count and never abort the call; only an undecodable payload returns an
// error, and it too only costs that one event.
func (w *CallWorkflow) HandleSignal(ctx context.Context, channel string, payload json.RawMessage) error {
	if w.status.Stage.Terminal() {
		return apperr.New(apperr.KindConflict, "call workflow already terminal").WithOp(channel)
	}

	var err error
	switch channel {
	case domain.ChannelTranscript:
		err = w.onTranscript(ctx, payload)
	case domain.ChannelFunctionCall:
		err = w.onFunctionCall(ctx, payload)
	case domain.ChannelTransferRequest:
		err = w.onTransferRequest(ctx, payload)
	case domain.ChannelCallEnd:
		err = w.onCallEnd(payload)
	default:
		w.status.ErrorCount++
		err = apperr.New(apperr.KindBadRequest, "unknown signal channel").WithOp(channel)
	}

	w.commit()
	return err
}

func (w *CallWorkflow) onTranscript(ctx context.Context, payload json.RawMessage) error {
	var event domain.TranscriptEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		w.status.ErrorCount++
		return apperr.Wrap(apperr.KindBadRequest, "malformed transcript event", err)
	}

	w.transcripts = append(w.transcripts, event)
	w.status.CurrentActivity = "analyzing transcript"

	window := w.transcripts
	if len(window) > analysisWindowSize {
		window = window[len(window)-analysisWindowSize:]
	}

	result, err := activity.Run(ctx, w.gw, w.cp, "analyze-transcript", func(ctx context.Context) (activity.AnalysisResult, error) {
		return w.acts.Analyzer.AnalyzeTranscript(ctx, activity.AnalysisRequest{
			Call:                 w.call,
			Window:               append([]domain.TranscriptEvent(nil), window...),
			CurrentScore:         w.status.LeadScore,
			CurrentQualification: w.status.Qualification,
		})
	})
	if err != nil {
		w.status.ErrorCount++
		w.log.ActivityError("analyze-transcript", 0, err)
	} else {
		w.status.Qualification.MergeReplace(result.Qualification)
		if result.Score != 0 {
			w.status.LeadScore = result.Score
		}
		for _, action := range result.UrgentActions {
			w.status.AddNextAction(action)
			w.raiseManagerAlert(ctx, action)
		}
	}

	w.status.AdvanceProgress()
	w.status.CurrentActivity = "listening"
	return nil
}

// raiseManagerAlert notifies a manager about an urgent action without leaving
// the transcript handler. Delivery failure costs an error count, nothing more.
func (w *CallWorkflow) raiseManagerAlert(ctx context.Context, action string) {
	name := "manager-alert:" + action
	err := activity.RunVoid(ctx, w.gw, w.cp, name, func(ctx context.Context) error {
		return w.acts.Notifier.SendManagerAlert(ctx, activity.ManagerAlert{
			TenantID: w.call.TenantID,
			CallID:   w.call.CallID,
			LeadID:   w.call.LeadID,
			Action:   action,
			Phone:    w.call.Phone,
		})
	})
	if err != nil {
		w.status.ErrorCount++
		w.log.ActivityError(name, 0, err)
		return
	}

	w.publish(events.ManagerAlertRaised{
		BaseEvent: events.NewBaseEvent(),
		CallID:    w.call.CallID,
		TenantID:  w.call.TenantID,
		LeadID:    w.call.LeadID,
		Action:    action,
	})
}

func (w *CallWorkflow) onFunctionCall(ctx context.Context, payload json.RawMessage) error {
	var event domain.FunctionCallEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		w.status.ErrorCount++
		return apperr.Wrap(apperr.KindBadRequest, "malformed function call event", err)
	}

	w.functionCalls = append(w.functionCalls, event)
	w.status.CurrentActivity = "executing " + event.Name

	if err := w.dispatchCommand(ctx, event); err != nil {
		w.status.ErrorCount++
		w.log.ActivityError("function:"+event.Name, 0, err)
	}

	w.status.CurrentActivity = "listening"
	return nil
}

func (w *CallWorkflow) onTransferRequest(ctx context.Context, payload json.RawMessage) error {
	var req domain.TransferRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		w.status.ErrorCount++
		return apperr.Wrap(apperr.KindBadRequest, "malformed transfer request", err)
	}
	w.requestTransfer(ctx, req)
	return nil
}

// requestTransfer hands the caller to a human agent with a bounded context
// snapshot. The transfer intent alone decides the outcome: a failed handoff
// activity costs an error count, but the call still ends as transferred.
func (w *CallWorkflow) requestTransfer(ctx context.Context, req domain.TransferRequest) {
	w.transferCount++
	w.status.CurrentActivity = "transferring to human agent"

	marker := "transfer to human agent"
	if req.Reason != "" {
		marker += ": " + req.Reason
	}
	w.status.AddNextAction(marker)

	recent := w.transcripts
	if len(recent) > handoffSnapshotSize {
		recent = recent[len(recent)-handoffSnapshotSize:]
	}

	err := activity.RunVoid(ctx, w.gw, w.cp, "transfer-handoff", func(ctx context.Context) error {
		return w.acts.Transfers.HandleTransfer(ctx, activity.TransferHandoff{
			Call:              w.call,
			Request:           req,
			Score:             w.status.LeadScore,
			Qualification:     w.status.Qualification,
			RecentTranscripts: append([]domain.TranscriptEvent(nil), recent...),
		})
	})
	if err != nil {
		w.status.ErrorCount++
		w.log.ActivityError("transfer-handoff", 0, err)
	}

	w.publish(events.CallTransferRequested{
		BaseEvent: events.NewBaseEvent(),
		CallID:    w.call.CallID,
		TenantID:  w.call.TenantID,
		Reason:    req.Reason,
		Priority:  req.Priority,
		AgentType: req.AgentType,
	})

	w.outcome = domain.RecordStatusTransferred
	w.endCall(w.now(), "transferred to human agent")
}

func (w *CallWorkflow) onCallEnd(payload json.RawMessage) error {
	var event domain.CallEndEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		w.status.ErrorCount++
		return apperr.Wrap(apperr.KindBadRequest, "malformed call end event", err)
	}

	endedAt := event.EndedAt
	if endedAt.IsZero() {
		endedAt = w.now()
	}
	w.endCall(endedAt, event.Reason)
	return nil
}

// ExpireCeiling ends the call at the duration ceiling. Hitting the ceiling is
// a normal way for a call to end, not an error.
func (w *CallWorkflow) ExpireCeiling() {
	if w.ended || w.status.Stage.Terminal() {
		return
	}
	w.endCall(w.now(), "duration ceiling reached")
	w.commit()
}

func (w *CallWorkflow) endCall(endedAt time.Time, reason string) {
	if w.ended {
		return
	}
	w.ended = true
	w.endedAt = endedAt
	w.endReason = reason
	w.status.Stage = domain.StageCompleting
	w.status.CurrentActivity = "finalizing"
}

// Done reports whether the actor loop should stop feeding signals and finalize.
func (w *CallWorkflow) Done() bool {
	return w.ended || w.status.Stage.Terminal()
}

// Finalize runs the completion path: summary, final record, analytics, lead
// score, archive, and the post-call enqueue. A permanent failure writing the
// final record fails the call; the remaining steps degrade to error counts.
func (w *CallWorkflow) Finalize(ctx context.Context) (string, error) {
	if w.status.Stage == domain.StageFailed {
		w.finalizeFailed(ctx)
		return domain.RecordStatusFailed, apperr.New(apperr.KindInternal, w.failReason)
	}

	w.status.Stage = domain.StageProcessing
	w.commit()

	outcome := w.outcome
	if outcome == "" {
		outcome = domain.RecordStatusCompleted
	}
	if w.endedAt.IsZero() {
		w.endedAt = w.now()
	}

	summary, err := activity.Run(ctx, w.gw, w.cp, "generate-summary", func(ctx context.Context) (activity.SummaryResult, error) {
		return w.acts.Analyzer.GenerateSummary(ctx, activity.SummaryRequest{
			Call:          w.call,
			Transcripts:   w.transcripts,
			FunctionCalls: w.functionCalls,
			Qualification: w.status.Qualification,
			Score:         w.status.LeadScore,
			Outcome:       outcome,
		})
	})
	if err != nil {
		w.status.ErrorCount++
		w.log.ActivityError("generate-summary", 0, err)
	}

	record := activity.FinalRecord{
		CallID:          w.call.CallID,
		TenantID:        w.call.TenantID,
		Status:          outcome,
		LeadScore:       w.status.LeadScore,
		Qualification:   w.status.Qualification,
		Summary:         summary.Summary,
		ErrorCount:      w.status.ErrorCount,
		EndedAt:         w.endedAt,
		DurationSeconds: w.endedAt.Sub(w.call.StartedAt).Seconds(),
	}
	err = activity.RunVoid(ctx, w.gw, w.cp, "update-call-record", func(ctx context.Context) error {
		return w.acts.Calls.UpdateCallRecord(ctx, record)
	})
	if err != nil {
		w.failReason = fmt.Sprintf("update call record: %v", err)
		w.status.Stage = domain.StageFailed
		w.finalizeFailed(ctx)
		return domain.RecordStatusFailed, err
	}

	metrics := domain.ComputeMetrics(w.call, w.status, w.transcripts, w.functionCalls, w.transferCount, w.endedAt)

	if err := activity.RunVoid(ctx, w.gw, w.cp, "store-analytics", func(ctx context.Context) error {
		return w.acts.Calls.StoreAnalytics(ctx, activity.AnalyticsRecord{
			CallID:   w.call.CallID,
			TenantID: w.call.TenantID,
			Metrics:  metrics,
		})
	}); err != nil {
		w.status.ErrorCount++
		w.log.ActivityError("store-analytics", 0, err)
	}

	if w.status.LeadScore > 0 || w.status.Qualification.Assessed() {
		if err := activity.RunVoid(ctx, w.gw, w.cp, "update-lead-score", func(ctx context.Context) error {
			return w.acts.Leads.UpdateLeadScore(ctx, activity.LeadScoreUpdate{
				LeadID:        w.call.LeadID,
				TenantID:      w.call.TenantID,
				Score:         w.status.LeadScore,
				Qualification: w.status.Qualification,
				Source:        "call:" + w.call.CallID.String(),
			})
		}); err != nil {
			w.status.ErrorCount++
			w.log.ActivityError("update-lead-score", 0, err)
		}
	}

	if err := activity.RunVoid(ctx, w.gw, w.cp, "archive-call", func(ctx context.Context) error {
		return w.acts.Archive.ArchiveCall(ctx, activity.ArchiveRequest{
			Call:          w.call,
			Transcripts:   w.transcripts,
			FunctionCalls: w.functionCalls,
			Summary:       summary.Summary,
			Metrics:       metrics,
		})
	}); err != nil {
		w.status.ErrorCount++
		w.log.ActivityError("archive-call", 0, err)
	}

	if err := activity.RunVoid(ctx, w.gw, w.cp, "enqueue-postcall", func(ctx context.Context) error {
		return w.acts.Queue.Enqueue(ctx, activity.PostCallJob{
			CallID:        w.call.CallID,
			TenantID:      w.call.TenantID,
			LeadID:        w.call.LeadID,
			Phone:         w.call.Phone,
			Summary:       summary.Summary,
			Score:         w.status.LeadScore,
			Qualification: w.status.Qualification,
			FinalStatus:   outcome,
			Attempt:       1,
		})
	}); err != nil {
		w.status.ErrorCount++
		w.log.ActivityError("enqueue-postcall", 0, err)
	}

	w.status.Stage = domain.StageCompleted
	w.status.Progress = domain.ProgressComplete
	w.status.CurrentActivity = ""
	w.commit()

	w.publish(events.CallCompleted{
		BaseEvent:   events.NewBaseEvent(),
		CallID:      w.call.CallID,
		TenantID:    w.call.TenantID,
		LeadID:      w.call.LeadID,
		FinalStatus: outcome,
		LeadScore:   w.status.LeadScore,
		ErrorCount:  w.status.ErrorCount,
	})
	return outcome, nil
}

// finalizeFailed records the failure best-effort so the call does not vanish
// from reporting, then publishes the failure event.
func (w *CallWorkflow) finalizeFailed(ctx context.Context) {
	if w.endedAt.IsZero() {
		w.endedAt = w.now()
	}

	_ = activity.RunVoid(ctx, w.gw, w.cp, "record-failure", func(ctx context.Context) error {
		return w.acts.Calls.UpdateCallRecord(ctx, activity.FinalRecord{
			CallID:          w.call.CallID,
			TenantID:        w.call.TenantID,
			Status:          domain.RecordStatusFailed,
			LeadScore:       w.status.LeadScore,
			Qualification:   w.status.Qualification,
			ErrorCount:      w.status.ErrorCount,
			EndedAt:         w.endedAt,
			DurationSeconds: w.endedAt.Sub(w.call.StartedAt).Seconds(),
		})
	})

	metrics := domain.ComputeMetrics(w.call, w.status, w.transcripts, w.functionCalls, w.transferCount, w.endedAt)
	_ = activity.RunVoid(ctx, w.gw, w.cp, "store-analytics", func(ctx context.Context) error {
		return w.acts.Calls.StoreAnalytics(ctx, activity.AnalyticsRecord{
			CallID:   w.call.CallID,
			TenantID: w.call.TenantID,
			Metrics:  metrics,
		})
	})

	w.status.CurrentActivity = ""
	w.commit()

	w.publish(events.CallFailed{
		BaseEvent: events.NewBaseEvent(),
		CallID:    w.call.CallID,
		TenantID:  w.call.TenantID,
		Reason:    w.failReason,
	})
}

// HandleQuery answers a read from the committed snapshot. Safe to call from
// any goroutine; never blocks on signal processing.
func (w *CallWorkflow) HandleQuery(channel string) (any, error) {
	w.snapMu.RLock()
	status := w.snapStatus.Clone()
	metrics := w.snapMetrics
	snapEnded := w.snapEnded
	w.snapMu.RUnlock()

	switch channel {
	case domain.QueryCallStatus:
		return status, nil
	case domain.QueryCallMetrics:
		// Duration reads as of now for live calls, frozen once ended.
		asOf := w.now()
		if !snapEnded.IsZero() {
			asOf = snapEnded
		}
		if asOf.After(w.call.StartedAt) {
			metrics.DurationSeconds = asOf.Sub(w.call.StartedAt).Seconds()
		}
		return metrics, nil
	case domain.QueryLeadScore:
		return LeadScoreView{
			LeadScore:     status.LeadScore,
			Qualification: status.Qualification,
		}, nil
	default:
		return nil, apperr.New(apperr.KindBadRequest, "unknown query channel").WithOp(channel)
	}
}

// LeadScoreView is the lead-score query result.
type LeadScoreView struct {
	LeadScore     float64              `json:"leadScore"`
	Qualification domain.Qualification `json:"qualification"`
}

// commit publishes the current state as the query snapshot. Called by the
// actor goroutine at the end of every handler, so readers observe whole
// handler effects or none of them.
func (w *CallWorkflow) commit() {
	metrics := domain.ComputeMetrics(w.call, w.status, w.transcripts, w.functionCalls, w.transferCount, w.now())

	w.snapMu.Lock()
	w.snapStatus = w.status.Clone()
	w.snapMetrics = metrics
	if w.ended {
		w.snapEnded = w.endedAt
	}
	w.snapMu.Unlock()
}

func (w *CallWorkflow) publish(event events.Event) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(context.Background(), event)
}
