package postcall

import (
	"context"
	"fmt"
	"time"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/internal/events"
	"voicedesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Retry discipline. A failed job re-enqueues itself on a fixed delay with the
// attempt counter in the payload; after the budget is spent it lands in the
// manual-review state instead of looping forever.
const (
	MaxAttempts = 12
	RetryDelay  = 5 * time.Minute
)

// Job outcome states persisted by the review store.
const (
	StateCompleted    = "completed"
	StateManualReview = "needs_manual_review"
)

// ReviewStore persists post-call job outcomes.
type ReviewStore interface {
	RecordOutcome(ctx context.Context, callID, tenantID uuid.UUID, attempts int, state, reason string) error
}

// Requeuer is the slice of the queue client the processor needs.
type Requeuer interface {
	EnqueueAfter(ctx context.Context, job activity.PostCallJob, delay time.Duration) error
	ScheduleFollowUp(ctx context.Context, payload FollowUpDuePayload, dueAt time.Time) error
}

// Processor runs one post-call job end to end.
type Processor struct {
	analyzer   activity.Analyzer
	leads      activity.LeadStore
	notifier   activity.Notifier
	crm        activity.CRMClient
	automation activity.AutomationClient
	reviews    ReviewStore
	queue      Requeuer
	targets    []string
	bus        events.Bus
	log        *logger.Logger
	now        func() time.Time
}

func NewProcessor(analyzer activity.Analyzer, leads activity.LeadStore, notifier activity.Notifier, crm activity.CRMClient, automation activity.AutomationClient, reviews ReviewStore, queue Requeuer, targets []string, bus events.Bus, log *logger.Logger) *Processor {
	return &Processor{
		analyzer:   analyzer,
		leads:      leads,
		notifier:   notifier,
		crm:        crm,
		automation: automation,
		reviews:    reviews,
		queue:      queue,
		targets:    targets,
		bus:        bus,
		log:        log,
		now:        time.Now,
	}
}

// Handle runs a job and applies the retry discipline. It always returns nil
// to asynq; rescheduling and the manual-review terminal state are handled
// here, not by the queue.
func (p *Processor) Handle(ctx context.Context, job activity.PostCallJob) error {
	log := p.log.WithCallID(job.CallID.String())

	if err := p.process(ctx, job); err != nil {
		if job.Attempt >= MaxAttempts {
			log.Error("post-call job exhausted retries, flagging for manual review",
				"attempts", job.Attempt, "error", err.Error())

			if recErr := p.reviews.RecordOutcome(ctx, job.CallID, job.TenantID, job.Attempt, StateManualReview, err.Error()); recErr != nil {
				// The record write failed too; let the next attempt try again
				// rather than silently dropping the job.
				return recErr
			}
			if p.bus != nil {
				p.bus.Publish(ctx, events.PostCallManualReviewRequired{
					BaseEvent: events.NewBaseEvent(),
					CallID:    job.CallID,
					TenantID:  job.TenantID,
					LeadID:    job.LeadID,
					Attempts:  job.Attempt,
					Reason:    err.Error(),
				})
			}
			return nil
		}

		log.Warn("post-call job failed, rescheduling",
			"attempt", job.Attempt, "delay", RetryDelay.String(), "error", err.Error())

		retry := job
		retry.Attempt++
		return p.queue.EnqueueAfter(ctx, retry, RetryDelay)
	}

	if err := p.reviews.RecordOutcome(ctx, job.CallID, job.TenantID, job.Attempt, StateCompleted, ""); err != nil {
		log.Error("failed to record post-call outcome", "error", err.Error())
	}
	if p.bus != nil {
		p.bus.Publish(ctx, events.PostCallCompleted{
			BaseEvent: events.NewBaseEvent(),
			CallID:    job.CallID,
			TenantID:  job.TenantID,
			LeadID:    job.LeadID,
			Attempt:   job.Attempt,
		})
	}
	return nil
}

// process runs the pipeline steps in order. The whole job is retried as a
// unit; individual steps are expected to be idempotent.
func (p *Processor) process(ctx context.Context, job activity.PostCallJob) error {
	qc, err := p.analyzer.QualityCheck(ctx, activity.QualityCheckRequest{
		CallID:        job.CallID,
		TenantID:      job.TenantID,
		LeadID:        job.LeadID,
		Summary:       job.Summary,
		Score:         job.Score,
		Qualification: job.Qualification,
	})
	if err != nil {
		return fmt.Errorf("quality check: %w", err)
	}

	score := job.Score + qc.ScoreAdjustment
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	if qc.ScoreAdjustment != 0 {
		if err := p.leads.UpdateLeadScore(ctx, activity.LeadScoreUpdate{
			LeadID:        job.LeadID,
			TenantID:      job.TenantID,
			Score:         score,
			Qualification: job.Qualification,
			Source:        "postcall:" + job.CallID.String(),
		}); err != nil {
			return fmt.Errorf("score adjustment: %w", err)
		}
	}

	if qc.FollowUpNeeded {
		delay := qc.FollowUpDelay
		if delay <= 0 {
			delay = 24 * time.Hour
		}
		if err := p.queue.ScheduleFollowUp(ctx, FollowUpDuePayload{
			CallID:   job.CallID,
			TenantID: job.TenantID,
			LeadID:   job.LeadID,
			Phone:    job.Phone,
			Reason:   qc.Notes,
		}, p.now().Add(delay)); err != nil {
			return fmt.Errorf("schedule follow-up: %w", err)
		}
	}

	if err := p.notifier.SendNotification(ctx, activity.Notification{
		TenantID: job.TenantID,
		LeadID:   job.LeadID,
		CallID:   job.CallID,
		Kind:     "call_summary",
		Subject:  fmt.Sprintf("Call %s: score %.1f", job.FinalStatus, score),
		Body:     job.Summary,
	}); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	if err := p.crm.UpdateCRM(ctx, activity.CRMUpdate{
		TenantID:      job.TenantID,
		LeadID:        job.LeadID,
		CallID:        job.CallID,
		Score:         score,
		Qualification: job.Qualification,
		Summary:       job.Summary,
		Status:        job.FinalStatus,
	}); err != nil {
		return fmt.Errorf("crm update: %w", err)
	}

	for _, target := range p.targets {
		if err := p.automation.TriggerAutomation(ctx, activity.AutomationTrigger{
			TenantID: job.TenantID,
			LeadID:   job.LeadID,
			CallID:   job.CallID,
			Trigger:  target,
			Payload: map[string]any{
				"callId":      job.CallID.String(),
				"finalStatus": job.FinalStatus,
				"leadScore":   score,
			},
		}); err != nil {
			return fmt.Errorf("automation trigger %s: %w", target, err)
		}
	}

	return nil
}
