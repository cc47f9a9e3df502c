package service

import (
	"context"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/internal/calls/postcall"
	"voicedesk_backend/internal/calls/repository"
)

// Scheduler persists appointments and follow-ups and arms the follow-up task.
type Scheduler struct {
	repo  *repository.Repository
	queue *postcall.Client
}

// NewScheduler creates the scheduling activity implementation.
func NewScheduler(repo *repository.Repository, queue *postcall.Client) *Scheduler {
	return &Scheduler{repo: repo, queue: queue}
}

func (s *Scheduler) ScheduleAppointment(ctx context.Context, req activity.AppointmentRequest) error {
	return s.repo.CreateAppointment(ctx, req)
}

func (s *Scheduler) ScheduleFollowUp(ctx context.Context, req activity.FollowUpRequest) error {
	if err := s.repo.CreateFollowUp(ctx, req); err != nil {
		return err
	}
	if s.queue == nil {
		return nil
	}
	return s.queue.ScheduleFollowUp(ctx, postcall.FollowUpDuePayload{
		CallID:   req.CallID,
		TenantID: req.TenantID,
		LeadID:   req.LeadID,
		Reason:   req.Reason,
	}, req.DueAt)
}

var _ activity.Scheduler = (*Scheduler)(nil)
