package repository

import (
	"context"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/platform/apperr"

	"github.com/google/uuid"
)

// CreateAppointment inserts an appointment booked during a call.
func (r *Repository) CreateAppointment(ctx context.Context, req activity.AppointmentRequest) error {
	query := `
		INSERT INTO call_appointments (id, call_id, tenant_id, lead_id, start_time, notes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'scheduled', now())`

	_, err := r.pool.Exec(ctx, query,
		uuid.New(), req.CallID, req.TenantID, req.LeadID, req.StartTime, req.Notes,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to create appointment", err).WithOp("repository.CreateAppointment")
	}
	return nil
}

// CreateFollowUp inserts a pending follow-up for a lead.
func (r *Repository) CreateFollowUp(ctx context.Context, req activity.FollowUpRequest) error {
	query := `
		INSERT INTO call_followups (id, call_id, tenant_id, lead_id, due_at, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', now())`

	_, err := r.pool.Exec(ctx, query,
		uuid.New(), req.CallID, req.TenantID, req.LeadID, req.DueAt, req.Reason,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to create follow-up", err).WithOp("repository.CreateFollowUp")
	}
	return nil
}
