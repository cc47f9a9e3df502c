// Package repository provides database operations for call records, call
// analytics, lead scores, scheduling, and post-call review outcomes.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/internal/calls/domain"
	"voicedesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CallRecord represents the call database model
type CallRecord struct {
	ID              uuid.UUID  `db:"id"`
	TenantID        uuid.UUID  `db:"tenant_id"`
	LeadID          uuid.UUID  `db:"lead_id"`
	Phone           string     `db:"phone"`
	Provider        string     `db:"provider"`
	Direction       string     `db:"direction"`
	Status          string     `db:"status"`
	LeadScore       float64    `db:"lead_score"`
	Qualification   []byte     `db:"qualification"`
	Summary         *string    `db:"summary"`
	ErrorCount      int        `db:"error_count"`
	StartedAt       time.Time  `db:"started_at"`
	EndedAt         *time.Time `db:"ended_at"`
	DurationSeconds *float64   `db:"duration_seconds"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// Repository provides database operations for the calls module
type Repository struct {
	pool *pgxpool.Pool
}

const callNotFoundMsg = "call not found"

// New creates a new calls repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateCallRecord inserts the initial in-progress record for a call.
// Re-running it for the same call is a no-op so replays stay idempotent.
func (r *Repository) CreateCallRecord(ctx context.Context, call domain.CallContext) error {
	query := `
		INSERT INTO calls (
			id, tenant_id, lead_id, phone, provider, direction, status,
			lead_score, error_count, started_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, 'in_progress', 0, 0, $7, now(), now()
		)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		call.CallID, call.TenantID, call.LeadID, call.Phone,
		call.Provider, call.Direction, call.StartedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to create call record", err).WithOp("repository.CreateCallRecord")
	}
	return nil
}

// UpdateCallRecord writes the terminal state of a call.
func (r *Repository) UpdateCallRecord(ctx context.Context, record activity.FinalRecord) error {
	qualification, err := json.Marshal(record.Qualification)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to encode qualification", err).WithOp("repository.UpdateCallRecord")
	}

	query := `
		UPDATE calls SET
			status = $2, lead_score = $3, qualification = $4, summary = $5,
			error_count = $6, ended_at = $7, duration_seconds = $8, updated_at = now()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		record.CallID, record.Status, record.LeadScore, qualification,
		record.Summary, record.ErrorCount, record.EndedAt, record.DurationSeconds,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to update call record", err).WithOp("repository.UpdateCallRecord")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(callNotFoundMsg)
	}
	return nil
}

// GetCall retrieves a call record scoped to its tenant.
func (r *Repository) GetCall(ctx context.Context, callID, tenantID uuid.UUID) (*CallRecord, error) {
	var rec CallRecord
	query := `SELECT id, tenant_id, lead_id, phone, provider, direction, status, lead_score,
		COALESCE(qualification, '{}'), summary, error_count, started_at, ended_at, duration_seconds,
		created_at, updated_at
		FROM calls WHERE id = $1 AND tenant_id = $2`

	err := r.pool.QueryRow(ctx, query, callID, tenantID).Scan(
		&rec.ID, &rec.TenantID, &rec.LeadID, &rec.Phone, &rec.Provider, &rec.Direction,
		&rec.Status, &rec.LeadScore, &rec.Qualification, &rec.Summary, &rec.ErrorCount,
		&rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(callNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return &rec, nil
}

// StoreAnalytics upserts the derived metrics row for a call.
func (r *Repository) StoreAnalytics(ctx context.Context, record activity.AnalyticsRecord) error {
	metrics, err := json.Marshal(record.Metrics)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to encode metrics", err).WithOp("repository.StoreAnalytics")
	}

	query := `
		INSERT INTO call_analytics (call_id, tenant_id, metrics, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (call_id) DO UPDATE SET metrics = EXCLUDED.metrics`

	_, err = r.pool.Exec(ctx, query, record.CallID, record.TenantID, metrics)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to store call analytics", err).WithOp("repository.StoreAnalytics")
	}
	return nil
}

// GetAnalytics retrieves the stored metrics for a completed call.
func (r *Repository) GetAnalytics(ctx context.Context, callID, tenantID uuid.UUID) (domain.CallMetrics, error) {
	var raw []byte
	query := `SELECT metrics FROM call_analytics WHERE call_id = $1 AND tenant_id = $2`

	err := r.pool.QueryRow(ctx, query, callID, tenantID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CallMetrics{}, apperr.NotFound("call analytics not found")
		}
		return domain.CallMetrics{}, fmt.Errorf("failed to get call analytics: %w", err)
	}

	var metrics domain.CallMetrics
	if err := json.Unmarshal(raw, &metrics); err != nil {
		return domain.CallMetrics{}, apperr.Wrap(apperr.KindInternal, "failed to decode metrics", err).WithOp("repository.GetAnalytics")
	}
	return metrics, nil
}

// UpdateLeadScore upserts the lead's current score and qualification.
func (r *Repository) UpdateLeadScore(ctx context.Context, update activity.LeadScoreUpdate) error {
	qualification, err := json.Marshal(update.Qualification)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to encode qualification", err).WithOp("repository.UpdateLeadScore")
	}

	query := `
		INSERT INTO lead_scores (lead_id, tenant_id, score, qualification, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (lead_id) DO UPDATE SET
			score = EXCLUDED.score,
			qualification = EXCLUDED.qualification,
			source = EXCLUDED.source,
			updated_at = now()`

	_, err = r.pool.Exec(ctx, query, update.LeadID, update.TenantID, update.Score, qualification, update.Source)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to update lead score", err).WithOp("repository.UpdateLeadScore")
	}
	return nil
}

// RecordOutcome persists the post-call job's terminal state for a call.
func (r *Repository) RecordOutcome(ctx context.Context, callID, tenantID uuid.UUID, attempts int, state, reason string) error {
	query := `
		INSERT INTO postcall_reviews (call_id, tenant_id, attempts, state, reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (call_id) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			state = EXCLUDED.state,
			reason = EXCLUDED.reason,
			updated_at = now()`

	_, err := r.pool.Exec(ctx, query, callID, tenantID, attempts, state, reason)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to record post-call outcome", err).WithOp("repository.RecordOutcome")
	}
	return nil
}
