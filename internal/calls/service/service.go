// Package service contains the calls module business logic between the HTTP
// layer and the durable runtime.
package service

import (
	"context"
	"encoding/json"
	"time"

	"voicedesk_backend/internal/calls/domain"
	"voicedesk_backend/internal/calls/durable"
	"voicedesk_backend/internal/calls/repository"
	"voicedesk_backend/internal/calls/transport"
	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/logger"
	"voicedesk_backend/platform/phone"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Repository is the persistence surface the service reads from. Implemented
// by the module's pgx repository.
type Repository interface {
	GetCall(ctx context.Context, callID, tenantID uuid.UUID) (*repository.CallRecord, error)
	GetAnalytics(ctx context.Context, callID, tenantID uuid.UUID) (domain.CallMetrics, error)
	GetWebhookSecretHash(ctx context.Context, tenantID uuid.UUID, provider string) (string, error)
}

// Service exposes the calls module operations to the HTTP layer.
type Service struct {
	runtime *durable.Runtime
	repo    Repository
	log     *logger.Logger
}

// New creates the calls service.
func New(runtime *durable.Runtime, repo Repository, log *logger.Logger) *Service {
	return &Service{runtime: runtime, repo: repo, log: log}
}

// StartCall validates the request and spawns the call workflow.
func (s *Service) StartCall(ctx context.Context, tenantID uuid.UUID, req transport.StartCallRequest) (domain.CallContext, error) {
	normalized := phone.NormalizeE164(req.Phone)
	if normalized == "" {
		return domain.CallContext{}, apperr.Validation("invalid phone number").WithOp("service.StartCall")
	}

	callID := uuid.New()
	if req.CallID != nil {
		callID = *req.CallID
	}
	direction := req.Direction
	if direction == "" {
		direction = "inbound"
	}

	call := domain.CallContext{
		CallID:    callID,
		TenantID:  tenantID,
		LeadID:    req.LeadID,
		Phone:     normalized,
		Provider:  req.Provider,
		Direction: direction,
		StartedAt: time.Now().UTC(),
		Metadata:  req.Metadata,
	}

	if err := s.runtime.StartCall(ctx, call); err != nil {
		return domain.CallContext{}, err
	}

	s.log.CallEvent(callID.String(), "start", string(domain.StageStarting))
	return call, nil
}

// Signal routes one webhook event into the call's workflow. Tenant ownership
// is checked against the live instance before the signal is journaled.
func (s *Service) Signal(ctx context.Context, tenantID, callID uuid.UUID, channel string, payload json.RawMessage) error {
	if call, ok := s.runtime.CallInfo(callID); ok && call.TenantID != tenantID {
		return apperr.NotFound("no workflow for call")
	}
	return s.runtime.SendSignal(ctx, callID, channel, payload)
}

// Status answers the status query, falling back to the persisted record once
// the workflow has left the runtime.
func (s *Service) Status(ctx context.Context, tenantID, callID uuid.UUID) (domain.CallStatus, error) {
	if status, err := s.queryStatus(tenantID, callID); err == nil {
		return status, nil
	} else if apperr.GetKind(err) != apperr.KindNotFound {
		return domain.CallStatus{}, err
	}

	rec, err := s.repo.GetCall(ctx, callID, tenantID)
	if err != nil {
		return domain.CallStatus{}, err
	}
	return statusFromRecord(rec), nil
}

func (s *Service) queryStatus(tenantID, callID uuid.UUID) (domain.CallStatus, error) {
	call, ok := s.runtime.CallInfo(callID)
	if !ok || call.TenantID != tenantID {
		return domain.CallStatus{}, apperr.NotFound("no workflow for call")
	}

	result, err := s.runtime.Query(callID, domain.QueryCallStatus)
	if err != nil {
		return domain.CallStatus{}, err
	}
	status, ok := result.(domain.CallStatus)
	if !ok {
		return domain.CallStatus{}, apperr.Internal("unexpected status query result")
	}
	return status, nil
}

// Metrics answers the metrics query, falling back to stored analytics for
// completed calls.
func (s *Service) Metrics(ctx context.Context, tenantID, callID uuid.UUID) (domain.CallMetrics, error) {
	if call, ok := s.runtime.CallInfo(callID); ok && call.TenantID == tenantID {
		result, err := s.runtime.Query(callID, domain.QueryCallMetrics)
		if err != nil {
			return domain.CallMetrics{}, err
		}
		if metrics, ok := result.(domain.CallMetrics); ok {
			return metrics, nil
		}
		return domain.CallMetrics{}, apperr.Internal("unexpected metrics query result")
	}

	return s.repo.GetAnalytics(ctx, callID, tenantID)
}

// LeadScore answers the lead-score query, falling back to the final record.
func (s *Service) LeadScore(ctx context.Context, tenantID, callID uuid.UUID) (float64, domain.Qualification, error) {
	status, err := s.Status(ctx, tenantID, callID)
	if err != nil {
		return 0, domain.Qualification{}, err
	}
	return status.LeadScore, status.Qualification, nil
}

// VerifyWebhookSecret checks a provider's shared secret against the tenant's
// stored bcrypt hash. Tenants without a configured secret pass; once a hash
// exists the presented secret must match, a missing header included.
func (s *Service) VerifyWebhookSecret(ctx context.Context, tenantID uuid.UUID, provider, secret string) error {
	hash, err := s.repo.GetWebhookSecretHash(ctx, tenantID, provider)
	if err != nil {
		if apperr.GetKind(err) == apperr.KindNotFound {
			return nil
		}
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return apperr.Unauthorized("invalid webhook secret")
	}
	return nil
}

func statusFromRecord(rec *repository.CallRecord) domain.CallStatus {
	status := domain.CallStatus{
		LeadScore:  rec.LeadScore,
		ErrorCount: rec.ErrorCount,
	}

	switch rec.Status {
	case domain.RecordStatusCompleted, domain.RecordStatusTransferred:
		status.Stage = domain.StageCompleted
		status.Progress = domain.ProgressComplete
	case domain.RecordStatusFailed:
		status.Stage = domain.StageFailed
	default:
		status.Stage = domain.StageActive
	}

	if len(rec.Qualification) > 0 {
		// Stored as JSON; decode failures leave the zero qualification.
		_ = json.Unmarshal(rec.Qualification, &status.Qualification)
	}
	return status
}
