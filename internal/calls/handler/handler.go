// Package handler handles HTTP requests for the calls module: the provider
// webhook ingress, call start, and the three live queries.
package handler

import (
	"net/http"

	"voicedesk_backend/internal/calls/domain"
	"voicedesk_backend/internal/calls/service"
	"voicedesk_backend/internal/calls/transport"
	"voicedesk_backend/platform/httpkit"
	"voicedesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for calls
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new calls handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the calls routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.StartCall)
	rg.GET("/:id/status", h.Status)
	rg.GET("/:id/metrics", h.Metrics)
	rg.GET("/:id/lead-score", h.LeadScore)
}

// RegisterWebhookRoutes registers the provider event ingress.
func (h *Handler) RegisterWebhookRoutes(rg *gin.RouterGroup) {
	rg.POST("/calls/:provider/events", h.WebhookEvent)
}

// StartCall handles POST /api/v1/calls
func (h *Handler) StartCall(c *gin.Context) {
	var req transport.StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	tenantID, ok := httpkit.TenantID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "tenant ID is required", nil)
		return
	}

	call, err := h.svc.StartCall(c.Request.Context(), tenantID, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Accepted(c, transport.StartCallResponse{
		CallID: call.CallID,
		Stage:  string(domain.StageStarting),
	})
}

// WebhookEvent handles POST /api/v1/webhooks/calls/:provider/events
func (h *Handler) WebhookEvent(c *gin.Context) {
	var req transport.WebhookEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	tenantID, ok := httpkit.TenantID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "tenant ID is required", nil)
		return
	}

	// Always verified; a tenant with a configured secret rejects requests
	// that omit the header.
	provider := c.Param("provider")
	secret := c.GetHeader("X-Webhook-Secret")
	if err := h.svc.VerifyWebhookSecret(c.Request.Context(), tenantID, provider, secret); httpkit.HandleError(c, err) {
		return
	}

	err := h.svc.Signal(c.Request.Context(), tenantID, req.CallID, req.Type, req.Data)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Accepted(c, transport.WebhookAck{CallID: req.CallID, Accepted: true})
}

// Status handles GET /api/v1/calls/:id/status
func (h *Handler) Status(c *gin.Context) {
	tenantID, callID, ok := h.pathIdentity(c)
	if !ok {
		return
	}

	status, err := h.svc.Status(c.Request.Context(), tenantID, callID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.StatusFromDomain(callID, status))
}

// Metrics handles GET /api/v1/calls/:id/metrics
func (h *Handler) Metrics(c *gin.Context) {
	tenantID, callID, ok := h.pathIdentity(c)
	if !ok {
		return
	}

	metrics, err := h.svc.Metrics(c.Request.Context(), tenantID, callID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, metrics)
}

// LeadScore handles GET /api/v1/calls/:id/lead-score
func (h *Handler) LeadScore(c *gin.Context) {
	tenantID, callID, ok := h.pathIdentity(c)
	if !ok {
		return
	}

	score, qualification, err := h.svc.LeadScore(c.Request.Context(), tenantID, callID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.LeadScoreResponse{
		CallID:        callID,
		LeadScore:     score,
		Qualification: qualification,
	})
}

func (h *Handler) pathIdentity(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := httpkit.TenantID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "tenant ID is required", nil)
		return uuid.Nil, uuid.Nil, false
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid call ID", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, callID, true
}
