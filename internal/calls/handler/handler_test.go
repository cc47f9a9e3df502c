package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voicedesk_backend/internal/calls/domain"
	"voicedesk_backend/internal/calls/durable"
	"voicedesk_backend/internal/calls/repository"
	"voicedesk_backend/internal/calls/service"
	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/httpkit"
	"voicedesk_backend/platform/logger"
	"voicedesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type fakeRepo struct {
	hash    string
	hashErr error
}

func (r *fakeRepo) GetCall(context.Context, uuid.UUID, uuid.UUID) (*repository.CallRecord, error) {
	return nil, apperr.NotFound("call not found")
}

func (r *fakeRepo) GetAnalytics(context.Context, uuid.UUID, uuid.UUID) (domain.CallMetrics, error) {
	return domain.CallMetrics{}, apperr.NotFound("analytics not found")
}

func (r *fakeRepo) GetWebhookSecretHash(context.Context, uuid.UUID, string) (string, error) {
	if r.hashErr != nil {
		return "", r.hashErr
	}
	return r.hash, nil
}

func durableRuntime(t *testing.T, log *logger.Logger) *durable.Runtime {
	t.Helper()
	runtime := durable.NewRuntime(durable.NewMemoryStore(), nil, durable.Options{}, log)
	t.Cleanup(func() { runtime.Shutdown(0) })
	return runtime
}

// webhookRouter wires the webhook routes behind a stand-in for the service
// token middleware that just sets the tenant ID.
func webhookRouter(t *testing.T, repo *fakeRepo, tenantID uuid.UUID) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.New("development")
	runtime := durableRuntime(t, log)
	svc := service.New(runtime, repo, log)
	h := New(svc, validator.New())

	router := gin.New()
	group := router.Group("/api/v1/webhooks")
	group.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextTenantIDKey, tenantID)
		c.Next()
	})
	h.RegisterWebhookRoutes(group)
	return router
}

func postWebhook(router *gin.Engine, secret string) *httptest.ResponseRecorder {
	body := fmt.Sprintf(`{"callId":%q,"type":"transcript","data":{"text":"hi"}}`, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/calls/vapi/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookEventRejectsMissingSecretHeader(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("shhh"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	router := webhookRouter(t, &fakeRepo{hash: string(hash)}, uuid.New())

	w := postWebhook(router, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status without secret header = %d, want 401", w.Code)
	}
}

func TestWebhookEventAcceptsConfiguredSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("shhh"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	router := webhookRouter(t, &fakeRepo{hash: string(hash)}, uuid.New())

	// The secret check passes; the unknown call then 404s, proving the
	// request got past verification.
	w := postWebhook(router, "shhh")
	if w.Code != http.StatusNotFound {
		t.Errorf("status with valid secret = %d, want 404 for the unknown call", w.Code)
	}
}

func TestWebhookEventRejectsWrongSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("shhh"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	router := webhookRouter(t, &fakeRepo{hash: string(hash)}, uuid.New())

	w := postWebhook(router, "wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status with wrong secret = %d, want 401", w.Code)
	}
}

func TestWebhookEventUnconfiguredTenantSkipsSecretCheck(t *testing.T) {
	router := webhookRouter(t, &fakeRepo{
		hashErr: apperr.NotFound("webhook secret not configured for tenant"),
	}, uuid.New())

	w := postWebhook(router, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status for unconfigured tenant = %d, want 404 for the unknown call", w.Code)
	}
}
