// Package payments charges callers through the payment gateway for mid-call
// purchases.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/config"
	"voicedesk_backend/platform/logger"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(cfg config.PaymentConfig, log *logger.Logger) *Client {
	if cfg.GetPaymentBaseURL() == "" {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetPaymentBaseURL(), "/"),
		apiKey:  cfg.GetPaymentAPIKey(),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

type chargeRequest struct {
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference,omitempty"`
	TenantID    string `json:"tenantId"`
	LeadID      string `json:"leadId"`
	// Idempotency key: one charge per call and reference, however often the
	// request is retried.
	IdempotencyKey string `json:"idempotencyKey"`
}

type chargeResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

func (c *Client) ProcessPayment(ctx context.Context, req activity.PaymentRequest) (activity.PaymentResult, error) {
	if c == nil {
		return activity.PaymentResult{}, apperr.New(apperr.KindValidation, "payment gateway not configured")
	}

	payload := chargeRequest{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Reference:      req.Reference,
		TenantID:       req.TenantID.String(),
		LeadID:         req.LeadID.String(),
		IdempotencyKey: req.CallID.String() + ":" + req.Reference,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return activity.PaymentResult{}, fmt.Errorf("marshal payment payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/charges", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return activity.PaymentResult{}, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", payload.IdempotencyKey)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return activity.PaymentResult{}, apperr.Wrap(apperr.KindUnavailable, "payment request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		msg := fmt.Sprintf("payment gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode < http.StatusInternalServerError {
			return activity.PaymentResult{}, apperr.New(apperr.KindValidation, msg)
		}
		return activity.PaymentResult{}, apperr.New(apperr.KindUnavailable, msg)
	}

	var result chargeResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return activity.PaymentResult{}, apperr.Wrap(apperr.KindUnavailable, "payment gateway returned unparseable response", err)
	}

	c.log.Info("payment processed",
		"call_id", req.CallID.String(), "amount_cents", req.AmountCents, "status", result.Status)

	return activity.PaymentResult{
		TransactionID: result.TransactionID,
		Status:        result.Status,
	}, nil
}

var _ activity.PaymentProcessor = (*Client)(nil)
