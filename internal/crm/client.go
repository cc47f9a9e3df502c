// Package crm pushes call outcomes into the tenant's CRM over its REST API.
package crm

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

func NewClient(cfg config.CRMConfig, log *logger.Logger) *Client {
	if cfg.GetCRMBaseURL() == "" {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetCRMBaseURL(), "/"),
		apiKey:  cfg.GetCRMAPIKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type updatePayload struct {
	LeadID        string  `json:"leadId"`
	CallID        string  `json:"callId"`
	Score         float64 `json:"score"`
	Qualification any     `json:"qualification"`
	Summary       string  `json:"summary,omitempty"`
	Status        string  `json:"status"`
}

func (c *Client) UpdateCRM(ctx context.Context, update activity.CRMUpdate) error {
	if c == nil {
		return nil
	}

	payload := updatePayload{
		LeadID:        update.LeadID.String(),
		CallID:        update.CallID.String(),
		Score:         update.Score,
		Qualification: update.Qualification,
		Summary:       update.Summary,
		Status:        update.Status,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal crm payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/contacts/%s/call-outcome", c.baseURL, update.LeadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", update.TenantID.String())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "crm request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		msg := fmt.Sprintf("crm returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode < http.StatusInternalServerError {
			return apperr.New(apperr.KindValidation, msg)
		}
		return apperr.New(apperr.KindUnavailable, msg)
	}

	c.log.Info("crm updated", "lead_id", update.LeadID.String(), "call_id", update.CallID.String())
	return nil
}

var _ activity.CRMClient = (*Client)(nil)
