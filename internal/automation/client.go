// Package automation fires marketing-automation and downstream integration
// triggers (ERP sync, campaign enrollment) after call processing.
package automation

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

func NewClient(cfg config.AutomationConfig, log *logger.Logger) *Client {
	if cfg.GetAutomationBaseURL() == "" {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetAutomationBaseURL(), "/"),
		apiKey:  cfg.GetAutomationAPIKey(),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type triggerRequest struct {
	Trigger  string         `json:"trigger"`
	TenantID string         `json:"tenantId"`
	LeadID   string         `json:"leadId"`
	CallID   string         `json:"callId"`
	Payload  map[string]any `json:"payload,omitempty"`
}

func (c *Client) TriggerAutomation(ctx context.Context, trigger activity.AutomationTrigger) error {
	if c == nil {
		return nil
	}

	payload := triggerRequest{
		Trigger:  trigger.Trigger,
		TenantID: trigger.TenantID.String(),
		LeadID:   trigger.LeadID.String(),
		CallID:   trigger.CallID.String(),
		Payload:  trigger.Payload,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal automation payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/triggers/%s", c.baseURL, trigger.Trigger)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "automation request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		msg := fmt.Sprintf("automation returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode < http.StatusInternalServerError {
			return apperr.New(apperr.KindValidation, msg)
		}
		return apperr.New(apperr.KindUnavailable, msg)
	}

	c.log.Info("automation triggered", "trigger", trigger.Trigger, "lead_id", trigger.LeadID.String())
	return nil
}

var _ activity.AutomationClient = (*Client)(nil)
