// Package transfer routes callers to the human agent desk with a bounded
// context snapshot.
package transfer

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
	"voicedesk_backend/internal/calls/domain"
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

func NewClient(cfg config.TransferConfig, log *logger.Logger) *Client {
	if cfg.GetTransferDeskURL() == "" {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetTransferDeskURL(), "/"),
		apiKey:  cfg.GetTransferDeskKey(),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type handoffRequest struct {
	CallID        string                   `json:"callId"`
	TenantID      string                   `json:"tenantId"`
	Phone         string                   `json:"phone"`
	Reason        string                   `json:"reason"`
	Priority      string                   `json:"priority,omitempty"`
	Notes         string                   `json:"notes,omitempty"`
	AgentType     string                   `json:"agentType,omitempty"`
	LeadScore     float64                  `json:"leadScore"`
	Qualification domain.Qualification     `json:"qualification"`
	Transcripts   []domain.TranscriptEvent `json:"recentTranscripts,omitempty"`
}

func (c *Client) HandleTransfer(ctx context.Context, handoff activity.TransferHandoff) error {
	if c == nil {
		return apperr.New(apperr.KindValidation, "transfer desk not configured")
	}

	payload := handoffRequest{
		CallID:        handoff.Call.CallID.String(),
		TenantID:      handoff.Call.TenantID.String(),
		Phone:         handoff.Call.Phone,
		Reason:        handoff.Request.Reason,
		Priority:      handoff.Request.Priority,
		Notes:         handoff.Request.Notes,
		AgentType:     handoff.Request.AgentType,
		LeadScore:     handoff.Score,
		Qualification: handoff.Qualification,
		Transcripts:   handoff.RecentTranscripts,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal handoff payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/handoffs", c.baseURL)
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
		return apperr.Wrap(apperr.KindUnavailable, "transfer desk request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		msg := fmt.Sprintf("transfer desk returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode < http.StatusInternalServerError {
			return apperr.New(apperr.KindValidation, msg)
		}
		return apperr.New(apperr.KindUnavailable, msg)
	}

	c.log.Info("caller handed to human agent",
		"call_id", handoff.Call.CallID.String(), "reason", handoff.Request.Reason)
	return nil
}

var _ activity.TransferDesk = (*Client)(nil)
