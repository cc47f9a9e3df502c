package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/config"
	"voicedesk_backend/platform/logger"
	"voicedesk_backend/platform/phone"
)

// SMSClient sends text messages through the configured SMS gateway.
type SMSClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

// NewSMSClient creates an SMS client, or nil when no gateway is configured.
func NewSMSClient(cfg config.SMSConfig, log *logger.Logger) *SMSClient {
	if cfg.GetSMSGatewayURL() == "" {
		return nil
	}

	return &SMSClient{
		baseURL: strings.TrimRight(cfg.GetSMSGatewayURL(), "/"),
		apiKey:  cfg.GetSMSGatewayKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (c *SMSClient) Send(ctx context.Context, to, message string) error {
	if c == nil {
		return apperr.New(apperr.KindValidation, "sms gateway not configured")
	}

	payload := smsRequest{
		To:      phone.NormalizeE164(to),
		Message: message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	url := fmt.Sprintf("%s/messages", c.baseURL)
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
		return apperr.Wrap(apperr.KindUnavailable, "sms request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		msg := fmt.Sprintf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode < http.StatusInternalServerError {
			return apperr.New(apperr.KindValidation, msg)
		}
		return apperr.New(apperr.KindUnavailable, msg)
	}

	c.log.Info("sms sent", "to", payload.To)
	return nil
}
