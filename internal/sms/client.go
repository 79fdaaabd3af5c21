// Package sms is a thin client for an HTTP SMS gateway. A nil *Client is
// valid and drops messages, so callers can wire it unconditionally.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"estatedesk_backend/platform/config"
	"estatedesk_backend/platform/logger"
	"estatedesk_backend/platform/phone"
)

type Client struct {
	baseURL  string
	apiKey   string
	senderID string
	http     *http.Client
	log      *logger.Logger
}

type gatewayRequest struct {
	To       string `json:"to"`
	SenderID string `json:"senderId,omitempty"`
	Message  string `json:"message"`
}

func NewClient(cfg config.SMSConfig, log *logger.Logger) *Client {
	if !cfg.IsSMSEnabled() {
		return nil
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.GetSMSGatewayURL(), "/"),
		apiKey:   cfg.GetSMSAPIKey(),
		senderID: cfg.GetSMSSenderID(),
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

func (c *Client) SendMessage(ctx context.Context, phoneNumber string, message string) error {
	if c == nil {
		return nil
	}

	normalized := phone.NormalizeE164(phoneNumber)

	payload := gatewayRequest{
		To:       normalized,
		SenderID: c.senderID,
		Message:  message,
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
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("sms sent", "phone", normalized)
	return nil
}
