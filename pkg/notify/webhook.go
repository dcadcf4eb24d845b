package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	// URL receives a POST with the JSON-encoded event.
	URL string `yaml:"url"`

	// Timeout for webhook requests. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout"`

	// Headers to include in webhook requests (e.g., for authentication).
	Headers map[string]string `yaml:"headers"`
}

// Webhook delivers events over HTTP. This allows users to integrate
// with any alerting system by providing an endpoint that handles the
// event payload.
type Webhook struct {
	config WebhookConfig
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a new webhook notifier.
func NewWebhook(config WebhookConfig, logger *slog.Logger) *Webhook {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// Notify posts the event to the configured endpoint.
func (w *Webhook) Notify(ctx context.Context, event Event) error {
	if w.config.URL == "" {
		w.logger.Debug("no webhook configured, skipping notification")
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	w.logger.Debug("notification delivered",
		slog.String("type", event.Type),
		slog.String("severity", event.Severity),
	)
	return nil
}
