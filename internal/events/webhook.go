package events

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

// WebhookSink posts progress events as JSON to a configured endpoint, the
// push-notification channel the catalog UI subscribes to. Delivery is
// best-effort: a failed POST is logged and reported, never retried here,
// because the next item's event supersedes this one anyway.
type WebhookSink struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookSink creates a WebhookSink posting to url.
func NewWebhookSink(url string, timeout time.Duration, logger *slog.Logger) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With("component", "webhook_sink", "webhook_url", url),
	}
}

// HandleProgress implements the Sink interface.
func (s *WebhookSink) HandleProgress(ctx context.Context, event ProgressEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer func() {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug("progress event delivered",
		"job_id", event.JobID,
		"processed", event.Processed,
		"total", event.Total)
	return nil
}

var _ Sink = (*WebhookSink)(nil)
