package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/logger"
)

// Webhook POSTs signals as JSON to a configured HTTP endpoint.
type Webhook struct {
	url    string
	client *http.Client
	log    *logger.Logger
}

func NewWebhook(url string, log *logger.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (w *Webhook) ID() string { return "webhook" }

func (w *Webhook) Deliver(ctx context.Context, sig *models.Signal) error {
	body, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	w.log.Debug("webhook delivered",
		logger.String("url", w.url),
		logger.String("signal_id", sig.ID.String()))
	return nil
}
