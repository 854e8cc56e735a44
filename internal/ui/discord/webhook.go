package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"molt-highlights/internal/core/ports"
)

// Webhook posts alerts to a Discord channel webhook.
type Webhook struct {
	URL        string
	HTTPClient *http.Client
	log        zerolog.Logger
}

func NewWebhook(url string, log zerolog.Logger) *Webhook {
	return &Webhook{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("alerter", "discord").Logger(),
	}
}

var _ ports.Alerter = (*Webhook)(nil)

type payload struct {
	Content string `json:"content"`
}

// Notify posts message. Failures are logged and dropped.
func (w *Webhook) Notify(ctx context.Context, message string) {
	if err := w.send(ctx, message); err != nil {
		w.log.Warn().Err(err).Msg("discord alert failed")
	}
}

func (w *Webhook) send(ctx context.Context, message string) error {
	body, err := json.Marshal(payload{Content: "🦞 **Moltbook Bot**: " + message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
