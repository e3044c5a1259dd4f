// Package notify delivers best-effort, fire-and-forget messages about
// booking outcomes. Delivery failures are logged and swallowed: nothing in
// the sniping path ever blocks on, or fails because of, a notification.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Webhook posts messages to a Discord-compatible webhook URL.
type Webhook struct {
	url string
	hc  *http.Client
	log zerolog.Logger
}

func NewWebhook(url string, log zerolog.Logger) *Webhook {
	return &Webhook{
		url: url,
		hc:  &http.Client{Timeout: 10 * time.Second},
		log: log,
	}
}

func (w *Webhook) Notify(ctx context.Context, msg string) {
	payload, err := json.Marshal(struct {
		Content string `json:"content"`
	}{Content: msg})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		w.log.Warn().Err(err).Msg("webhook request build failed")
		return
	}
	req.Header.Set("content-type", "application/json")

	res, err := w.hc.Do(req)
	if err != nil {
		w.log.Warn().Err(err).Msg("webhook delivery failed")
		return
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		w.log.Warn().Int("status", res.StatusCode).Msg("webhook rejected")
		return
	}
	w.log.Debug().Msg("notification delivered")
}

// Nop discards every message. Used when no webhook is configured and in
// tests.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}
