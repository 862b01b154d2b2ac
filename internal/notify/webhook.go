package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-location-digest/internal/domain"
)

// WebhookSender POSTs the notification payload as JSON to URL.
//
// Network errors, 429 and 5xx responses are retried up to MaxAttempts with
// linear backoff. Other 4xx responses are reported as ErrPermanent.
type WebhookSender struct {
	URL         string
	Token       string // optional bearer token
	Client      *http.Client
	MaxAttempts int
	Backoff     time.Duration
}

// NewWebhookSender builds a sender with a bounded client timeout.
func NewWebhookSender(url, token string, timeout time.Duration, maxAttempts int) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &WebhookSender{
		URL:         url,
		Token:       token,
		Client:      &http.Client{Timeout: timeout},
		MaxAttempts: maxAttempts,
		Backoff:     500 * time.Millisecond,
	}
}

// Send delivers p, retrying transient failures.
func (w *WebhookSender) Send(ctx context.Context, digestID string, p domain.NotificationPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return errors.Join(ErrPermanent, err)
	}

	attempts := w.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		lastErr = w.post(ctx, digestID, body)
		if lastErr == nil || IsPermanent(lastErr) {
			return lastErr
		}
		log.Warn().Err(lastErr).
			Str("digest_id", digestID).
			Int("attempt", i).
			Msg("webhook delivery failed")

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i) * w.Backoff):
		}
	}
	return lastErr
}

func (w *WebhookSender) post(ctx context.Context, digestID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Join(ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Digest-Id", digestID)
	if w.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.Token)
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	default:
		return errors.Join(ErrPermanent, fmt.Errorf("webhook: status %d", resp.StatusCode))
	}
}
