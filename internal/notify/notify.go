// Package notify delivers digest notification payloads to an outbound
// channel. A Sender is selected at startup (log, webhook or kafka) and used
// by the digest service after a digest has been committed.
package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-location-digest/internal/domain"
)

// ErrPermanent wraps delivery failures that will not succeed on retry
// (e.g. a 4xx from the webhook). Senders return it via errors.Join.
var ErrPermanent = errors.New("permanent delivery failure")

// Sender dispatches one notification. digestID is used as the message key
// and for log correlation.
type Sender interface {
	Send(ctx context.Context, digestID string, p domain.NotificationPayload) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, digestID string, p domain.NotificationPayload) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, digestID string, p domain.NotificationPayload) error {
	return f(ctx, digestID, p)
}

// LogSender writes the payload to the structured log. It is the default
// channel for local runs.
type LogSender struct{}

// Send logs the payload at info level.
func (LogSender) Send(_ context.Context, digestID string, p domain.NotificationPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	log.Info().
		Str("digest_id", digestID).
		RawJSON("payload", body).
		Msg("digest notification")
	return nil
}

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }
