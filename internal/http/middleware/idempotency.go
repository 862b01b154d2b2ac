// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file handles the Idempotency-Key header on event ingestion. Clients
// that cannot put an event_id in the body send it as the key; clients that
// retry after a timeout send the same key again. The middleware validates
// the key, stashes it for the handler and asks a lookup whether an event
// with that id is already stored. A stored id marks the request as a
// replay, which the handler answers as a duplicate and the rate limiter
// lets through. A body whose event_id differs from the key is a new event
// whatever the key says, so it is never a replay.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/go-location-digest/internal/domain"
)

// HeaderIdempotencyKey carries the event id of an ingestion request.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: key names a stored event
	ctxKeyRateBypass = "rate.bypass" // bool: skip rate limiting
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the key names an event that is already stored.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures key validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means domain.MaxEventIDLen, since the
	// key may become the event id.
	MaxLen int
	// Pattern restricts allowed characters; nil means token characters plus
	// ".", "_", "~", "-" and ":".
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether an event with id key is already stored.
// Event ids are global, so the lookup is not scoped to a user.
type IdempotencyLookup func(ctx context.Context, key string) (bool, error)

// IdempotencyValidator validates Idempotency-Key when present and rejects a
// malformed key with 400. When the JSON body names the same event as the key
// (or names none) it consults lookup and marks replays. A failing lookup is
// logged and the request proceeds as new; the store still deduplicates on
// insert.
//
// The body is read with ShouldBindBodyWith, so handlers behind it must bind
// the same way.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = domain.MaxEventIDLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup == nil {
			c.Next()
			return
		}

		var body struct {
			EventID string `json:"event_id"`
		}
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
			// Malformed bodies are the handler's to reject.
			c.Next()
			return
		}
		if id := strings.TrimSpace(body.EventID); id != "" && id != key {
			c.Next()
			return
		}

		exists, err := lookup(c.Request.Context(), key)
		switch {
		case err != nil:
			LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		case exists:
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}

		c.Next()
	}
}
