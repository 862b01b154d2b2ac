// Package services defines the business logic for event ingestion and
// location digests. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"strings"

	"github.com/tbourn/go-location-digest/internal/domain"
)

var (
	// ErrInvalidEvent is matched (errors.Is) by every *ValidationError.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrEmptyBatch is returned when a batch ingestion carries no events.
	ErrEmptyBatch = errors.New("batch is empty")

	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize.
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrRunInProgress is returned when an aggregation run is already active
	// in this process.
	ErrRunInProgress = errors.New("digest run already in progress")

	// ErrDigestNotFound indicates that the requested digest does not exist.
	ErrDigestNotFound = errors.New("digest not found")
)

// ValidationError carries the per-field problems of a rejected event.
type ValidationError struct {
	Fields []domain.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "invalid event: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrInvalidEvent) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidEvent }
