// Package services – IngestService
//
// IngestService validates incoming events and stores them idempotently. A
// retried event (same event_id) is reported as a duplicate, never as an
// error, and the stored row is left as first written.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-location-digest/internal/domain"
	"github.com/tbourn/go-location-digest/internal/repo"
)

// MaxBatchSize bounds POST /events/batch.
const MaxBatchSize = 100

// IngestService owns event validation and persistence.
type IngestService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// IngestResult describes the outcome of one stored event. For a duplicate,
// Event is the row written first, not the resubmitted input.
type IngestResult struct {
	Event     domain.Event
	Duplicate bool
}

// BatchItem is the per-event outcome of IngestBatch. Exactly one of Result
// and Errors is set.
type BatchItem struct {
	Index  int
	Result *IngestResult
	Errors []domain.FieldError
}

func (s *IngestService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Ingest validates in and stores it unless an event with the same id
// already exists. Invalid input yields a *ValidationError.
func (s *IngestService) Ingest(ctx context.Context, in domain.EventInput) (*IngestResult, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "Ingest",
		trace.WithAttributes(
			attribute.String("event.id", in.EventID),
			attribute.String("event.type", in.Type),
		),
	)
	defer span.End()

	ev, errs := domain.ValidateEvent(in, s.now())
	if len(errs) > 0 {
		eventsIngested.WithLabelValues("invalid").Inc()
		return nil, &ValidationError{Fields: errs}
	}
	return s.store(ctx, ev)
}

// IngestBatch validates and stores each event independently. Invalid items
// are reported in place and do not prevent the rest from being stored. A
// storage error aborts the batch.
func (s *IngestService) IngestBatch(ctx context.Context, ins []domain.EventInput) ([]BatchItem, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "IngestBatch",
		trace.WithAttributes(attribute.Int("batch.size", len(ins))),
	)
	defer span.End()

	if len(ins) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(ins) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	now := s.now()
	out := make([]BatchItem, len(ins))
	for i, in := range ins {
		out[i].Index = i
		ev, errs := domain.ValidateEvent(in, now)
		if len(errs) > 0 {
			eventsIngested.WithLabelValues("invalid").Inc()
			out[i].Errors = errs
			continue
		}
		res, err := s.store(ctx, ev)
		if err != nil {
			return nil, err
		}
		out[i].Result = res
	}
	return out, nil
}

func (s *IngestService) store(ctx context.Context, ev domain.Event) (*IngestResult, error) {
	inserted, err := repo.InsertEventIfAbsent(ctx, s.DB, &ev)
	if err != nil {
		return nil, err
	}
	if inserted {
		eventsIngested.WithLabelValues("created").Inc()
		return &IngestResult{Event: ev}, nil
	}

	eventsIngested.WithLabelValues("duplicate").Inc()
	stored, err := repo.GetEvent(ctx, s.DB, ev.EventID)
	if err != nil {
		return nil, fmt.Errorf("load stored event: %w", err)
	}
	return &IngestResult{Event: *stored, Duplicate: true}, nil
}

// Exists reports whether an event id is already stored. It backs the
// Idempotency-Key replay lookup.
func (s *IngestService) Exists(ctx context.Context, eventID string) (bool, error) {
	return repo.EventExists(ctx, s.DB, eventID)
}
