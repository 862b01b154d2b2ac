// Package services – DigestService
//
// DigestService runs the periodic aggregation: it leases a batch of
// unprocessed events, turns them into one digest, commits the digest and the
// processed marks atomically, and dispatches the notification. Delivery
// failures are recorded on the digest and never roll back event processing.
// Transient failures are retried on later runs; a payload the channel
// rejected for good is marked failed and left alone.
//
// Observability: Run is OpenTelemetry-instrumented and exports Prometheus
// counters (see metrics.go).
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-location-digest/internal/digest"
	"github.com/tbourn/go-location-digest/internal/domain"
	"github.com/tbourn/go-location-digest/internal/notify"
	"github.com/tbourn/go-location-digest/internal/repo"
	"github.com/tbourn/go-location-digest/internal/utils"
)

// errLeaseLost reports that some claimed events were processed by another
// run after our lease expired.
var errLeaseLost = errors.New("event lease lost")

// DigestService coordinates aggregation runs and digest reads.
type DigestService struct {
	DB       *gorm.DB
	Notifier notify.Sender

	// Location renders clock times in the digest text; nil means UTC.
	Location *time.Location
	// Kind restricts which event types a run consumes; empty means all.
	Kind string

	BatchSize   int
	Lease       time.Duration
	RetryLimit  int // unsent digests re-dispatched per run
	MaxAttempts int // delivery attempts before a digest is abandoned

	Now func() time.Time

	mu sync.Mutex
}

// RunResult summarizes one aggregation run. Digest is nil when there was
// nothing to aggregate.
type RunResult struct {
	Digest    *domain.Digest
	Events    int
	Delivered bool
	Retried   int
}

func (s *DigestService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *DigestService) batchSize() int {
	if s.BatchSize <= 0 {
		return 500
	}
	return s.BatchSize
}

func (s *DigestService) lease() time.Duration {
	if s.Lease <= 0 {
		return 5 * time.Minute
	}
	return s.Lease
}

// Run performs one aggregation run. Only one run is active per process;
// a concurrent call returns ErrRunInProgress. Across processes the event
// lease keeps runs from consuming the same events.
func (s *DigestService) Run(ctx context.Context) (*RunResult, error) {
	if !s.mu.TryLock() {
		digestRuns.WithLabelValues("busy").Inc()
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()

	tr := otel.Tracer("services/DigestService")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(
			attribute.String("digest.kind", s.Kind),
			attribute.Int("digest.batch_size", s.batchSize()),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() { digestRunDuration.Observe(time.Since(start).Seconds()) }()

	res, err := s.run(ctx)
	switch {
	case err != nil:
		digestRuns.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, err
	case res.Digest == nil:
		digestRuns.WithLabelValues("empty").Inc()
	default:
		digestRuns.WithLabelValues("created").Inc()
		digestEvents.Observe(float64(res.Events))
		span.SetAttributes(attribute.String("digest.id", res.Digest.ID))
	}

	res.Retried = s.retryUnsent(ctx, res)
	return res, nil
}

func (s *DigestService) run(ctx context.Context) (*RunResult, error) {
	token, events, err := repo.ClaimUnprocessed(ctx, s.DB, s.Kind, s.batchSize(), s.lease())
	if err != nil {
		return nil, fmt.Errorf("claim events: %w", err)
	}

	d, ok := digest.Assemble(events, s.Location)
	if !ok {
		return &RunResult{}, nil
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateDigest(ctx, tx, &d); err != nil {
			return err
		}
		n, err := repo.MarkProcessed(ctx, tx, d.Summary.EventIDs, s.now())
		if err != nil {
			return err
		}
		if int(n) != len(d.Summary.EventIDs) {
			return errLeaseLost
		}
		return nil
	})
	if err != nil {
		if rerr := repo.ReleaseClaim(context.WithoutCancel(ctx), s.DB, token); rerr != nil {
			log.Error().Err(rerr).Str("claim", token).Msg("release claim failed")
		}
		return nil, fmt.Errorf("commit digest: %w", err)
	}

	log.Info().
		Str("digest_id", d.ID).
		Int("events", len(events)).
		Int("segments", len(d.Summary.Segments)).
		Msg("digest created")

	delivered := s.deliver(ctx, &d)
	return &RunResult{Digest: &d, Events: len(events), Delivered: delivered}, nil
}

// deliver dispatches d and records the outcome. It reports whether the
// notification was accepted by the channel.
func (s *DigestService) deliver(ctx context.Context, d *domain.Digest) bool {
	if s.Notifier == nil {
		return false
	}
	payload, err := digest.BuildNotificationPayload(*d, d.ID)
	if err != nil {
		log.Error().Err(err).Msg("build notification payload")
		return false
	}

	if err := s.Notifier.Send(ctx, d.ID, payload); err != nil {
		d.SendAttempts++
		d.LastError = err.Error()
		if notify.IsPermanent(err) {
			notifications.WithLabelValues("abandoned").Inc()
			log.Error().Err(err).Str("digest_id", d.ID).Msg("digest notification rejected, not retrying")
			at := s.now()
			if rerr := repo.AbandonDigest(context.WithoutCancel(ctx), s.DB, d.ID, err.Error(), at); rerr != nil {
				log.Error().Err(rerr).Str("digest_id", d.ID).Msg("record abandoned delivery")
			}
			d.FailedAt = &at
			return false
		}
		notifications.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("digest_id", d.ID).Msg("digest notification failed")
		if rerr := repo.RecordDigestFailure(context.WithoutCancel(ctx), s.DB, d.ID, err.Error()); rerr != nil {
			log.Error().Err(rerr).Str("digest_id", d.ID).Msg("record delivery failure")
		}
		return false
	}

	notifications.WithLabelValues("sent").Inc()
	at := s.now()
	if err := repo.MarkDigestSent(context.WithoutCancel(ctx), s.DB, d.ID, at); err != nil && !repo.IsNotFound(err) {
		log.Error().Err(err).Str("digest_id", d.ID).Msg("mark digest sent")
	}
	d.SentAt = &at
	d.SendAttempts++
	d.LastError = ""
	return true
}

// retryUnsent re-dispatches older undelivered digests, skipping the one
// created by this run.
func (s *DigestService) retryUnsent(ctx context.Context, res *RunResult) int {
	if s.RetryLimit <= 0 || s.Notifier == nil {
		return 0
	}
	pending, err := repo.ListUnsentDigests(ctx, s.DB, s.MaxAttempts, s.RetryLimit+1)
	if err != nil {
		log.Error().Err(err).Msg("list unsent digests")
		return 0
	}

	retried := 0
	for i := range pending {
		if retried == s.RetryLimit {
			break
		}
		if res.Digest != nil && pending[i].ID == res.Digest.ID {
			continue
		}
		s.deliver(ctx, &pending[i])
		retried++
	}
	return retried
}

// Get returns a digest by id.
func (s *DigestService) Get(ctx context.Context, id string) (*domain.Digest, error) {
	tr := otel.Tracer("services/DigestService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("digest.id", id)))
	defer span.End()

	d, err := repo.GetDigest(ctx, s.DB, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrDigestNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListPage returns digests newest first with the total count.
func (s *DigestService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Digest, int64, error) {
	tr := otel.Tracer("services/DigestService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	total, err := repo.CountDigests(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Digest{}, 0, nil
	}
	items, err := repo.ListDigestsPage(ctx, s.DB, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// Stats returns the inputs of the digest list ETag.
func (s *DigestService) Stats(ctx context.Context) (count int64, maxCreatedAt *time.Time, sent int64, err error) {
	return repo.DigestsStats(ctx, s.DB)
}
