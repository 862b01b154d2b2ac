// Package scheduler triggers digest runs on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-location-digest/internal/services"
)

// Runner is the aggregation entry point driven by the scheduler.
type Runner interface {
	Run(ctx context.Context) (*services.RunResult, error)
}

// Scheduler calls Runner.Run once at start and then on every tick.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	done     chan struct{}
}

// New constructs a Scheduler. A non-positive interval defaults to one hour.
func New(r Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{runner: r, interval: interval, done: make(chan struct{})}
}

// Start launches the loop. It should be called in a goroutine and returns
// when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (s *Scheduler) Wait() {
	<-s.done
}

func (s *Scheduler) tick(ctx context.Context) {
	res, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, services.ErrRunInProgress):
		log.Debug().Msg("digest run skipped: already running")
	case errors.Is(err, context.Canceled):
	case err != nil:
		// Claimed events are released; the next tick retries.
		log.Error().Err(err).Msg("digest run failed")
	case res.Digest == nil:
		log.Debug().Int("retried", res.Retried).Msg("digest run: no new events")
	default:
		log.Info().
			Str("digest_id", res.Digest.ID).
			Int("events", res.Events).
			Bool("delivered", res.Delivered).
			Int("retried", res.Retried).
			Msg("digest run completed")
	}
}
