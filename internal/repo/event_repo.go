// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the event store: idempotent insert,
// unprocessed-event selection with a lease, and processed marking.
//
// Error semantics:
//   - A duplicate event_id is never an error: InsertEventIfAbsent reports
//     inserted=false and a nil error.
//   - On DB errors (connectivity, constraints, etc.), the raw gorm error is
//     propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-location-digest/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// InsertEventIfAbsent inserts ev unless a row with the same event_id already
// exists. The conflict is resolved by the database (ON CONFLICT DO NOTHING),
// so concurrent retries of the same event leave exactly one row and every
// caller observes success.
func InsertEventIfAbsent(ctx context.Context, db *gorm.DB, ev *domain.Event) (inserted bool, err error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	ev.TS = ev.TS.UTC()
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// EventExists reports whether an event with the given id has been stored.
func EventExists(ctx context.Context, db *gorm.DB, eventID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("event_id = ?", eventID).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

// GetEvent fetches a single event by id, or ErrNotFound.
func GetEvent(ctx context.Context, db *gorm.DB, eventID string) (*domain.Event, error) {
	var ev domain.Event
	if err := db.WithContext(ctx).Where("event_id = ?", eventID).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListUnprocessed returns up to limit events with a nil processed_at,
// ordered by (ts, created_at, event_id). An empty kind selects every type.
// It does not take a lease; use ClaimUnprocessed for aggregation runs.
func ListUnprocessed(ctx context.Context, db *gorm.DB, kind string, limit int) ([]domain.Event, error) {
	var out []domain.Event
	q := db.WithContext(ctx).Where("processed_at IS NULL")
	if kind != "" {
		q = q.Where("type = ?", kind)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Order("ts ASC, created_at ASC, event_id ASC").Find(&out).Error
	return out, err
}

// ClaimUnprocessed leases up to limit unprocessed events for one aggregation
// run and returns the lease token with the claimed rows.
//
// The claim is a single UPDATE over a sub-select, so two concurrent runs can
// never both hold the same event. Rows whose lease is older than lease are
// considered abandoned and may be claimed again. An empty result returns an
// empty token.
func ClaimUnprocessed(ctx context.Context, db *gorm.DB, kind string, limit int, lease time.Duration) (string, []domain.Event, error) {
	if limit <= 0 {
		limit = 500
	}
	now := time.Now().UTC()
	token := uuid.NewString()

	sub := db.Model(&domain.Event{}).
		Select("event_id").
		Where("processed_at IS NULL").
		Where("(claim_token IS NULL OR claimed_at < ?)", now.Add(-lease))
	if kind != "" {
		sub = sub.Where("type = ?", kind)
	}
	sub = sub.Order("ts ASC, created_at ASC, event_id ASC").Limit(limit)

	res := db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("event_id IN (?)", sub).
		Where("processed_at IS NULL").
		Updates(map[string]any{"claim_token": token, "claimed_at": now})
	if res.Error != nil {
		return "", nil, res.Error
	}
	if res.RowsAffected == 0 {
		return "", nil, nil
	}

	var out []domain.Event
	if err := db.WithContext(ctx).
		Where("claim_token = ? AND processed_at IS NULL", token).
		Order("ts ASC, created_at ASC, event_id ASC").
		Find(&out).Error; err != nil {
		return "", nil, err
	}
	return token, out, nil
}

// ReleaseClaim drops the lease identified by token from events that were not
// processed, making them eligible for the next run.
func ReleaseClaim(ctx context.Context, db *gorm.DB, token string) error {
	if token == "" {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("claim_token = ? AND processed_at IS NULL", token).
		Updates(map[string]any{"claim_token": nil, "claimed_at": nil}).Error
}

// MarkProcessed stamps processed_at on the given events. Events that are
// already processed are left untouched, so an event is marked at most once.
// It returns the number of rows stamped.
func MarkProcessed(ctx context.Context, db *gorm.DB, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("event_id IN ? AND processed_at IS NULL", ids).
		Updates(map[string]any{"processed_at": at.UTC(), "claim_token": nil, "claimed_at": nil})
	return res.RowsAffected, res.Error
}

// CountUnprocessed returns the number of events still waiting for a run.
func CountUnprocessed(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Event{}).Where("processed_at IS NULL").Count(&n).Error
	return n, err
}

// IsNotFound reports whether err is the repository's not-found sentinel.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
