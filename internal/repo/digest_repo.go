// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Digest
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-location-digest/internal/domain"
)

// CreateDigest persists d with a fresh UUID and UTC creation time. The
// assigned id is written back into d.
func CreateDigest(ctx context.Context, db *gorm.DB, d *domain.Digest) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Type == "" {
		d.Type = domain.DigestTypeLocation
	}
	d.PeriodStart = d.PeriodStart.UTC()
	d.PeriodEnd = d.PeriodEnd.UTC()
	d.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(d).Error
}

// GetDigest fetches a digest by id, or ErrNotFound.
func GetDigest(ctx context.Context, db *gorm.DB, id string) (*domain.Digest, error) {
	var d domain.Digest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// CountDigests returns the total number of digests.
func CountDigests(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Digest{}).Count(&total).Error
	return total, err
}

// ListDigestsPage returns a page of digests, most recent first.
func ListDigestsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Digest, error) {
	var out []domain.Digest
	err := db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListUnsentDigests returns up to limit digests that are neither delivered
// nor abandoned and have been attempted fewer than maxAttempts times, oldest
// first.
func ListUnsentDigests(ctx context.Context, db *gorm.DB, maxAttempts, limit int) ([]domain.Digest, error) {
	var out []domain.Digest
	q := db.WithContext(ctx).Where("sent_at IS NULL AND failed_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("send_attempts < ?", maxAttempts)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// MarkDigestSent stamps sent_at once. A digest that is already marked is
// left untouched and ErrNotFound is returned.
func MarkDigestSent(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Digest{}).
		Where("id = ? AND sent_at IS NULL", id).
		Updates(map[string]any{
			"sent_at":       at.UTC(),
			"send_attempts": gorm.Expr("send_attempts + 1"),
			"last_error":    "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDigestFailure increments the attempt counter and stores the last
// delivery error of an unsent digest.
func RecordDigestFailure(ctx context.Context, db *gorm.DB, id string, cause string) error {
	res := db.WithContext(ctx).
		Model(&domain.Digest{}).
		Where("id = ? AND sent_at IS NULL", id).
		Updates(map[string]any{
			"send_attempts": gorm.Expr("send_attempts + 1"),
			"last_error":    cause,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AbandonDigest records a delivery failure that must not be retried and
// stamps failed_at, which takes the digest out of ListUnsentDigests.
func AbandonDigest(ctx context.Context, db *gorm.DB, id string, cause string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Digest{}).
		Where("id = ? AND sent_at IS NULL AND failed_at IS NULL", id).
		Updates(map[string]any{
			"send_attempts": gorm.Expr("send_attempts + 1"),
			"last_error":    cause,
			"failed_at":     at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
