// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-location-digest/internal/domain"
)

// DigestsStats returns the total number of digests, the greatest CreatedAt
// and the number of delivered digests. Delivery changes the ETag as well,
// since sent_at is part of the listed resource.
//
// When there are no digests, count is 0 and maxCreatedAt is nil.
func DigestsStats(ctx context.Context, db *gorm.DB) (count int64, maxCreatedAt *time.Time, sent int64, err error) {
	q := db.WithContext(ctx).Model(&domain.Digest{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, 0, err
	}
	if count == 0 {
		return 0, nil, 0, nil
	}

	if err = db.WithContext(ctx).Model(&domain.Digest{}).Where("sent_at IS NOT NULL").Count(&sent).Error; err != nil {
		return 0, nil, 0, err
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Digest{}).
		Select("created_at").Order("created_at DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, 0, err
	}
	return count, &row.CreatedAt, sent, nil
}
