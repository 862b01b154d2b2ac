// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they bind and validate input, call application
// services, and translate results into HTTP responses (including conditional
// responses and idempotent replays).
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-location-digest/internal/domain"
	"github.com/tbourn/go-location-digest/internal/services"
	"github.com/tbourn/go-location-digest/internal/utils"
)

//
// Service contracts (context-aware)
//

// IngestService stores events idempotently.
type IngestService interface {
	Ingest(ctx context.Context, in domain.EventInput) (*services.IngestResult, error)
	IngestBatch(ctx context.Context, ins []domain.EventInput) ([]services.BatchItem, error)
}

// DigestService runs aggregation and serves stored digests.
type DigestService interface {
	Run(ctx context.Context) (*services.RunResult, error)
	Get(ctx context.Context, id string) (*domain.Digest, error)
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Digest, int64, error)
	Stats(ctx context.Context) (count int64, maxCreatedAt *time.Time, sent int64, err error)
}

// Pinger checks a dependency for /health.
type Pinger func(ctx context.Context) error

//
// Handler wiring
//

// Handlers groups HTTP endpoints for events and digests.
type Handlers struct {
	ingestSvc IngestService
	digestSvc DigestService
	ping      Pinger
}

// New constructs and returns a Handlers instance bound to the given services.
// ping may be nil.
func New(ingestSvc IngestService, digestSvc DigestService, ping Pinger) *Handlers {
	return &Handlers{ingestSvc: ingestSvc, digestSvc: digestSvc, ping: ping}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), 20),
		100,
	)
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}
