// Digest HTTP handlers.
//
// This file exposes REST endpoints for digests:
//   - GET  /digests       (list, paginated, ETag support)
//   - GET  /digests/{id}  (fetch one)
//   - POST /digests/run   (run one aggregation now)
//   - GET  /health        (liveness plus storage ping)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-location-digest/internal/domain"
)

//
// DTOs
//

// ListDigestsResponse wraps a page of digests and pagination information.
type ListDigestsResponse struct {
	Digests    []domain.Digest `json:"digests"`
	Pagination Pagination      `json:"pagination"`
}

// RunDigestResponse reports the digest created by a manual run.
type RunDigestResponse struct {
	Digest    *domain.Digest `json:"digest"`
	Events    int            `json:"events"    example:"12"`
	Delivered bool           `json:"delivered" example:"true"`
	Retried   int            `json:"retried"   example:"0"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

//
// Handlers
//

// ListDigests godoc
// @ID          listDigests
// @Summary     List digests (paginated)
// @Description Returns digests newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Digests
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"digests:3:1735779600:2\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListDigestsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /digests [get]
func (h *Handlers) ListDigests(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort). Sent count is part of the tag so a
	// delivery changes it.
	if count, maxTS, sent, err := h.digestSvc.Stats(ctx); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"digests:%d:%d:%d"`, count, ts, sent)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.digestSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListDigestsResponse{
		Digests:    items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetDigest godoc
// @ID          getDigest
// @Summary     Get a digest
// @Tags        Digests
// @Produce     json
//
// @Param       id  path  string  true  "Digest ID"  format(uuid)
//
// @Success     200  {object}  domain.Digest
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /digests/{id} [get]
func (h *Handlers) GetDigest(c *gin.Context) {
	d, err := h.digestSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, d)
}

// RunDigest godoc
// @ID          runDigest
// @Summary     Run an aggregation now
// @Description Aggregates the pending events into one digest and dispatches it. Returns 204 when nothing was pending.
// @Tags        Digests
// @Produce     json
//
// @Success     201  {object}  handlers.RunDigestResponse
// @Success     204  {string}  string "No pending events"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     409  {object}  handlers.ErrorResponse  "A run is already in progress"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /digests/run [post]
func (h *Handlers) RunDigest(c *gin.Context) {
	res, err := h.digestSvc.Run(c.Request.Context())
	if err != nil {
		failErr(c, err, ErrCodeRunFailed)
		return
	}
	if res.Digest == nil {
		noContent(c)
		return
	}
	ok(c, http.StatusCreated, RunDigestResponse{
		Digest:    res.Digest,
		Events:    res.Events,
		Delivered: res.Delivered,
		Retried:   res.Retried,
	})
}

// Health godoc
// @ID          health
// @Summary     Health check
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "database unavailable")
			return
		}
	}
	ok(c, http.StatusOK, HealthResponse{Status: "ok"})
}
