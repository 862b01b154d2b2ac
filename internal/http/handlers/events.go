// Event ingestion HTTP handlers.
//
// This file exposes REST endpoints for incoming events:
//   - POST /events        (store one event, idempotent on event_id)
//   - POST /events/batch  (store up to 100 events, per-item results)
//
// Idempotency:
// The event_id is the idempotency key. When the body omits it, the
// Idempotency-Key header is used instead. A retried event is answered with
// 200 and "duplicate": true; when the middleware already saw the key, the
// response also carries `Idempotency-Replayed: true`.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/go-location-digest/internal/domain"
	"github.com/tbourn/go-location-digest/internal/http/middleware"
)

//
// DTOs
//

// EventResponse acknowledges a stored (or already stored) event.
type EventResponse struct {
	EventID   string    `json:"event_id"  example:"loc-123"`
	Type      string    `json:"type"      example:"location"`
	TS        time.Time `json:"ts"`
	Duplicate bool      `json:"duplicate" example:"false"`
}

// BatchRequest is the JSON payload of POST /events/batch.
type BatchRequest struct {
	Events []domain.EventInput `json:"events"`
}

// BatchItemResponse is the outcome of one event in a batch.
type BatchItemResponse struct {
	Index   int                 `json:"index"`
	EventID string              `json:"event_id,omitempty"`
	Status  string              `json:"status" example:"created"` // created|duplicate|invalid
	Errors  []domain.FieldError `json:"errors,omitempty"`
}

// BatchResponse lists per-item outcomes and their counts.
type BatchResponse struct {
	Results    []BatchItemResponse `json:"results"`
	Created    int                 `json:"created"`
	Duplicates int                 `json:"duplicates"`
	Invalid    int                 `json:"invalid"`
}

//
// Handlers
//

// IngestEvent godoc
// @ID          ingestEvent
// @Summary     Ingest one event
// @Description Validates and stores an event. A retried event_id is not an error: it returns 200 with duplicate=true and the stored row is unchanged.
// @Tags        Events
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Used as event_id when the body omits it"  example(loc-123)
// @Param       body             body    domain.EventInput  true  "Event"
//
// @Success     201  {object}  handlers.EventResponse
// @Success     200  {object}  handlers.EventResponse "Duplicate event"
// @Header      200  {string}  Idempotency-Replayed "true when served as a replay"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid event"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many requests"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /events [post]
func (h *Handlers) IngestEvent(c *gin.Context) {
	var in domain.EventInput
	// The idempotency middleware may already have read the body.
	if err := c.ShouldBindBodyWith(&in, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(in.EventID) == "" {
		if key, ok := middleware.GetIdempotencyKey(c); ok {
			in.EventID = key
		}
	}

	res, err := h.ingestSvc.Ingest(c.Request.Context(), in)
	if err != nil {
		failErr(c, err, ErrCodeIngestFailed)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
		if middleware.IsReplay(c) {
			c.Header("Idempotency-Replayed", "true")
		}
	}
	ok(c, status, EventResponse{
		EventID:   res.Event.EventID,
		Type:      res.Event.Type,
		TS:        res.Event.TS,
		Duplicate: res.Duplicate,
	})
}

// IngestBatch godoc
// @ID          ingestBatch
// @Summary     Ingest a batch of events
// @Description Validates and stores up to 100 events independently. Invalid items are reported in place and do not block the rest.
// @Tags        Events
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.BatchRequest  true  "Events"
//
// @Success     200  {object}  handlers.BatchResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or oversized batch"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /events/batch [post]
func (h *Handlers) IngestBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	items, err := h.ingestSvc.IngestBatch(c.Request.Context(), req.Events)
	if err != nil {
		failErr(c, err, ErrCodeIngestFailed)
		return
	}

	resp := BatchResponse{Results: make([]BatchItemResponse, 0, len(items))}
	for _, it := range items {
		out := BatchItemResponse{Index: it.Index}
		switch {
		case it.Result == nil:
			out.Status = "invalid"
			out.Errors = it.Errors
			if it.Index < len(req.Events) {
				out.EventID = req.Events[it.Index].EventID
			}
			resp.Invalid++
		case it.Result.Duplicate:
			out.Status = "duplicate"
			out.EventID = it.Result.Event.EventID
			resp.Duplicates++
		default:
			out.Status = "created"
			out.EventID = it.Result.Event.EventID
			resp.Created++
		}
		resp.Results = append(resp.Results, out)
	}
	ok(c, http.StatusOK, resp)
}
