package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-location-digest/internal/http/middleware"
	"github.com/tbourn/go-location-digest/internal/services"
)

// Codes returned in ErrorResponse.Code. Clients branch on these, not on
// messages. The middleware chain answers with its own codes: unauthorized,
// forbidden, too_many_requests and bad_idempotency_key.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "unavailable"

	ErrCodeIngestFailed = "ingest_failed"
	ErrCodeRunFailed    = "run_failed"
	ErrCodeListFailed   = "list_failed"
)

// failErr answers with the status and code a known service error maps to.
// Anything else is a 500 carrying fallback; its text goes to the log only.
func failErr(c *gin.Context, err error, fallback string) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		failValidation(c, ve.Fields)
	case errors.Is(err, services.ErrEmptyBatch), errors.Is(err, services.ErrBatchTooLarge):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrDigestNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "digest not found")
	case errors.Is(err, services.ErrRunInProgress):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		middleware.LoggerFrom(c).Error().Err(err).Str("code", fallback).Msg("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, envelope(c, fallback, "internal error"))
	}
}
