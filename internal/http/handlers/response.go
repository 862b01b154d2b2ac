package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-location-digest/internal/domain"
	"github.com/tbourn/go-location-digest/internal/http/middleware"
)

// ErrorResponse is the error body of every endpoint.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable machine-readable code
	Code string `json:"code" example:"not_found"`
	// Human-readable message
	Message string `json:"message" example:"digest not found"`
	// Per-field problems of a rejected event
	Details []domain.FieldError `json:"details,omitempty"`
}

func envelope(c *gin.Context, code, msg string) ErrorResponse {
	return ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
}

// fail aborts with the error envelope. 5xx answers are also logged.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, envelope(c, code, msg))
}

// Fail lets the router answer unmatched routes in the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func failValidation(c *gin.Context, details []domain.FieldError) {
	resp := envelope(c, ErrCodeBadRequest, "invalid event")
	resp.Details = details
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
