package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/physver/trustchain/internal/errdefs"
)

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, errdefs.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrIntegrity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errdefs.ErrRange):
		return http.StatusRequestedRangeNotSatisfiable
	default:
		return http.StatusInternalServerError
	}
}

// rejectionReason labels an error class for metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, errdefs.ErrValidation):
		return "validation"
	case errors.Is(err, errdefs.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, errdefs.ErrConflict):
		return "conflict"
	case errors.Is(err, errdefs.ErrNotFound):
		return "not_found"
	case errors.Is(err, errdefs.ErrIntegrity):
		return "integrity"
	case errors.Is(err, errdefs.ErrRange):
		return "range"
	default:
		return "internal"
	}
}

// fail writes the error as a JSON response with the mapped status.
// Internal errors are masked; everything else carries its message.
func fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}
