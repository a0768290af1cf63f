// internal/handler/errors.go
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alexconrey/webmux/internal/codec"
	"github.com/alexconrey/webmux/internal/connection"
	"github.com/alexconrey/webmux/internal/registry"
	"github.com/alexconrey/webmux/internal/utils"
)

// statusFor maps bridge errors to HTTP status codes. ErrNotFound wraps
// ErrConnectionUnavailable, so it has to be checked first.
func statusFor(err error) int {
	switch {
	case errors.Is(err, codec.ErrInvalidEncoding):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, connection.ErrConnectionUnavailable),
		errors.Is(err, connection.ErrIOFault):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, message string, err error) {
	utils.ErrorResponse(c, statusFor(err), message, err)
}
