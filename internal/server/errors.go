package server

import (
	"errors"
	"net/http"

	credentialdomain "github.com/finanze/finanze/internal/credential/domain"
	exchangedomain "github.com/finanze/finanze/internal/exchange/domain"
	fetchdomain "github.com/finanze/finanze/internal/fetch/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, fetchdomain.ErrUnknownFeature),
		errors.Is(err, fetchdomain.ErrMissingFields),
		errors.Is(err, exchangedomain.ErrUnknownCommodity),
		errors.Is(err, exchangedomain.ErrUnknownWeightUnit):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, fetchdomain.ErrUnknownEntity),
		errors.Is(err, credentialdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, exchangedomain.ErrRatesUnavailable),
		errors.Is(err, exchangedomain.ErrCommodityUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "upstream rates unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
