package handlers

import (
	"errors"
	"net/http"

	"equity-backtest/internal/api/models"
	"equity-backtest/internal/broker"
	"equity-backtest/internal/clock"
	"equity-backtest/internal/data"
	"equity-backtest/internal/exchange"
	"equity-backtest/internal/model"
	"equity-backtest/internal/storage"

	"github.com/gin-gonic/gin"
)

// errorStatus maps domain errors to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, clock.ErrEndOfSequence):
		return http.StatusConflict, "END_OF_SEQUENCE"
	case errors.Is(err, model.ErrMalformedOrder):
		return http.StatusBadRequest, "MALFORMED_ORDER"
	case errors.Is(err, broker.ErrInsufficientCash):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_CASH"
	case errors.Is(err, broker.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_HOLDINGS"
	case errors.Is(err, broker.ErrInconsistentState):
		return http.StatusInternalServerError, "INCONSISTENT_STATE"
	case errors.Is(err, exchange.ErrOrderNotFound):
		return http.StatusNotFound, "ORDER_NOT_FOUND"
	case errors.Is(err, data.ErrMissingQuote):
		return http.StatusNotFound, "MISSING_QUOTE"
	case errors.Is(err, storage.ErrRunNotFound):
		return http.StatusNotFound, "RUN_NOT_FOUND"
	case errors.Is(err, errSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, errTooManySessions):
		return http.StatusTooManyRequests, "TOO_MANY_SESSIONS"
	case errors.Is(err, errNoStore):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
	case errors.Is(err, errDataSource):
		return http.StatusBadRequest, "INVALID_DATA_SOURCE"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
