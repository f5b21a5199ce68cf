package api

import (
	"net/http"

	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/Domenick1991/teleconsult/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByCode = map[string]int{
	"invalid_window":           http.StatusBadRequest,
	"invalid_timezone":         http.StatusBadRequest,
	"invalid_input":            http.StatusBadRequest,
	"booking_not_found":        http.StatusNotFound,
	"block_not_found":          http.StatusNotFound,
	"slot_no_longer_available": http.StatusConflict,
	"reservation_expired":      http.StatusGone,
	"payment_not_confirmed":    http.StatusUnprocessableEntity,
	"max_attempts_reached":     http.StatusUnprocessableEntity,
	"insufficient_attempts":    http.StatusUnprocessableEntity,
	"invalid_transition":       http.StatusUnprocessableEntity,
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps domain errors to their HTTP status. Anything else is a 500
// and is logged with the request logger.
func writeError(c *gin.Context, err error) {
	code := domain.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		logger.FromGin(c).Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: code})
		return
	}
	c.JSON(status, errorResponse{Error: err.Error(), Code: code})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_input"})
}
