package api

import (
	"net/http"

	"github.com/Domenick1991/teleconsult/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type ReservationHandler struct {
	service booking.BookingUseCase
}

func NewReservationHandler(service booking.BookingUseCase) *ReservationHandler {
	return &ReservationHandler{service: service}
}

// Register takes the middleware that guards slot holds, such as a rate
// limiter, as extra handlers for the POST route.
func (h *ReservationHandler) Register(router *gin.RouterGroup, guards ...gin.HandlerFunc) {
	router.POST("", append(guards, h.create)...)
	router.DELETE("/:id", h.release)
}

func (h *ReservationHandler) create(c *gin.Context) {
	var req booking.ReserveSlotInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.service.ReserveSlot(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (h *ReservationHandler) release(c *gin.Context) {
	if err := h.service.ReleaseReservation(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
