package api

import (
	"net/http"

	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/Domenick1991/teleconsult/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	ReservationID string `json:"reservation_id" binding:"required"`
}

type confirmPaymentRequest struct {
	Amount int64 `json:"amount"`
}

type callAttemptRequest struct {
	Answered bool   `json:"answered"`
	Notes    string `json:"notes"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
	router.POST("/:id/payment", h.confirmPayment)
	router.POST("/:id/call-attempts", h.logCallAttempt)
	router.POST("/:id/no-answer", h.markNoAnswer)
	router.POST("/:id/complete", h.complete)
	router.DELETE("/:id", h.cancel)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), req.ReservationID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, b)
}

func (h *BookingHandler) get(c *gin.Context) {
	h.respond(c)(h.service.GetBooking(c.Request.Context(), c.Param("id")))
}

func (h *BookingHandler) confirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c)(h.service.ConfirmPayment(c.Request.Context(), c.Param("id"), req.Amount))
}

func (h *BookingHandler) logCallAttempt(c *gin.Context) {
	var req callAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c)(h.service.LogCallAttempt(c.Request.Context(), c.Param("id"), req.Answered, req.Notes))
}

func (h *BookingHandler) markNoAnswer(c *gin.Context) {
	h.respond(c)(h.service.MarkNoAnswer(c.Request.Context(), c.Param("id")))
}

func (h *BookingHandler) complete(c *gin.Context) {
	h.respond(c)(h.service.CompleteBooking(c.Request.Context(), c.Param("id")))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	h.respond(c)(h.service.CancelBooking(c.Request.Context(), c.Param("id")))
}

func (h *BookingHandler) respond(c *gin.Context) func(*domain.Booking, error) {
	return func(b *domain.Booking, err error) {
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}
