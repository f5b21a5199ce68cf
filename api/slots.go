package api

import (
	"net/http"

	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/Domenick1991/teleconsult/internal/service/availability"
	"github.com/gin-gonic/gin"
)

type SlotHandler struct {
	service availability.AvailabilityUseCase
}

type slotsResponse struct {
	Date  domain.Date       `json:"date"`
	Slots []domain.TimeSlot `json:"slots"`
}

func NewSlotHandler(service availability.AvailabilityUseCase) *SlotHandler {
	return &SlotHandler{service: service}
}

func (h *SlotHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
}

func (h *SlotHandler) list(c *gin.Context) {
	date, err := domain.ParseDate(c.Query("date"))
	if err != nil {
		badRequest(c, err)
		return
	}

	slots, err := h.service.ListAvailableSlots(c.Request.Context(), date)
	if err != nil {
		writeError(c, err)
		return
	}
	if slots == nil {
		slots = []domain.TimeSlot{}
	}

	c.JSON(http.StatusOK, slotsResponse{Date: date, Slots: slots})
}
