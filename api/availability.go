package api

import (
	"net/http"

	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/Domenick1991/teleconsult/internal/service/availability"
	"github.com/gin-gonic/gin"
)

type AvailabilityHandler struct {
	service availability.AvailabilityUseCase
}

type createBlockRequest struct {
	Kind         domain.BlockKind `json:"kind"`
	DayOfWeek    *int             `json:"day_of_week"`
	SpecificDate *domain.Date     `json:"specific_date"`
	Start        domain.TimeOfDay `json:"start_time"`
	End          domain.TimeOfDay `json:"end_time"`
	Timezone     string           `json:"timezone"`
	MaxBookings  int              `json:"max_bookings"`
}

func NewAvailabilityHandler(service availability.AvailabilityUseCase) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// Register mounts the provider routes; router is expected to be /providers.
func (h *AvailabilityHandler) Register(router *gin.RouterGroup) {
	router.POST("/:id/availability", h.create)
	router.GET("/:id/availability", h.list)
	router.DELETE("/:id/availability/:blockId", h.deactivate)
}

func (h *AvailabilityHandler) create(c *gin.Context) {
	var req createBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	block, err := h.service.CreateBlock(c.Request.Context(), availability.CreateBlockInput{
		ProviderID:   c.Param("id"),
		Kind:         req.Kind,
		DayOfWeek:    req.DayOfWeek,
		SpecificDate: req.SpecificDate,
		Start:        req.Start,
		End:          req.End,
		Timezone:     req.Timezone,
		MaxBookings:  req.MaxBookings,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, block)
}

func (h *AvailabilityHandler) list(c *gin.Context) {
	blocks, err := h.service.ListBlocks(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if blocks == nil {
		blocks = []domain.AvailabilityBlock{}
	}
	c.JSON(http.StatusOK, blocks)
}

func (h *AvailabilityHandler) deactivate(c *gin.Context) {
	block, err := h.service.DeactivateBlock(c.Request.Context(), c.Param("id"), c.Param("blockId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, block)
}
