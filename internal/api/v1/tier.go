package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stackbill/stackbill/internal/api/dto"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/service"
	"github.com/stackbill/stackbill/internal/types"
)

type TierHandler struct {
	service service.TierService
	log     *logger.Logger
}

func NewTierHandler(service service.TierService, log *logger.Logger) *TierHandler {
	return &TierHandler{service: service, log: log}
}

// @Summary Create a new tier
// @Tags Tiers
// @Accept json
// @Produce json
// @Param tier body dto.CreateTierRequest true "Tier configuration"
// @Success 201 {object} dto.TierResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /tiers [post]
func (h *TierHandler) CreateTier(c *gin.Context) {
	var req dto.CreateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateTier(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a tier by ID
// @Tags Tiers
// @Produce json
// @Param id path string true "Tier ID"
// @Success 200 {object} dto.TierResponse
// @Router /tiers/{id} [get]
func (h *TierHandler) GetTier(c *gin.Context) {
	resp, err := h.service.GetTier(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Get a tier by code
// @Tags Tiers
// @Produce json
// @Param code path string true "Tier code"
// @Success 200 {object} dto.TierResponse
// @Router /tiers/code/{code} [get]
func (h *TierHandler) GetTierByCode(c *gin.Context) {
	resp, err := h.service.GetTierByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary List published tiers
// @Tags Tiers
// @Produce json
// @Success 200 {object} dto.ListTiersResponse
// @Router /tiers [get]
func (h *TierHandler) ListTiers(c *gin.Context) {
	var filter types.QueryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListTiers(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Update a tier
// @Tags Tiers
// @Accept json
// @Produce json
// @Param id path string true "Tier ID"
// @Param tier body dto.UpdateTierRequest true "Fields to update"
// @Success 200 {object} dto.TierResponse
// @Router /tiers/{id} [put]
func (h *TierHandler) UpdateTier(c *gin.Context) {
	var req dto.UpdateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.UpdateTier(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Delete a tier
// @Tags Tiers
// @Param id path string true "Tier ID"
// @Success 204
// @Router /tiers/{id} [delete]
func (h *TierHandler) DeleteTier(c *gin.Context) {
	if err := h.service.DeleteTier(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
