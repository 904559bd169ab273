package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stackbill/stackbill/internal/api/dto"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/service"
)

type ProrationHandler struct {
	service service.ProrationService
	log     *logger.Logger
}

func NewProrationHandler(service service.ProrationService, log *logger.Logger) *ProrationHandler {
	return &ProrationHandler{service: service, log: log}
}

// @Summary Preview a tier change
// @Description Computes the proration breakdown a tier change would produce,
// @Description without creating anything.
// @Tags Proration
// @Accept json
// @Produce json
// @Param preview body dto.ProrationPreviewRequest true "Tier change to preview"
// @Success 200 {object} dto.ProrationPreviewResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /proration/preview [post]
func (h *ProrationHandler) PreviewTierChange(c *gin.Context) {
	var req dto.ProrationPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.PreviewTierChange(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
