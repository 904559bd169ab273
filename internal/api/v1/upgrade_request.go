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

type UpgradeRequestHandler struct {
	service service.UpgradeRequestService
	log     *logger.Logger
}

func NewUpgradeRequestHandler(service service.UpgradeRequestService, log *logger.Logger) *UpgradeRequestHandler {
	return &UpgradeRequestHandler{service: service, log: log}
}

// @Summary Create a tier change request
// @Description Upgrades enter the payment workflow; downgrades are scheduled
// @Description at the period boundary and returned already approved.
// @Tags UpgradeRequests
// @Accept json
// @Produce json
// @Param request body dto.CreateUpgradeRequestRequest true "Tier change"
// @Success 201 {object} dto.UpgradeRequestResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /upgrade-requests [post]
func (h *UpgradeRequestHandler) CreateUpgradeRequest(c *gin.Context) {
	var req dto.CreateUpgradeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateUpgradeRequest(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// @Summary Get an upgrade request
// @Tags UpgradeRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} dto.UpgradeRequestResponse
// @Router /upgrade-requests/{id} [get]
func (h *UpgradeRequestHandler) GetUpgradeRequest(c *gin.Context) {
	resp, err := h.service.GetUpgradeRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary List a tenant's upgrade requests
// @Tags UpgradeRequests
// @Produce json
// @Param tenant_id query string true "Tenant ID"
// @Success 200 {object} dto.ListUpgradeRequestsResponse
// @Router /upgrade-requests [get]
func (h *UpgradeRequestHandler) ListUpgradeRequests(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.Error(ierr.NewError("tenant_id is required").
			WithHint("Provide the tenant_id query parameter").
			Mark(ierr.ErrValidation))
		return
	}

	var filter types.QueryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListUpgradeRequests(c.Request.Context(), tenantID, &filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Upload payment proof for a pending request
// @Tags UpgradeRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param proof body dto.UploadPaymentProofRequest true "Uploaded file reference"
// @Success 200 {object} dto.UpgradeRequestResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /upgrade-requests/{id}/payment-proof [post]
func (h *UpgradeRequestHandler) UploadPaymentProof(c *gin.Context) {
	var req dto.UploadPaymentProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.UploadPaymentProof(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Mark a request as under review
// @Tags UpgradeRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} dto.UpgradeRequestResponse
// @Router /upgrade-requests/{id}/start-review [post]
func (h *UpgradeRequestHandler) StartReview(c *gin.Context) {
	resp, err := h.service.StartReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Approve or reject a request
// @Tags UpgradeRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param review body dto.ReviewUpgradeRequestRequest true "Review decision"
// @Success 200 {object} dto.UpgradeRequestResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /upgrade-requests/{id}/review [post]
func (h *UpgradeRequestHandler) ReviewRequest(c *gin.Context) {
	var req dto.ReviewUpgradeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ReviewRequest(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel an in-flight request
// @Tags UpgradeRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} dto.UpgradeRequestResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /upgrade-requests/{id}/cancel [post]
func (h *UpgradeRequestHandler) CancelRequest(c *gin.Context) {
	resp, err := h.service.CancelRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
