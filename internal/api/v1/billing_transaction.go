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

type BillingTransactionHandler struct {
	service service.BillingTransactionService
	log     *logger.Logger
}

func NewBillingTransactionHandler(service service.BillingTransactionService, log *logger.Logger) *BillingTransactionHandler {
	return &BillingTransactionHandler{service: service, log: log}
}

// @Summary Get a billing transaction
// @Tags BillingTransactions
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} dto.BillingTransactionResponse
// @Router /transactions/{id} [get]
func (h *BillingTransactionHandler) GetTransaction(c *gin.Context) {
	resp, err := h.service.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary List a tenant's billing transactions
// @Tags BillingTransactions
// @Produce json
// @Param tenant_id query string true "Tenant ID"
// @Success 200 {object} dto.ListBillingTransactionsResponse
// @Router /transactions [get]
func (h *BillingTransactionHandler) ListTransactions(c *gin.Context) {
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

	resp, err := h.service.ListTransactions(c.Request.Context(), tenantID, &filter)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Apply a coupon to a pending transaction
// @Tags BillingTransactions
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param coupon body dto.ApplyCouponRequest true "Coupon code"
// @Success 200 {object} dto.BillingTransactionResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /transactions/{id}/coupon [post]
func (h *BillingTransactionHandler) ApplyCoupon(c *gin.Context) {
	var req dto.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ApplyCoupon(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Apply a manual discount to a pending transaction
// @Tags BillingTransactions
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param discount body dto.ApplyDiscountRequest true "Discount and note"
// @Success 200 {object} dto.BillingTransactionResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /transactions/{id}/discount [post]
func (h *BillingTransactionHandler) ApplyManualDiscount(c *gin.Context) {
	var req dto.ApplyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ApplyManualDiscount(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Add bonus days to a transaction
// @Tags BillingTransactions
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param bonus body dto.AddBonusDaysRequest true "Days to add"
// @Success 200 {object} dto.BillingTransactionResponse
// @Router /transactions/{id}/bonus-days [post]
func (h *BillingTransactionHandler) AddBonusDays(c *gin.Context) {
	var req dto.AddBonusDaysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.AddBonusDays(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Annotate a transaction
// @Tags BillingTransactions
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param note body dto.AnnotateTransactionRequest true "Note text"
// @Success 200 {object} dto.BillingTransactionResponse
// @Router /transactions/{id}/notes [post]
func (h *BillingTransactionHandler) AnnotateTransaction(c *gin.Context) {
	var req dto.AnnotateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.AnnotateTransaction(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Approve a transaction
// @Description A transaction linked to a request settles through the request
// @Description workflow; a standalone pending transaction is marked paid.
// @Tags BillingTransactions
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} dto.BillingTransactionResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /transactions/{id}/approve [post]
func (h *BillingTransactionHandler) ApproveTransaction(c *gin.Context) {
	resp, err := h.service.ApproveTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Reject a transaction
// @Tags BillingTransactions
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param rejection body dto.RejectTransactionRequest true "Rejection reason"
// @Success 200 {object} dto.BillingTransactionResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /transactions/{id}/reject [post]
func (h *BillingTransactionHandler) RejectTransaction(c *gin.Context) {
	var req dto.RejectTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.RejectTransaction(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Create a manual transaction
// @Description Credit adjustments, extensions, and refunds. The effect applies
// @Description immediately and the row is recorded as paid.
// @Tags BillingTransactions
// @Accept json
// @Produce json
// @Param transaction body dto.CreateManualTransactionRequest true "Manual transaction"
// @Success 201 {object} dto.BillingTransactionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /transactions [post]
func (h *BillingTransactionHandler) CreateManualTransaction(c *gin.Context) {
	var req dto.CreateManualTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateManualTransaction(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
