package dto

import (
	"time"

	"github.com/stackbill/stackbill/internal/domain/upgraderequest"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
	"github.com/stackbill/stackbill/internal/validator"
)

type CreateUpgradeRequestRequest struct {
	TenantID        string              `json:"tenant_id" validate:"required"`
	ToTierCode      string              `json:"to_tier_code" validate:"required"`
	BillingPeriod   types.BillingPeriod `json:"billing_period" validate:"required"`
	CouponCode      string              `json:"coupon_code,omitempty"`
	PaymentMethodID *string             `json:"payment_method_id,omitempty"`
}

func (r *CreateUpgradeRequestRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.BillingPeriod.Validate()
}

type UploadPaymentProofRequest struct {
	FileID          string  `json:"file_id" validate:"required"`
	PaymentMethodID *string `json:"payment_method_id,omitempty"`
}

func (r *UploadPaymentProofRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type ReviewUpgradeRequestRequest struct {
	Decision        types.ReviewDecision `json:"decision" validate:"required"`
	Notes           string               `json:"notes,omitempty"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
}

func (r *ReviewUpgradeRequestRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Decision.Validate(); err != nil {
		return err
	}
	if r.Decision == types.ReviewDecisionReject && r.RejectionReason == "" {
		return ierr.NewError("rejection requires a reason").
			WithHint("Provide a rejection_reason when rejecting a request").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// UpgradeRequestResponse exposes the request with its effective status, so
// clients never see a stale pending past expiry.
type UpgradeRequestResponse struct {
	*upgraderequest.UpgradeRequest
	EffectiveStatus types.UpgradeRequestStatus `json:"effective_status"`
}

func NewUpgradeRequestResponse(r *upgraderequest.UpgradeRequest, now time.Time) *UpgradeRequestResponse {
	return &UpgradeRequestResponse{
		UpgradeRequest:  r,
		EffectiveStatus: r.EffectiveStatus(now),
	}
}

type ListUpgradeRequestsResponse struct {
	Items []*UpgradeRequestResponse `json:"items"`
}
