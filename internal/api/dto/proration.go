package dto

import (
	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/domain/proration"
	"github.com/stackbill/stackbill/internal/types"
	"github.com/stackbill/stackbill/internal/validator"
)

type ProrationPreviewRequest struct {
	TenantID      string              `json:"tenant_id" validate:"required"`
	ToTierCode    string              `json:"to_tier_code" validate:"required"`
	BillingPeriod types.BillingPeriod `json:"billing_period" validate:"required"`
	CouponCode    string              `json:"coupon_code,omitempty"`
}

func (r *ProrationPreviewRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.BillingPeriod.Validate()
}

// ProrationPreviewResponse is the no-side-effect quote for a tier change.
type ProrationPreviewResponse struct {
	FromTierCode string `json:"from_tier_code"`
	ToTierCode   string `json:"to_tier_code"`

	proration.Result

	// Discount fields are populated when a coupon code was supplied and
	// validated.
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	DiscountDescription string          `json:"discount_description,omitempty"`
	BonusDays           int             `json:"bonus_days"`
	TotalDue            decimal.Decimal `json:"total_due"`
}
