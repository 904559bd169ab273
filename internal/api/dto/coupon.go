package dto

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/domain/coupon"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
	"github.com/stackbill/stackbill/internal/validator"
)

type CreateCouponRequest struct {
	Code          string           `json:"code" validate:"required,max=50"`
	Name          string           `json:"name" validate:"required,max=255"`
	Type          types.CouponType `json:"type" validate:"required"`
	DiscountValue decimal.Decimal  `json:"discount_value"`
	Currency      string           `json:"currency,omitempty" validate:"omitempty,len=3"`

	MaxRedemptions          *int `json:"max_redemptions,omitempty" validate:"omitempty,min=1"`
	MaxRedemptionsPerTenant *int `json:"max_redemptions_per_tenant,omitempty" validate:"omitempty,min=1"`

	TierCodes      []string              `json:"tier_codes,omitempty"`
	BillingPeriods []types.BillingPeriod `json:"billing_periods,omitempty"`

	RedeemAfter  *time.Time `json:"redeem_after,omitempty"`
	RedeemBefore *time.Time `json:"redeem_before,omitempty"`

	FirstTimeOnly    bool `json:"first_time_only"`
	NewCustomersOnly bool `json:"new_customers_only"`

	MinimumAmount  *decimal.Decimal `json:"minimum_amount,omitempty"`
	DurationMonths int              `json:"duration_months" validate:"min=0"`
}

func (r *CreateCouponRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Type.Validate(); err != nil {
		return err
	}
	switch r.Type {
	case types.CouponTypePercentage:
		if r.DiscountValue.LessThanOrEqual(decimal.Zero) || r.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return ierr.NewError("percentage discount must be between 0 and 100").
				WithHint("Use a percentage value greater than 0 and at most 100").
				Mark(ierr.ErrValidation)
		}
	case types.CouponTypeFixedAmount:
		if r.DiscountValue.LessThanOrEqual(decimal.Zero) {
			return ierr.NewError("fixed discount must be positive").
				WithHint("Use a discount amount greater than zero").
				Mark(ierr.ErrValidation)
		}
	case types.CouponTypeTrialExtension:
		if !r.DiscountValue.IsInteger() || r.DiscountValue.LessThanOrEqual(decimal.Zero) {
			return ierr.NewError("trial extension must be a positive whole number of days").
				WithHint("Use a whole day count greater than zero").
				Mark(ierr.ErrValidation)
		}
	}
	for _, p := range r.BillingPeriods {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if r.RedeemAfter != nil && r.RedeemBefore != nil && r.RedeemBefore.Before(*r.RedeemAfter) {
		return ierr.NewError("redemption window is inverted").
			WithHint("redeem_before must be after redeem_after").
			Mark(ierr.ErrValidation)
	}
	if r.MinimumAmount != nil && r.MinimumAmount.IsNegative() {
		return ierr.NewError("minimum amount cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *CreateCouponRequest) ToCoupon(ctx context.Context) *coupon.Coupon {
	return &coupon.Coupon{
		ID:                      types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COUPON),
		Code:                    coupon.NormalizeCode(r.Code),
		Name:                    r.Name,
		Type:                    r.Type,
		DiscountValue:           r.DiscountValue,
		Currency:                r.Currency,
		MaxRedemptions:          r.MaxRedemptions,
		MaxRedemptionsPerTenant: r.MaxRedemptionsPerTenant,
		TierCodes:               r.TierCodes,
		BillingPeriods:          r.BillingPeriods,
		RedeemAfter:             r.RedeemAfter,
		RedeemBefore:            r.RedeemBefore,
		FirstTimeOnly:           r.FirstTimeOnly,
		NewCustomersOnly:        r.NewCustomersOnly,
		MinimumAmount:           r.MinimumAmount,
		DurationMonths:          r.DurationMonths,
		BaseModel:               types.GetDefaultBaseModel(ctx),
	}
}

// UpdateCouponRequest carries a partial update. The code and type of a coupon
// are fixed at creation.
type UpdateCouponRequest struct {
	Name                    *string               `json:"name,omitempty" validate:"omitempty,max=255"`
	MaxRedemptions          *int                  `json:"max_redemptions,omitempty" validate:"omitempty,min=1"`
	MaxRedemptionsPerTenant *int                  `json:"max_redemptions_per_tenant,omitempty" validate:"omitempty,min=1"`
	TierCodes               []string              `json:"tier_codes,omitempty"`
	BillingPeriods          []types.BillingPeriod `json:"billing_periods,omitempty"`
	RedeemAfter             *time.Time            `json:"redeem_after,omitempty"`
	RedeemBefore            *time.Time            `json:"redeem_before,omitempty"`
	MinimumAmount           *decimal.Decimal      `json:"minimum_amount,omitempty"`
	Archive                 bool                  `json:"archive,omitempty"`
}

func (r *UpdateCouponRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	for _, p := range r.BillingPeriods {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type ValidateCouponRequest struct {
	Code          string              `json:"code" validate:"required"`
	TenantID      string              `json:"tenant_id" validate:"required"`
	TierCode      string              `json:"tier_code" validate:"required"`
	BillingPeriod types.BillingPeriod `json:"billing_period" validate:"required"`
	Amount        decimal.Decimal     `json:"amount"`
}

func (r *ValidateCouponRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.BillingPeriod.Validate(); err != nil {
		return err
	}
	if r.Amount.IsNegative() {
		return ierr.NewError("amount cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CouponValidationResponse reports the outcome of a dry-run validation. When
// Valid is false, Reason carries the first failed check's message.
type CouponValidationResponse struct {
	Valid       bool            `json:"valid"`
	Reason      string          `json:"reason,omitempty"`
	CouponID    string          `json:"coupon_id,omitempty"`
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	BonusDays   int             `json:"bonus_days"`
	Description string          `json:"description,omitempty"`
}

type CouponResponse struct {
	*coupon.Coupon
}

type ListCouponsResponse struct {
	Items []*CouponResponse `json:"items"`
}
