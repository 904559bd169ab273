package coupon

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// Coupon is a redeemable discount. Codes are case-normalized to upper.
type Coupon struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`

	Type types.CouponType `json:"type"`

	// DiscountValue is a percentage for percentage coupons, a smallest-unit
	// amount for fixed_amount coupons, and a day count for trial_extension.
	DiscountValue decimal.Decimal `json:"discount_value"`
	Currency      string          `json:"currency,omitempty"`

	// Redemption caps; nil means unlimited.
	MaxRedemptions          *int `json:"max_redemptions,omitempty"`
	MaxRedemptionsPerTenant *int `json:"max_redemptions_per_tenant,omitempty"`
	TotalRedemptions        int  `json:"total_redemptions"`

	// Restrictions; empty means unrestricted.
	TierCodes      []string              `json:"tier_codes,omitempty"`
	BillingPeriods []types.BillingPeriod `json:"billing_periods,omitempty"`

	RedeemAfter  *time.Time `json:"redeem_after,omitempty"`
	RedeemBefore *time.Time `json:"redeem_before,omitempty"`

	FirstTimeOnly    bool `json:"first_time_only"`
	NewCustomersOnly bool `json:"new_customers_only"`

	MinimumAmount *decimal.Decimal `json:"minimum_amount,omitempty"`

	// DurationMonths is how many months the discount recurs; 0 = once.
	DurationMonths int `json:"duration_months"`

	types.BaseModel
}

// DiscountResult is the outcome of applying a coupon to an amount.
type DiscountResult struct {
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	// BonusDays is non-zero only for trial_extension coupons, which grant
	// time instead of money.
	BonusDays   int    `json:"bonus_days"`
	Description string `json:"description"`
}

// NormalizeCode upper-cases and trims a user-entered coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsWithinValidityWindow reports whether the coupon may be redeemed at now.
func (c *Coupon) IsWithinValidityWindow(now time.Time) bool {
	if c.RedeemAfter != nil && now.Before(*c.RedeemAfter) {
		return false
	}
	if c.RedeemBefore != nil && now.After(*c.RedeemBefore) {
		return false
	}
	return true
}

// IsAtGlobalCap reports whether total redemptions have reached the cap.
func (c *Coupon) IsAtGlobalCap() bool {
	return c.MaxRedemptions != nil && c.TotalRedemptions >= *c.MaxRedemptions
}

// AppliesToTier reports whether the coupon is valid for the tier code.
func (c *Coupon) AppliesToTier(code string) bool {
	return len(c.TierCodes) == 0 || lo.Contains(c.TierCodes, code)
}

// AppliesToBillingPeriod reports whether the coupon is valid for the period.
func (c *Coupon) AppliesToBillingPeriod(period types.BillingPeriod) bool {
	return len(c.BillingPeriods) == 0 || lo.Contains(c.BillingPeriods, period)
}

// MeetsMinimumAmount reports whether the purchase clears the threshold.
func (c *Coupon) MeetsMinimumAmount(amount decimal.Decimal) bool {
	return c.MinimumAmount == nil || amount.GreaterThanOrEqual(*c.MinimumAmount)
}

// ApplyDiscount computes the discount against an amount in the smallest
// currency unit. Percentage discounts floor to whole units, fixed discounts
// clamp to the amount, and trial extensions grant days with no monetary
// discount.
func (c *Coupon) ApplyDiscount(amount decimal.Decimal) DiscountResult {
	switch c.Type {
	case types.CouponTypePercentage:
		discount := amount.Mul(c.DiscountValue).Div(decimal.NewFromInt(100)).Floor()
		discount = decimal.Min(discount, amount)
		return DiscountResult{
			Discount:    discount,
			FinalAmount: amount.Sub(discount),
			Description: fmt.Sprintf("Coupon %s: %s%% off", c.Code, c.DiscountValue.String()),
		}
	case types.CouponTypeFixedAmount:
		discount := decimal.Min(c.DiscountValue, amount)
		return DiscountResult{
			Discount:    discount,
			FinalAmount: amount.Sub(discount),
			Description: fmt.Sprintf("Coupon %s: %s off", c.Code, c.DiscountValue.String()),
		}
	case types.CouponTypeTrialExtension:
		days := int(c.DiscountValue.IntPart())
		return DiscountResult{
			Discount:    decimal.Zero,
			FinalAmount: amount,
			BonusDays:   days,
			Description: fmt.Sprintf("Coupon %s: %d bonus days", c.Code, days),
		}
	}
	return DiscountResult{Discount: decimal.Zero, FinalAmount: amount}
}
