package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/stackbill/stackbill/internal/types"
)

func TestApplyDiscount_Percentage(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		percent  string
		discount string
		final    string
	}{
		{"whole result", "100000", "15", "15000", "85000"},
		{"floors fractional units", "66670", "33", "22001", "44669"},
		{"full discount", "50000", "100", "50000", "0"},
		{"zero amount", "0", "10", "0", "0"},
		{"sub-unit rounds down", "100", "0.1", "0", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Coupon{
				Code:          "SAVE",
				Type:          types.CouponTypePercentage,
				DiscountValue: decimal.RequireFromString(tt.percent),
			}
			result := c.ApplyDiscount(decimal.RequireFromString(tt.amount))

			assert.True(t, result.Discount.Equal(decimal.RequireFromString(tt.discount)),
				"discount: got %s", result.Discount)
			assert.True(t, result.FinalAmount.Equal(decimal.RequireFromString(tt.final)),
				"final: got %s", result.FinalAmount)
			assert.Zero(t, result.BonusDays)
		})
	}
}

func TestApplyDiscount_FixedAmount(t *testing.T) {
	t.Run("clamps to the amount", func(t *testing.T) {
		c := &Coupon{
			Code:          "FLAT",
			Type:          types.CouponTypeFixedAmount,
			DiscountValue: decimal.NewFromInt(150000),
		}
		result := c.ApplyDiscount(decimal.NewFromInt(100000))

		assert.True(t, result.Discount.Equal(decimal.NewFromInt(100000)))
		assert.True(t, result.FinalAmount.IsZero())
	})

	t.Run("regular discount", func(t *testing.T) {
		c := &Coupon{
			Code:          "FLAT",
			Type:          types.CouponTypeFixedAmount,
			DiscountValue: decimal.NewFromInt(25000),
		}
		result := c.ApplyDiscount(decimal.NewFromInt(100000))

		assert.True(t, result.Discount.Equal(decimal.NewFromInt(25000)))
		assert.True(t, result.FinalAmount.Equal(decimal.NewFromInt(75000)))
	})
}

func TestApplyDiscount_TrialExtension(t *testing.T) {
	c := &Coupon{
		Code:          "EXTRA14",
		Type:          types.CouponTypeTrialExtension,
		DiscountValue: decimal.NewFromInt(14),
	}
	result := c.ApplyDiscount(decimal.NewFromInt(100000))

	assert.True(t, result.Discount.IsZero())
	assert.True(t, result.FinalAmount.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, 14, result.BonusDays)
}

func TestValidityWindow(t *testing.T) {
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	before := now.Add(-24 * time.Hour)
	after := now.Add(24 * time.Hour)

	tests := []struct {
		name   string
		after  *time.Time
		before *time.Time
		want   bool
	}{
		{"no window", nil, nil, true},
		{"inside window", &before, &after, true},
		{"not yet active", &after, nil, false},
		{"already expired", nil, &before, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Coupon{RedeemAfter: tt.after, RedeemBefore: tt.before}
			assert.Equal(t, tt.want, c.IsWithinValidityWindow(now))
		})
	}
}

func TestGlobalCap(t *testing.T) {
	cap := 5

	c := &Coupon{MaxRedemptions: &cap, TotalRedemptions: 4}
	assert.False(t, c.IsAtGlobalCap())

	c.TotalRedemptions = 5
	assert.True(t, c.IsAtGlobalCap())

	unlimited := &Coupon{TotalRedemptions: 1000000}
	assert.False(t, unlimited.IsAtGlobalCap())
}

func TestRestrictions(t *testing.T) {
	c := &Coupon{
		TierCodes:      []string{"pro", "enterprise"},
		BillingPeriods: []types.BillingPeriod{types.BILLING_PERIOD_YEARLY},
	}

	assert.True(t, c.AppliesToTier("pro"))
	assert.False(t, c.AppliesToTier("basic"))
	assert.True(t, c.AppliesToBillingPeriod(types.BILLING_PERIOD_YEARLY))
	assert.False(t, c.AppliesToBillingPeriod(types.BILLING_PERIOD_MONTHLY))

	open := &Coupon{}
	assert.True(t, open.AppliesToTier("anything"))
	assert.True(t, open.AppliesToBillingPeriod(types.BILLING_PERIOD_MONTHLY))
}

func TestMinimumAmount(t *testing.T) {
	min := decimal.NewFromInt(50000)
	c := &Coupon{MinimumAmount: &min}

	assert.True(t, c.MeetsMinimumAmount(decimal.NewFromInt(50000)))
	assert.False(t, c.MeetsMinimumAmount(decimal.NewFromInt(49999)))
	assert.True(t, (&Coupon{}).MeetsMinimumAmount(decimal.Zero))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE20", NormalizeCode("  save20 "))
	assert.Equal(t, "SAVE20", NormalizeCode("SAVE20"))
}
