package proration

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// Calculator performs proration calculations. It is kept behind an interface
// to allow different strategies and easier testing.
type Calculator interface {
	Calculate(params Params) (*Result, error)
}

type calculator struct{}

// NewCalculator returns the standard day-based calculator.
func NewCalculator() Calculator {
	return &calculator{}
}

// Calculate computes the proration breakdown for a tier change.
//
// Upgrades credit the unused value of the current tier and charge the new
// tier for the remaining days; the tenant's credit balance then offsets the
// net. Downgrades owe nothing now: the difference is informational because
// the change takes effect at the period boundary. When no active period
// exists (new or lapsed tenant) the full new-tier price is charged without
// proration.
func (c *calculator) Calculate(params Params) (*Result, error) {
	if err := params.BillingPeriod.Validate(); err != nil {
		return nil, err
	}
	if params.CurrentPrice.IsNegative() || params.NewPrice.IsNegative() {
		return nil, ierr.NewError("prices must not be negative").
			WithHint("Tier prices must be zero or positive").
			WithReportableDetails(map[string]interface{}{
				"current_price": params.CurrentPrice,
				"new_price":     params.NewPrice,
			}).
			Mark(ierr.ErrValidation)
	}
	if params.CreditBalance.IsNegative() {
		return nil, ierr.NewError("credit balance must not be negative").
			WithHint("Tenant credit balance must be zero or positive").
			Mark(ierr.ErrValidation)
	}

	periodDays := params.BillingPeriod.Days()
	daysRemaining := DaysRemaining(params.PeriodEnd, params.Now)

	result := &Result{
		PeriodDays:       periodDays,
		DaysRemaining:    daysRemaining,
		CurrentDailyRate: DailyRate(params.CurrentPrice, params.BillingPeriod),
		NewDailyRate:     DailyRate(params.NewPrice, params.BillingPeriod),
		Credit:           decimal.Zero,
		Charge:           decimal.Zero,
		Net:              decimal.Zero,
		CreditApplied:    decimal.Zero,
		AmountDue:        decimal.Zero,
	}

	// Classification is strictly by price for the chosen period: a cheaper
	// plan is a downgrade even when its ordinal is the same or higher.
	if params.NewPrice.GreaterThan(params.CurrentPrice) {
		result.RequestType = types.RequestTypeUpgrade
	} else {
		result.RequestType = types.RequestTypeDowngrade
	}

	if params.PeriodEnd == nil || !params.PeriodEnd.After(params.Now) {
		// No active period to prorate against: charge the full period price
		// rather than a near-zero remainder. An active period that merely
		// floors to zero whole days still prorates below.
		result.NewSubscription = true
		result.RequestType = types.RequestTypeUpgrade
		result.Charge = params.NewPrice
		result.Net = params.NewPrice
		result.CreditApplied = decimal.Min(params.CreditBalance, params.NewPrice)
		result.AmountDue = params.NewPrice.Sub(result.CreditApplied)
		return result, nil
	}

	days := decimal.NewFromInt(int64(daysRemaining))
	result.Credit = result.CurrentDailyRate.Mul(days)
	result.Charge = result.NewDailyRate.Mul(days)
	result.Net = result.Charge.Sub(result.Credit)

	if result.RequestType == types.RequestTypeDowngrade {
		// Downgrades apply at the next period boundary; nothing is owed and
		// nothing is refunded mid-cycle.
		return result, nil
	}

	positiveNet := decimal.Max(result.Net, decimal.Zero)
	result.CreditApplied = decimal.Min(params.CreditBalance, positiveNet)
	result.AmountDue = decimal.Max(decimal.Zero, result.Net.Sub(result.CreditApplied))
	return result, nil
}

// DailyRate is the period price divided by the normalized period length,
// rounded half-up to the smallest currency unit.
func DailyRate(price decimal.Decimal, period types.BillingPeriod) decimal.Decimal {
	days := decimal.NewFromInt(int64(period.Days()))
	return price.Div(days).Round(0)
}

// DaysRemaining is the number of whole days between now and the period end,
// never negative. A nil or past period end means no active period.
func DaysRemaining(periodEnd *time.Time, now time.Time) int {
	if periodEnd == nil || !periodEnd.After(now) {
		return 0
	}
	return int(periodEnd.Sub(now).Hours() / 24)
}
