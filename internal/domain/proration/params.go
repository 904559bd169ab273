// Package proration provides the pure calculation of credits and charges for
// mid-cycle tier changes. Nothing in this package persists or mutates state.
package proration

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// Params describes a candidate tier change. Prices are in the smallest
// currency unit for the chosen billing period.
type Params struct {
	// CurrentPrice is what the tenant's current tier costs per period. Zero
	// for tenants without a subscription.
	CurrentPrice decimal.Decimal

	// NewPrice is what the target tier costs per period.
	NewPrice decimal.Decimal

	// BillingPeriod selects the normalized period length (30/365 days).
	BillingPeriod types.BillingPeriod

	// PeriodEnd is when the tenant's current paid period ends. Nil when the
	// tenant has no active period.
	PeriodEnd *time.Time

	// CreditBalance is the tenant's available credit, applied against the
	// net charge of an upgrade.
	CreditBalance decimal.Decimal

	// Now anchors all day arithmetic so results are reproducible.
	Now time.Time
}

// Result is the full breakdown of a proration calculation.
type Result struct {
	// RequestType is upgrade when NewPrice > CurrentPrice, downgrade
	// otherwise. Decided purely by price comparison.
	RequestType types.RequestType `json:"request_type"`

	// NewSubscription is true for the degenerate case: no active period
	// exists, so the full new-tier price is charged with no proration.
	NewSubscription bool `json:"new_subscription"`

	PeriodDays    int `json:"period_days"`
	DaysRemaining int `json:"days_remaining"`

	CurrentDailyRate decimal.Decimal `json:"current_daily_rate"`
	NewDailyRate     decimal.Decimal `json:"new_daily_rate"`

	// Credit is the unused value of the current tier for the remaining days.
	Credit decimal.Decimal `json:"credit"`
	// Charge is the cost of the new tier for the remaining days, or the full
	// period price for a new subscription.
	Charge decimal.Decimal `json:"charge"`
	// Net is Charge - Credit before the credit balance is applied.
	Net decimal.Decimal `json:"net"`

	// CreditApplied is how much of the tenant's credit balance offsets the
	// net charge. Never exceeds the balance or the positive net.
	CreditApplied decimal.Decimal `json:"credit_applied"`

	// AmountDue is what the tenant owes now. Zero for downgrades, never
	// negative.
	AmountDue decimal.Decimal `json:"amount_due"`
}
