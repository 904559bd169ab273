package types

import (
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// BillingPeriod is the cadence a tenant is billed on.
type BillingPeriod string

const (
	BILLING_PERIOD_MONTHLY BillingPeriod = "monthly"
	BILLING_PERIOD_YEARLY  BillingPeriod = "yearly"
)

// Days returns the fixed day count used for proration arithmetic. Periods are
// normalized (30/365) rather than calendar-exact so that daily rates are
// stable across months.
func (p BillingPeriod) Days() int {
	switch p {
	case BILLING_PERIOD_YEARLY:
		return 365
	default:
		return 30
	}
}

func (p BillingPeriod) Validate() error {
	switch p {
	case BILLING_PERIOD_MONTHLY, BILLING_PERIOD_YEARLY:
		return nil
	}
	return ierr.NewError("invalid billing period").
		WithHint("Billing period must be monthly or yearly").
		WithReportableDetails(map[string]interface{}{
			"billing_period": p,
		}).
		Mark(ierr.ErrValidation)
}
