package types

import (
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// CouponType is the discount shape a coupon grants.
type CouponType string

const (
	CouponTypePercentage     CouponType = "percentage"
	CouponTypeFixedAmount    CouponType = "fixed_amount"
	CouponTypeTrialExtension CouponType = "trial_extension"
)

func (t CouponType) Validate() error {
	switch t {
	case CouponTypePercentage, CouponTypeFixedAmount, CouponTypeTrialExtension:
		return nil
	}
	return ierr.NewError("invalid coupon type").
		WithHint("Coupon type must be percentage, fixed_amount or trial_extension").
		WithReportableDetails(map[string]interface{}{
			"coupon_type": t,
		}).
		Mark(ierr.ErrValidation)
}

// NewCustomerWindowDays is how recently a tenant must have signed up to
// redeem a new-customers-only coupon.
const NewCustomerWindowDays = 30
