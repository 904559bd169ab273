package couponredemption

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// CouponRedemption is one row per successful coupon application. The
// discount fields are a snapshot at time of use; later coupon edits do not
// rewrite history. Rejecting or cancelling the transaction afterwards does
// not remove the row: an attempted redemption stays consumed.
type CouponRedemption struct {
	ID       string `json:"id"`
	CouponID string `json:"coupon_id"`
	TenantID string `json:"tenant_id"`

	// UpgradeRequestID is set when the redemption was applied through a
	// request-linked transaction.
	UpgradeRequestID *string `json:"upgrade_request_id,omitempty"`
	TransactionID    string  `json:"transaction_id"`

	CouponCode     string           `json:"coupon_code"`
	DiscountType   types.CouponType `json:"discount_type"`
	DiscountValue  decimal.Decimal  `json:"discount_value"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	BonusDays      int              `json:"bonus_days"`

	AppliedAt time.Time  `json:"applied_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired"`

	types.BaseModel
}
