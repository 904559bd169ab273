package upgraderequest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// UpgradeRequest represents one tier-change intent. It is created by a tenant
// action and mutated only by the workflow and by administrator review; it is
// never physically deleted.
type UpgradeRequest struct {
	ID            string `json:"id"`
	RequestNumber string `json:"request_number"`
	TenantID      string `json:"tenant_id"`

	RequestType   types.RequestType   `json:"request_type"`
	FromTierCode  string              `json:"from_tier_code"`
	ToTierCode    string              `json:"to_tier_code"`
	BillingPeriod types.BillingPeriod `json:"billing_period"`

	// Computed amount fields, snapshotted from the proration calculator at
	// creation time.
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	ProrationCredit decimal.Decimal `json:"proration_credit"`
	ProrationCharge decimal.Decimal `json:"proration_charge"`
	DaysRemaining   int             `json:"days_remaining"`
	CreditApplied   decimal.Decimal `json:"credit_applied"`
	AmountDue       decimal.Decimal `json:"amount_due"`

	CouponID            *string         `json:"coupon_id,omitempty"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	DiscountDescription string          `json:"discount_description,omitempty"`

	PaymentMethodID        *string    `json:"payment_method_id,omitempty"`
	PaymentProofFileID     *string    `json:"payment_proof_file_id,omitempty"`
	PaymentProofUploadedAt *time.Time `json:"payment_proof_uploaded_at,omitempty"`

	Status types.UpgradeRequestStatus `json:"status"`

	ReviewedBy      *string    `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes     string     `json:"review_notes,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`

	types.BaseModel
}

// EffectiveStatus is the status the request would hold at the given instant:
// a pending request whose expiry has passed reads as expired even before the
// expiry is materialized. All read paths must go through this so the
// time-driven transition never depends on a background sweep having run.
func (r *UpgradeRequest) EffectiveStatus(now time.Time) types.UpgradeRequestStatus {
	if r.Status == types.UpgradeRequestStatusPending &&
		r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return types.UpgradeRequestStatusExpired
	}
	return r.Status
}

// IsExpired reports whether the lazy-expiry condition holds.
func (r *UpgradeRequest) IsExpired(now time.Time) bool {
	return r.Status == types.UpgradeRequestStatusPending &&
		r.EffectiveStatus(now) == types.UpgradeRequestStatusExpired
}
