package billingtransaction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// Note is one append-only administrator annotation.
type Note struct {
	At   time.Time `json:"at"`
	By   string    `json:"by"`
	Text string    `json:"text"`
}

// BillingTransaction is one ledger row per monetary event. It is the
// canonical record of money owed or paid; a linked request is advisory.
// While pending, administrators may adjust it; once terminal the amount is
// frozen.
type BillingTransaction struct {
	ID                string `json:"id"`
	TransactionNumber string `json:"transaction_number"`
	TenantID          string `json:"tenant_id"`

	Link RequestLink `json:"-"`

	Type          types.TransactionType   `json:"type"`
	Status        types.TransactionStatus `json:"status"`
	BillingPeriod types.BillingPeriod     `json:"billing_period"`

	Amount          decimal.Decimal `json:"amount"`
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	CreditApplied   decimal.Decimal `json:"credit_applied"`
	CreditGenerated decimal.Decimal `json:"credit_generated"`

	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	DiscountDescription string          `json:"discount_description,omitempty"`
	CouponID            *string         `json:"coupon_id,omitempty"`

	BonusDays int `json:"bonus_days"`

	InvoicedAt  time.Time  `json:"invoiced_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`

	AdminNotes []Note `json:"admin_notes,omitempty"`

	AdjustedBy *string    `json:"adjusted_by,omitempty"`
	AdjustedAt *time.Time `json:"adjusted_at,omitempty"`

	RejectedBy      *string    `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	RequiresReview bool `json:"requires_review"`

	types.BaseModel
}

// RecalculateAmount re-derives the payable amount from its parts:
// amount = max(0, original - credit applied - discount). Terminal rows are
// frozen and left untouched.
func (t *BillingTransaction) RecalculateAmount() {
	if t.Status.IsTerminal() {
		return
	}
	t.Amount = decimal.Max(
		decimal.Zero,
		t.OriginalAmount.Sub(t.CreditApplied).Sub(t.DiscountAmount),
	)
}

// AppendNote records an administrator annotation. Notes are append-only.
func (t *BillingTransaction) AppendNote(by, text string, at time.Time) {
	t.AdminNotes = append(t.AdminNotes, Note{At: at, By: by, Text: text})
}

// MarkAdjusted stamps the most recent adjuster.
func (t *BillingTransaction) MarkAdjusted(by string, at time.Time) {
	t.AdjustedBy = &by
	t.AdjustedAt = &at
}
