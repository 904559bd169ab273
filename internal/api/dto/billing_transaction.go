package dto

import (
	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/domain/billingtransaction"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
	"github.com/stackbill/stackbill/internal/validator"
)

type ApplyCouponRequest struct {
	CouponCode string `json:"coupon_code" validate:"required"`
}

func (r *ApplyCouponRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type ApplyDiscountRequest struct {
	Type        types.DiscountType `json:"type" validate:"required"`
	Value       decimal.Decimal    `json:"value"`
	Description string             `json:"description" validate:"required,max=500"`
}

func (r *ApplyDiscountRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if r.Value.LessThanOrEqual(decimal.Zero) {
		return ierr.NewError("discount value must be positive").
			WithHint("Use a discount greater than zero").
			Mark(ierr.ErrValidation)
	}
	if r.Type == types.DiscountTypePercentage && r.Value.GreaterThan(decimal.NewFromInt(100)) {
		return ierr.NewError("percentage discount cannot exceed 100").
			WithHint("Use a percentage between 0 and 100").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DiscountAgainst resolves the request into an amount off the payable base,
// in the smallest currency unit.
func (r *ApplyDiscountRequest) DiscountAgainst(base decimal.Decimal) decimal.Decimal {
	if r.Type == types.DiscountTypePercentage {
		return base.Mul(r.Value).Div(decimal.NewFromInt(100)).Floor()
	}
	return r.Value
}

type AddBonusDaysRequest struct {
	Days   int    `json:"days" validate:"required,min=1"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

func (r *AddBonusDaysRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type AnnotateTransactionRequest struct {
	Note string `json:"note" validate:"required,max=2000"`
}

func (r *AnnotateTransactionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type RejectTransactionRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (r *RejectTransactionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type CreateManualTransactionRequest struct {
	TenantID      string                `json:"tenant_id" validate:"required"`
	Type          types.TransactionType `json:"type" validate:"required"`
	Amount        decimal.Decimal       `json:"amount"`
	BillingPeriod types.BillingPeriod   `json:"billing_period,omitempty"`
	BonusDays     int                   `json:"bonus_days" validate:"min=0"`
	Description   string                `json:"description" validate:"required,max=500"`
}

func (r *CreateManualTransactionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if !r.Type.IsManual() {
		return ierr.NewError("transaction type cannot be created manually").
			WithHint("Manual transactions must be credit_adjustment, extension, or refund").
			WithReportableDetails(map[string]interface{}{
				"type": r.Type,
			}).
			Mark(ierr.ErrValidation)
	}
	if r.BillingPeriod != "" {
		if err := r.BillingPeriod.Validate(); err != nil {
			return err
		}
	}
	if r.Type == types.TransactionTypeExtension {
		if r.BonusDays <= 0 {
			return ierr.NewError("extension requires bonus days").
				WithHint("Provide a positive bonus_days for extensions").
				Mark(ierr.ErrValidation)
		}
	} else if r.Amount.IsZero() {
		return ierr.NewError("amount cannot be zero").
			WithHint("Provide a non-zero amount").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// BillingTransactionResponse flattens the request link into a nullable field
// for the wire.
type BillingTransactionResponse struct {
	*billingtransaction.BillingTransaction
	UpgradeRequestID *string `json:"upgrade_request_id,omitempty"`
}

func NewBillingTransactionResponse(t *billingtransaction.BillingTransaction) *BillingTransactionResponse {
	resp := &BillingTransactionResponse{BillingTransaction: t}
	if id, ok := t.Link.RequestID(); ok {
		resp.UpgradeRequestID = &id
	}
	return resp
}

type ListBillingTransactionsResponse struct {
	Items []*BillingTransactionResponse `json:"items"`
}
