package types

import (
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// TransactionType is the monetary event a ledger row records.
type TransactionType string

const (
	TransactionTypeSubscription     TransactionType = "subscription"
	TransactionTypeUpgrade          TransactionType = "upgrade"
	TransactionTypeDowngrade        TransactionType = "downgrade"
	TransactionTypeCreditAdjustment TransactionType = "credit_adjustment"
	TransactionTypeExtension        TransactionType = "extension"
	TransactionTypeRefund           TransactionType = "refund"
)

func (t TransactionType) Validate() error {
	switch t {
	case TransactionTypeSubscription, TransactionTypeUpgrade, TransactionTypeDowngrade,
		TransactionTypeCreditAdjustment, TransactionTypeExtension, TransactionTypeRefund:
		return nil
	}
	return ierr.NewError("invalid transaction type").
		WithHint("Unknown transaction type").
		WithReportableDetails(map[string]interface{}{
			"transaction_type": t,
		}).
		Mark(ierr.ErrValidation)
}

// ManualTransactionTypes are the types an administrator may create directly.
// They carry no linked request and apply their effect at creation time.
func (t TransactionType) IsManual() bool {
	switch t {
	case TransactionTypeCreditAdjustment, TransactionTypeExtension, TransactionTypeRefund:
		return true
	}
	return false
}

// TransactionStatus is the ledger state machine: pending -> paid | cancelled | refunded.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusPaid      TransactionStatus = "paid"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// IsTerminal reports whether the amount is frozen and no adjustment other
// than bonus days (on paid rows) is legal.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusPaid, TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	}
	return false
}

// DiscountType is the shape of a manual discount.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

func (d DiscountType) Validate() error {
	switch d {
	case DiscountTypePercentage, DiscountTypeFixed:
		return nil
	}
	return ierr.NewError("invalid discount type").
		WithHint("Discount type must be percentage or fixed").
		WithReportableDetails(map[string]interface{}{
			"discount_type": d,
		}).
		Mark(ierr.ErrValidation)
}
