package types

import (
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// RequestType classifies a tier change by price comparison, never by tier
// ordinal: a cheaper plan is a downgrade even at the same ordinal.
type RequestType string

const (
	RequestTypeUpgrade   RequestType = "upgrade"
	RequestTypeDowngrade RequestType = "downgrade"
)

// UpgradeRequestStatus is the workflow state of a tier-change request.
type UpgradeRequestStatus string

const (
	UpgradeRequestStatusPending         UpgradeRequestStatus = "pending"
	UpgradeRequestStatusPaymentUploaded UpgradeRequestStatus = "payment_uploaded"
	UpgradeRequestStatusUnderReview     UpgradeRequestStatus = "under_review"
	UpgradeRequestStatusApproved        UpgradeRequestStatus = "approved"
	UpgradeRequestStatusRejected        UpgradeRequestStatus = "rejected"
	UpgradeRequestStatusCancelled       UpgradeRequestStatus = "cancelled"
	UpgradeRequestStatusExpired         UpgradeRequestStatus = "expired"
)

// IsTerminal reports whether no further transition is legal from s.
func (s UpgradeRequestStatus) IsTerminal() bool {
	switch s {
	case UpgradeRequestStatusApproved,
		UpgradeRequestStatusRejected,
		UpgradeRequestStatusCancelled,
		UpgradeRequestStatusExpired:
		return true
	}
	return false
}

// NonTerminalRequestStatuses is the set that counts against the one-in-flight
// invariant: at most one request per tenant may be in any of these states.
func NonTerminalRequestStatuses() []UpgradeRequestStatus {
	return []UpgradeRequestStatus{
		UpgradeRequestStatusPending,
		UpgradeRequestStatusPaymentUploaded,
		UpgradeRequestStatusUnderReview,
	}
}

// ReviewDecision is an administrator's verdict on a reviewed request.
type ReviewDecision string

const (
	ReviewDecisionApprove ReviewDecision = "approve"
	ReviewDecisionReject  ReviewDecision = "reject"
)

func (d ReviewDecision) Validate() error {
	switch d {
	case ReviewDecisionApprove, ReviewDecisionReject:
		return nil
	}
	return ierr.NewError("invalid review decision").
		WithHint("Decision must be approve or reject").
		WithReportableDetails(map[string]interface{}{
			"decision": d,
		}).
		Mark(ierr.ErrValidation)
}
