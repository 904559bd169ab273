package service

import (
	"context"
	"time"

	"github.com/stackbill/stackbill/internal/api/dto"
	"github.com/stackbill/stackbill/internal/domain/billingtransaction"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/events"
	"github.com/stackbill/stackbill/internal/types"
)

// BillingTransactionService is the administrator's surface over the ledger.
// Pending rows can be adjusted; terminal rows are frozen except for notes and
// bonus days on paid rows. Rows linked to a request delegate approval and
// rejection to the request workflow so the two records cannot diverge.
type BillingTransactionService interface {
	GetTransaction(ctx context.Context, id string) (*dto.BillingTransactionResponse, error)
	ListTransactions(ctx context.Context, tenantID string, filter *types.QueryFilter) (*dto.ListBillingTransactionsResponse, error)

	ApplyCoupon(ctx context.Context, id string, req *dto.ApplyCouponRequest) (*dto.BillingTransactionResponse, error)
	ApplyManualDiscount(ctx context.Context, id string, req *dto.ApplyDiscountRequest) (*dto.BillingTransactionResponse, error)
	AddBonusDays(ctx context.Context, id string, req *dto.AddBonusDaysRequest) (*dto.BillingTransactionResponse, error)
	AnnotateTransaction(ctx context.Context, id string, req *dto.AnnotateTransactionRequest) (*dto.BillingTransactionResponse, error)

	ApproveTransaction(ctx context.Context, id string) (*dto.BillingTransactionResponse, error)
	RejectTransaction(ctx context.Context, id string, req *dto.RejectTransactionRequest) (*dto.BillingTransactionResponse, error)

	// CreateManualTransaction records an administrator-initiated monetary
	// event. Manual rows are born paid and their effect applies immediately.
	CreateManualTransaction(ctx context.Context, req *dto.CreateManualTransactionRequest) (*dto.BillingTransactionResponse, error)
}

type billingTransactionService struct {
	ServiceParams
	coupons      CouponService
	entitlements EntitlementService
	requests     UpgradeRequestService
}

func NewBillingTransactionService(params ServiceParams) BillingTransactionService {
	return &billingTransactionService{
		ServiceParams: params,
		coupons:       NewCouponService(params),
		entitlements:  NewEntitlementService(params),
		requests:      NewUpgradeRequestService(params),
	}
}

func (s *billingTransactionService) GetTransaction(ctx context.Context, id string) (*dto.BillingTransactionResponse, error) {
	txn, err := s.TransactionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewBillingTransactionResponse(txn), nil
}

func (s *billingTransactionService) ListTransactions(ctx context.Context, tenantID string, filter *types.QueryFilter) (*dto.ListBillingTransactionsResponse, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	txns, err := s.TransactionRepo.ListByTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	resp := &dto.ListBillingTransactionsResponse{Items: make([]*dto.BillingTransactionResponse, len(txns))}
	for i, txn := range txns {
		resp.Items[i] = dto.NewBillingTransactionResponse(txn)
	}
	return resp, nil
}

func (s *billingTransactionService) ApplyCoupon(ctx context.Context, id string, req *dto.ApplyCouponRequest) (*dto.BillingTransactionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var (
		updated *billingtransaction.BillingTransaction
		evs     []*events.Event
	)

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		txn, err := s.lockAndGetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if txn.Status != types.TransactionStatusPending {
			return illegalAdjustment(txn.Status, "apply a coupon to")
		}
		if txn.CouponID != nil {
			return ierr.NewError("transaction already has a coupon").
				WithHint("Only one coupon may be applied per transaction").
				Mark(ierr.ErrInvalidOperation)
		}

		t, err := s.TenantRepo.Get(ctx, txn.TenantID)
		if err != nil {
			return err
		}

		// The coupon's tier restriction is judged against the tier the money
		// is buying, which for a linked row is the request's target.
		tierCode := t.TierCode
		var requestID *string
		if reqID, ok := txn.Link.RequestID(); ok {
			r, err := s.RequestRepo.Get(ctx, reqID)
			if err != nil {
				return err
			}
			tierCode = r.ToTierCode
			requestID = &r.ID
		}

		base := txn.OriginalAmount.Sub(txn.CreditApplied)
		c, discount, err := s.coupons.ValidateForPurchase(ctx, ValidateForPurchaseInput{
			Code:          req.CouponCode,
			TenantID:      txn.TenantID,
			TierCode:      tierCode,
			BillingPeriod: txn.BillingPeriod,
			Amount:        base,
			Now:           now,
		})
		if err != nil {
			return err
		}

		if _, err := s.coupons.RedeemCoupon(ctx, RedeemCouponInput{
			Coupon:           c,
			TenantID:         txn.TenantID,
			UpgradeRequestID: requestID,
			TransactionID:    txn.ID,
			Discount:         *discount,
			Now:              now,
		}); err != nil {
			return err
		}

		actor := types.GetActorID(ctx)
		txn.CouponID = &c.ID
		txn.DiscountAmount = txn.DiscountAmount.Add(discount.Discount)
		txn.DiscountDescription = discount.Description
		txn.BonusDays += discount.BonusDays
		txn.RecalculateAmount()
		txn.MarkAdjusted(actor, now)
		txn.UpdatedAt = now
		txn.UpdatedBy = actor
		if err := s.TransactionRepo.Update(ctx, txn); err != nil {
			return err
		}
		if err := s.mirrorOntoRequest(ctx, txn, now); err != nil {
			return err
		}

		evs = append(evs,
			events.NewAuditEvent(ctx, events.EventCouponApplied, "billing_transaction", txn.ID, txn.TenantID, map[string]interface{}{
				"coupon_code": c.Code,
				"discount":    discount.Discount.String(),
				"amount":      txn.Amount.String(),
			}),
		)
		updated = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Publisher.Publish(ctx, evs...)
	return dto.NewBillingTransactionResponse(updated), nil
}

func (s *billingTransactionService) ApplyManualDiscount(ctx context.Context, id string, req *dto.ApplyDiscountRequest) (*dto.BillingTransactionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var (
		updated *billingtransaction.BillingTransaction
		evs     []*events.Event
	)

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		txn, err := s.lockAndGetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if txn.Status != types.TransactionStatusPending {
			return illegalAdjustment(txn.Status, "discount")
		}

		base := txn.OriginalAmount.Sub(txn.CreditApplied)
		discount := req.DiscountAgainst(base)
		total := txn.DiscountAmount.Add(discount)
		if total.GreaterThan(base) {
			return ierr.NewError("discount exceeds the payable amount").
				WithHintf("At most %s can still be discounted", base.Sub(txn.DiscountAmount).String()).
				WithReportableDetails(map[string]interface{}{
					"payable":           base.String(),
					"existing_discount": txn.DiscountAmount.String(),
					"requested":         discount.String(),
				}).
				Mark(ierr.ErrValidation)
		}

		actor := types.GetActorID(ctx)
		txn.DiscountAmount = total
		if txn.DiscountDescription == "" {
			txn.DiscountDescription = req.Description
		}
		txn.AppendNote(actor, req.Description, now)
		txn.RecalculateAmount()
		txn.MarkAdjusted(actor, now)
		txn.UpdatedAt = now
		txn.UpdatedBy = actor
		if err := s.TransactionRepo.Update(ctx, txn); err != nil {
			return err
		}
		if err := s.mirrorOntoRequest(ctx, txn, now); err != nil {
			return err
		}

		evs = append(evs,
			events.NewAuditEvent(ctx, events.EventTransactionAdjusted, "billing_transaction", txn.ID, txn.TenantID, map[string]interface{}{
				"discount_type": req.Type,
				"discount":      discount.String(),
				"amount":        txn.Amount.String(),
			}),
		)
		updated = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Publisher.Publish(ctx, evs...)
	return dto.NewBillingTransactionResponse(updated), nil
}

// AddBonusDays accumulates free days on the transaction. On a paid row the
// extension applies to the subscription immediately; on a pending row it is
// carried until approval.
func (s *billingTransactionService) AddBonusDays(ctx context.Context, id string, req *dto.AddBonusDaysRequest) (*dto.BillingTransactionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var (
		updated *billingtransaction.BillingTransaction
		evs     []*events.Event
	)

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		txn, err := s.lockAndGetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if txn.Status != types.TransactionStatusPending && txn.Status != types.TransactionStatusPaid {
			return illegalAdjustment(txn.Status, "add bonus days to")
		}

		actor := types.GetActorID(ctx)
		txn.BonusDays += req.Days
		if req.Reason != "" {
			txn.AppendNote(actor, req.Reason, now)
		}
		txn.MarkAdjusted(actor, now)
		txn.UpdatedAt = now
		txn.UpdatedBy = actor
		if err := s.TransactionRepo.Update(ctx, txn); err != nil {
			return err
		}

		if txn.Status == types.TransactionStatusPaid {
			if _, err := s.entitlements.ExtendSubscription(ctx, txn.TenantID, req.Days, now); err != nil {
				return err
			}
		}

		evs = append(evs,
			events.NewAuditEvent(ctx, events.EventBonusDaysAdded, "billing_transaction", txn.ID, txn.TenantID, map[string]interface{}{
				"days":   req.Days,
				"reason": req.Reason,
			}),
		)
		updated = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Publisher.Publish(ctx, evs...)
	return dto.NewBillingTransactionResponse(updated), nil
}

func (s *billingTransactionService) AnnotateTransaction(ctx context.Context, id string, req *dto.AnnotateTransactionRequest) (*dto.BillingTransactionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var updated *billingtransaction.BillingTransaction

	// Notes are append-only and legal in any state, terminal included.
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		txn, err := s.lockAndGetTransaction(ctx, id)
		if err != nil {
			return err
		}

		actor := types.GetActorID(ctx)
		txn.AppendNote(actor, req.Note, now)
		txn.UpdatedAt = now
		txn.UpdatedBy = actor
		if err := s.TransactionRepo.Update(ctx, txn); err != nil {
			return err
		}
		updated = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto.NewBillingTransactionResponse(updated), nil
}

func (s *billingTransactionService) ApproveTransaction(ctx context.Context, id string) (*dto.BillingTransactionResponse, error) {
	txn, err := s.TransactionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Linked rows are settled through the request workflow so the
	// entitlement change and ledger settlement stay one atomic step.
	if reqID, ok := txn.Link.RequestID(); ok {
		if _, err := s.requests.ReviewRequest(ctx, reqID, &dto.ReviewUpgradeRequestRequest{
			Decision: types.ReviewDecisionApprove,
		}); err != nil {
			return nil, err
		}
		return s.GetTransaction(ctx, id)
	}

	now := time.Now().UTC()
	var (
		updated *billingtransaction.BillingTransaction
		evs     []*events.Event
	)

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		txn, err := s.lockAndGetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if txn.Status != types.TransactionStatusPending {
			return illegalAdjustment(txn.Status, "approve")
		}

		actor := types.GetActorID(ctx)
		txn.Status = types.TransactionStatusPaid
		txn.PaidAt = &now
		txn.UpdatedAt = now
		txn.UpdatedBy = actor
		if err := s.TransactionRepo.Update(ctx, txn); err != nil {
			return err
		}

		if txn.BonusDays > 0 {
			if _, err := s.entitlements.ExtendSubscription(ctx, txn.TenantID, txn.BonusDays, now); err != nil {
				return err
			}
		}

		evs = append(evs,
			events.NewAuditEvent(ctx, events.EventTransactionApproved, "billing_transaction", txn.ID, txn.TenantID, map[string]interface{}{
				"transaction_number": txn.TransactionNumber,
				"amount":             txn.Amount.String(),
			}),
			events.NewNotificationEvent(ctx, events.EventTransactionApproved, "billing_transaction", txn.ID, txn.TenantID, nil),
		)
		updated = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Publisher.Publish(ctx, evs...)
	return dto.NewBillingTransactionResponse(updated), nil
}

// RejectTransaction cancels a pending row or refunds a paid one. A refunded
// row returns its amount to the tenant as credit balance. A consumed coupon
// redemption is never released.
func (s *billingTransactionService) RejectTransaction(ctx context.Context, id string, req *dto.RejectTransactionRequest) (*dto.BillingTransactionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	txn, err := s.TransactionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if reqID, ok := txn.Link.RequestID(); ok {
		r, err := s.RequestRepo.Get(ctx, reqID)
		if err != nil {
			return nil, err
		}
		if !r.Status.IsTerminal() {
			if _, err := s.requests.ReviewRequest(ctx, reqID, &dto.ReviewUpgradeRequestRequest{
				Decision:        types.ReviewDecisionReject,
				RejectionReason: req.Reason,
			}); err != nil {
				return nil, err
			}
			return s.GetTransaction(ctx, id)
		}
	}

	now := time.Now().UTC()
	var (
		updated *billingtransaction.BillingTransaction
		evs     []*events.Event
	)

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		txn, err := s.lockAndGetTransaction(ctx, id)
		if err != nil {
			return err
		}

		actor := types.GetActorID(ctx)
		switch txn.Status {
		case types.TransactionStatusPending:
			txn.Status = types.TransactionStatusCancelled
			txn.CancelledAt = &now
		case types.TransactionStatusPaid:
			txn.Status = types.TransactionStatusRefunded
			txn.RefundedAt = &now
			if txn.Amount.IsPositive() {
				if _, err := s.TenantRepo.AddCreditBalance(ctx, txn.TenantID, txn.Amount); err != nil {
					return err
				}
				txn.CreditGenerated = txn.Amount
			}
		default:
			return illegalAdjustment(txn.Status, "reject")
		}

		txn.RejectedBy = &actor
		txn.RejectedAt = &now
		txn.RejectionReason = req.Reason
		txn.UpdatedAt = now
		txn.UpdatedBy = actor
		if err := s.TransactionRepo.Update(ctx, txn); err != nil {
			return err
		}

		evs = append(evs,
			events.NewAuditEvent(ctx, events.EventTransactionRejected, "billing_transaction", txn.ID, txn.TenantID, map[string]interface{}{
				"transaction_number": txn.TransactionNumber,
				"reason":             req.Reason,
				"status":             txn.Status,
			}),
			events.NewNotificationEvent(ctx, events.EventTransactionRejected, "billing_transaction", txn.ID, txn.TenantID, map[string]interface{}{
				"reason": req.Reason,
			}),
		)
		updated = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Publisher.Publish(ctx, evs...)
	return dto.NewBillingTransactionResponse(updated), nil
}

func (s *billingTransactionService) CreateManualTransaction(ctx context.Context, req *dto.CreateManualTransactionRequest) (*dto.BillingTransactionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Type == types.TransactionTypeRefund && req.Amount.IsNegative() {
		return nil, ierr.NewError("refund amount must be positive").
			WithHint("Provide the refunded amount as a positive number").
			Mark(ierr.ErrValidation)
	}

	now := time.Now().UTC()
	var (
		created *billingtransaction.BillingTransaction
		evs     []*events.Event
	)

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.DB.LockKey(ctx, types.LockScopeTenant, map[string]interface{}{
			"tenant_id": req.TenantID,
		}); err != nil {
			return err
		}

		t, err := s.TenantRepo.Get(ctx, req.TenantID)
		if err != nil {
			return err
		}

		period := req.BillingPeriod
		if period == "" {
			period = t.BillingPeriod
		}

		actor := types.GetActorID(ctx)
		txn := &billingtransaction.BillingTransaction{
			ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSACTION),
			TransactionNumber: types.GenerateReferenceNumber(types.ReferencePrefixTransaction, now),
			TenantID:          req.TenantID,
			Link:              billingtransaction.Standalone(),
			Type:              req.Type,
			Status:            types.TransactionStatusPaid,
			BillingPeriod:     period,
			OriginalAmount:    req.Amount,
			Amount:            req.Amount,
			BonusDays:         req.BonusDays,
			InvoicedAt:        now,
			PaidAt:            &now,
			BaseModel:         types.GetDefaultBaseModel(ctx),
		}
		txn.AppendNote(actor, req.Description, now)

		switch req.Type {
		case types.TransactionTypeCreditAdjustment:
			if _, err := s.TenantRepo.AddCreditBalance(ctx, req.TenantID, req.Amount); err != nil {
				return err
			}
			txn.CreditGenerated = req.Amount
		case types.TransactionTypeRefund:
			if _, err := s.TenantRepo.AddCreditBalance(ctx, req.TenantID, req.Amount); err != nil {
				return err
			}
			txn.CreditGenerated = req.Amount
		case types.TransactionTypeExtension:
			if _, err := s.entitlements.ExtendSubscription(ctx, req.TenantID, req.BonusDays, now); err != nil {
				return err
			}
		}

		if err := s.TransactionRepo.Create(ctx, txn); err != nil {
			return err
		}

		evs = append(evs,
			events.NewAuditEvent(ctx, events.EventTransactionCreated, "billing_transaction", txn.ID, txn.TenantID, map[string]interface{}{
				"transaction_number": txn.TransactionNumber,
				"type":               txn.Type,
				"amount":             txn.Amount.String(),
			}),
		)
		if req.Type == types.TransactionTypeExtension {
			evs = append(evs, events.NewAuditEvent(ctx, events.EventBonusDaysAdded, "tenant", req.TenantID, req.TenantID, map[string]interface{}{
				"days": req.BonusDays,
			}))
		}
		created = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Publisher.Publish(ctx, evs...)
	return dto.NewBillingTransactionResponse(created), nil
}

// mirrorOntoRequest copies adjusted amounts back to the linked request so the
// tenant-facing record matches what the ledger will collect.
func (s *billingTransactionService) mirrorOntoRequest(ctx context.Context, txn *billingtransaction.BillingTransaction, now time.Time) error {
	reqID, ok := txn.Link.RequestID()
	if !ok {
		return nil
	}

	r, err := s.RequestRepo.Get(ctx, reqID)
	if err != nil {
		return err
	}

	r.CouponID = txn.CouponID
	r.DiscountAmount = txn.DiscountAmount
	r.DiscountDescription = txn.DiscountDescription
	r.AmountDue = txn.Amount
	r.UpdatedAt = now
	r.UpdatedBy = types.GetActorID(ctx)
	return s.RequestRepo.Update(ctx, r)
}

// lockAndGetTransaction takes the tenant lock for the row and returns a fresh
// read.
func (s *billingTransactionService) lockAndGetTransaction(ctx context.Context, id string) (*billingtransaction.BillingTransaction, error) {
	txn, err := s.TransactionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.DB.LockKey(ctx, types.LockScopeTenant, map[string]interface{}{
		"tenant_id": txn.TenantID,
	}); err != nil {
		return nil, err
	}
	return s.TransactionRepo.Get(ctx, id)
}

func illegalAdjustment(current types.TransactionStatus, action string) error {
	return ierr.NewErrorf("cannot %s a transaction in status %s", action, current).
		WithHintf("The transaction is currently %s", current).
		WithReportableDetails(map[string]interface{}{
			"current_status": current,
		}).
		Mark(ierr.ErrInvalidOperation)
}
