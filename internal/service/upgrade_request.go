package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/stackbill/stackbill/internal/api/dto"
	"github.com/stackbill/stackbill/internal/domain/billingtransaction"
	"github.com/stackbill/stackbill/internal/domain/proration"
	"github.com/stackbill/stackbill/internal/domain/tenant"
	"github.com/stackbill/stackbill/internal/domain/upgraderequest"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/events"
	"github.com/stackbill/stackbill/internal/types"
)

// UpgradeRequestService drives the tier-change state machine:
// pending -> payment_uploaded -> under_review -> approved | rejected, with
// cancelled and expired reachable from any non-terminal state. Downgrades
// skip the machine entirely and are created approved.
type UpgradeRequestService interface {
	CreateUpgradeRequest(ctx context.Context, req *dto.CreateUpgradeRequestRequest) (*dto.UpgradeRequestResponse, error)
	GetUpgradeRequest(ctx context.Context, id string) (*dto.UpgradeRequestResponse, error)
	ListUpgradeRequests(ctx context.Context, tenantID string, filter *types.QueryFilter) (*dto.ListUpgradeRequestsResponse, error)

	UploadPaymentProof(ctx context.Context, requestID string, req *dto.UploadPaymentProofRequest) (*dto.UpgradeRequestResponse, error)
	StartReview(ctx context.Context, requestID string) (*dto.UpgradeRequestResponse, error)
	ReviewRequest(ctx context.Context, requestID string, req *dto.ReviewUpgradeRequestRequest) (*dto.UpgradeRequestResponse, error)
	CancelRequest(ctx context.Context, requestID string) (*dto.UpgradeRequestResponse, error)

	// RunScheduledDowngradeSweep applies every scheduled downgrade whose
	// effective date has passed, one tenant-scoped transaction each, and
	// returns how many were applied.
	RunScheduledDowngradeSweep(ctx context.Context) (int, error)

	// MaterializeExpiries persists the expired status for pending requests
	// past their expiry. Reads never depend on it running; it exists so the
	// table eventually matches what EffectiveStatus already reports.
	MaterializeExpiries(ctx context.Context) (int, error)
}

type upgradeRequestService struct {
	ServiceParams
	coupons      CouponService
	entitlements EntitlementService
}

func NewUpgradeRequestService(params ServiceParams) UpgradeRequestService {
	return &upgradeRequestService{
		ServiceParams: params,
		coupons:       NewCouponService(params),
		entitlements:  NewEntitlementService(params),
	}
}

func (s *upgradeRequestService) CreateUpgradeRequest(ctx context.Context, req *dto.CreateUpgradeRequestRequest) (*dto.UpgradeRequestResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var (
		created *upgraderequest.UpgradeRequest
		evs     []*events.Event
	)

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		// The one-in-flight check-then-create must serialize per tenant.
		if err := s.DB.LockKey(ctx, types.LockScopeTenant, map[string]interface{}{
			"tenant_id": req.TenantID,
		}); err != nil {
			return err
		}

		t, err := s.TenantRepo.Get(ctx, req.TenantID)
		if err != nil {
			return err
		}

		inflight, err := s.RequestRepo.CountNonTerminalByTenant(ctx, t.ID)
		if err != nil {
			return err
		}
		if inflight > 0 {
			return ierr.NewError("tenant already has a tier change in flight").
				WithHint("Complete or cancel the existing request before creating another").
				WithReportableDetails(map[string]interface{}{
					"tenant_id": t.ID,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
		if t.TierCode == req.ToTierCode && t.BillingPeriod == req.BillingPeriod {
			return ierr.NewError("tenant is already on the requested tier").
				WithHint("Choose a different tier or billing period").
				Mark(ierr.ErrInvalidOperation)
		}

		currentTier, err := s.TierRepo.GetByCode(ctx, t.TierCode)
		if err != nil {
			return err
		}
		newTier, err := s.TierRepo.GetByCode(ctx, req.ToTierCode)
		if err != nil {
			return err
		}

		result, err := s.ProrationCalc.Calculate(prorationParams(t, currentTier.PriceFor(req.BillingPeriod), newTier.PriceFor(req.BillingPeriod), req.BillingPeriod, now))
		if err != nil {
			return err
		}

		// Downgrades cannot stack on a scheduled one. Upgrades may proceed:
		// approval supersedes the schedule and clears it.
		if result.RequestType == types.RequestTypeDowngrade && t.HasScheduledDowngrade() {
			return ierr.NewError("tenant has a scheduled downgrade").
				WithHint("A downgrade is already scheduled; it must apply or be cleared first").
				Mark(ierr.ErrInvalidOperation)
		}

		if result.RequestType == types.RequestTypeUpgrade {
			if req.PaymentMethodID == nil {
				return ierr.NewError("upgrades require a payment method").
					WithHint("Select a payment method for the upgrade").
					Mark(ierr.ErrValidation)
			}
			pm, err := s.PaymentMethodRepo.Get(ctx, *req.PaymentMethodID)
			if err != nil {
				return err
			}
			if !pm.Active {
				return ierr.NewErrorf("payment method %s is inactive", pm.ID).
					WithHint("Select an active payment method").
					Mark(ierr.ErrValidation)
			}
		}

		request := &upgraderequest.UpgradeRequest{
			ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_UPGRADE_REQUEST),
			TenantID:        t.ID,
			RequestType:     result.RequestType,
			FromTierCode:    t.TierCode,
			ToTierCode:      req.ToTierCode,
			BillingPeriod:   req.BillingPeriod,
			OriginalAmount:  newTier.PriceFor(req.BillingPeriod),
			ProrationCredit: result.Credit,
			ProrationCharge: result.Charge,
			DaysRemaining:   result.DaysRemaining,
			CreditApplied:   result.CreditApplied,
			AmountDue:       result.AmountDue,
			PaymentMethodID: req.PaymentMethodID,
			Status:          types.UpgradeRequestStatusPending,
			BaseModel:       types.GetDefaultBaseModel(ctx),
		}

		txn := &billingtransaction.BillingTransaction{
			ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSACTION),
			TransactionNumber: types.GenerateReferenceNumber(types.ReferencePrefixTransaction, now),
			TenantID:          t.ID,
			Link:              billingtransaction.LinkedToRequest(request.ID),
			Status:            types.TransactionStatusPending,
			BillingPeriod:     req.BillingPeriod,
			OriginalAmount:    result.Charge,
			CreditApplied:     result.Credit.Add(result.CreditApplied),
			InvoicedAt:        now,
			BaseModel:         types.GetDefaultBaseModel(ctx),
		}

		switch result.RequestType {
		case types.RequestTypeUpgrade:
			request.RequestNumber = types.GenerateReferenceNumber(types.ReferencePrefixUpgrade, now)
			expires := now.Add(s.Config.Billing.RequestExpiry)
			request.ExpiresAt = &expires
			txn.Type = types.TransactionTypeUpgrade
		case types.RequestTypeDowngrade:
			// No payment is needed, so the request is born approved and the
			// change waits at the period boundary.
			request.RequestNumber = types.GenerateReferenceNumber(types.ReferencePrefixDowngrade, now)
			actor := types.GetActorID(ctx)
			request.Status = types.UpgradeRequestStatusApproved
			request.ReviewedBy = &actor
			request.ReviewedAt = &now
			txn.Type = types.TransactionTypeDowngrade
			txn.Status = types.TransactionStatusPaid
			txn.PaidAt = &now
		}
		txn.RecalculateAmount()

		if req.CouponCode != "" {
			c, discount, err := s.coupons.ValidateForPurchase(ctx, ValidateForPurchaseInput{
				Code:          req.CouponCode,
				TenantID:      t.ID,
				TierCode:      req.ToTierCode,
				BillingPeriod: req.BillingPeriod,
				Amount:        result.AmountDue,
				Now:           now,
			})
			if err != nil {
				return err
			}
			request.CouponID = &c.ID
			request.DiscountAmount = discount.Discount
			request.DiscountDescription = discount.Description
			txn.CouponID = &c.ID
			txn.DiscountAmount = discount.Discount
			txn.DiscountDescription = discount.Description
			txn.BonusDays += discount.BonusDays
			txn.RecalculateAmount()
			request.AmountDue = txn.Amount

			if _, err := s.coupons.RedeemCoupon(ctx, RedeemCouponInput{
				Coupon:           c,
				TenantID:         t.ID,
				UpgradeRequestID: &request.ID,
				TransactionID:    txn.ID,
				Discount:         *discount,
				Now:              now,
			}); err != nil {
				return err
			}
			evs = append(evs, events.NewAuditEvent(ctx, events.EventCouponApplied, "billing_transaction", txn.ID, t.ID, map[string]interface{}{
				"coupon_code": c.Code,
				"discount":    discount.Discount.String(),
			}))
		}

		if err := s.RequestRepo.Create(ctx, request); err != nil {
			return err
		}
		if err := s.TransactionRepo.Create(ctx, txn); err != nil {
			return err
		}

		// Reserve the applied balance now so the quote stays truthful; it is
		// returned if the request dies without being approved.
		if result.CreditApplied.IsPositive() {
			if _, err := s.TenantRepo.AddCreditBalance(ctx, t.ID, result.CreditApplied.Neg()); err != nil {
				return err
			}
		}

		if result.RequestType == types.RequestTypeDowngrade {
			t.ScheduledTierCode = &request.ToTierCode
			t.ScheduledTierEffectiveAt = t.SubscriptionEndsAt
			t.UpdatedAt = now
			t.UpdatedBy = types.GetActorID(ctx)
			if err := s.TenantRepo.Update(ctx, t); err != nil {
				return err
			}
			evs = append(evs, events.NewAuditEvent(ctx, events.EventDowngradeScheduled, "tenant", t.ID, t.ID, map[string]interface{}{
				"to_tier_code": request.ToTierCode,
				"effective_at": t.ScheduledTierEffectiveAt,
			}))
		}

		evs = append(evs,
			events.NewAuditEvent(ctx, events.EventRequestCreated, "upgrade_request", request.ID, t.ID, map[string]interface{}{
				"request_number": request.RequestNumber,
				"request_type":   request.RequestType,
				"to_tier_code":   request.ToTierCode,
				"amount_due":     request.AmountDue.String(),
			}),
			events.NewAuditEvent(ctx, events.EventTransactionCreated, "billing_transaction", txn.ID, t.ID, map[string]interface{}{
				"transaction_number": txn.TransactionNumber,
				"amount":             txn.Amount.String(),
			}),
			events.NewNotificationEvent(ctx, events.EventRequestCreated, "upgrade_request", request.ID, t.ID, nil),
		)
		created = request
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Publisher.Publish(ctx, evs...)
	return dto.NewUpgradeRequestResponse(created, now), nil
}

func (s *upgradeRequestService) GetUpgradeRequest(ctx context.Context, id string) (*dto.UpgradeRequestResponse, error) {
	r, err := s.RequestRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewUpgradeRequestResponse(r, time.Now().UTC()), nil
}

func (s *upgradeRequestService) ListUpgradeRequests(ctx context.Context, tenantID string, filter *types.QueryFilter) (*dto.ListUpgradeRequestsResponse, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	reqs, err := s.RequestRepo.ListByTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	resp := &dto.ListUpgradeRequestsResponse{Items: make([]*dto.UpgradeRequestResponse, len(reqs))}
	for i, r := range reqs {
		resp.Items[i] = dto.NewUpgradeRequestResponse(r, now)
	}
	return resp, nil
}

func (s *upgradeRequestService) UploadPaymentProof(ctx context.Context, requestID string, req *dto.UploadPaymentProofRequest) (*dto.UpgradeRequestResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var (
		updated    *upgraderequest.UpgradeRequest
		evs        []*events.Event
		expiredNow bool
	)

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.lockAndGetRequest(ctx, requestID)
		if err != nil {
			return err
		}

		if r.IsExpired(now) {
			expiredNow = true
			return ierr.NewErrorf("request %s has expired", r.RequestNumber).
				WithHint("The request expired before payment proof was uploaded").
				Mark(ierr.ErrInvalidOperation)
		}
		if r.Status != types.UpgradeRequestStatusPending {
			return illegalTransition(r.Status, "upload payment proof for")
		}

		if req.PaymentMethodID != nil {
			pm, err := s.PaymentMethodRepo.Get(ctx, *req.PaymentMethodID)
			if err != nil {
				return err
			}
			if !pm.Active {
				return ierr.NewErrorf("payment method %s is inactive", pm.ID).
					WithHint("Select an active payment method").
					Mark(ierr.ErrValidation)
			}
			r.PaymentMethodID = req.PaymentMethodID
		}

		r.PaymentProofFileID = &req.FileID
		r.PaymentProofUploadedAt = &now
		r.Status = types.UpgradeRequestStatusPaymentUploaded
		r.UpdatedAt = now
		r.UpdatedBy = types.GetActorID(ctx)
		if err := s.RequestRepo.Update(ctx, r); err != nil {
			return err
		}

		evs = append(evs,
			events.NewAuditEvent(ctx, events.EventRequestProofUpload, "upgrade_request", r.ID, r.TenantID, map[string]interface{}{
				"file_id": req.FileID,
			}),
		)
		updated = r
		return nil
	})
	if err != nil {
		if expiredNow {
			// The upload transaction rolled back; record the expiry in its
			// own transaction before surfacing the error.
			if _, mErr := s.materializeExpiry(ctx, requestID, now); mErr != nil {
				s.Logger.Errorw("failed to materialize expiry",
					"request_id", requestID,
					"error", mErr)
			}
		}
		return nil, err
	}

	s.Publisher.Publish(ctx, evs...)
	return dto.NewUpgradeRequestResponse(updated, now), nil
}

func (s *upgradeRequestService) StartReview(ctx context.Context, requestID string) (*dto.UpgradeRequestResponse, error) {
	now := time.Now().UTC()
	var updated *upgraderequest.UpgradeRequest

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.lockAndGetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if r.Status != types.UpgradeRequestStatusPaymentUploaded {
			return illegalTransition(r.Status, "start review of")
		}

		r.Status = types.UpgradeRequestStatusUnderReview
		r.UpdatedAt = now
		r.UpdatedBy = types.GetActorID(ctx)
		if err := s.RequestRepo.Update(ctx, r); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto.NewUpgradeRequestResponse(updated, now), nil
}

func (s *upgradeRequestService) ReviewRequest(ctx context.Context, requestID string, req *dto.ReviewUpgradeRequestRequest) (*dto.UpgradeRequestResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var (
		updated *upgraderequest.UpgradeRequest
		evs     []*events.Event
	)

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.lockAndGetRequest(ctx, requestID)
		if err != nil {
			return err
		}

		if r.Status != types.UpgradeRequestStatusPaymentUploaded &&
			r.Status != types.UpgradeRequestStatusUnderReview {
			return illegalTransition(r.Status, "review")
		}

		switch req.Decision {
		case types.ReviewDecisionApprove:
			return s.approveRequestTx(ctx, r, req.Notes, now, &evs, &updated)
		case types.ReviewDecisionReject:
			return s.rejectRequestTx(ctx, r, req.Notes, req.RejectionReason, now, &evs, &updated)
		}
		return req.Decision.Validate()
	})
	if err != nil {
		return nil, err
	}

	s.Publisher.Publish(ctx, evs...)
	return dto.NewUpgradeRequestResponse(updated, now), nil
}

func (s *upgradeRequestService) approveRequestTx(ctx context.Context, r *upgraderequest.UpgradeRequest, notes string, now time.Time, evs *[]*events.Event, updated **upgraderequest.UpgradeRequest) error {
	txn, err := s.TransactionRepo.GetByRequestID(ctx, r.ID)
	if err != nil {
		return err
	}

	newTier, err := s.TierRepo.GetByCode(ctx, r.ToTierCode)
	if err != nil {
		return err
	}

	t, err := s.TenantRepo.Get(ctx, r.TenantID)
	if err != nil {
		return err
	}

	// The prorated payment covered exactly the remaining days, so an active
	// period keeps its end date. Lapsed tenants start a fresh period.
	mode := TierChangeImmediate
	if !t.HasActivePeriod(now) {
		mode = TierChangeRestartPeriod
	}
	t, err = s.entitlements.ApplyTierChange(ctx, ApplyTierChangeInput{
		TenantID:      r.TenantID,
		NewTier:       newTier,
		BillingPeriod: r.BillingPeriod,
		Mode:          mode,
		BonusDays:     txn.BonusDays,
		Now:           now,
	})
	if err != nil {
		return err
	}

	actor := types.GetActorID(ctx)
	r.Status = types.UpgradeRequestStatusApproved
	r.ReviewedBy = &actor
	r.ReviewedAt = &now
	r.ReviewNotes = notes
	r.AppliedAt = &now
	r.UpdatedAt = now
	r.UpdatedBy = actor
	if err := s.RequestRepo.Update(ctx, r); err != nil {
		return err
	}

	txn.Status = types.TransactionStatusPaid
	txn.PaidAt = &now
	txn.UpdatedAt = now
	txn.UpdatedBy = actor
	if err := s.TransactionRepo.Update(ctx, txn); err != nil {
		return err
	}

	*evs = append(*evs,
		events.NewAuditEvent(ctx, events.EventRequestApproved, "upgrade_request", r.ID, r.TenantID, map[string]interface{}{
			"request_number": r.RequestNumber,
			"to_tier_code":   r.ToTierCode,
		}),
		events.NewAuditEvent(ctx, events.EventEntitlementsChanged, "tenant", t.ID, t.ID, map[string]interface{}{
			"tier_code": t.TierCode,
		}),
		events.NewNotificationEvent(ctx, events.EventRequestApproved, "upgrade_request", r.ID, r.TenantID, nil),
	)
	*updated = r
	return nil
}

func (s *upgradeRequestService) rejectRequestTx(ctx context.Context, r *upgraderequest.UpgradeRequest, notes, reason string, now time.Time, evs *[]*events.Event, updated **upgraderequest.UpgradeRequest) error {
	actor := types.GetActorID(ctx)
	r.Status = types.UpgradeRequestStatusRejected
	r.ReviewedBy = &actor
	r.ReviewedAt = &now
	r.ReviewNotes = notes
	r.RejectionReason = reason
	r.UpdatedAt = now
	r.UpdatedBy = actor
	if err := s.RequestRepo.Update(ctx, r); err != nil {
		return err
	}

	if err := s.releaseRequestHoldsTx(ctx, r, now); err != nil {
		return err
	}

	*evs = append(*evs,
		events.NewAuditEvent(ctx, events.EventRequestRejected, "upgrade_request", r.ID, r.TenantID, map[string]interface{}{
			"request_number":   r.RequestNumber,
			"rejection_reason": reason,
		}),
		events.NewNotificationEvent(ctx, events.EventRequestRejected, "upgrade_request", r.ID, r.TenantID, map[string]interface{}{
			"rejection_reason": reason,
		}),
	)
	*updated = r
	return nil
}

func (s *upgradeRequestService) CancelRequest(ctx context.Context, requestID string) (*dto.UpgradeRequestResponse, error) {
	now := time.Now().UTC()
	var (
		updated    *upgraderequest.UpgradeRequest
		evs        []*events.Event
		expiredNow bool
	)

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.lockAndGetRequest(ctx, requestID)
		if err != nil {
			return err
		}

		if r.IsExpired(now) {
			expiredNow = true
			return ierr.NewErrorf("request %s has expired", r.RequestNumber).
				WithHint("The request already expired").
				Mark(ierr.ErrInvalidOperation)
		}
		if r.Status != types.UpgradeRequestStatusPending &&
			r.Status != types.UpgradeRequestStatusPaymentUploaded {
			return illegalTransition(r.Status, "cancel")
		}

		r.Status = types.UpgradeRequestStatusCancelled
		r.UpdatedAt = now
		r.UpdatedBy = types.GetActorID(ctx)
		if err := s.RequestRepo.Update(ctx, r); err != nil {
			return err
		}
		if err := s.releaseRequestHoldsTx(ctx, r, now); err != nil {
			return err
		}

		evs = append(evs,
			events.NewAuditEvent(ctx, events.EventRequestCancelled, "upgrade_request", r.ID, r.TenantID, map[string]interface{}{
				"request_number": r.RequestNumber,
			}),
		)
		updated = r
		return nil
	})
	if err != nil {
		if expiredNow {
			if _, mErr := s.materializeExpiry(ctx, requestID, now); mErr != nil {
				s.Logger.Errorw("failed to materialize expiry",
					"request_id", requestID,
					"error", mErr)
			}
		}
		return nil, err
	}

	s.Publisher.Publish(ctx, evs...)
	return dto.NewUpgradeRequestResponse(updated, now), nil
}

func (s *upgradeRequestService) RunScheduledDowngradeSweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	due, err := s.TenantRepo.ListDowngradesDue(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	var applied atomic.Int64
	p := pool.New().WithMaxGoroutines(s.Config.Billing.SweepWorkers)
	for _, t := range due {
		t := t
		p.Go(func() {
			if err := s.applyScheduledDowngrade(ctx, t.ID, now); err != nil {
				s.Logger.Errorw("failed to apply scheduled downgrade",
					"tenant_id", t.ID,
					"error", err)
				return
			}
			applied.Add(1)
		})
	}
	p.Wait()

	s.Logger.Infow("scheduled downgrade sweep finished",
		"due", len(due),
		"applied", applied.Load())
	return int(applied.Load()), nil
}

func (s *upgradeRequestService) applyScheduledDowngrade(ctx context.Context, tenantID string, now time.Time) error {
	var evs []*events.Event

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.DB.LockKey(ctx, types.LockScopeTenant, map[string]interface{}{
			"tenant_id": tenantID,
		}); err != nil {
			return err
		}

		t, err := s.TenantRepo.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		// Re-check under the lock: an approved upgrade may have cleared the
		// schedule between listing and locking.
		if !t.HasScheduledDowngrade() || t.ScheduledTierEffectiveAt.After(now) {
			return nil
		}

		newTier, err := s.TierRepo.GetByCode(ctx, *t.ScheduledTierCode)
		if err != nil {
			return err
		}

		t, err = s.entitlements.ApplyTierChange(ctx, ApplyTierChangeInput{
			TenantID:      tenantID,
			NewTier:       newTier,
			BillingPeriod: t.BillingPeriod,
			Mode:          TierChangeRestartPeriod,
			Now:           now,
		})
		if err != nil {
			return err
		}

		// The fresh period at the new tier is owed from its first day.
		txn := &billingtransaction.BillingTransaction{
			ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSACTION),
			TransactionNumber: types.GenerateReferenceNumber(types.ReferencePrefixTransaction, now),
			TenantID:          tenantID,
			Link:              billingtransaction.Standalone(),
			Type:              types.TransactionTypeSubscription,
			Status:            types.TransactionStatusPending,
			BillingPeriod:     t.BillingPeriod,
			OriginalAmount:    newTier.PriceFor(t.BillingPeriod),
			InvoicedAt:        now,
			BaseModel:         types.GetDefaultBaseModel(ctx),
		}
		txn.RecalculateAmount()
		if err := s.TransactionRepo.Create(ctx, txn); err != nil {
			return err
		}

		evs = append(evs,
			events.NewAuditEvent(ctx, events.EventDowngradeApplied, "tenant", t.ID, t.ID, map[string]interface{}{
				"tier_code": t.TierCode,
			}),
			events.NewAuditEvent(ctx, events.EventTransactionCreated, "billing_transaction", txn.ID, t.ID, map[string]interface{}{
				"transaction_number": txn.TransactionNumber,
				"amount":             txn.Amount.String(),
			}),
			events.NewNotificationEvent(ctx, events.EventDowngradeApplied, "tenant", t.ID, t.ID, map[string]interface{}{
				"tier_code": t.TierCode,
			}),
		)
		return nil
	})
	if err != nil {
		return err
	}

	s.Publisher.Publish(ctx, evs...)
	return nil
}

func (s *upgradeRequestService) MaterializeExpiries(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	stale, err := s.RequestRepo.ListExpiredPending(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, r := range stale {
		done, err := s.materializeExpiry(ctx, r.ID, now)
		if err != nil {
			s.Logger.Errorw("failed to materialize expiry",
				"request_id", r.ID,
				"error", err)
			continue
		}
		if done {
			expired++
		}
	}
	return expired, nil
}

// materializeExpiry persists a lapsed request's expiry in its own committed
// transaction. Callers that hit an expired request mid-operation roll their
// own transaction back first and record the expiry through here, so the audit
// events only go out once the expiry is durable. Idempotent: a request that
// is no longer expired-pending is left alone.
func (s *upgradeRequestService) materializeExpiry(ctx context.Context, requestID string, now time.Time) (bool, error) {
	var evs []*events.Event
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.lockAndGetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if !r.IsExpired(now) {
			return nil
		}
		return s.expireRequestTx(ctx, r, now, &evs)
	})
	if err != nil {
		return false, err
	}

	s.Publisher.Publish(ctx, evs...)
	return len(evs) > 0, nil
}

// expireRequestTx persists the expired status and releases everything the
// pending request held. Idempotent: callers re-check IsExpired first.
func (s *upgradeRequestService) expireRequestTx(ctx context.Context, r *upgraderequest.UpgradeRequest, now time.Time, evs *[]*events.Event) error {
	r.Status = types.UpgradeRequestStatusExpired
	r.UpdatedAt = now
	r.UpdatedBy = types.GetActorID(ctx)
	if err := s.RequestRepo.Update(ctx, r); err != nil {
		return err
	}
	if err := s.releaseRequestHoldsTx(ctx, r, now); err != nil {
		return err
	}

	*evs = append(*evs,
		events.NewAuditEvent(ctx, events.EventRequestExpired, "upgrade_request", r.ID, r.TenantID, map[string]interface{}{
			"request_number": r.RequestNumber,
		}),
		events.NewNotificationEvent(ctx, events.EventRequestExpired, "upgrade_request", r.ID, r.TenantID, nil),
	)
	return nil
}

// releaseRequestHoldsTx returns the reserved credit balance and cancels the
// linked pending ledger row. The coupon redemption, if any, stays consumed.
func (s *upgradeRequestService) releaseRequestHoldsTx(ctx context.Context, r *upgraderequest.UpgradeRequest, now time.Time) error {
	if r.CreditApplied.IsPositive() {
		if _, err := s.TenantRepo.AddCreditBalance(ctx, r.TenantID, r.CreditApplied); err != nil {
			return err
		}
	}

	txn, err := s.TransactionRepo.GetByRequestID(ctx, r.ID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if txn.Status.IsTerminal() {
		return nil
	}

	actor := types.GetActorID(ctx)
	txn.Status = types.TransactionStatusCancelled
	txn.CancelledAt = &now
	txn.UpdatedAt = now
	txn.UpdatedBy = actor
	return s.TransactionRepo.Update(ctx, txn)
}

// lockAndGetRequest takes the tenant lock for the request and returns a fresh
// read. The request's tenant id is stable, so the pre-lock read is safe.
func (s *upgradeRequestService) lockAndGetRequest(ctx context.Context, requestID string) (*upgraderequest.UpgradeRequest, error) {
	r, err := s.RequestRepo.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.DB.LockKey(ctx, types.LockScopeTenant, map[string]interface{}{
		"tenant_id": r.TenantID,
	}); err != nil {
		return nil, err
	}
	return s.RequestRepo.Get(ctx, requestID)
}

func illegalTransition(current types.UpgradeRequestStatus, action string) error {
	return ierr.NewErrorf("cannot %s a request in status %s", action, current).
		WithHintf("The request is currently %s", current).
		WithReportableDetails(map[string]interface{}{
			"current_status": current,
		}).
		Mark(ierr.ErrInvalidOperation)
}

func prorationParams(t *tenant.Tenant, currentPrice, newPrice decimal.Decimal, period types.BillingPeriod, now time.Time) proration.Params {
	return proration.Params{
		CurrentPrice:  currentPrice,
		NewPrice:      newPrice,
		BillingPeriod: period,
		PeriodEnd:     t.SubscriptionEndsAt,
		CreditBalance: t.CreditBalance,
		Now:           now,
	}
}
