package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/stackbill/stackbill/internal/api/dto"
	"github.com/stackbill/stackbill/internal/cache"
	"github.com/stackbill/stackbill/internal/domain/billingtransaction"
	"github.com/stackbill/stackbill/internal/domain/coupon"
	"github.com/stackbill/stackbill/internal/domain/paymentmethod"
	"github.com/stackbill/stackbill/internal/domain/proration"
	"github.com/stackbill/stackbill/internal/domain/tenant"
	"github.com/stackbill/stackbill/internal/domain/tier"
	"github.com/stackbill/stackbill/internal/domain/upgraderequest"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/events"
	"github.com/stackbill/stackbill/internal/testutil"
	"github.com/stackbill/stackbill/internal/types"
)

func newTestServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return ServiceParams{
		Logger:        s.GetLogger(),
		Config:        s.GetConfig(),
		DB:            s.GetDB(),
		Cache:         cache.NewInMemoryCache(),
		Publisher:     s.GetPublisher(),
		ProrationCalc: proration.NewCalculator(),

		TierRepo:          stores.TierRepo,
		TenantRepo:        stores.TenantRepo,
		RequestRepo:       stores.RequestRepo,
		TransactionRepo:   stores.TransactionRepo,
		CouponRepo:        stores.CouponRepo,
		RedemptionRepo:    stores.RedemptionRepo,
		PaymentMethodRepo: stores.PaymentMethodRepo,
	}
}

type UpgradeRequestServiceSuite struct {
	testutil.BaseServiceTestSuite
	service UpgradeRequestService
	params  ServiceParams

	now       time.Time
	periodEnd time.Time
}

func TestUpgradeRequestService(t *testing.T) {
	suite.Run(t, new(UpgradeRequestServiceSuite))
}

func (s *UpgradeRequestServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewUpgradeRequestService(s.params)

	s.now = time.Now().UTC()
	// Buffer past the whole days so DaysRemaining stays stable while the
	// test runs.
	s.periodEnd = s.now.Add(10*24*time.Hour + time.Hour)

	s.seedTier("basic", 100000, 1000000)
	s.seedTier("pro", 300000, 3000000)
	s.seedTenant("tnnt_1", "basic", decimal.Zero)
	s.seedPaymentMethod("paym_bank", "Bank Transfer", true)
}

func (s *UpgradeRequestServiceSuite) seedTier(code string, monthly, yearly int64) {
	err := s.GetStores().TierRepo.Create(s.GetContext(), &tier.Tier{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TIER),
		Code:         code,
		Name:         code,
		MonthlyPrice: decimal.NewFromInt(monthly),
		YearlyPrice:  decimal.NewFromInt(yearly),
		MaxUsers:     10,
		MaxBranches:  2,
		MaxStorageMB: 1024,
		Features:     []string{code + "_feature"},
		BaseModel:    types.GetDefaultBaseModel(s.GetContext()),
	})
	s.Require().NoError(err)
}

func (s *UpgradeRequestServiceSuite) seedTenant(id, tierCode string, credit decimal.Decimal) {
	start := s.now.AddDate(0, 0, -20)
	end := s.periodEnd
	err := s.GetStores().TenantRepo.Insert(s.GetContext(), &tenant.Tenant{
		ID:                   id,
		Name:                 "Acme",
		TierCode:             tierCode,
		BillingPeriod:        types.BILLING_PERIOD_MONTHLY,
		SubscriptionStartsAt: &start,
		SubscriptionEndsAt:   &end,
		CreditBalance:        credit,
		BaseModel:            types.GetDefaultBaseModel(s.GetContext()),
	})
	s.Require().NoError(err)
}

func (s *UpgradeRequestServiceSuite) seedPaymentMethod(id, name string, active bool) {
	err := s.GetStores().PaymentMethodRepo.Insert(s.GetContext(), &paymentmethod.PaymentMethod{
		ID:        id,
		Name:      name,
		Active:    active,
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	})
	s.Require().NoError(err)
}

func (s *UpgradeRequestServiceSuite) createUpgrade(couponCode string) *dto.UpgradeRequestResponse {
	pm := "paym_bank"
	resp, err := s.service.CreateUpgradeRequest(s.GetContext(), &dto.CreateUpgradeRequestRequest{
		TenantID:        "tnnt_1",
		ToTierCode:      "pro",
		BillingPeriod:   types.BILLING_PERIOD_MONTHLY,
		CouponCode:      couponCode,
		PaymentMethodID: &pm,
	})
	s.Require().NoError(err)
	return resp
}

func (s *UpgradeRequestServiceSuite) linkedTransaction(requestID string) *billingtransaction.BillingTransaction {
	txn, err := s.GetStores().TransactionRepo.GetByRequestID(s.GetContext(), requestID)
	s.Require().NoError(err)
	return txn
}

func (s *UpgradeRequestServiceSuite) TestCreateUpgrade() {
	resp := s.createUpgrade("")

	s.Equal(types.RequestTypeUpgrade, resp.RequestType)
	s.Equal(types.UpgradeRequestStatusPending, resp.Status)
	s.Equal("basic", resp.FromTierCode)
	s.Equal("pro", resp.ToTierCode)
	s.Equal(10, resp.DaysRemaining)
	s.True(resp.ProrationCredit.Equal(decimal.NewFromInt(33330)), "credit: %s", resp.ProrationCredit)
	s.True(resp.ProrationCharge.Equal(decimal.NewFromInt(100000)), "charge: %s", resp.ProrationCharge)
	s.True(resp.AmountDue.Equal(decimal.NewFromInt(66670)), "due: %s", resp.AmountDue)
	s.Contains(resp.RequestNumber, types.ReferencePrefixUpgrade+"-")

	s.Require().NotNil(resp.ExpiresAt)
	expectedExpiry := time.Now().UTC().Add(s.GetConfig().Billing.RequestExpiry)
	s.WithinDuration(expectedExpiry, *resp.ExpiresAt, time.Minute)

	txn := s.linkedTransaction(resp.ID)
	s.Equal(types.TransactionStatusPending, txn.Status)
	s.Equal(types.TransactionTypeUpgrade, txn.Type)
	s.True(txn.Amount.Equal(resp.AmountDue))

	s.NotEmpty(s.GetPublisher().EventsNamed(events.EventRequestCreated))
	s.NotEmpty(s.GetPublisher().EventsNamed(events.EventTransactionCreated))
}

func (s *UpgradeRequestServiceSuite) TestCreateUpgradeRequiresPaymentMethod() {
	_, err := s.service.CreateUpgradeRequest(s.GetContext(), &dto.CreateUpgradeRequestRequest{
		TenantID:      "tnnt_1",
		ToTierCode:    "pro",
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
	})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *UpgradeRequestServiceSuite) TestCreateUpgradeRejectsInactivePaymentMethod() {
	s.seedPaymentMethod("paym_old", "Retired Method", false)

	pm := "paym_old"
	_, err := s.service.CreateUpgradeRequest(s.GetContext(), &dto.CreateUpgradeRequestRequest{
		TenantID:        "tnnt_1",
		ToTierCode:      "pro",
		BillingPeriod:   types.BILLING_PERIOD_MONTHLY,
		PaymentMethodID: &pm,
	})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *UpgradeRequestServiceSuite) TestCreateRejectsSameTierAndPeriod() {
	pm := "paym_bank"
	_, err := s.service.CreateUpgradeRequest(s.GetContext(), &dto.CreateUpgradeRequestRequest{
		TenantID:        "tnnt_1",
		ToTierCode:      "basic",
		BillingPeriod:   types.BILLING_PERIOD_MONTHLY,
		PaymentMethodID: &pm,
	})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *UpgradeRequestServiceSuite) TestOneInFlightPerTenant() {
	s.createUpgrade("")

	pm := "paym_bank"
	_, err := s.service.CreateUpgradeRequest(s.GetContext(), &dto.CreateUpgradeRequestRequest{
		TenantID:        "tnnt_1",
		ToTierCode:      "pro",
		BillingPeriod:   types.BILLING_PERIOD_MONTHLY,
		PaymentMethodID: &pm,
	})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *UpgradeRequestServiceSuite) TestCreateDowngrade() {
	s.seedTenant("tnnt_2", "pro", decimal.Zero)

	resp, err := s.service.CreateUpgradeRequest(s.GetContext(), &dto.CreateUpgradeRequestRequest{
		TenantID:      "tnnt_2",
		ToTierCode:    "basic",
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
	})
	s.Require().NoError(err)

	s.Equal(types.RequestTypeDowngrade, resp.RequestType)
	s.Equal(types.UpgradeRequestStatusApproved, resp.Status)
	s.True(resp.AmountDue.IsZero())
	s.Contains(resp.RequestNumber, types.ReferencePrefixDowngrade+"-")
	s.Nil(resp.ExpiresAt)

	t2, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_2")
	s.Require().NoError(err)
	s.Require().NotNil(t2.ScheduledTierCode)
	s.Equal("basic", *t2.ScheduledTierCode)
	s.Require().NotNil(t2.ScheduledTierEffectiveAt)
	s.True(t2.ScheduledTierEffectiveAt.Equal(s.periodEnd))
	// The current tier is untouched until the boundary.
	s.Equal("pro", t2.TierCode)

	txn := s.linkedTransaction(resp.ID)
	s.Equal(types.TransactionStatusPaid, txn.Status)
	s.Equal(types.TransactionTypeDowngrade, txn.Type)
	s.True(txn.Amount.IsZero())

	s.NotEmpty(s.GetPublisher().EventsNamed(events.EventDowngradeScheduled))
}

func (s *UpgradeRequestServiceSuite) TestDowngradeBlocksFurtherRequests() {
	s.seedTenant("tnnt_2", "pro", decimal.Zero)

	_, err := s.service.CreateUpgradeRequest(s.GetContext(), &dto.CreateUpgradeRequestRequest{
		TenantID:      "tnnt_2",
		ToTierCode:    "basic",
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
	})
	s.Require().NoError(err)

	_, err = s.service.CreateUpgradeRequest(s.GetContext(), &dto.CreateUpgradeRequestRequest{
		TenantID:      "tnnt_2",
		ToTierCode:    "basic",
		BillingPeriod: types.BILLING_PERIOD_YEARLY,
	})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *UpgradeRequestServiceSuite) TestUpgradeWinsOverScheduledDowngrade() {
	s.seedTier("enterprise", 600000, 6000000)
	s.seedTenant("tnnt_2", "pro", decimal.Zero)

	_, err := s.service.CreateUpgradeRequest(s.GetContext(), &dto.CreateUpgradeRequestRequest{
		TenantID:      "tnnt_2",
		ToTierCode:    "basic",
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
	})
	s.Require().NoError(err)

	t2, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_2")
	s.Require().NoError(err)
	s.Require().True(t2.HasScheduledDowngrade())

	// The pending downgrade does not lock the tenant out of upgrading.
	pm := "paym_bank"
	resp, err := s.service.CreateUpgradeRequest(s.GetContext(), &dto.CreateUpgradeRequestRequest{
		TenantID:        "tnnt_2",
		ToTierCode:      "enterprise",
		BillingPeriod:   types.BILLING_PERIOD_MONTHLY,
		PaymentMethodID: &pm,
	})
	s.Require().NoError(err)
	s.Equal(types.RequestTypeUpgrade, resp.RequestType)

	_, err = s.service.UploadPaymentProof(s.GetContext(), resp.ID, &dto.UploadPaymentProofRequest{
		FileID: "file_123",
	})
	s.Require().NoError(err)
	_, err = s.service.ReviewRequest(s.GetContext(), resp.ID, &dto.ReviewUpgradeRequestRequest{
		Decision: types.ReviewDecisionApprove,
	})
	s.Require().NoError(err)

	// The approved upgrade supersedes the scheduled downgrade.
	t2, err = s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_2")
	s.Require().NoError(err)
	s.Equal("enterprise", t2.TierCode)
	s.False(t2.HasScheduledDowngrade())
	s.Nil(t2.ScheduledTierCode)

	// Nothing is left for the boundary sweep to apply.
	applied, err := s.service.RunScheduledDowngradeSweep(s.GetContext())
	s.Require().NoError(err)
	s.Zero(applied)
}

func (s *UpgradeRequestServiceSuite) TestCreateWithCoupon() {
	s.seedCoupon("SAVE10", types.CouponTypePercentage, 10, nil)

	resp := s.createUpgrade("SAVE10")

	// 10% of 66,670 floors to 6,667.
	s.True(resp.DiscountAmount.Equal(decimal.NewFromInt(6667)), "discount: %s", resp.DiscountAmount)
	s.True(resp.AmountDue.Equal(decimal.NewFromInt(60003)), "due: %s", resp.AmountDue)

	txn := s.linkedTransaction(resp.ID)
	s.True(txn.DiscountAmount.Equal(resp.DiscountAmount))
	s.True(txn.Amount.Equal(resp.AmountDue))

	c, err := s.GetStores().CouponRepo.GetByCode(s.GetContext(), "SAVE10")
	s.Require().NoError(err)
	s.Equal(1, c.TotalRedemptions)

	redemptions, err := s.GetStores().RedemptionRepo.ListByTenant(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.Len(redemptions, 1)
}

func (s *UpgradeRequestServiceSuite) TestCreditReservedOnCreateAndReleasedOnCancel() {
	s.seedTenant("tnnt_3", "basic", decimal.NewFromInt(20000))

	pm := "paym_bank"
	resp, err := s.service.CreateUpgradeRequest(s.GetContext(), &dto.CreateUpgradeRequestRequest{
		TenantID:        "tnnt_3",
		ToTierCode:      "pro",
		BillingPeriod:   types.BILLING_PERIOD_MONTHLY,
		PaymentMethodID: &pm,
	})
	s.Require().NoError(err)
	s.True(resp.CreditApplied.Equal(decimal.NewFromInt(20000)))
	s.True(resp.AmountDue.Equal(decimal.NewFromInt(46670)))

	t3, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_3")
	s.Require().NoError(err)
	s.True(t3.CreditBalance.IsZero(), "credit must be reserved at creation")

	_, err = s.service.CancelRequest(s.GetContext(), resp.ID)
	s.Require().NoError(err)

	t3, err = s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_3")
	s.Require().NoError(err)
	s.True(t3.CreditBalance.Equal(decimal.NewFromInt(20000)), "credit must be returned on cancel")

	txn := s.linkedTransaction(resp.ID)
	s.Equal(types.TransactionStatusCancelled, txn.Status)
}

func (s *UpgradeRequestServiceSuite) TestUploadPaymentProof() {
	resp := s.createUpgrade("")

	updated, err := s.service.UploadPaymentProof(s.GetContext(), resp.ID, &dto.UploadPaymentProofRequest{
		FileID: "file_123",
	})
	s.Require().NoError(err)
	s.Equal(types.UpgradeRequestStatusPaymentUploaded, updated.Status)
	s.Require().NotNil(updated.PaymentProofFileID)
	s.Equal("file_123", *updated.PaymentProofFileID)
	s.NotNil(updated.PaymentProofUploadedAt)

	// A second upload is not legal from payment_uploaded.
	_, err = s.service.UploadPaymentProof(s.GetContext(), resp.ID, &dto.UploadPaymentProofRequest{
		FileID: "file_456",
	})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *UpgradeRequestServiceSuite) TestUploadOnExpiredRequestMaterializesExpiry() {
	req := s.seedExpiredPendingRequest("tnnt_1")

	_, err := s.service.UploadPaymentProof(s.GetContext(), req.ID, &dto.UploadPaymentProofRequest{
		FileID: "file_123",
	})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))

	stored, err := s.GetStores().RequestRepo.Get(s.GetContext(), req.ID)
	s.Require().NoError(err)
	s.Equal(types.UpgradeRequestStatusExpired, stored.Status)

	txn := s.linkedTransaction(req.ID)
	s.Equal(types.TransactionStatusCancelled, txn.Status)

	// The expiry committed on its own, so its events went out exactly once
	// and the failed upload left no trace.
	s.Len(s.GetPublisher().EventsNamed(events.EventRequestExpired), 2)
	s.Empty(s.GetPublisher().EventsNamed(events.EventRequestProofUpload))

	// Retrying hits the already-expired status without emitting again.
	_, err = s.service.UploadPaymentProof(s.GetContext(), req.ID, &dto.UploadPaymentProofRequest{
		FileID: "file_123",
	})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
	s.Len(s.GetPublisher().EventsNamed(events.EventRequestExpired), 2)
}

func (s *UpgradeRequestServiceSuite) TestCancelOnExpiredRequestMaterializesExpiry() {
	req := s.seedExpiredPendingRequest("tnnt_1")

	_, err := s.service.CancelRequest(s.GetContext(), req.ID)
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))

	stored, err := s.GetStores().RequestRepo.Get(s.GetContext(), req.ID)
	s.Require().NoError(err)
	s.Equal(types.UpgradeRequestStatusExpired, stored.Status)
	s.Empty(s.GetPublisher().EventsNamed(events.EventRequestCancelled))
}

func (s *UpgradeRequestServiceSuite) TestReviewApprove() {
	resp := s.createUpgrade("")
	_, err := s.service.UploadPaymentProof(s.GetContext(), resp.ID, &dto.UploadPaymentProofRequest{
		FileID: "file_123",
	})
	s.Require().NoError(err)

	endBefore := s.periodEnd

	approved, err := s.service.ReviewRequest(s.GetContext(), resp.ID, &dto.ReviewUpgradeRequestRequest{
		Decision: types.ReviewDecisionApprove,
		Notes:    "verified against bank statement",
	})
	s.Require().NoError(err)
	s.Equal(types.UpgradeRequestStatusApproved, approved.Status)
	s.NotNil(approved.ReviewedAt)
	s.NotNil(approved.AppliedAt)
	s.Equal("verified against bank statement", approved.ReviewNotes)

	t1, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.Equal("pro", t1.TierCode)
	s.Equal([]string{"pro_feature"}, t1.Features)
	// The prorated payment bought exactly the remaining days.
	s.Require().NotNil(t1.SubscriptionEndsAt)
	s.True(t1.SubscriptionEndsAt.Equal(endBefore), "period end must not move on upgrade")

	txn := s.linkedTransaction(resp.ID)
	s.Equal(types.TransactionStatusPaid, txn.Status)
	s.NotNil(txn.PaidAt)

	s.NotEmpty(s.GetPublisher().EventsNamed(events.EventRequestApproved))
	s.NotEmpty(s.GetPublisher().EventsNamed(events.EventEntitlementsChanged))
}

func (s *UpgradeRequestServiceSuite) TestReviewApproveAppliesBonusDays() {
	s.seedCoupon("EXTRA14", types.CouponTypeTrialExtension, 14, nil)

	resp := s.createUpgrade("EXTRA14")
	_, err := s.service.UploadPaymentProof(s.GetContext(), resp.ID, &dto.UploadPaymentProofRequest{
		FileID: "file_123",
	})
	s.Require().NoError(err)

	_, err = s.service.ReviewRequest(s.GetContext(), resp.ID, &dto.ReviewUpgradeRequestRequest{
		Decision: types.ReviewDecisionApprove,
	})
	s.Require().NoError(err)

	t1, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.Require().NotNil(t1.SubscriptionEndsAt)
	s.True(t1.SubscriptionEndsAt.Equal(s.periodEnd.AddDate(0, 0, 14)),
		"bonus days extend the unchanged period end")
}

func (s *UpgradeRequestServiceSuite) TestReviewReject() {
	s.seedCoupon("SAVE10", types.CouponTypePercentage, 10, nil)
	resp := s.createUpgrade("SAVE10")
	_, err := s.service.UploadPaymentProof(s.GetContext(), resp.ID, &dto.UploadPaymentProofRequest{
		FileID: "file_123",
	})
	s.Require().NoError(err)

	rejected, err := s.service.ReviewRequest(s.GetContext(), resp.ID, &dto.ReviewUpgradeRequestRequest{
		Decision:        types.ReviewDecisionReject,
		RejectionReason: "payment proof unreadable",
	})
	s.Require().NoError(err)
	s.Equal(types.UpgradeRequestStatusRejected, rejected.Status)
	s.Equal("payment proof unreadable", rejected.RejectionReason)

	t1, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.Equal("basic", t1.TierCode, "rejection must not change entitlements")

	txn := s.linkedTransaction(resp.ID)
	s.Equal(types.TransactionStatusCancelled, txn.Status)

	// The consumed redemption is not returned.
	c, err := s.GetStores().CouponRepo.GetByCode(s.GetContext(), "SAVE10")
	s.Require().NoError(err)
	s.Equal(1, c.TotalRedemptions)
}

func (s *UpgradeRequestServiceSuite) TestReviewRequiresUploadedProof() {
	resp := s.createUpgrade("")

	_, err := s.service.ReviewRequest(s.GetContext(), resp.ID, &dto.ReviewUpgradeRequestRequest{
		Decision: types.ReviewDecisionApprove,
	})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *UpgradeRequestServiceSuite) TestStartReview() {
	resp := s.createUpgrade("")
	_, err := s.service.StartReview(s.GetContext(), resp.ID)
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))

	_, err = s.service.UploadPaymentProof(s.GetContext(), resp.ID, &dto.UploadPaymentProofRequest{
		FileID: "file_123",
	})
	s.Require().NoError(err)

	under, err := s.service.StartReview(s.GetContext(), resp.ID)
	s.Require().NoError(err)
	s.Equal(types.UpgradeRequestStatusUnderReview, under.Status)

	// Review remains legal from under_review.
	approved, err := s.service.ReviewRequest(s.GetContext(), resp.ID, &dto.ReviewUpgradeRequestRequest{
		Decision: types.ReviewDecisionApprove,
	})
	s.Require().NoError(err)
	s.Equal(types.UpgradeRequestStatusApproved, approved.Status)
}

func (s *UpgradeRequestServiceSuite) TestCancelIllegalAfterApproval() {
	resp := s.createUpgrade("")
	_, err := s.service.UploadPaymentProof(s.GetContext(), resp.ID, &dto.UploadPaymentProofRequest{
		FileID: "file_123",
	})
	s.Require().NoError(err)
	_, err = s.service.ReviewRequest(s.GetContext(), resp.ID, &dto.ReviewUpgradeRequestRequest{
		Decision: types.ReviewDecisionApprove,
	})
	s.Require().NoError(err)

	_, err = s.service.CancelRequest(s.GetContext(), resp.ID)
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *UpgradeRequestServiceSuite) TestLazyExpiryOnReads() {
	req := s.seedExpiredPendingRequest("tnnt_1")

	got, err := s.service.GetUpgradeRequest(s.GetContext(), req.ID)
	s.Require().NoError(err)
	// The stored row is still pending; the read reports expired.
	s.Equal(types.UpgradeRequestStatusPending, got.Status)
	s.Equal(types.UpgradeRequestStatusExpired, got.EffectiveStatus)

	// A lazily expired request does not count against one-in-flight.
	s.createUpgrade("")
}

func (s *UpgradeRequestServiceSuite) TestMaterializeExpiries() {
	s.seedTenant("tnnt_4", "basic", decimal.Zero)
	stale1 := s.seedExpiredPendingRequest("tnnt_1")
	stale2 := s.seedExpiredPendingRequest("tnnt_4")
	live := s.createUpgrade("")

	expired, err := s.service.MaterializeExpiries(s.GetContext())
	s.Require().NoError(err)
	s.Equal(2, expired)

	for _, id := range []string{stale1.ID, stale2.ID} {
		stored, err := s.GetStores().RequestRepo.Get(s.GetContext(), id)
		s.Require().NoError(err)
		s.Equal(types.UpgradeRequestStatusExpired, stored.Status)
	}

	stored, err := s.GetStores().RequestRepo.Get(s.GetContext(), live.ID)
	s.Require().NoError(err)
	s.Equal(types.UpgradeRequestStatusPending, stored.Status)

	// Running again finds nothing.
	expired, err = s.service.MaterializeExpiries(s.GetContext())
	s.Require().NoError(err)
	s.Zero(expired)
}

func (s *UpgradeRequestServiceSuite) TestScheduledDowngradeSweep() {
	s.seedTenant("tnnt_5", "pro", decimal.Zero)
	due := s.now.Add(-time.Hour)
	err := s.GetStores().TenantRepo.Update(s.GetContext(), &tenant.Tenant{
		ID:                       "tnnt_5",
		Name:                     "Acme",
		TierCode:                 "pro",
		BillingPeriod:            types.BILLING_PERIOD_MONTHLY,
		SubscriptionEndsAt:       &due,
		ScheduledTierCode:        strPtr("basic"),
		ScheduledTierEffectiveAt: &due,
		BaseModel:                types.GetDefaultBaseModel(s.GetContext()),
	})
	s.Require().NoError(err)

	applied, err := s.service.RunScheduledDowngradeSweep(s.GetContext())
	s.Require().NoError(err)
	s.Equal(1, applied)

	t5, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_5")
	s.Require().NoError(err)
	s.Equal("basic", t5.TierCode)
	s.Nil(t5.ScheduledTierCode)
	s.Nil(t5.ScheduledTierEffectiveAt)
	// A fresh period starts at the boundary.
	s.Require().NotNil(t5.SubscriptionEndsAt)
	s.True(t5.SubscriptionEndsAt.After(s.now.AddDate(0, 0, 27)))

	// The new period is owed at the new tier's price.
	txns, err := s.GetStores().TransactionRepo.ListByTenant(s.GetContext(), "tnnt_5", types.NewDefaultQueryFilter())
	s.Require().NoError(err)
	s.Require().Len(txns, 1)
	s.Equal(types.TransactionTypeSubscription, txns[0].Type)
	s.Equal(types.TransactionStatusPending, txns[0].Status)
	s.True(txns[0].Amount.Equal(decimal.NewFromInt(100000)))

	s.NotEmpty(s.GetPublisher().EventsNamed(events.EventDowngradeApplied))

	// Sweeping again is a no-op.
	applied, err = s.service.RunScheduledDowngradeSweep(s.GetContext())
	s.Require().NoError(err)
	s.Zero(applied)
}

func (s *UpgradeRequestServiceSuite) seedCoupon(code string, kind types.CouponType, value int64, maxRedemptions *int) {
	err := s.GetStores().CouponRepo.Create(s.GetContext(), &coupon.Coupon{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COUPON),
		Code:           code,
		Name:           code,
		Type:           kind,
		DiscountValue:  decimal.NewFromInt(value),
		MaxRedemptions: maxRedemptions,
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	})
	s.Require().NoError(err)
}

func (s *UpgradeRequestServiceSuite) seedExpiredPendingRequest(tenantID string) *upgraderequest.UpgradeRequest {
	expired := s.now.Add(-time.Hour)
	req := &upgraderequest.UpgradeRequest{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_UPGRADE_REQUEST),
		RequestNumber:  types.GenerateReferenceNumber(types.ReferencePrefixUpgrade, s.now),
		TenantID:       tenantID,
		RequestType:    types.RequestTypeUpgrade,
		FromTierCode:   "basic",
		ToTierCode:     "pro",
		BillingPeriod:  types.BILLING_PERIOD_MONTHLY,
		OriginalAmount: decimal.NewFromInt(300000),
		AmountDue:      decimal.NewFromInt(66670),
		Status:         types.UpgradeRequestStatusPending,
		ExpiresAt:      &expired,
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().RequestRepo.Create(s.GetContext(), req))

	txn := &billingtransaction.BillingTransaction{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSACTION),
		TransactionNumber: types.GenerateReferenceNumber(types.ReferencePrefixTransaction, s.now),
		TenantID:          tenantID,
		Link:              billingtransaction.LinkedToRequest(req.ID),
		Type:              types.TransactionTypeUpgrade,
		Status:            types.TransactionStatusPending,
		BillingPeriod:     types.BILLING_PERIOD_MONTHLY,
		OriginalAmount:    decimal.NewFromInt(100000),
		CreditApplied:     decimal.NewFromInt(33330),
		InvoicedAt:        s.now,
		BaseModel:         types.GetDefaultBaseModel(s.GetContext()),
	}
	txn.RecalculateAmount()
	s.Require().NoError(s.GetStores().TransactionRepo.Create(s.GetContext(), txn))
	return req
}

func strPtr(v string) *string { return &v }
