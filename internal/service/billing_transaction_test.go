package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/stackbill/stackbill/internal/api/dto"
	"github.com/stackbill/stackbill/internal/domain/billingtransaction"
	"github.com/stackbill/stackbill/internal/domain/coupon"
	"github.com/stackbill/stackbill/internal/domain/paymentmethod"
	"github.com/stackbill/stackbill/internal/domain/tenant"
	"github.com/stackbill/stackbill/internal/domain/tier"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/testutil"
	"github.com/stackbill/stackbill/internal/types"
)

type BillingTransactionServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  BillingTransactionService
	requests UpgradeRequestService

	now       time.Time
	periodEnd time.Time
}

func TestBillingTransactionService(t *testing.T) {
	suite.Run(t, new(BillingTransactionServiceSuite))
}

func (s *BillingTransactionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewBillingTransactionService(params)
	s.requests = NewUpgradeRequestService(params)

	s.now = time.Now().UTC()
	s.periodEnd = s.now.Add(10*24*time.Hour + time.Hour)

	ctx := s.GetContext()
	stores := s.GetStores()

	for _, t := range []struct {
		code    string
		monthly int64
	}{
		{"basic", 100000},
		{"pro", 300000},
	} {
		err := stores.TierRepo.Create(ctx, &tier.Tier{
			ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TIER),
			Code:         t.code,
			Name:         t.code,
			MonthlyPrice: decimal.NewFromInt(t.monthly),
			YearlyPrice:  decimal.NewFromInt(t.monthly * 10),
			BaseModel:    types.GetDefaultBaseModel(ctx),
		})
		s.Require().NoError(err)
	}

	start := s.now.AddDate(0, 0, -20)
	end := s.periodEnd
	err := stores.TenantRepo.Insert(ctx, &tenant.Tenant{
		ID:                   "tnnt_1",
		Name:                 "Acme",
		TierCode:             "basic",
		BillingPeriod:        types.BILLING_PERIOD_MONTHLY,
		SubscriptionStartsAt: &start,
		SubscriptionEndsAt:   &end,
		CreditBalance:        decimal.Zero,
		BaseModel:            types.GetDefaultBaseModel(ctx),
	})
	s.Require().NoError(err)

	err = stores.PaymentMethodRepo.Insert(ctx, &paymentmethod.PaymentMethod{
		ID:        "paym_bank",
		Name:      "Bank Transfer",
		Active:    true,
		BaseModel: types.GetDefaultBaseModel(ctx),
	})
	s.Require().NoError(err)
}

func (s *BillingTransactionServiceSuite) seedCoupon(code string, kind types.CouponType, value int64) {
	err := s.GetStores().CouponRepo.Create(s.GetContext(), &coupon.Coupon{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COUPON),
		Code:          code,
		Name:          code,
		Type:          kind,
		DiscountValue: decimal.NewFromInt(value),
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	})
	s.Require().NoError(err)
}

func (s *BillingTransactionServiceSuite) seedPendingTransaction(original, credit int64) *billingtransaction.BillingTransaction {
	txn := &billingtransaction.BillingTransaction{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSACTION),
		TransactionNumber: types.GenerateReferenceNumber(types.ReferencePrefixTransaction, s.now),
		TenantID:          "tnnt_1",
		Link:              billingtransaction.Standalone(),
		Type:              types.TransactionTypeSubscription,
		Status:            types.TransactionStatusPending,
		BillingPeriod:     types.BILLING_PERIOD_MONTHLY,
		OriginalAmount:    decimal.NewFromInt(original),
		CreditApplied:     decimal.NewFromInt(credit),
		InvoicedAt:        s.now,
		BaseModel:         types.GetDefaultBaseModel(s.GetContext()),
	}
	txn.RecalculateAmount()
	s.Require().NoError(s.GetStores().TransactionRepo.Create(s.GetContext(), txn))
	return txn
}

// createLinkedTransaction runs the real request flow so the linked row carries
// proration amounts.
func (s *BillingTransactionServiceSuite) createLinkedTransaction() (*dto.UpgradeRequestResponse, *billingtransaction.BillingTransaction) {
	pm := "paym_bank"
	req, err := s.requests.CreateUpgradeRequest(s.GetContext(), &dto.CreateUpgradeRequestRequest{
		TenantID:        "tnnt_1",
		ToTierCode:      "pro",
		BillingPeriod:   types.BILLING_PERIOD_MONTHLY,
		PaymentMethodID: &pm,
	})
	s.Require().NoError(err)

	txn, err := s.GetStores().TransactionRepo.GetByRequestID(s.GetContext(), req.ID)
	s.Require().NoError(err)
	return req, txn
}

func (s *BillingTransactionServiceSuite) TestApplyCouponToLinkedTransaction() {
	s.seedCoupon("SAVE10", types.CouponTypePercentage, 10)
	req, txn := s.createLinkedTransaction()

	resp, err := s.service.ApplyCoupon(s.GetContext(), txn.ID, &dto.ApplyCouponRequest{
		CouponCode: "SAVE10",
	})
	s.Require().NoError(err)

	// 10% of the payable 66,670.
	s.True(resp.DiscountAmount.Equal(decimal.NewFromInt(6667)), "discount: %s", resp.DiscountAmount)
	s.True(resp.Amount.Equal(decimal.NewFromInt(60003)), "amount: %s", resp.Amount)
	s.NotNil(resp.AdjustedAt)

	// The request mirrors the adjusted amounts.
	stored, err := s.GetStores().RequestRepo.Get(s.GetContext(), req.ID)
	s.Require().NoError(err)
	s.NotNil(stored.CouponID)
	s.True(stored.DiscountAmount.Equal(resp.DiscountAmount))
	s.True(stored.AmountDue.Equal(resp.Amount))

	redemptions, err := s.GetStores().RedemptionRepo.ListByTenant(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.Len(redemptions, 1)
}

func (s *BillingTransactionServiceSuite) TestApplyCouponRejectsSecondCoupon() {
	s.seedCoupon("SAVE10", types.CouponTypePercentage, 10)
	s.seedCoupon("SAVE20", types.CouponTypePercentage, 20)
	_, txn := s.createLinkedTransaction()

	_, err := s.service.ApplyCoupon(s.GetContext(), txn.ID, &dto.ApplyCouponRequest{CouponCode: "SAVE10"})
	s.Require().NoError(err)

	_, err = s.service.ApplyCoupon(s.GetContext(), txn.ID, &dto.ApplyCouponRequest{CouponCode: "SAVE20"})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *BillingTransactionServiceSuite) TestApplyCouponOnlyOnPendingRows() {
	s.seedCoupon("SAVE10", types.CouponTypePercentage, 10)
	resp, err := s.service.CreateManualTransaction(s.GetContext(), &dto.CreateManualTransactionRequest{
		TenantID:    "tnnt_1",
		Type:        types.TransactionTypeCreditAdjustment,
		Amount:      decimal.NewFromInt(5000),
		Description: "goodwill credit",
	})
	s.Require().NoError(err)

	_, err = s.service.ApplyCoupon(s.GetContext(), resp.ID, &dto.ApplyCouponRequest{CouponCode: "SAVE10"})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *BillingTransactionServiceSuite) TestManualDiscountAccumulatesAndCaps() {
	txn := s.seedPendingTransaction(100000, 30000)

	resp, err := s.service.ApplyManualDiscount(s.GetContext(), txn.ID, &dto.ApplyDiscountRequest{
		Type:        types.DiscountTypeFixed,
		Value:       decimal.NewFromInt(40000),
		Description: "loyalty discount",
	})
	s.Require().NoError(err)
	s.True(resp.Amount.Equal(decimal.NewFromInt(30000)))
	s.Len(resp.AdminNotes, 1)

	// The payable is 70,000; 40,000 is taken, 30,000 remains.
	_, err = s.service.ApplyManualDiscount(s.GetContext(), txn.ID, &dto.ApplyDiscountRequest{
		Type:        types.DiscountTypeFixed,
		Value:       decimal.NewFromInt(30001),
		Description: "one unit too far",
	})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))

	resp, err = s.service.ApplyManualDiscount(s.GetContext(), txn.ID, &dto.ApplyDiscountRequest{
		Type:        types.DiscountTypeFixed,
		Value:       decimal.NewFromInt(30000),
		Description: "down to zero",
	})
	s.Require().NoError(err)
	s.True(resp.Amount.IsZero())
}

func (s *BillingTransactionServiceSuite) TestManualPercentageDiscount() {
	txn := s.seedPendingTransaction(100000, 30000)

	// 25% of the 70,000 payable base, not of the original amount.
	resp, err := s.service.ApplyManualDiscount(s.GetContext(), txn.ID, &dto.ApplyDiscountRequest{
		Type:        types.DiscountTypePercentage,
		Value:       decimal.NewFromInt(25),
		Description: "renewal incentive",
	})
	s.Require().NoError(err)
	s.True(resp.DiscountAmount.Equal(decimal.NewFromInt(17500)), "discount: got %s", resp.DiscountAmount)
	s.True(resp.Amount.Equal(decimal.NewFromInt(52500)), "amount: got %s", resp.Amount)

	_, err = s.service.ApplyManualDiscount(s.GetContext(), txn.ID, &dto.ApplyDiscountRequest{
		Type:        types.DiscountTypePercentage,
		Value:       decimal.NewFromInt(101),
		Description: "over the top",
	})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))

	_, err = s.service.ApplyManualDiscount(s.GetContext(), txn.ID, &dto.ApplyDiscountRequest{
		Type:        types.DiscountType("absolute"),
		Value:       decimal.NewFromInt(10),
		Description: "unknown shape",
	})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *BillingTransactionServiceSuite) TestAddBonusDaysOnPendingIsCarried() {
	txn := s.seedPendingTransaction(100000, 0)

	resp, err := s.service.AddBonusDays(s.GetContext(), txn.ID, &dto.AddBonusDaysRequest{
		Days:   7,
		Reason: "service outage makegood",
	})
	s.Require().NoError(err)
	s.Equal(7, resp.BonusDays)

	// Nothing moves until the row is approved.
	t1, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.True(t1.SubscriptionEndsAt.Equal(s.periodEnd))

	_, err = s.service.ApproveTransaction(s.GetContext(), txn.ID)
	s.Require().NoError(err)

	t1, err = s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.True(t1.SubscriptionEndsAt.Equal(s.periodEnd.AddDate(0, 0, 7)))
}

func (s *BillingTransactionServiceSuite) TestAddBonusDaysOnPaidExtendsImmediately() {
	txn := s.seedPendingTransaction(100000, 0)
	_, err := s.service.ApproveTransaction(s.GetContext(), txn.ID)
	s.Require().NoError(err)

	_, err = s.service.AddBonusDays(s.GetContext(), txn.ID, &dto.AddBonusDaysRequest{Days: 5})
	s.Require().NoError(err)

	t1, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.True(t1.SubscriptionEndsAt.Equal(s.periodEnd.AddDate(0, 0, 5)))
}

func (s *BillingTransactionServiceSuite) TestAnnotateWorksOnTerminalRows() {
	txn := s.seedPendingTransaction(100000, 0)
	_, err := s.service.RejectTransaction(s.GetContext(), txn.ID, &dto.RejectTransactionRequest{
		Reason: "duplicate invoice",
	})
	s.Require().NoError(err)

	resp, err := s.service.AnnotateTransaction(s.GetContext(), txn.ID, &dto.AnnotateTransactionRequest{
		Note: "customer notified",
	})
	s.Require().NoError(err)
	s.Len(resp.AdminNotes, 1)
	s.Equal("customer notified", resp.AdminNotes[0].Text)

	// But monetary adjustments stay frozen.
	_, err = s.service.ApplyManualDiscount(s.GetContext(), txn.ID, &dto.ApplyDiscountRequest{
		Type:        types.DiscountTypeFixed,
		Value:       decimal.NewFromInt(1000),
		Description: "too late",
	})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *BillingTransactionServiceSuite) TestApproveStandalone() {
	txn := s.seedPendingTransaction(100000, 0)

	resp, err := s.service.ApproveTransaction(s.GetContext(), txn.ID)
	s.Require().NoError(err)
	s.Equal(types.TransactionStatusPaid, resp.Status)
	s.NotNil(resp.PaidAt)

	// Approving twice is illegal.
	_, err = s.service.ApproveTransaction(s.GetContext(), txn.ID)
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *BillingTransactionServiceSuite) TestRejectPendingCancels() {
	txn := s.seedPendingTransaction(100000, 0)

	resp, err := s.service.RejectTransaction(s.GetContext(), txn.ID, &dto.RejectTransactionRequest{
		Reason: "no payment received",
	})
	s.Require().NoError(err)
	s.Equal(types.TransactionStatusCancelled, resp.Status)
	s.NotNil(resp.CancelledAt)
	s.Equal("no payment received", resp.RejectionReason)
}

func (s *BillingTransactionServiceSuite) TestRejectPaidRefundsAsCredit() {
	txn := s.seedPendingTransaction(100000, 0)
	_, err := s.service.ApproveTransaction(s.GetContext(), txn.ID)
	s.Require().NoError(err)

	resp, err := s.service.RejectTransaction(s.GetContext(), txn.ID, &dto.RejectTransactionRequest{
		Reason: "charged in error",
	})
	s.Require().NoError(err)
	s.Equal(types.TransactionStatusRefunded, resp.Status)
	s.NotNil(resp.RefundedAt)
	s.True(resp.CreditGenerated.Equal(decimal.NewFromInt(100000)))

	t1, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.True(t1.CreditBalance.Equal(decimal.NewFromInt(100000)))
}

func (s *BillingTransactionServiceSuite) TestApproveLinkedSettlesThroughRequest() {
	req, txn := s.createLinkedTransaction()
	_, err := s.requests.UploadPaymentProof(s.GetContext(), req.ID, &dto.UploadPaymentProofRequest{
		FileID: "file_123",
	})
	s.Require().NoError(err)

	resp, err := s.service.ApproveTransaction(s.GetContext(), txn.ID)
	s.Require().NoError(err)
	s.Equal(types.TransactionStatusPaid, resp.Status)

	stored, err := s.GetStores().RequestRepo.Get(s.GetContext(), req.ID)
	s.Require().NoError(err)
	s.Equal(types.UpgradeRequestStatusApproved, stored.Status)

	t1, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.Equal("pro", t1.TierCode)
}

func (s *BillingTransactionServiceSuite) TestRejectLinkedSettlesThroughRequest() {
	req, txn := s.createLinkedTransaction()
	_, err := s.requests.UploadPaymentProof(s.GetContext(), req.ID, &dto.UploadPaymentProofRequest{
		FileID: "file_123",
	})
	s.Require().NoError(err)

	resp, err := s.service.RejectTransaction(s.GetContext(), txn.ID, &dto.RejectTransactionRequest{
		Reason: "proof does not match the amount",
	})
	s.Require().NoError(err)
	s.Equal(types.TransactionStatusCancelled, resp.Status)

	stored, err := s.GetStores().RequestRepo.Get(s.GetContext(), req.ID)
	s.Require().NoError(err)
	s.Equal(types.UpgradeRequestStatusRejected, stored.Status)
	s.Equal("proof does not match the amount", stored.RejectionReason)
}

func (s *BillingTransactionServiceSuite) TestCreateManualCreditAdjustment() {
	resp, err := s.service.CreateManualTransaction(s.GetContext(), &dto.CreateManualTransactionRequest{
		TenantID:    "tnnt_1",
		Type:        types.TransactionTypeCreditAdjustment,
		Amount:      decimal.NewFromInt(15000),
		Description: "migration goodwill",
	})
	s.Require().NoError(err)
	s.Equal(types.TransactionStatusPaid, resp.Status)
	s.True(resp.CreditGenerated.Equal(decimal.NewFromInt(15000)))
	s.Len(resp.AdminNotes, 1)

	t1, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.True(t1.CreditBalance.Equal(decimal.NewFromInt(15000)))
}

func (s *BillingTransactionServiceSuite) TestCreateManualExtension() {
	resp, err := s.service.CreateManualTransaction(s.GetContext(), &dto.CreateManualTransactionRequest{
		TenantID:    "tnnt_1",
		Type:        types.TransactionTypeExtension,
		BonusDays:   10,
		Description: "conference promotion",
	})
	s.Require().NoError(err)
	s.Equal(10, resp.BonusDays)
	s.True(resp.Amount.IsZero())

	t1, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.True(t1.SubscriptionEndsAt.Equal(s.periodEnd.AddDate(0, 0, 10)))
}

func (s *BillingTransactionServiceSuite) TestCreateManualRefund() {
	resp, err := s.service.CreateManualTransaction(s.GetContext(), &dto.CreateManualTransactionRequest{
		TenantID:    "tnnt_1",
		Type:        types.TransactionTypeRefund,
		Amount:      decimal.NewFromInt(25000),
		Description: "partial refund for downtime",
	})
	s.Require().NoError(err)
	s.True(resp.CreditGenerated.Equal(decimal.NewFromInt(25000)))

	t1, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	s.True(t1.CreditBalance.Equal(decimal.NewFromInt(25000)))
}

func (s *BillingTransactionServiceSuite) TestCreateManualRejectsNonManualType() {
	_, err := s.service.CreateManualTransaction(s.GetContext(), &dto.CreateManualTransactionRequest{
		TenantID:    "tnnt_1",
		Type:        types.TransactionTypeUpgrade,
		Amount:      decimal.NewFromInt(1000),
		Description: "not allowed",
	})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}
