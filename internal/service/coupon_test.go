package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/stackbill/stackbill/internal/api/dto"
	"github.com/stackbill/stackbill/internal/domain/billingtransaction"
	"github.com/stackbill/stackbill/internal/domain/coupon"
	"github.com/stackbill/stackbill/internal/domain/couponredemption"
	"github.com/stackbill/stackbill/internal/domain/tenant"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/testutil"
	"github.com/stackbill/stackbill/internal/types"
)

type CouponServiceSuite struct {
	testutil.BaseServiceTestSuite
	service CouponService

	now time.Time
}

func TestCouponService(t *testing.T) {
	suite.Run(t, new(CouponServiceSuite))
}

func (s *CouponServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewCouponService(newTestServiceParams(&s.BaseServiceTestSuite))
	s.now = time.Now().UTC()

	s.seedTenant("tnnt_1")
}

func (s *CouponServiceSuite) seedTenant(id string) {
	err := s.GetStores().TenantRepo.Insert(s.GetContext(), &tenant.Tenant{
		ID:            id,
		Name:          "Acme",
		TierCode:      "basic",
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	})
	s.Require().NoError(err)
}

func (s *CouponServiceSuite) seedCoupon(c *coupon.Coupon) *coupon.Coupon {
	if c.ID == "" {
		c.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COUPON)
	}
	if c.Name == "" {
		c.Name = c.Code
	}
	c.BaseModel = types.GetDefaultBaseModel(s.GetContext())
	s.Require().NoError(s.GetStores().CouponRepo.Create(s.GetContext(), c))
	return c
}

func (s *CouponServiceSuite) validate(code string, amount int64) (*dto.CouponValidationResponse, error) {
	return s.service.ValidateCoupon(s.GetContext(), &dto.ValidateCouponRequest{
		Code:          code,
		TenantID:      "tnnt_1",
		TierCode:      "pro",
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
		Amount:        decimal.NewFromInt(amount),
	})
}

func (s *CouponServiceSuite) TestCreateCoupon() {
	resp, err := s.service.CreateCoupon(s.GetContext(), &dto.CreateCouponRequest{
		Code:          "  save20 ",
		Name:          "Twenty percent off",
		Type:          types.CouponTypePercentage,
		DiscountValue: decimal.NewFromInt(20),
	})
	s.Require().NoError(err)
	s.Equal("SAVE20", resp.Code, "codes are normalized on create")

	// The normalized code collides with any casing of the same code.
	_, err = s.service.CreateCoupon(s.GetContext(), &dto.CreateCouponRequest{
		Code:          "SAVE20",
		Name:          "Duplicate",
		Type:          types.CouponTypePercentage,
		DiscountValue: decimal.NewFromInt(20),
	})
	s.Require().Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *CouponServiceSuite) TestCreateCouponRejectsBadValues() {
	_, err := s.service.CreateCoupon(s.GetContext(), &dto.CreateCouponRequest{
		Code:          "OVER100",
		Name:          "Too generous",
		Type:          types.CouponTypePercentage,
		DiscountValue: decimal.NewFromInt(150),
	})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *CouponServiceSuite) TestValidateUnknownCode() {
	resp, err := s.validate("NOPE", 100000)
	s.Require().NoError(err)
	s.False(resp.Valid)
	s.Equal("This coupon code is not valid", resp.Reason)
}

func (s *CouponServiceSuite) TestValidateOutsideWindow() {
	future := s.now.Add(24 * time.Hour)
	s.seedCoupon(&coupon.Coupon{
		Code:          "SOON",
		Type:          types.CouponTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		RedeemAfter:   &future,
	})

	resp, err := s.validate("SOON", 100000)
	s.Require().NoError(err)
	s.False(resp.Valid)
	s.Equal("This coupon has expired or is not yet active", resp.Reason)
}

func (s *CouponServiceSuite) TestValidateAtGlobalCap() {
	cap := 3
	s.seedCoupon(&coupon.Coupon{
		Code:             "CAPPED",
		Type:             types.CouponTypePercentage,
		DiscountValue:    decimal.NewFromInt(10),
		MaxRedemptions:   &cap,
		TotalRedemptions: 3,
	})

	resp, err := s.validate("CAPPED", 100000)
	s.Require().NoError(err)
	s.False(resp.Valid)
	s.Equal("This coupon has reached its redemption limit", resp.Reason)
}

func (s *CouponServiceSuite) TestValidateTierAndPeriodRestrictions() {
	s.seedCoupon(&coupon.Coupon{
		Code:          "ENTONLY",
		Type:          types.CouponTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		TierCodes:     []string{"enterprise"},
	})
	resp, err := s.validate("ENTONLY", 100000)
	s.Require().NoError(err)
	s.False(resp.Valid)
	s.Equal("This coupon is not valid for the selected tier", resp.Reason)

	s.seedCoupon(&coupon.Coupon{
		Code:           "YEARLY",
		Type:           types.CouponTypePercentage,
		DiscountValue:  decimal.NewFromInt(10),
		BillingPeriods: []types.BillingPeriod{types.BILLING_PERIOD_YEARLY},
	})
	resp, err = s.validate("YEARLY", 100000)
	s.Require().NoError(err)
	s.False(resp.Valid)
	s.Equal("This coupon is not valid for the selected billing period", resp.Reason)
}

func (s *CouponServiceSuite) TestValidateMinimumAmount() {
	min := decimal.NewFromInt(50000)
	s.seedCoupon(&coupon.Coupon{
		Code:          "BIGONLY",
		Type:          types.CouponTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		MinimumAmount: &min,
	})

	resp, err := s.validate("BIGONLY", 49999)
	s.Require().NoError(err)
	s.False(resp.Valid)
	s.Contains(resp.Reason, "minimum purchase")

	resp, err = s.validate("BIGONLY", 50000)
	s.Require().NoError(err)
	s.True(resp.Valid)
}

func (s *CouponServiceSuite) TestValidatePerTenantCap() {
	perTenant := 1
	c := s.seedCoupon(&coupon.Coupon{
		Code:                    "ONCE",
		Type:                    types.CouponTypePercentage,
		DiscountValue:           decimal.NewFromInt(10),
		MaxRedemptionsPerTenant: &perTenant,
	})
	s.redeem(c, "btxn_prev")

	resp, err := s.validate("ONCE", 100000)
	s.Require().NoError(err)
	s.False(resp.Valid)
	s.Equal("You have already used this coupon the maximum number of times", resp.Reason)
}

func (s *CouponServiceSuite) TestValidateFirstTimeOnly() {
	s.seedCoupon(&coupon.Coupon{
		Code:          "WELCOME",
		Type:          types.CouponTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		FirstTimeOnly: true,
	})

	resp, err := s.validate("WELCOME", 100000)
	s.Require().NoError(err)
	s.True(resp.Valid, "no paid history yet")

	s.seedPaidTransaction("tnnt_1")

	resp, err = s.validate("WELCOME", 100000)
	s.Require().NoError(err)
	s.False(resp.Valid)
	s.Equal("This coupon is only valid on your first purchase", resp.Reason)
}

func (s *CouponServiceSuite) TestValidateNewCustomersOnly() {
	s.seedCoupon(&coupon.Coupon{
		Code:             "FRESH",
		Type:             types.CouponTypePercentage,
		DiscountValue:    decimal.NewFromInt(10),
		NewCustomersOnly: true,
	})

	resp, err := s.validate("FRESH", 100000)
	s.Require().NoError(err)
	s.True(resp.Valid, "tenant created just now qualifies")

	// Age the tenant past the signup window.
	old, err := s.GetStores().TenantRepo.Get(s.GetContext(), "tnnt_1")
	s.Require().NoError(err)
	old.CreatedAt = s.now.AddDate(0, 0, -(types.NewCustomerWindowDays + 1))
	s.Require().NoError(s.GetStores().TenantRepo.Update(s.GetContext(), old))

	resp, err = s.validate("FRESH", 100000)
	s.Require().NoError(err)
	s.False(resp.Valid)
	s.Contains(resp.Reason, "days of signup")
}

func (s *CouponServiceSuite) TestValidateComputesDiscount() {
	s.seedCoupon(&coupon.Coupon{
		Code:          "SAVE33",
		Type:          types.CouponTypePercentage,
		DiscountValue: decimal.NewFromInt(33),
	})

	resp, err := s.validate("SAVE33", 66670)
	s.Require().NoError(err)
	s.True(resp.Valid)
	s.True(resp.Discount.Equal(decimal.NewFromInt(22001)))
	s.True(resp.FinalAmount.Equal(decimal.NewFromInt(44669)))
}

func (s *CouponServiceSuite) TestRedeemIsIdempotentPerTransaction() {
	c := s.seedCoupon(&coupon.Coupon{
		Code:          "SAVE10",
		Type:          types.CouponTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
	})

	first := s.redeem(c, "btxn_1")
	second := s.redeem(c, "btxn_1")
	s.Equal(first.ID, second.ID, "re-applying to the same transaction returns the original redemption")

	stored, err := s.GetStores().CouponRepo.GetByCode(s.GetContext(), "SAVE10")
	s.Require().NoError(err)
	s.Equal(1, stored.TotalRedemptions)
}

func (s *CouponServiceSuite) TestRedeemStampsExpiryFromDuration() {
	c := s.seedCoupon(&coupon.Coupon{
		Code:           "THREEMO",
		Type:           types.CouponTypePercentage,
		DiscountValue:  decimal.NewFromInt(10),
		DurationMonths: 3,
	})

	redemption := s.redeem(c, "btxn_1")
	s.Require().NotNil(redemption.ExpiresAt)
	s.WithinDuration(s.now.AddDate(0, 3, 0), *redemption.ExpiresAt, time.Minute)
}

func (s *CouponServiceSuite) TestConcurrentRedemptionsStopAtGlobalCap() {
	cap := 5
	c := s.seedCoupon(&coupon.Coupon{
		Code:           "LIMITED",
		Type:           types.CouponTypePercentage,
		DiscountValue:  decimal.NewFromInt(10),
		MaxRedemptions: &cap,
	})

	const attempts = 20
	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.GetDB().WithTx(s.GetContext(), func(ctx context.Context) error {
				_, err := s.service.RedeemCoupon(ctx, RedeemCouponInput{
					Coupon:        c,
					TenantID:      "tnnt_1",
					TransactionID: fmt.Sprintf("btxn_%d", i),
					Discount:      coupon.DiscountResult{Discount: decimal.NewFromInt(100)},
					Now:           s.now,
				})
				return err
			})
			if err == nil {
				succeeded.Add(1)
			} else {
				s.True(ierr.IsValidation(err))
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int64(cap), succeeded.Load())
	stored, err := s.GetStores().CouponRepo.GetByCode(s.GetContext(), "LIMITED")
	s.Require().NoError(err)
	s.Equal(cap, stored.TotalRedemptions)
}

func (s *CouponServiceSuite) redeem(c *coupon.Coupon, transactionID string) *couponredemption.CouponRedemption {
	var out *couponredemption.CouponRedemption
	err := s.GetDB().WithTx(s.GetContext(), func(ctx context.Context) error {
		r, err := s.service.RedeemCoupon(ctx, RedeemCouponInput{
			Coupon:        c,
			TenantID:      "tnnt_1",
			TransactionID: transactionID,
			Discount:      c.ApplyDiscount(decimal.NewFromInt(100000)),
			Now:           s.now,
		})
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	s.Require().NoError(err)
	return out
}

func (s *CouponServiceSuite) seedPaidTransaction(tenantID string) {
	now := time.Now().UTC()
	txn := &billingtransaction.BillingTransaction{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSACTION),
		TransactionNumber: types.GenerateReferenceNumber(types.ReferencePrefixTransaction, now),
		TenantID:          tenantID,
		Link:              billingtransaction.Standalone(),
		Type:              types.TransactionTypeSubscription,
		Status:            types.TransactionStatusPaid,
		BillingPeriod:     types.BILLING_PERIOD_MONTHLY,
		OriginalAmount:    decimal.NewFromInt(100000),
		Amount:            decimal.NewFromInt(100000),
		PaidAt:            &now,
		InvoicedAt:        now,
		BaseModel:         types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().TransactionRepo.Create(s.GetContext(), txn))
}
