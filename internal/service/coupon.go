package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/api/dto"
	"github.com/stackbill/stackbill/internal/domain/coupon"
	"github.com/stackbill/stackbill/internal/domain/couponredemption"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// CouponService manages coupon definitions and enforces the redemption rules.
type CouponService interface {
	CreateCoupon(ctx context.Context, req *dto.CreateCouponRequest) (*dto.CouponResponse, error)
	GetCoupon(ctx context.Context, id string) (*dto.CouponResponse, error)
	GetCouponByCode(ctx context.Context, code string) (*dto.CouponResponse, error)
	ListCoupons(ctx context.Context, filter *types.QueryFilter) (*dto.ListCouponsResponse, error)
	UpdateCoupon(ctx context.Context, id string, req *dto.UpdateCouponRequest) (*dto.CouponResponse, error)
	DeleteCoupon(ctx context.Context, id string) error

	// ValidateCoupon is the dry-run check: it never mutates state and reports
	// the first failed rule as a tenant-facing reason.
	ValidateCoupon(ctx context.Context, req *dto.ValidateCouponRequest) (*dto.CouponValidationResponse, error)

	// ValidateForPurchase runs the full rule chain and returns the coupon and
	// computed discount on success. Checks run in a fixed order and the first
	// failure wins.
	ValidateForPurchase(ctx context.Context, in ValidateForPurchaseInput) (*coupon.Coupon, *coupon.DiscountResult, error)

	// RedeemCoupon records a redemption and bumps the counter as one atomic
	// step. Must be called inside the purchase transaction; it takes the
	// coupon's lock so concurrent redemptions serialize at the cap.
	RedeemCoupon(ctx context.Context, in RedeemCouponInput) (*couponredemption.CouponRedemption, error)
}

// ValidateForPurchaseInput identifies the purchase a coupon is applied to.
type ValidateForPurchaseInput struct {
	Code          string
	TenantID      string
	TierCode      string
	BillingPeriod types.BillingPeriod
	Amount        decimal.Decimal
	Now           time.Time
}

// RedeemCouponInput snapshots what gets written into the redemption row.
type RedeemCouponInput struct {
	Coupon           *coupon.Coupon
	TenantID         string
	UpgradeRequestID *string
	TransactionID    string
	Discount         coupon.DiscountResult
	Now              time.Time
}

type couponService struct {
	ServiceParams
}

func NewCouponService(params ServiceParams) CouponService {
	return &couponService{ServiceParams: params}
}

func (s *couponService) CreateCoupon(ctx context.Context, req *dto.CreateCouponRequest) (*dto.CouponResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.CouponRepo.ExistsByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ierr.NewErrorf("coupon with code %s already exists", coupon.NormalizeCode(req.Code)).
			WithHint("Coupon codes must be unique").
			Mark(ierr.ErrAlreadyExists)
	}

	c := req.ToCoupon(ctx)
	if err := s.CouponRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.Logger.Infow("created coupon", "coupon_id", c.ID, "coupon_code", c.Code, "coupon_type", c.Type)
	return &dto.CouponResponse{Coupon: c}, nil
}

func (s *couponService) GetCoupon(ctx context.Context, id string) (*dto.CouponResponse, error) {
	c, err := s.CouponRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.CouponResponse{Coupon: c}, nil
}

func (s *couponService) GetCouponByCode(ctx context.Context, code string) (*dto.CouponResponse, error) {
	c, err := s.CouponRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &dto.CouponResponse{Coupon: c}, nil
}

func (s *couponService) ListCoupons(ctx context.Context, filter *types.QueryFilter) (*dto.ListCouponsResponse, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	coupons, err := s.CouponRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := &dto.ListCouponsResponse{Items: make([]*dto.CouponResponse, len(coupons))}
	for i, c := range coupons {
		resp.Items[i] = &dto.CouponResponse{Coupon: c}
	}
	return resp, nil
}

func (s *couponService) UpdateCoupon(ctx context.Context, id string, req *dto.UpdateCouponRequest) (*dto.CouponResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c, err := s.CouponRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.MaxRedemptions != nil {
		c.MaxRedemptions = req.MaxRedemptions
	}
	if req.MaxRedemptionsPerTenant != nil {
		c.MaxRedemptionsPerTenant = req.MaxRedemptionsPerTenant
	}
	if req.TierCodes != nil {
		c.TierCodes = req.TierCodes
	}
	if req.BillingPeriods != nil {
		c.BillingPeriods = req.BillingPeriods
	}
	if req.RedeemAfter != nil {
		c.RedeemAfter = req.RedeemAfter
	}
	if req.RedeemBefore != nil {
		c.RedeemBefore = req.RedeemBefore
	}
	if req.MinimumAmount != nil {
		c.MinimumAmount = req.MinimumAmount
	}
	if req.Archive {
		c.Status = types.StatusArchived
	}
	c.UpdatedAt = time.Now().UTC()
	c.UpdatedBy = types.GetActorID(ctx)

	if err := s.CouponRepo.Update(ctx, c); err != nil {
		return nil, err
	}

	s.Logger.Infow("updated coupon", "coupon_id", c.ID, "coupon_code", c.Code)
	return &dto.CouponResponse{Coupon: c}, nil
}

func (s *couponService) DeleteCoupon(ctx context.Context, id string) error {
	if err := s.CouponRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.Logger.Infow("deleted coupon", "coupon_id", id)
	return nil
}

func (s *couponService) ValidateCoupon(ctx context.Context, req *dto.ValidateCouponRequest) (*dto.CouponValidationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c, result, err := s.ValidateForPurchase(ctx, ValidateForPurchaseInput{
		Code:          req.Code,
		TenantID:      req.TenantID,
		TierCode:      req.TierCode,
		BillingPeriod: req.BillingPeriod,
		Amount:        req.Amount,
		Now:           time.Now().UTC(),
	})
	if err != nil {
		if ierr.IsValidation(err) || ierr.IsNotFound(err) {
			return &dto.CouponValidationResponse{
				Valid:  false,
				Reason: ierr.Hint(err),
			}, nil
		}
		return nil, err
	}

	return &dto.CouponValidationResponse{
		Valid:       true,
		CouponID:    c.ID,
		Discount:    result.Discount,
		FinalAmount: result.FinalAmount,
		BonusDays:   result.BonusDays,
		Description: result.Description,
	}, nil
}

// ValidateForPurchase runs the rule chain in order: exists, validity window,
// global cap, tier restriction, billing-period restriction, minimum amount,
// per-tenant cap, first-time-only, new-customers-only.
func (s *couponService) ValidateForPurchase(ctx context.Context, in ValidateForPurchaseInput) (*coupon.Coupon, *coupon.DiscountResult, error) {
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	c, err := s.CouponRepo.GetByCode(ctx, in.Code)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil, ierr.NewErrorf("coupon %s does not exist", coupon.NormalizeCode(in.Code)).
				WithHint("This coupon code is not valid").
				Mark(ierr.ErrNotFound)
		}
		return nil, nil, err
	}

	if !c.IsWithinValidityWindow(in.Now) {
		return nil, nil, ierr.NewErrorf("coupon %s is not currently redeemable", c.Code).
			WithHint("This coupon has expired or is not yet active").
			Mark(ierr.ErrValidation)
	}

	if c.IsAtGlobalCap() {
		return nil, nil, ierr.NewErrorf("coupon %s is fully redeemed", c.Code).
			WithHint("This coupon has reached its redemption limit").
			Mark(ierr.ErrValidation)
	}

	if !c.AppliesToTier(in.TierCode) {
		return nil, nil, ierr.NewErrorf("coupon %s does not apply to tier %s", c.Code, in.TierCode).
			WithHint("This coupon is not valid for the selected tier").
			Mark(ierr.ErrValidation)
	}

	if !c.AppliesToBillingPeriod(in.BillingPeriod) {
		return nil, nil, ierr.NewErrorf("coupon %s does not apply to billing period %s", c.Code, in.BillingPeriod).
			WithHint("This coupon is not valid for the selected billing period").
			Mark(ierr.ErrValidation)
	}

	if !c.MeetsMinimumAmount(in.Amount) {
		return nil, nil, ierr.NewErrorf("purchase is below the minimum for coupon %s", c.Code).
			WithHintf("This coupon requires a minimum purchase of %s", c.MinimumAmount.String()).
			Mark(ierr.ErrValidation)
	}

	if c.MaxRedemptionsPerTenant != nil {
		used, err := s.RedemptionRepo.CountByCouponAndTenant(ctx, c.ID, in.TenantID)
		if err != nil {
			return nil, nil, err
		}
		if used >= *c.MaxRedemptionsPerTenant {
			return nil, nil, ierr.NewErrorf("coupon %s already used by this tenant", c.Code).
				WithHint("You have already used this coupon the maximum number of times").
				Mark(ierr.ErrValidation)
		}
	}

	if c.FirstTimeOnly {
		paid, err := s.TransactionRepo.CountPaidByTenant(ctx, in.TenantID)
		if err != nil {
			return nil, nil, err
		}
		if paid > 0 {
			return nil, nil, ierr.NewErrorf("coupon %s is for first purchases only", c.Code).
				WithHint("This coupon is only valid on your first purchase").
				Mark(ierr.ErrValidation)
		}
	}

	if c.NewCustomersOnly {
		t, err := s.TenantRepo.Get(ctx, in.TenantID)
		if err != nil {
			return nil, nil, err
		}
		cutoff := in.Now.AddDate(0, 0, -types.NewCustomerWindowDays)
		if t.CreatedAt.Before(cutoff) {
			return nil, nil, ierr.NewErrorf("coupon %s is for new customers only", c.Code).
				WithHintf("This coupon is only valid within %d days of signup", types.NewCustomerWindowDays).
				Mark(ierr.ErrValidation)
		}
	}

	result := c.ApplyDiscount(in.Amount)
	return c, &result, nil
}

func (s *couponService) RedeemCoupon(ctx context.Context, in RedeemCouponInput) (*couponredemption.CouponRedemption, error) {
	if in.Coupon == nil {
		return nil, ierr.NewError("coupon is required").Mark(ierr.ErrInternal)
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	// Serialize all redemptions of this coupon so the cap check and the
	// counter bump cannot interleave.
	if err := s.DB.LockKey(ctx, types.LockScopeCoupon, map[string]interface{}{
		"coupon_id": in.Coupon.ID,
	}); err != nil {
		return nil, err
	}

	// Retried applications of the same coupon to the same transaction return
	// the original redemption instead of double-counting.
	existing, err := s.RedemptionRepo.GetByCouponAndTransaction(ctx, in.Coupon.ID, in.TransactionID)
	if err == nil {
		return existing, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	if err := s.CouponRepo.IncrementRedemptions(ctx, in.Coupon.ID); err != nil {
		return nil, err
	}

	redemption := &couponredemption.CouponRedemption{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COUPON_REDEMPTION),
		CouponID:         in.Coupon.ID,
		TenantID:         in.TenantID,
		UpgradeRequestID: in.UpgradeRequestID,
		TransactionID:    in.TransactionID,
		CouponCode:       in.Coupon.Code,
		DiscountType:     in.Coupon.Type,
		DiscountValue:    in.Coupon.DiscountValue,
		DiscountAmount:   in.Discount.Discount,
		BonusDays:        in.Discount.BonusDays,
		AppliedAt:        in.Now,
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
	if in.Coupon.DurationMonths > 0 {
		expires := in.Now.AddDate(0, in.Coupon.DurationMonths, 0)
		redemption.ExpiresAt = &expires
	}

	if err := s.RedemptionRepo.Create(ctx, redemption); err != nil {
		return nil, err
	}

	s.Logger.Infow("redeemed coupon",
		"coupon_id", in.Coupon.ID,
		"coupon_code", in.Coupon.Code,
		"tenant_id", in.TenantID,
		"transaction_id", in.TransactionID,
		"discount", in.Discount.Discount)
	return redemption, nil
}
