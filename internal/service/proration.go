package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/api/dto"
	"github.com/stackbill/stackbill/internal/domain/proration"
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// ProrationService quotes tier changes without side effects.
type ProrationService interface {
	PreviewTierChange(ctx context.Context, req *dto.ProrationPreviewRequest) (*dto.ProrationPreviewResponse, error)
}

type prorationService struct {
	ServiceParams
	couponService CouponService
}

func NewProrationService(params ServiceParams) ProrationService {
	return &prorationService{
		ServiceParams: params,
		couponService: NewCouponService(params),
	}
}

// PreviewTierChange computes the same breakdown request creation would use.
// Nothing is persisted; the preview can be repeated freely.
func (s *prorationService) PreviewTierChange(ctx context.Context, req *dto.ProrationPreviewRequest) (*dto.ProrationPreviewResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t, err := s.TenantRepo.Get(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	if t.TierCode == req.ToTierCode && t.BillingPeriod == req.BillingPeriod {
		return nil, ierr.NewError("tenant is already on the requested tier").
			WithHint("Choose a different tier or billing period").
			Mark(ierr.ErrInvalidOperation)
	}

	currentTier, err := s.TierRepo.GetByCode(ctx, t.TierCode)
	if err != nil {
		return nil, err
	}
	newTier, err := s.TierRepo.GetByCode(ctx, req.ToTierCode)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result, err := s.ProrationCalc.Calculate(proration.Params{
		CurrentPrice:  currentTier.PriceFor(req.BillingPeriod),
		NewPrice:      newTier.PriceFor(req.BillingPeriod),
		BillingPeriod: req.BillingPeriod,
		PeriodEnd:     t.SubscriptionEndsAt,
		CreditBalance: t.CreditBalance,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	resp := &dto.ProrationPreviewResponse{
		FromTierCode: t.TierCode,
		ToTierCode:   req.ToTierCode,
		Result:       *result,
		TotalDue:     result.AmountDue,
	}

	if req.CouponCode != "" {
		_, discount, err := s.couponService.ValidateForPurchase(ctx, ValidateForPurchaseInput{
			Code:          req.CouponCode,
			TenantID:      req.TenantID,
			TierCode:      req.ToTierCode,
			BillingPeriod: req.BillingPeriod,
			Amount:        result.AmountDue,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		resp.DiscountAmount = discount.Discount
		resp.DiscountDescription = discount.Description
		resp.BonusDays = discount.BonusDays
		resp.TotalDue = decimal.Max(decimal.Zero, result.AmountDue.Sub(discount.Discount))
	}

	return resp, nil
}
