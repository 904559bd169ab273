package service

import (
	"context"
	"time"

	"github.com/stackbill/stackbill/internal/api/dto"
	"github.com/stackbill/stackbill/internal/cache"
	"github.com/stackbill/stackbill/internal/domain/tier"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// TierService manages the subscription tier catalog.
type TierService interface {
	CreateTier(ctx context.Context, req *dto.CreateTierRequest) (*dto.TierResponse, error)
	GetTier(ctx context.Context, id string) (*dto.TierResponse, error)
	GetTierByCode(ctx context.Context, code string) (*dto.TierResponse, error)
	ListTiers(ctx context.Context, filter *types.QueryFilter) (*dto.ListTiersResponse, error)
	UpdateTier(ctx context.Context, id string, req *dto.UpdateTierRequest) (*dto.TierResponse, error)
	DeleteTier(ctx context.Context, id string) error
}

type tierService struct {
	ServiceParams
}

func NewTierService(params ServiceParams) TierService {
	return &tierService{ServiceParams: params}
}

func (s *tierService) CreateTier(ctx context.Context, req *dto.CreateTierRequest) (*dto.TierResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.TierRepo.ExistsByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ierr.NewErrorf("tier with code %s already exists", req.Code).
			WithHint("Tier codes must be unique").
			Mark(ierr.ErrAlreadyExists)
	}

	t := req.ToTier(ctx)
	if err := s.TierRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.invalidateTierCache(ctx)

	s.Logger.Infow("created tier", "tier_id", t.ID, "tier_code", t.Code)
	return &dto.TierResponse{Tier: t}, nil
}

func (s *tierService) GetTier(ctx context.Context, id string) (*dto.TierResponse, error) {
	t, err := s.TierRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.TierResponse{Tier: t}, nil
}

func (s *tierService) GetTierByCode(ctx context.Context, code string) (*dto.TierResponse, error) {
	if cached, ok := s.Cache.Get(ctx, cache.TierKey(code)); ok {
		if t, ok := cached.(*tier.Tier); ok {
			return &dto.TierResponse{Tier: t}, nil
		}
	}

	t, err := s.TierRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, cache.TierKey(code), t, s.Config.Cache.TTL)
	return &dto.TierResponse{Tier: t}, nil
}

func (s *tierService) ListTiers(ctx context.Context, filter *types.QueryFilter) (*dto.ListTiersResponse, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	tiers, err := s.TierRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := &dto.ListTiersResponse{Items: make([]*dto.TierResponse, len(tiers))}
	for i, t := range tiers {
		resp.Items[i] = &dto.TierResponse{Tier: t}
	}
	return resp, nil
}

func (s *tierService) UpdateTier(ctx context.Context, id string, req *dto.UpdateTierRequest) (*dto.TierResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t, err := s.TierRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.MonthlyPrice != nil {
		t.MonthlyPrice = *req.MonthlyPrice
	}
	if req.YearlyPrice != nil {
		t.YearlyPrice = *req.YearlyPrice
	}
	if req.MaxUsers != nil {
		t.MaxUsers = *req.MaxUsers
	}
	if req.MaxBranches != nil {
		t.MaxBranches = *req.MaxBranches
	}
	if req.MaxStorageMB != nil {
		t.MaxStorageMB = *req.MaxStorageMB
	}
	if req.Features != nil {
		t.Features = req.Features
	}
	if req.TrialDays != nil {
		t.TrialDays = *req.TrialDays
	}
	if req.DisplayOrder != nil {
		t.DisplayOrder = *req.DisplayOrder
	}
	t.UpdatedAt = time.Now().UTC()
	t.UpdatedBy = types.GetActorID(ctx)

	if err := s.TierRepo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.invalidateTierCache(ctx)

	s.Logger.Infow("updated tier", "tier_id", t.ID, "tier_code", t.Code)
	return &dto.TierResponse{Tier: t}, nil
}

// DeleteTier soft-deletes a tier. Deletion is blocked while any tenant sits
// on the tier or has a scheduled downgrade to it.
func (s *tierService) DeleteTier(ctx context.Context, id string) error {
	t, err := s.TierRepo.Get(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.TenantRepo.CountByTierCode(ctx, t.Code)
	if err != nil {
		return err
	}
	if count > 0 {
		return ierr.NewErrorf("tier %s is still in use", t.Code).
			WithHintf("%d tenants reference this tier; move them first", count).
			WithReportableDetails(map[string]interface{}{
				"tier_code":    t.Code,
				"tenant_count": count,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	if err := s.TierRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateTierCache(ctx)

	s.Logger.Infow("deleted tier", "tier_id", id, "tier_code", t.Code)
	return nil
}

func (s *tierService) invalidateTierCache(ctx context.Context) {
	s.Cache.DeleteByPrefix(ctx, "tier:")
}
