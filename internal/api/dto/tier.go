package dto

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/domain/tier"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
	"github.com/stackbill/stackbill/internal/validator"
)

type CreateTierRequest struct {
	Code         string          `json:"code" validate:"required,max=50"`
	Name         string          `json:"name" validate:"required,max=255"`
	Description  string          `json:"description,omitempty"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	YearlyPrice  decimal.Decimal `json:"yearly_price"`
	MaxUsers     int             `json:"max_users" validate:"min=-1"`
	MaxBranches  int             `json:"max_branches" validate:"min=-1"`
	MaxStorageMB int64           `json:"max_storage_mb" validate:"min=-1"`
	Features     []string        `json:"features,omitempty"`
	TrialDays    int             `json:"trial_days" validate:"min=0"`
	DisplayOrder int             `json:"display_order"`
}

func (r *CreateTierRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.MonthlyPrice.IsNegative() || r.YearlyPrice.IsNegative() {
		return ierr.NewError("tier prices cannot be negative").
			WithHint("Prices must be zero or positive").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *CreateTierRequest) ToTier(ctx context.Context) *tier.Tier {
	return &tier.Tier{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TIER),
		Code:         r.Code,
		Name:         r.Name,
		Description:  r.Description,
		MonthlyPrice: r.MonthlyPrice,
		YearlyPrice:  r.YearlyPrice,
		MaxUsers:     r.MaxUsers,
		MaxBranches:  r.MaxBranches,
		MaxStorageMB: r.MaxStorageMB,
		Features:     r.Features,
		TrialDays:    r.TrialDays,
		DisplayOrder: r.DisplayOrder,
		BaseModel:    types.GetDefaultBaseModel(ctx),
	}
}

// UpdateTierRequest carries a partial update; nil fields are left unchanged.
type UpdateTierRequest struct {
	Name         *string          `json:"name,omitempty" validate:"omitempty,max=255"`
	Description  *string          `json:"description,omitempty"`
	MonthlyPrice *decimal.Decimal `json:"monthly_price,omitempty"`
	YearlyPrice  *decimal.Decimal `json:"yearly_price,omitempty"`
	MaxUsers     *int             `json:"max_users,omitempty" validate:"omitempty,min=-1"`
	MaxBranches  *int             `json:"max_branches,omitempty" validate:"omitempty,min=-1"`
	MaxStorageMB *int64           `json:"max_storage_mb,omitempty" validate:"omitempty,min=-1"`
	Features     []string         `json:"features,omitempty"`
	TrialDays    *int             `json:"trial_days,omitempty" validate:"omitempty,min=0"`
	DisplayOrder *int             `json:"display_order,omitempty"`
}

func (r *UpdateTierRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.MonthlyPrice != nil && r.MonthlyPrice.IsNegative() {
		return ierr.NewError("monthly price cannot be negative").
			WithHint("Prices must be zero or positive").
			Mark(ierr.ErrValidation)
	}
	if r.YearlyPrice != nil && r.YearlyPrice.IsNegative() {
		return ierr.NewError("yearly price cannot be negative").
			WithHint("Prices must be zero or positive").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type TierResponse struct {
	*tier.Tier
}

type ListTiersResponse struct {
	Items []*TierResponse `json:"items"`
}
