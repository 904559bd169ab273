package service

import (
	"context"
	"time"

	"github.com/stackbill/stackbill/internal/domain/tenant"
	"github.com/stackbill/stackbill/internal/domain/tier"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// TierChangeMode says how a tier change touches the subscription period.
type TierChangeMode string

const (
	// TierChangeImmediate keeps the current period end: the tenant paid a
	// prorated amount for exactly the days that remain.
	TierChangeImmediate TierChangeMode = "immediate"

	// TierChangeRestartPeriod starts a fresh period at the new tier, used for
	// boundary downgrades and for tenants with no active period.
	TierChangeRestartPeriod TierChangeMode = "restart_period"
)

// ApplyTierChangeInput describes one entitlement mutation.
type ApplyTierChangeInput struct {
	TenantID      string
	NewTier       *tier.Tier
	BillingPeriod types.BillingPeriod
	Mode          TierChangeMode
	BonusDays     int
	Now           time.Time
}

// EntitlementService is the single writer of tenant tier and entitlement
// fields. Every approved change funnels through ApplyTierChange so limits,
// features, and period handling cannot drift between the approval, sweep, and
// manual-extension paths.
type EntitlementService interface {
	// ApplyTierChange mutates the tenant in place. Must run inside the
	// caller's transaction under the tenant's lock; the caller emits events
	// after commit.
	ApplyTierChange(ctx context.Context, in ApplyTierChangeInput) (*tenant.Tenant, error)

	// ExtendSubscription pushes the period end out by the given days.
	ExtendSubscription(ctx context.Context, tenantID string, days int, now time.Time) (*tenant.Tenant, error)
}

type entitlementService struct {
	ServiceParams
}

func NewEntitlementService(params ServiceParams) EntitlementService {
	return &entitlementService{ServiceParams: params}
}

func (s *entitlementService) ApplyTierChange(ctx context.Context, in ApplyTierChangeInput) (*tenant.Tenant, error) {
	if in.NewTier == nil {
		return nil, ierr.NewError("tier is required").Mark(ierr.ErrInternal)
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	if err := in.BillingPeriod.Validate(); err != nil {
		return nil, err
	}

	t, err := s.TenantRepo.Get(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}

	t.TierCode = in.NewTier.Code
	t.BillingPeriod = in.BillingPeriod
	t.MaxUsers = in.NewTier.MaxUsers
	t.MaxBranches = in.NewTier.MaxBranches
	t.MaxStorageMB = in.NewTier.MaxStorageMB
	t.Features = in.NewTier.Features

	// A materialized change supersedes any scheduled one.
	t.ScheduledTierCode = nil
	t.ScheduledTierEffectiveAt = nil

	switch in.Mode {
	case TierChangeImmediate:
		if t.SubscriptionEndsAt == nil {
			return nil, ierr.NewError("tenant has no active period for an immediate change").
				WithHint("Immediate changes require an active subscription period").
				Mark(ierr.ErrInvalidOperation)
		}
	case TierChangeRestartPeriod:
		start := in.Now
		var end time.Time
		if in.BillingPeriod == types.BILLING_PERIOD_YEARLY {
			end = start.AddDate(1, 0, 0)
		} else {
			end = start.AddDate(0, 1, 0)
		}
		t.SubscriptionStartsAt = &start
		t.SubscriptionEndsAt = &end
	default:
		return nil, ierr.NewErrorf("unknown tier change mode %s", in.Mode).Mark(ierr.ErrInternal)
	}

	if in.BonusDays > 0 && t.SubscriptionEndsAt != nil {
		extended := t.SubscriptionEndsAt.AddDate(0, 0, in.BonusDays)
		t.SubscriptionEndsAt = &extended
	}

	t.UpdatedAt = in.Now
	t.UpdatedBy = types.GetActorID(ctx)

	if err := s.TenantRepo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.Logger.Infow("applied tier change",
		"tenant_id", t.ID,
		"tier_code", t.TierCode,
		"billing_period", t.BillingPeriod,
		"mode", in.Mode,
		"bonus_days", in.BonusDays)
	return t, nil
}

func (s *entitlementService) ExtendSubscription(ctx context.Context, tenantID string, days int, now time.Time) (*tenant.Tenant, error) {
	if days <= 0 {
		return nil, ierr.NewError("extension days must be positive").
			Mark(ierr.ErrValidation)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	t, err := s.TenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.SubscriptionEndsAt == nil {
		return nil, ierr.NewError("tenant has no subscription period to extend").
			WithHint("Start a subscription before extending it").
			Mark(ierr.ErrInvalidOperation)
	}

	extended := t.SubscriptionEndsAt.AddDate(0, 0, days)
	t.SubscriptionEndsAt = &extended
	t.UpdatedAt = now
	t.UpdatedBy = types.GetActorID(ctx)

	if err := s.TenantRepo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.Logger.Infow("extended subscription", "tenant_id", t.ID, "days", days, "new_end", extended)
	return t, nil
}
