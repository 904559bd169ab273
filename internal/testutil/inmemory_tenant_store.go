package testutil

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/domain/tenant"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// InMemoryTenantStore is an in-memory implementation of tenant.Repository.
// Insert seeds tenants for tests; the production interface has no create.
type InMemoryTenantStore struct {
	*InMemoryStore[*tenant.Tenant]
}

var _ tenant.Repository = (*InMemoryTenantStore)(nil)

func NewInMemoryTenantStore() *InMemoryTenantStore {
	return &InMemoryTenantStore{InMemoryStore: NewInMemoryStore[*tenant.Tenant]()}
}

func copyTenant(t *tenant.Tenant) *tenant.Tenant {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Features = append([]string(nil), t.Features...)
	return &cp
}

// Insert seeds a tenant record.
func (s *InMemoryTenantStore) Insert(ctx context.Context, t *tenant.Tenant) error {
	if t == nil {
		return ierr.NewError("tenant cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, t.ID, copyTenant(t))
}

func (s *InMemoryTenantStore) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == types.StatusDeleted {
		return nil, ierr.NewErrorf("tenant %s not found", id).Mark(ierr.ErrNotFound)
	}
	return copyTenant(t), nil
}

func (s *InMemoryTenantStore) Update(ctx context.Context, t *tenant.Tenant) error {
	if t == nil {
		return ierr.NewError("tenant cannot be nil").Mark(ierr.ErrValidation)
	}
	// Preserve the balance held in the store; it only moves through
	// AddCreditBalance.
	return s.InMemoryStore.Mutate(ctx, t.ID, func(stored *tenant.Tenant) error {
		balance := stored.CreditBalance
		*stored = *copyTenant(t)
		stored.CreditBalance = balance
		return nil
	})
}

func (s *InMemoryTenantStore) AddCreditBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.InMemoryStore.Mutate(ctx, id, func(t *tenant.Tenant) error {
		next := t.CreditBalance.Add(delta)
		if next.IsNegative() {
			return ierr.NewError("insufficient credit balance").
				WithHintf("Credit adjustment of %s would make the balance negative", delta.String()).
				Mark(ierr.ErrValidation)
		}
		t.CreditBalance = next
		balance = next
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (s *InMemoryTenantStore) CountByTierCode(ctx context.Context, code string) (int, error) {
	n := s.InMemoryStore.Count(ctx, func(_ context.Context, t *tenant.Tenant) bool {
		if t.Status == types.StatusDeleted {
			return false
		}
		if t.TierCode == code {
			return true
		}
		return t.ScheduledTierCode != nil && *t.ScheduledTierCode == code
	})
	return n, nil
}

func (s *InMemoryTenantStore) ListDowngradesDue(ctx context.Context, now time.Time) ([]*tenant.Tenant, error) {
	tenants := s.InMemoryStore.List(ctx, func(_ context.Context, t *tenant.Tenant) bool {
		return t.Status != types.StatusDeleted &&
			t.ScheduledTierCode != nil &&
			t.ScheduledTierEffectiveAt != nil &&
			!t.ScheduledTierEffectiveAt.After(now)
	}, func(a, b *tenant.Tenant) bool {
		return a.ScheduledTierEffectiveAt.Before(*b.ScheduledTierEffectiveAt)
	})
	out := make([]*tenant.Tenant, len(tenants))
	for i, t := range tenants {
		out[i] = copyTenant(t)
	}
	return out, nil
}
