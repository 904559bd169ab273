package testutil

import (
	"context"

	"github.com/stackbill/stackbill/internal/domain/couponredemption"
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// InMemoryCouponRedemptionStore is an in-memory implementation of
// couponredemption.Repository.
type InMemoryCouponRedemptionStore struct {
	*InMemoryStore[*couponredemption.CouponRedemption]
}

var _ couponredemption.Repository = (*InMemoryCouponRedemptionStore)(nil)

func NewInMemoryCouponRedemptionStore() *InMemoryCouponRedemptionStore {
	return &InMemoryCouponRedemptionStore{InMemoryStore: NewInMemoryStore[*couponredemption.CouponRedemption]()}
}

func copyRedemption(r *couponredemption.CouponRedemption) *couponredemption.CouponRedemption {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

func (s *InMemoryCouponRedemptionStore) Create(ctx context.Context, r *couponredemption.CouponRedemption) error {
	if r == nil {
		return ierr.NewError("coupon redemption cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, r.ID, copyRedemption(r))
}

func (s *InMemoryCouponRedemptionStore) Get(ctx context.Context, id string) (*couponredemption.CouponRedemption, error) {
	r, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyRedemption(r), nil
}

func (s *InMemoryCouponRedemptionStore) CountByCouponAndTenant(ctx context.Context, couponID, tenantID string) (int, error) {
	n := s.InMemoryStore.Count(ctx, func(_ context.Context, r *couponredemption.CouponRedemption) bool {
		return r.CouponID == couponID && r.TenantID == tenantID
	})
	return n, nil
}

func (s *InMemoryCouponRedemptionStore) GetByCouponAndTransaction(ctx context.Context, couponID, transactionID string) (*couponredemption.CouponRedemption, error) {
	matches := s.InMemoryStore.List(ctx, func(_ context.Context, r *couponredemption.CouponRedemption) bool {
		return r.CouponID == couponID && r.TransactionID == transactionID
	}, nil)
	if len(matches) == 0 {
		return nil, ierr.NewError("no redemption for this coupon and transaction").Mark(ierr.ErrNotFound)
	}
	return copyRedemption(matches[0]), nil
}

func (s *InMemoryCouponRedemptionStore) ListByTenant(ctx context.Context, tenantID string) ([]*couponredemption.CouponRedemption, error) {
	redemptions := s.InMemoryStore.List(ctx, func(_ context.Context, r *couponredemption.CouponRedemption) bool {
		return r.TenantID == tenantID
	}, func(a, b *couponredemption.CouponRedemption) bool {
		return a.AppliedAt.After(b.AppliedAt)
	})
	out := make([]*couponredemption.CouponRedemption, len(redemptions))
	for i, r := range redemptions {
		out[i] = copyRedemption(r)
	}
	return out, nil
}
