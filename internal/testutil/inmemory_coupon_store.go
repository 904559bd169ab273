package testutil

import (
	"context"

	"github.com/stackbill/stackbill/internal/domain/coupon"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// InMemoryCouponStore is an in-memory implementation of coupon.Repository.
// IncrementRedemptions runs under the store's write lock, mirroring the
// conditional UPDATE the postgres implementation uses.
type InMemoryCouponStore struct {
	*InMemoryStore[*coupon.Coupon]
}

var _ coupon.Repository = (*InMemoryCouponStore)(nil)

func NewInMemoryCouponStore() *InMemoryCouponStore {
	return &InMemoryCouponStore{InMemoryStore: NewInMemoryStore[*coupon.Coupon]()}
}

func copyCoupon(c *coupon.Coupon) *coupon.Coupon {
	if c == nil {
		return nil
	}
	cp := *c
	cp.TierCodes = append([]string(nil), c.TierCodes...)
	cp.BillingPeriods = append([]types.BillingPeriod(nil), c.BillingPeriods...)
	return &cp
}

func (s *InMemoryCouponStore) Create(ctx context.Context, c *coupon.Coupon) error {
	if c == nil {
		return ierr.NewError("coupon cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, c.ID, copyCoupon(c))
}

func (s *InMemoryCouponStore) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	c, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == types.StatusDeleted {
		return nil, ierr.NewErrorf("coupon %s not found", id).Mark(ierr.ErrNotFound)
	}
	return copyCoupon(c), nil
}

func (s *InMemoryCouponStore) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	normalized := coupon.NormalizeCode(code)
	matches := s.InMemoryStore.List(ctx, func(_ context.Context, c *coupon.Coupon) bool {
		return c.Code == normalized && c.Status != types.StatusDeleted
	}, nil)
	if len(matches) == 0 {
		return nil, ierr.NewErrorf("coupon %s not found", normalized).Mark(ierr.ErrNotFound)
	}
	return copyCoupon(matches[0]), nil
}

func (s *InMemoryCouponStore) List(ctx context.Context, filter *types.QueryFilter) ([]*coupon.Coupon, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	coupons := s.InMemoryStore.List(ctx, func(_ context.Context, c *coupon.Coupon) bool {
		return c.Status != types.StatusDeleted
	}, func(a, b *coupon.Coupon) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})

	out := paginate(coupons, filter)
	copied := make([]*coupon.Coupon, len(out))
	for i, c := range out {
		copied[i] = copyCoupon(c)
	}
	return copied, nil
}

func (s *InMemoryCouponStore) Update(ctx context.Context, c *coupon.Coupon) error {
	if c == nil {
		return ierr.NewError("coupon cannot be nil").Mark(ierr.ErrValidation)
	}
	// The redemption counter only moves through IncrementRedemptions.
	return s.InMemoryStore.Mutate(ctx, c.ID, func(stored *coupon.Coupon) error {
		total := stored.TotalRedemptions
		*stored = *copyCoupon(c)
		stored.TotalRedemptions = total
		return nil
	})
}

func (s *InMemoryCouponStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Mutate(ctx, id, func(c *coupon.Coupon) error {
		c.Status = types.StatusDeleted
		return nil
	})
}

func (s *InMemoryCouponStore) ExistsByCode(ctx context.Context, code string) (bool, error) {
	normalized := coupon.NormalizeCode(code)
	n := s.InMemoryStore.Count(ctx, func(_ context.Context, c *coupon.Coupon) bool {
		return c.Code == normalized && c.Status != types.StatusDeleted
	})
	return n > 0, nil
}

func (s *InMemoryCouponStore) IncrementRedemptions(ctx context.Context, id string) error {
	return s.InMemoryStore.Mutate(ctx, id, func(c *coupon.Coupon) error {
		if c.Status == types.StatusDeleted {
			return ierr.NewErrorf("coupon %s not found", id).Mark(ierr.ErrNotFound)
		}
		if c.IsAtGlobalCap() {
			return ierr.NewError("coupon redemption limit reached").
				WithHint("This coupon has reached its redemption limit").
				Mark(ierr.ErrValidation)
		}
		c.TotalRedemptions++
		return nil
	})
}
