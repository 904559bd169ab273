package testutil

import (
	"context"

	"github.com/stackbill/stackbill/internal/domain/tier"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// InMemoryTierStore is an in-memory implementation of tier.Repository.
type InMemoryTierStore struct {
	*InMemoryStore[*tier.Tier]
}

var _ tier.Repository = (*InMemoryTierStore)(nil)

func NewInMemoryTierStore() *InMemoryTierStore {
	return &InMemoryTierStore{InMemoryStore: NewInMemoryStore[*tier.Tier]()}
}

func copyTier(t *tier.Tier) *tier.Tier {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Features = append([]string(nil), t.Features...)
	return &cp
}

func (s *InMemoryTierStore) Create(ctx context.Context, t *tier.Tier) error {
	if t == nil {
		return ierr.NewError("tier cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, t.ID, copyTier(t))
}

func (s *InMemoryTierStore) Get(ctx context.Context, id string) (*tier.Tier, error) {
	t, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == types.StatusDeleted {
		return nil, ierr.NewErrorf("tier %s not found", id).Mark(ierr.ErrNotFound)
	}
	return copyTier(t), nil
}

func (s *InMemoryTierStore) GetByCode(ctx context.Context, code string) (*tier.Tier, error) {
	matches := s.InMemoryStore.List(ctx, func(_ context.Context, t *tier.Tier) bool {
		return t.Code == code && t.Status != types.StatusDeleted
	}, nil)
	if len(matches) == 0 {
		return nil, ierr.NewErrorf("tier %s not found", code).Mark(ierr.ErrNotFound)
	}
	return copyTier(matches[0]), nil
}

func (s *InMemoryTierStore) List(ctx context.Context, filter *types.QueryFilter) ([]*tier.Tier, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	tiers := s.InMemoryStore.List(ctx, func(_ context.Context, t *tier.Tier) bool {
		return t.Status == types.StatusPublished
	}, func(a, b *tier.Tier) bool {
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.Code < b.Code
	})

	out := paginate(tiers, filter)
	copied := make([]*tier.Tier, len(out))
	for i, t := range out {
		copied[i] = copyTier(t)
	}
	return copied, nil
}

func (s *InMemoryTierStore) Update(ctx context.Context, t *tier.Tier) error {
	if t == nil {
		return ierr.NewError("tier cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Update(ctx, t.ID, copyTier(t))
}

func (s *InMemoryTierStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Mutate(ctx, id, func(t *tier.Tier) error {
		t.Status = types.StatusDeleted
		return nil
	})
}

func (s *InMemoryTierStore) ExistsByCode(ctx context.Context, code string) (bool, error) {
	n := s.InMemoryStore.Count(ctx, func(_ context.Context, t *tier.Tier) bool {
		return t.Code == code && t.Status != types.StatusDeleted
	})
	return n > 0, nil
}

func paginate[T any](items []T, filter *types.QueryFilter) []T {
	offset := filter.GetOffset()
	limit := filter.GetLimit()
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
