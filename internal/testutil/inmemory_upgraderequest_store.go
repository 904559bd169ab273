package testutil

import (
	"context"
	"time"

	"github.com/stackbill/stackbill/internal/domain/upgraderequest"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// InMemoryUpgradeRequestStore is an in-memory implementation of
// upgraderequest.Repository.
type InMemoryUpgradeRequestStore struct {
	*InMemoryStore[*upgraderequest.UpgradeRequest]
}

var _ upgraderequest.Repository = (*InMemoryUpgradeRequestStore)(nil)

func NewInMemoryUpgradeRequestStore() *InMemoryUpgradeRequestStore {
	return &InMemoryUpgradeRequestStore{InMemoryStore: NewInMemoryStore[*upgraderequest.UpgradeRequest]()}
}

func copyUpgradeRequest(r *upgraderequest.UpgradeRequest) *upgraderequest.UpgradeRequest {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

func (s *InMemoryUpgradeRequestStore) Create(ctx context.Context, r *upgraderequest.UpgradeRequest) error {
	if r == nil {
		return ierr.NewError("upgrade request cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, r.ID, copyUpgradeRequest(r))
}

func (s *InMemoryUpgradeRequestStore) Get(ctx context.Context, id string) (*upgraderequest.UpgradeRequest, error) {
	r, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyUpgradeRequest(r), nil
}

func (s *InMemoryUpgradeRequestStore) GetByRequestNumber(ctx context.Context, number string) (*upgraderequest.UpgradeRequest, error) {
	matches := s.InMemoryStore.List(ctx, func(_ context.Context, r *upgraderequest.UpgradeRequest) bool {
		return r.RequestNumber == number
	}, nil)
	if len(matches) == 0 {
		return nil, ierr.NewErrorf("upgrade request %s not found", number).Mark(ierr.ErrNotFound)
	}
	return copyUpgradeRequest(matches[0]), nil
}

func (s *InMemoryUpgradeRequestStore) Update(ctx context.Context, r *upgraderequest.UpgradeRequest) error {
	if r == nil {
		return ierr.NewError("upgrade request cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Update(ctx, r.ID, copyUpgradeRequest(r))
}

func (s *InMemoryUpgradeRequestStore) CountNonTerminalByTenant(ctx context.Context, tenantID string) (int, error) {
	now := time.Now().UTC()
	n := s.InMemoryStore.Count(ctx, func(_ context.Context, r *upgraderequest.UpgradeRequest) bool {
		return r.TenantID == tenantID && !r.EffectiveStatus(now).IsTerminal()
	})
	return n, nil
}

func (s *InMemoryUpgradeRequestStore) ListByTenant(ctx context.Context, tenantID string, filter *types.QueryFilter) ([]*upgraderequest.UpgradeRequest, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	reqs := s.InMemoryStore.List(ctx, func(_ context.Context, r *upgraderequest.UpgradeRequest) bool {
		return r.TenantID == tenantID
	}, func(a, b *upgraderequest.UpgradeRequest) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})

	out := paginate(reqs, filter)
	copied := make([]*upgraderequest.UpgradeRequest, len(out))
	for i, r := range out {
		copied[i] = copyUpgradeRequest(r)
	}
	return copied, nil
}

func (s *InMemoryUpgradeRequestStore) ListExpiredPending(ctx context.Context, now time.Time) ([]*upgraderequest.UpgradeRequest, error) {
	reqs := s.InMemoryStore.List(ctx, func(_ context.Context, r *upgraderequest.UpgradeRequest) bool {
		return r.IsExpired(now)
	}, func(a, b *upgraderequest.UpgradeRequest) bool {
		return a.ExpiresAt.Before(*b.ExpiresAt)
	})
	copied := make([]*upgraderequest.UpgradeRequest, len(reqs))
	for i, r := range reqs {
		copied[i] = copyUpgradeRequest(r)
	}
	return copied, nil
}
