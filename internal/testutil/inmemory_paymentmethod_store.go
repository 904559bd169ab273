package testutil

import (
	"context"

	"github.com/stackbill/stackbill/internal/domain/paymentmethod"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// InMemoryPaymentMethodStore is an in-memory implementation of
// paymentmethod.Repository. Insert seeds entries for tests.
type InMemoryPaymentMethodStore struct {
	*InMemoryStore[*paymentmethod.PaymentMethod]
}

var _ paymentmethod.Repository = (*InMemoryPaymentMethodStore)(nil)

func NewInMemoryPaymentMethodStore() *InMemoryPaymentMethodStore {
	return &InMemoryPaymentMethodStore{InMemoryStore: NewInMemoryStore[*paymentmethod.PaymentMethod]()}
}

func (s *InMemoryPaymentMethodStore) Insert(ctx context.Context, pm *paymentmethod.PaymentMethod) error {
	if pm == nil {
		return ierr.NewError("payment method cannot be nil").Mark(ierr.ErrValidation)
	}
	cp := *pm
	return s.InMemoryStore.Create(ctx, pm.ID, &cp)
}

func (s *InMemoryPaymentMethodStore) Get(ctx context.Context, id string) (*paymentmethod.PaymentMethod, error) {
	pm, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cp := *pm
	return &cp, nil
}

func (s *InMemoryPaymentMethodStore) ListActive(ctx context.Context) ([]*paymentmethod.PaymentMethod, error) {
	methods := s.InMemoryStore.List(ctx, func(_ context.Context, pm *paymentmethod.PaymentMethod) bool {
		return pm.Active && pm.Status == types.StatusPublished
	}, func(a, b *paymentmethod.PaymentMethod) bool {
		return a.Name < b.Name
	})
	out := make([]*paymentmethod.PaymentMethod, len(methods))
	for i, pm := range methods {
		cp := *pm
		out[i] = &cp
	}
	return out, nil
}
