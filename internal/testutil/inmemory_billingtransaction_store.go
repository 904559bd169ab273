package testutil

import (
	"context"

	"github.com/stackbill/stackbill/internal/domain/billingtransaction"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// InMemoryBillingTransactionStore is an in-memory implementation of
// billingtransaction.Repository.
type InMemoryBillingTransactionStore struct {
	*InMemoryStore[*billingtransaction.BillingTransaction]
}

var _ billingtransaction.Repository = (*InMemoryBillingTransactionStore)(nil)

func NewInMemoryBillingTransactionStore() *InMemoryBillingTransactionStore {
	return &InMemoryBillingTransactionStore{InMemoryStore: NewInMemoryStore[*billingtransaction.BillingTransaction]()}
}

func copyBillingTransaction(t *billingtransaction.BillingTransaction) *billingtransaction.BillingTransaction {
	if t == nil {
		return nil
	}
	cp := *t
	cp.AdminNotes = append([]billingtransaction.Note(nil), t.AdminNotes...)
	return &cp
}

func (s *InMemoryBillingTransactionStore) Create(ctx context.Context, t *billingtransaction.BillingTransaction) error {
	if t == nil {
		return ierr.NewError("billing transaction cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, t.ID, copyBillingTransaction(t))
}

func (s *InMemoryBillingTransactionStore) Get(ctx context.Context, id string) (*billingtransaction.BillingTransaction, error) {
	t, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyBillingTransaction(t), nil
}

func (s *InMemoryBillingTransactionStore) GetByNumber(ctx context.Context, number string) (*billingtransaction.BillingTransaction, error) {
	matches := s.InMemoryStore.List(ctx, func(_ context.Context, t *billingtransaction.BillingTransaction) bool {
		return t.TransactionNumber == number
	}, nil)
	if len(matches) == 0 {
		return nil, ierr.NewErrorf("billing transaction %s not found", number).Mark(ierr.ErrNotFound)
	}
	return copyBillingTransaction(matches[0]), nil
}

func (s *InMemoryBillingTransactionStore) GetByRequestID(ctx context.Context, requestID string) (*billingtransaction.BillingTransaction, error) {
	matches := s.InMemoryStore.List(ctx, func(_ context.Context, t *billingtransaction.BillingTransaction) bool {
		id, ok := t.Link.RequestID()
		return ok && id == requestID
	}, nil)
	if len(matches) == 0 {
		return nil, ierr.NewErrorf("no billing transaction for request %s", requestID).Mark(ierr.ErrNotFound)
	}
	return copyBillingTransaction(matches[0]), nil
}

func (s *InMemoryBillingTransactionStore) Update(ctx context.Context, t *billingtransaction.BillingTransaction) error {
	if t == nil {
		return ierr.NewError("billing transaction cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Update(ctx, t.ID, copyBillingTransaction(t))
}

func (s *InMemoryBillingTransactionStore) ListByTenant(ctx context.Context, tenantID string, filter *types.QueryFilter) ([]*billingtransaction.BillingTransaction, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	txns := s.InMemoryStore.List(ctx, func(_ context.Context, t *billingtransaction.BillingTransaction) bool {
		return t.TenantID == tenantID
	}, func(a, b *billingtransaction.BillingTransaction) bool {
		return a.InvoicedAt.After(b.InvoicedAt)
	})

	out := paginate(txns, filter)
	copied := make([]*billingtransaction.BillingTransaction, len(out))
	for i, t := range out {
		copied[i] = copyBillingTransaction(t)
	}
	return copied, nil
}

func (s *InMemoryBillingTransactionStore) CountPaidByTenant(ctx context.Context, tenantID string) (int, error) {
	n := s.InMemoryStore.Count(ctx, func(_ context.Context, t *billingtransaction.BillingTransaction) bool {
		return t.TenantID == tenantID && t.Status == types.TransactionStatusPaid
	})
	return n, nil
}
