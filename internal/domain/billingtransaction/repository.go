package billingtransaction

import (
	"context"

	"github.com/stackbill/stackbill/internal/types"
)

// Repository defines the interface for billing transaction persistence.
type Repository interface {
	Create(ctx context.Context, t *BillingTransaction) error
	Get(ctx context.Context, id string) (*BillingTransaction, error)
	GetByNumber(ctx context.Context, number string) (*BillingTransaction, error)
	// GetByRequestID returns the ledger row linked to an upgrade request.
	GetByRequestID(ctx context.Context, requestID string) (*BillingTransaction, error)
	Update(ctx context.Context, t *BillingTransaction) error

	ListByTenant(ctx context.Context, tenantID string, filter *types.QueryFilter) ([]*BillingTransaction, error)

	// CountPaidByTenant counts paid rows for the tenant. Used by the coupon
	// validator's first-time-only restriction.
	CountPaidByTenant(ctx context.Context, tenantID string) (int, error)
}
