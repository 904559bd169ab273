package upgraderequest

import (
	"context"
	"time"

	"github.com/stackbill/stackbill/internal/types"
)

// Repository defines the interface for upgrade request persistence.
type Repository interface {
	Create(ctx context.Context, r *UpgradeRequest) error
	Get(ctx context.Context, id string) (*UpgradeRequest, error)
	GetByRequestNumber(ctx context.Context, number string) (*UpgradeRequest, error)
	Update(ctx context.Context, r *UpgradeRequest) error

	// CountNonTerminalByTenant counts requests in the one-in-flight set
	// (pending, payment_uploaded, under_review) for the tenant. Must be
	// called under the tenant's lock when guarding a create.
	CountNonTerminalByTenant(ctx context.Context, tenantID string) (int, error)

	// ListByTenant returns the tenant's requests, newest first.
	ListByTenant(ctx context.Context, tenantID string, filter *types.QueryFilter) ([]*UpgradeRequest, error)

	// ListExpiredPending returns pending requests whose expiry has passed,
	// for the idempotent materialize-expiry sweep.
	ListExpiredPending(ctx context.Context, now time.Time) ([]*UpgradeRequest, error)
}
