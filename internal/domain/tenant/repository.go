package tenant

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository defines the interface for the subscription-relevant slice of
// tenant persistence. Tenant CRUD itself belongs to another subsystem.
type Repository interface {
	Get(ctx context.Context, id string) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error

	// AddCreditBalance atomically adjusts the tenant's credit balance by
	// delta (which may be negative) and returns the new balance. The store
	// must reject a result below zero.
	AddCreditBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error)

	// CountByTierCode reports how many tenants currently reference a tier
	// code, directly or via a scheduled downgrade. Used to block deletion.
	CountByTierCode(ctx context.Context, code string) (int, error)

	// ListDowngradesDue returns tenants whose scheduled downgrade effective
	// date has passed.
	ListDowngradesDue(ctx context.Context, now time.Time) ([]*Tenant, error)
}
