package coupon

import (
	"context"

	"github.com/stackbill/stackbill/internal/types"
)

// Repository defines the interface for coupon persistence.
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	Get(ctx context.Context, id string) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context, filter *types.QueryFilter) ([]*Coupon, error)
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
	ExistsByCode(ctx context.Context, code string) (bool, error)

	// IncrementRedemptions bumps the redemption counter by one as a
	// conditional atomic step: it fails with a validation error when the
	// coupon is already at its global cap, so over-redemption cannot happen
	// under concurrent use. Must be called inside the redemption transaction.
	IncrementRedemptions(ctx context.Context, id string) error
}
