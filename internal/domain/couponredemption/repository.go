package couponredemption

import (
	"context"
)

// Repository defines the interface for coupon redemption persistence.
type Repository interface {
	Create(ctx context.Context, r *CouponRedemption) error
	Get(ctx context.Context, id string) (*CouponRedemption, error)

	// CountByCouponAndTenant counts the tenant's redemptions of a coupon,
	// for per-tenant cap enforcement.
	CountByCouponAndTenant(ctx context.Context, couponID, tenantID string) (int, error)

	// GetByCouponAndTransaction returns the redemption keyed by
	// coupon + transaction, making applyCoupon retries idempotent.
	GetByCouponAndTransaction(ctx context.Context, couponID, transactionID string) (*CouponRedemption, error)

	ListByTenant(ctx context.Context, tenantID string) ([]*CouponRedemption, error)
}
