package paymentmethod

import (
	"context"
)

// Repository defines the read-only lookup interface for payment methods.
type Repository interface {
	Get(ctx context.Context, id string) (*PaymentMethod, error)
	ListActive(ctx context.Context) ([]*PaymentMethod, error)
}
