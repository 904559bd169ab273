package paymentmethod

import (
	"github.com/stackbill/stackbill/internal/types"
)

// PaymentMethod is a catalog entry for manual payment reconciliation, e.g. a
// bank transfer destination. Read-only from this engine's point of view.
type PaymentMethod struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Instructions string `json:"instructions,omitempty"`
	Active       bool   `json:"active"`

	types.BaseModel
}
