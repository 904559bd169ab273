package tier

import (
	"context"

	"github.com/stackbill/stackbill/internal/types"
)

// Repository defines the interface for tier catalog persistence.
type Repository interface {
	Create(ctx context.Context, t *Tier) error
	Get(ctx context.Context, id string) (*Tier, error)
	GetByCode(ctx context.Context, code string) (*Tier, error)
	List(ctx context.Context, filter *types.QueryFilter) ([]*Tier, error)
	Update(ctx context.Context, t *Tier) error
	// Delete soft-deletes the tier. Callers must check tenant references
	// first; the repository only flips the status.
	Delete(ctx context.Context, id string) error
	ExistsByCode(ctx context.Context, code string) (bool, error)
}
