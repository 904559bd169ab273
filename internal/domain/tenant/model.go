package tenant

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// Tenant carries the subscription-relevant fields of a tenant record. The
// rest of the tenant (users, branches, files) lives with its own subsystem.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	TierCode      string              `json:"tier_code"`
	BillingPeriod types.BillingPeriod `json:"billing_period"`

	SubscriptionStartsAt *time.Time `json:"subscription_starts_at,omitempty"`
	SubscriptionEndsAt   *time.Time `json:"subscription_ends_at,omitempty"`

	// CreditBalance is non-negative, in the smallest currency unit. Mutated
	// only through the repository's atomic increment.
	CreditBalance decimal.Decimal `json:"credit_balance"`

	// Scheduled downgrade fields. Set together, cleared together, and
	// mutually exclusive with an in-flight upgrade request.
	ScheduledTierCode        *string    `json:"scheduled_tier_code,omitempty"`
	ScheduledTierEffectiveAt *time.Time `json:"scheduled_tier_effective_at,omitempty"`

	// Entitlements derived from the tier at the last approved change.
	MaxUsers     int      `json:"max_users"`
	MaxBranches  int      `json:"max_branches"`
	MaxStorageMB int64    `json:"max_storage_mb"`
	Features     []string `json:"features,omitempty"`

	types.BaseModel
}

// HasActivePeriod reports whether the tenant has a paid period covering now.
func (t *Tenant) HasActivePeriod(now time.Time) bool {
	return t.SubscriptionEndsAt != nil && t.SubscriptionEndsAt.After(now)
}

// HasScheduledDowngrade reports whether a downgrade is waiting for the
// period boundary.
func (t *Tenant) HasScheduledDowngrade() bool {
	return t.ScheduledTierCode != nil && t.ScheduledTierEffectiveAt != nil
}
