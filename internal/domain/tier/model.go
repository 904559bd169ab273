package tier

import (
	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// UnlimitedLimit marks a resource limit as unbounded.
const UnlimitedLimit = -1

// Tier is a catalog entry for a subscription plan. Prices are integers in the
// smallest currency unit. Once referenced by an active transaction a tier is
// immutable except through administrator edits, and deletion is blocked while
// any tenant references the code.
type Tier struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	YearlyPrice  decimal.Decimal `json:"yearly_price"`

	// Resource limits; UnlimitedLimit (-1) means unlimited.
	MaxUsers     int   `json:"max_users"`
	MaxBranches  int   `json:"max_branches"`
	MaxStorageMB int64 `json:"max_storage_mb"`

	Features  []string `json:"features,omitempty"`
	TrialDays int      `json:"trial_days"`

	DisplayOrder int `json:"display_order"`

	types.BaseModel
}

// PriceFor returns the tier's price for the given billing period.
func (t *Tier) PriceFor(period types.BillingPeriod) decimal.Decimal {
	if period == types.BILLING_PERIOD_YEARLY {
		return t.YearlyPrice
	}
	return t.MonthlyPrice
}
