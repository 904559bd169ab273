package proration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackbill/stackbill/internal/types"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func periodEnd(now time.Time, days int) *time.Time {
	end := now.AddDate(0, 0, days)
	return &end
}

func TestCalculate_MidCycleUpgrade(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	result, err := NewCalculator().Calculate(Params{
		CurrentPrice:  d(100000),
		NewPrice:      d(300000),
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
		PeriodEnd:     periodEnd(now, 10),
		CreditBalance: decimal.Zero,
		Now:           now,
	})
	require.NoError(t, err)

	assert.Equal(t, types.RequestTypeUpgrade, result.RequestType)
	assert.Equal(t, 10, result.DaysRemaining)
	assert.True(t, result.Credit.Equal(d(33330)), "credit: got %s", result.Credit)
	assert.True(t, result.Charge.Equal(d(100000)), "charge: got %s", result.Charge)
	assert.True(t, result.Net.Equal(d(66670)), "net: got %s", result.Net)
	assert.True(t, result.AmountDue.Equal(d(66670)), "amount due: got %s", result.AmountDue)
	assert.False(t, result.NewSubscription)
}

func TestCalculate_CreditBalanceOffset(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	t.Run("partial offset", func(t *testing.T) {
		result, err := NewCalculator().Calculate(Params{
			CurrentPrice:  d(100000),
			NewPrice:      d(300000),
			BillingPeriod: types.BILLING_PERIOD_MONTHLY,
			PeriodEnd:     periodEnd(now, 10),
			CreditBalance: d(20000),
			Now:           now,
		})
		require.NoError(t, err)

		assert.True(t, result.CreditApplied.Equal(d(20000)))
		assert.True(t, result.AmountDue.Equal(d(46670)))
	})

	t.Run("balance exceeds the net", func(t *testing.T) {
		result, err := NewCalculator().Calculate(Params{
			CurrentPrice:  d(100000),
			NewPrice:      d(300000),
			BillingPeriod: types.BILLING_PERIOD_MONTHLY,
			PeriodEnd:     periodEnd(now, 10),
			CreditBalance: d(1000000),
			Now:           now,
		})
		require.NoError(t, err)

		// Only the net is consumed; the rest of the balance stays untouched.
		assert.True(t, result.CreditApplied.Equal(d(66670)))
		assert.True(t, result.AmountDue.IsZero())
	})
}

func TestCalculate_Downgrade(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	result, err := NewCalculator().Calculate(Params{
		CurrentPrice:  d(300000),
		NewPrice:      d(100000),
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
		PeriodEnd:     periodEnd(now, 10),
		CreditBalance: d(50000),
		Now:           now,
	})
	require.NoError(t, err)

	assert.Equal(t, types.RequestTypeDowngrade, result.RequestType)
	// The breakdown is informational: nothing is owed and nothing refunded.
	assert.True(t, result.AmountDue.IsZero())
	assert.True(t, result.CreditApplied.IsZero())
	assert.True(t, result.Net.IsNegative())
}

func TestCalculate_EqualPriceIsDowngrade(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	result, err := NewCalculator().Calculate(Params{
		CurrentPrice:  d(100000),
		NewPrice:      d(100000),
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
		PeriodEnd:     periodEnd(now, 10),
		Now:           now,
	})
	require.NoError(t, err)

	assert.Equal(t, types.RequestTypeDowngrade, result.RequestType)
	assert.True(t, result.AmountDue.IsZero())
}

func TestCalculate_NoActivePeriod(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		end  *time.Time
	}{
		{"nil period end", nil},
		{"lapsed period", periodEnd(now, -5)},
		{"ends right now", &now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewCalculator().Calculate(Params{
				CurrentPrice:  d(100000),
				NewPrice:      d(50000),
				BillingPeriod: types.BILLING_PERIOD_MONTHLY,
				PeriodEnd:     tt.end,
				Now:           now,
			})
			require.NoError(t, err)

			// Without days to prorate, even a cheaper tier is a full-price
			// purchase handled as an upgrade.
			assert.True(t, result.NewSubscription)
			assert.Equal(t, types.RequestTypeUpgrade, result.RequestType)
			assert.Equal(t, 0, result.DaysRemaining)
			assert.True(t, result.Charge.Equal(d(50000)))
			assert.True(t, result.AmountDue.Equal(d(50000)))
		})
	}
}

func TestCalculate_ActivePeriodUnderOneDay(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	t.Run("upgrade with hours left prorates to zero", func(t *testing.T) {
		end := now.Add(6 * time.Hour)
		result, err := NewCalculator().Calculate(Params{
			CurrentPrice:  d(100000),
			NewPrice:      d(300000),
			BillingPeriod: types.BILLING_PERIOD_MONTHLY,
			PeriodEnd:     &end,
			CreditBalance: d(20000),
			Now:           now,
		})
		require.NoError(t, err)

		// The period is still active, so this is not a new-subscription
		// purchase; zero whole days remain and nothing is owed.
		assert.False(t, result.NewSubscription)
		assert.Equal(t, types.RequestTypeUpgrade, result.RequestType)
		assert.Equal(t, 0, result.DaysRemaining)
		assert.True(t, result.Charge.IsZero())
		assert.True(t, result.CreditApplied.IsZero())
		assert.True(t, result.AmountDue.IsZero(), "amount due: got %s", result.AmountDue)
	})

	t.Run("same price with hours left owes nothing", func(t *testing.T) {
		end := now.Add(12 * time.Hour)
		result, err := NewCalculator().Calculate(Params{
			CurrentPrice:  d(100000),
			NewPrice:      d(100000),
			BillingPeriod: types.BILLING_PERIOD_MONTHLY,
			PeriodEnd:     &end,
			Now:           now,
		})
		require.NoError(t, err)

		assert.False(t, result.NewSubscription)
		assert.True(t, result.AmountDue.IsZero(), "amount due: got %s", result.AmountDue)
	})
}

func TestCalculate_FullCycleCharge(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	result, err := NewCalculator().Calculate(Params{
		CurrentPrice:  d(100000),
		NewPrice:      d(300000),
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
		PeriodEnd:     periodEnd(now, 30),
		Now:           now,
	})
	require.NoError(t, err)

	// A full period remaining charges the whole difference.
	assert.True(t, result.Charge.Equal(d(300000)))
	assert.True(t, result.Credit.Equal(d(99990)))
	assert.True(t, result.AmountDue.Equal(d(200010)))
}

func TestCalculate_AmountDueMonotonicInDays(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	// Start from an active period with only hours left: zero whole days
	// must sit at the bottom of the sequence, not jump to a full charge.
	prev := decimal.Zero
	for hours := 6; hours <= 30*24; hours += 24 {
		end := now.Add(time.Duration(hours) * time.Hour)
		result, err := NewCalculator().Calculate(Params{
			CurrentPrice:  d(100000),
			NewPrice:      d(300000),
			BillingPeriod: types.BILLING_PERIOD_MONTHLY,
			PeriodEnd:     &end,
			Now:           now,
		})
		require.NoError(t, err)
		require.True(t, result.AmountDue.GreaterThanOrEqual(prev),
			"amount due must not shrink as more time remains: %dh -> %s, previous %s",
			hours, result.AmountDue, prev)
		prev = result.AmountDue
	}
}

func TestCalculate_RejectsBadInputs(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	_, err := NewCalculator().Calculate(Params{
		CurrentPrice:  d(-1),
		NewPrice:      d(100),
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
		Now:           now,
	})
	assert.Error(t, err)

	_, err = NewCalculator().Calculate(Params{
		CurrentPrice:  d(100),
		NewPrice:      d(200),
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
		CreditBalance: d(-1),
		Now:           now,
	})
	assert.Error(t, err)

	_, err = NewCalculator().Calculate(Params{
		CurrentPrice:  d(100),
		NewPrice:      d(200),
		BillingPeriod: types.BillingPeriod("weekly"),
		Now:           now,
	})
	assert.Error(t, err)
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysRemaining(nil, now))

	past := now.Add(-time.Hour)
	assert.Equal(t, 0, DaysRemaining(&past, now))

	in36h := now.Add(36 * time.Hour)
	assert.Equal(t, 1, DaysRemaining(&in36h, now))

	in10d := now.AddDate(0, 0, 10)
	assert.Equal(t, 10, DaysRemaining(&in10d, now))
}

func TestDailyRate(t *testing.T) {
	assert.True(t, DailyRate(d(100000), types.BILLING_PERIOD_MONTHLY).Equal(d(3333)))
	assert.True(t, DailyRate(d(300000), types.BILLING_PERIOD_MONTHLY).Equal(d(10000)))
	assert.True(t, DailyRate(d(365000), types.BILLING_PERIOD_YEARLY).Equal(d(1000)))
}
