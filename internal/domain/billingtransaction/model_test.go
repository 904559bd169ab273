package billingtransaction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/stackbill/stackbill/internal/types"
)

func TestRecalculateAmount(t *testing.T) {
	tests := []struct {
		name     string
		original int64
		credit   int64
		discount int64
		want     int64
	}{
		{"no deductions", 100000, 0, 0, 100000},
		{"credit only", 100000, 30000, 0, 70000},
		{"discount only", 100000, 0, 15000, 85000},
		{"both", 100000, 30000, 15000, 55000},
		{"deductions exceed original", 100000, 80000, 50000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := &BillingTransaction{
				Status:         types.TransactionStatusPending,
				OriginalAmount: decimal.NewFromInt(tt.original),
				CreditApplied:  decimal.NewFromInt(tt.credit),
				DiscountAmount: decimal.NewFromInt(tt.discount),
			}
			txn.RecalculateAmount()
			assert.True(t, txn.Amount.Equal(decimal.NewFromInt(tt.want)),
				"got %s", txn.Amount)
		})
	}
}

func TestRecalculateAmount_TerminalRowsFrozen(t *testing.T) {
	for _, status := range []types.TransactionStatus{
		types.TransactionStatusPaid,
		types.TransactionStatusCancelled,
		types.TransactionStatusRefunded,
	} {
		txn := &BillingTransaction{
			Status:         status,
			Amount:         decimal.NewFromInt(70000),
			OriginalAmount: decimal.NewFromInt(100000),
			DiscountAmount: decimal.NewFromInt(90000),
		}
		txn.RecalculateAmount()
		assert.True(t, txn.Amount.Equal(decimal.NewFromInt(70000)),
			"%s row must keep its amount", status)
	}
}

func TestAppendNote(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	txn := &BillingTransaction{}

	txn.AppendNote("admin_1", "first note", now)
	txn.AppendNote("admin_2", "second note", now.Add(time.Hour))

	assert.Len(t, txn.AdminNotes, 2)
	assert.Equal(t, "first note", txn.AdminNotes[0].Text)
	assert.Equal(t, "admin_2", txn.AdminNotes[1].By)
}

func TestRequestLink(t *testing.T) {
	standalone := Standalone()
	_, ok := standalone.RequestID()
	assert.False(t, ok)

	linked := LinkedToRequest("ugreq_123")
	id, ok := linked.RequestID()
	assert.True(t, ok)
	assert.Equal(t, "ugreq_123", id)
}
