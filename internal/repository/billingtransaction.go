package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/stackbill/stackbill/internal/domain/billingtransaction"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type billingTransactionRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

func NewBillingTransactionRepository(client *postgres.Client, log *logger.Logger) billingtransaction.Repository {
	return &billingTransactionRepository{client: client, logger: log}
}

const transactionColumns = `id, transaction_number, tenant_id, upgrade_request_id,
	transaction_type, transaction_status, billing_period,
	amount, original_amount, credit_applied, credit_generated,
	discount_amount, discount_description, coupon_id, bonus_days,
	invoiced_at, paid_at, cancelled_at, refunded_at,
	admin_notes, adjusted_by, adjusted_at,
	rejected_by, rejected_at, rejection_reason, requires_review,
	status, created_at, updated_at, created_by, updated_by`

func (r *billingTransactionRepository) Create(ctx context.Context, t *billingtransaction.BillingTransaction) error {
	notes, err := json.Marshal(t.AdminNotes)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode admin notes").
			Mark(ierr.ErrInternal)
	}
	var requestID sql.NullString
	if id, ok := t.Link.RequestID(); ok {
		requestID = sql.NullString{String: id, Valid: true}
	}

	q := r.client.Querier(ctx)
	_, err = q.ExecContext(ctx, `
		INSERT INTO billing_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
		        $29, $30, $31)`,
		t.ID, t.TransactionNumber, t.TenantID, requestID,
		t.Type, t.Status, t.BillingPeriod,
		t.Amount, t.OriginalAmount, t.CreditApplied, t.CreditGenerated,
		t.DiscountAmount, t.DiscountDescription, nullString(t.CouponID), t.BonusDays,
		t.InvoicedAt, nullTime(t.PaidAt), nullTime(t.CancelledAt), nullTime(t.RefundedAt),
		notes, nullString(t.AdjustedBy), nullTime(t.AdjustedAt),
		nullString(t.RejectedBy), nullTime(t.RejectedAt), t.RejectionReason, t.RequiresReview,
		t.BaseModel.Status, t.CreatedAt, t.UpdatedAt, t.CreatedBy, t.UpdatedBy,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to create billing transaction %s", t.TransactionNumber).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *billingTransactionRepository) Get(ctx context.Context, id string) (*billingtransaction.BillingTransaction, error) {
	return r.getBy(ctx, "id", id)
}

func (r *billingTransactionRepository) GetByNumber(ctx context.Context, number string) (*billingtransaction.BillingTransaction, error) {
	return r.getBy(ctx, "transaction_number", number)
}

func (r *billingTransactionRepository) GetByRequestID(ctx context.Context, requestID string) (*billingtransaction.BillingTransaction, error) {
	return r.getBy(ctx, "upgrade_request_id", requestID)
}

func (r *billingTransactionRepository) getBy(ctx context.Context, column, value string) (*billingtransaction.BillingTransaction, error) {
	q := r.client.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM billing_transactions
		WHERE `+column+` = $1 AND status != $2`,
		value, types.StatusDeleted,
	)
	t, err := scanBillingTransaction(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHintf("Billing transaction %s was not found", value).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch billing transaction").
			Mark(ierr.ErrDatabase)
	}
	return t, nil
}

func (r *billingTransactionRepository) Update(ctx context.Context, t *billingtransaction.BillingTransaction) error {
	notes, err := json.Marshal(t.AdminNotes)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode admin notes").
			Mark(ierr.ErrInternal)
	}

	q := r.client.Querier(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE billing_transactions SET
			transaction_status = $2,
			amount = $3, credit_applied = $4, credit_generated = $5,
			discount_amount = $6, discount_description = $7, coupon_id = $8,
			bonus_days = $9,
			paid_at = $10, cancelled_at = $11, refunded_at = $12,
			admin_notes = $13, adjusted_by = $14, adjusted_at = $15,
			rejected_by = $16, rejected_at = $17, rejection_reason = $18,
			requires_review = $19,
			updated_at = $20, updated_by = $21
		WHERE id = $1 AND status != $22`,
		t.ID,
		t.Status,
		t.Amount, t.CreditApplied, t.CreditGenerated,
		t.DiscountAmount, t.DiscountDescription, nullString(t.CouponID),
		t.BonusDays,
		nullTime(t.PaidAt), nullTime(t.CancelledAt), nullTime(t.RefundedAt),
		notes, nullString(t.AdjustedBy), nullTime(t.AdjustedAt),
		nullString(t.RejectedBy), nullTime(t.RejectedAt), t.RejectionReason,
		t.RequiresReview,
		t.UpdatedAt, t.UpdatedBy, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to update billing transaction %s", t.TransactionNumber).
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(res, "billing transaction", t.ID)
}

func (r *billingTransactionRepository) ListByTenant(ctx context.Context, tenantID string, filter *types.QueryFilter) ([]*billingtransaction.BillingTransaction, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	q := r.client.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM billing_transactions
		WHERE tenant_id = $1 AND status != $2
		ORDER BY invoiced_at DESC
		LIMIT $3 OFFSET $4`,
		tenantID, types.StatusDeleted, filter.GetLimit(), filter.GetOffset(),
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list billing transactions").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var txns []*billingtransaction.BillingTransaction
	for rows.Next() {
		t, err := scanBillingTransaction(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan billing transaction").
				Mark(ierr.ErrDatabase)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list billing transactions").
			Mark(ierr.ErrDatabase)
	}
	return txns, nil
}

func (r *billingTransactionRepository) CountPaidByTenant(ctx context.Context, tenantID string) (int, error) {
	q := r.client.Querier(ctx)
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM billing_transactions
		WHERE tenant_id = $1 AND status != $2 AND transaction_status = $3`,
		tenantID, types.StatusDeleted, types.TransactionStatusPaid,
	).Scan(&count)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count paid transactions").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func scanBillingTransaction(row rowScanner) (*billingtransaction.BillingTransaction, error) {
	var (
		t                               billingtransaction.BillingTransaction
		requestID, couponID             sql.NullString
		paidAt, cancelledAt, refundedAt sql.NullTime
		notes                           []byte
		adjustedBy, rejectedBy          sql.NullString
		adjustedAt, rejectedAt          sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.TransactionNumber, &t.TenantID, &requestID,
		&t.Type, &t.Status, &t.BillingPeriod,
		&t.Amount, &t.OriginalAmount, &t.CreditApplied, &t.CreditGenerated,
		&t.DiscountAmount, &t.DiscountDescription, &couponID, &t.BonusDays,
		&t.InvoicedAt, &paidAt, &cancelledAt, &refundedAt,
		&notes, &adjustedBy, &adjustedAt,
		&rejectedBy, &rejectedAt, &t.RejectionReason, &t.RequiresReview,
		&t.BaseModel.Status, &t.CreatedAt, &t.UpdatedAt, &t.CreatedBy, &t.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if requestID.Valid {
		t.Link = billingtransaction.LinkedToRequest(requestID.String)
	} else {
		t.Link = billingtransaction.Standalone()
	}
	t.CouponID = stringPtr(couponID)
	t.PaidAt = timePtr(paidAt)
	t.CancelledAt = timePtr(cancelledAt)
	t.RefundedAt = timePtr(refundedAt)
	t.AdjustedBy = stringPtr(adjustedBy)
	t.AdjustedAt = timePtr(adjustedAt)
	t.RejectedBy = stringPtr(rejectedBy)
	t.RejectedAt = timePtr(rejectedAt)
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &t.AdminNotes); err != nil {
			return nil, err
		}
	}
	return &t, nil
}
