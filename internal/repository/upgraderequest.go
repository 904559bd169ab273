package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/stackbill/stackbill/internal/domain/upgraderequest"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type upgradeRequestRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

func NewUpgradeRequestRepository(client *postgres.Client, log *logger.Logger) upgraderequest.Repository {
	return &upgradeRequestRepository{client: client, logger: log}
}

const upgradeRequestColumns = `id, request_number, tenant_id,
	request_type, from_tier_code, to_tier_code, billing_period,
	original_amount, proration_credit, proration_charge, days_remaining,
	credit_applied, amount_due,
	coupon_id, discount_amount, discount_description,
	payment_method_id, payment_proof_file_id, payment_proof_uploaded_at,
	request_status, reviewed_by, reviewed_at, review_notes, rejection_reason,
	expires_at, applied_at,
	status, created_at, updated_at, created_by, updated_by`

func (r *upgradeRequestRepository) Create(ctx context.Context, req *upgraderequest.UpgradeRequest) error {
	q := r.client.Querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO upgrade_requests (`+upgradeRequestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
		        $29, $30, $31)`,
		req.ID, req.RequestNumber, req.TenantID,
		req.RequestType, req.FromTierCode, req.ToTierCode, req.BillingPeriod,
		req.OriginalAmount, req.ProrationCredit, req.ProrationCharge, req.DaysRemaining,
		req.CreditApplied, req.AmountDue,
		nullString(req.CouponID), req.DiscountAmount, req.DiscountDescription,
		nullString(req.PaymentMethodID), nullString(req.PaymentProofFileID), nullTime(req.PaymentProofUploadedAt),
		req.Status, nullString(req.ReviewedBy), nullTime(req.ReviewedAt), req.ReviewNotes, req.RejectionReason,
		nullTime(req.ExpiresAt), nullTime(req.AppliedAt),
		req.BaseModel.Status, req.CreatedAt, req.UpdatedAt, req.CreatedBy, req.UpdatedBy,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to create upgrade request %s", req.RequestNumber).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *upgradeRequestRepository) Get(ctx context.Context, id string) (*upgraderequest.UpgradeRequest, error) {
	return r.getBy(ctx, "id", id)
}

func (r *upgradeRequestRepository) GetByRequestNumber(ctx context.Context, number string) (*upgraderequest.UpgradeRequest, error) {
	return r.getBy(ctx, "request_number", number)
}

func (r *upgradeRequestRepository) getBy(ctx context.Context, column, value string) (*upgraderequest.UpgradeRequest, error) {
	q := r.client.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT `+upgradeRequestColumns+`
		FROM upgrade_requests
		WHERE `+column+` = $1 AND status != $2`,
		value, types.StatusDeleted,
	)
	req, err := scanUpgradeRequest(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHintf("Upgrade request %s was not found", value).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch upgrade request").
			Mark(ierr.ErrDatabase)
	}
	return req, nil
}

func (r *upgradeRequestRepository) Update(ctx context.Context, req *upgraderequest.UpgradeRequest) error {
	q := r.client.Querier(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE upgrade_requests SET
			coupon_id = $2, discount_amount = $3, discount_description = $4,
			payment_method_id = $5, payment_proof_file_id = $6, payment_proof_uploaded_at = $7,
			request_status = $8, reviewed_by = $9, reviewed_at = $10,
			review_notes = $11, rejection_reason = $12,
			expires_at = $13, applied_at = $14,
			amount_due = $15, credit_applied = $16,
			updated_at = $17, updated_by = $18
		WHERE id = $1 AND status != $19`,
		req.ID,
		nullString(req.CouponID), req.DiscountAmount, req.DiscountDescription,
		nullString(req.PaymentMethodID), nullString(req.PaymentProofFileID), nullTime(req.PaymentProofUploadedAt),
		req.Status, nullString(req.ReviewedBy), nullTime(req.ReviewedAt),
		req.ReviewNotes, req.RejectionReason,
		nullTime(req.ExpiresAt), nullTime(req.AppliedAt),
		req.AmountDue, req.CreditApplied,
		req.UpdatedAt, req.UpdatedBy, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to update upgrade request %s", req.RequestNumber).
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(res, "upgrade request", req.ID)
}

func (r *upgradeRequestRepository) CountNonTerminalByTenant(ctx context.Context, tenantID string) (int, error) {
	q := r.client.Querier(ctx)
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM upgrade_requests
		WHERE tenant_id = $1 AND status != $2 AND request_status = ANY($3)
		  AND NOT (request_status = $4 AND expires_at IS NOT NULL AND expires_at <= now())`,
		tenantID, types.StatusDeleted,
		pq.Array(statusStrings(types.NonTerminalRequestStatuses())),
		types.UpgradeRequestStatusPending,
	).Scan(&count)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count in-flight requests").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *upgradeRequestRepository) ListByTenant(ctx context.Context, tenantID string, filter *types.QueryFilter) ([]*upgraderequest.UpgradeRequest, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	q := r.client.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT `+upgradeRequestColumns+`
		FROM upgrade_requests
		WHERE tenant_id = $1 AND status != $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		tenantID, types.StatusDeleted, filter.GetLimit(), filter.GetOffset(),
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list upgrade requests").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()
	return collectUpgradeRequests(rows)
}

func (r *upgradeRequestRepository) ListExpiredPending(ctx context.Context, now time.Time) ([]*upgraderequest.UpgradeRequest, error) {
	q := r.client.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT `+upgradeRequestColumns+`
		FROM upgrade_requests
		WHERE status != $2 AND request_status = $3
		  AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at`,
		now, types.StatusDeleted, types.UpgradeRequestStatusPending,
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list expired pending requests").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()
	return collectUpgradeRequests(rows)
}

func collectUpgradeRequests(rows *sql.Rows) ([]*upgraderequest.UpgradeRequest, error) {
	var reqs []*upgraderequest.UpgradeRequest
	for rows.Next() {
		req, err := scanUpgradeRequest(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan upgrade request").
				Mark(ierr.ErrDatabase)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list upgrade requests").
			Mark(ierr.ErrDatabase)
	}
	return reqs, nil
}

func scanUpgradeRequest(row rowScanner) (*upgraderequest.UpgradeRequest, error) {
	var (
		req                         upgraderequest.UpgradeRequest
		couponID, paymentMethodID   sql.NullString
		proofFileID, reviewedBy     sql.NullString
		proofUploadedAt, reviewedAt sql.NullTime
		expiresAt, appliedAt        sql.NullTime
	)
	err := row.Scan(
		&req.ID, &req.RequestNumber, &req.TenantID,
		&req.RequestType, &req.FromTierCode, &req.ToTierCode, &req.BillingPeriod,
		&req.OriginalAmount, &req.ProrationCredit, &req.ProrationCharge, &req.DaysRemaining,
		&req.CreditApplied, &req.AmountDue,
		&couponID, &req.DiscountAmount, &req.DiscountDescription,
		&paymentMethodID, &proofFileID, &proofUploadedAt,
		&req.Status, &reviewedBy, &reviewedAt, &req.ReviewNotes, &req.RejectionReason,
		&expiresAt, &appliedAt,
		&req.BaseModel.Status, &req.CreatedAt, &req.UpdatedAt, &req.CreatedBy, &req.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	req.CouponID = stringPtr(couponID)
	req.PaymentMethodID = stringPtr(paymentMethodID)
	req.PaymentProofFileID = stringPtr(proofFileID)
	req.PaymentProofUploadedAt = timePtr(proofUploadedAt)
	req.ReviewedBy = stringPtr(reviewedBy)
	req.ReviewedAt = timePtr(reviewedAt)
	req.ExpiresAt = timePtr(expiresAt)
	req.AppliedAt = timePtr(appliedAt)
	return &req, nil
}

func statusStrings(statuses []types.UpgradeRequestStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
