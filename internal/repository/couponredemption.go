package repository

import (
	"context"
	"database/sql"

	"github.com/stackbill/stackbill/internal/domain/couponredemption"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type couponRedemptionRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

func NewCouponRedemptionRepository(client *postgres.Client, log *logger.Logger) couponredemption.Repository {
	return &couponRedemptionRepository{client: client, logger: log}
}

const redemptionColumns = `id, coupon_id, tenant_id, upgrade_request_id, transaction_id,
	coupon_code, discount_type, discount_value, discount_amount, bonus_days,
	applied_at, expires_at, expired,
	status, created_at, updated_at, created_by, updated_by`

func (r *couponRedemptionRepository) Create(ctx context.Context, cr *couponredemption.CouponRedemption) error {
	q := r.client.Querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO coupon_redemptions (`+redemptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18)`,
		cr.ID, cr.CouponID, cr.TenantID, nullString(cr.UpgradeRequestID), cr.TransactionID,
		cr.CouponCode, cr.DiscountType, cr.DiscountValue, cr.DiscountAmount, cr.BonusDays,
		cr.AppliedAt, nullTime(cr.ExpiresAt), cr.Expired,
		cr.Status, cr.CreatedAt, cr.UpdatedAt, cr.CreatedBy, cr.UpdatedBy,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to record coupon redemption").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *couponRedemptionRepository) Get(ctx context.Context, id string) (*couponredemption.CouponRedemption, error) {
	q := r.client.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT `+redemptionColumns+`
		FROM coupon_redemptions
		WHERE id = $1 AND status != $2`,
		id, types.StatusDeleted,
	)
	cr, err := scanRedemption(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHintf("Coupon redemption %s was not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch coupon redemption").
			Mark(ierr.ErrDatabase)
	}
	return cr, nil
}

func (r *couponRedemptionRepository) CountByCouponAndTenant(ctx context.Context, couponID, tenantID string) (int, error) {
	q := r.client.Querier(ctx)
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM coupon_redemptions
		WHERE coupon_id = $1 AND tenant_id = $2 AND status != $3`,
		couponID, tenantID, types.StatusDeleted,
	).Scan(&count)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count coupon redemptions").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *couponRedemptionRepository) GetByCouponAndTransaction(ctx context.Context, couponID, transactionID string) (*couponredemption.CouponRedemption, error) {
	q := r.client.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT `+redemptionColumns+`
		FROM coupon_redemptions
		WHERE coupon_id = $1 AND transaction_id = $2 AND status != $3`,
		couponID, transactionID, types.StatusDeleted,
	)
	cr, err := scanRedemption(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHint("No redemption for this coupon and transaction").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch coupon redemption").
			Mark(ierr.ErrDatabase)
	}
	return cr, nil
}

func (r *couponRedemptionRepository) ListByTenant(ctx context.Context, tenantID string) ([]*couponredemption.CouponRedemption, error) {
	q := r.client.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT `+redemptionColumns+`
		FROM coupon_redemptions
		WHERE tenant_id = $1 AND status != $2
		ORDER BY applied_at DESC`,
		tenantID, types.StatusDeleted,
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list coupon redemptions").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var redemptions []*couponredemption.CouponRedemption
	for rows.Next() {
		cr, err := scanRedemption(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan coupon redemption").
				Mark(ierr.ErrDatabase)
		}
		redemptions = append(redemptions, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list coupon redemptions").
			Mark(ierr.ErrDatabase)
	}
	return redemptions, nil
}

func scanRedemption(row rowScanner) (*couponredemption.CouponRedemption, error) {
	var (
		cr        couponredemption.CouponRedemption
		requestID sql.NullString
		expiresAt sql.NullTime
	)
	err := row.Scan(
		&cr.ID, &cr.CouponID, &cr.TenantID, &requestID, &cr.TransactionID,
		&cr.CouponCode, &cr.DiscountType, &cr.DiscountValue, &cr.DiscountAmount, &cr.BonusDays,
		&cr.AppliedAt, &expiresAt, &cr.Expired,
		&cr.Status, &cr.CreatedAt, &cr.UpdatedAt, &cr.CreatedBy, &cr.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	cr.UpgradeRequestID = stringPtr(requestID)
	cr.ExpiresAt = timePtr(expiresAt)
	return &cr, nil
}
