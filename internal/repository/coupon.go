package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/domain/coupon"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type couponRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

func NewCouponRepository(client *postgres.Client, log *logger.Logger) coupon.Repository {
	return &couponRepository{client: client, logger: log}
}

const couponColumns = `id, code, name, coupon_type, discount_value, currency,
	max_redemptions, max_redemptions_per_tenant, total_redemptions,
	tier_codes, billing_periods, redeem_after, redeem_before,
	first_time_only, new_customers_only, minimum_amount, duration_months,
	status, created_at, updated_at, created_by, updated_by`

func (r *couponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	q := r.client.Querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22)`,
		c.ID, c.Code, c.Name, c.Type, c.DiscountValue, c.Currency,
		nullInt(c.MaxRedemptions), nullInt(c.MaxRedemptionsPerTenant), c.TotalRedemptions,
		pq.Array(c.TierCodes), pq.Array(billingPeriodStrings(c.BillingPeriods)),
		nullTime(c.RedeemAfter), nullTime(c.RedeemBefore),
		c.FirstTimeOnly, c.NewCustomersOnly, nullDecimal(c.MinimumAmount), c.DurationMonths,
		c.Status, c.CreatedAt, c.UpdatedAt, c.CreatedBy, c.UpdatedBy,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to create coupon %s", c.Code).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *couponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.getBy(ctx, "id", id)
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.getBy(ctx, "code", coupon.NormalizeCode(code))
}

func (r *couponRepository) getBy(ctx context.Context, column, value string) (*coupon.Coupon, error) {
	q := r.client.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		WHERE `+column+` = $1 AND status != $2`,
		value, types.StatusDeleted,
	)
	c, err := scanCoupon(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHintf("Coupon %s was not found", value).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch coupon").
			Mark(ierr.ErrDatabase)
	}
	return c, nil
}

func (r *couponRepository) List(ctx context.Context, filter *types.QueryFilter) ([]*coupon.Coupon, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	q := r.client.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		WHERE status != $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		types.StatusDeleted, filter.GetLimit(), filter.GetOffset(),
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list coupons").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var coupons []*coupon.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan coupon").
				Mark(ierr.ErrDatabase)
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list coupons").
			Mark(ierr.ErrDatabase)
	}
	return coupons, nil
}

func (r *couponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	q := r.client.Querier(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE coupons SET
			name = $2, coupon_type = $3, discount_value = $4, currency = $5,
			max_redemptions = $6, max_redemptions_per_tenant = $7,
			tier_codes = $8, billing_periods = $9,
			redeem_after = $10, redeem_before = $11,
			first_time_only = $12, new_customers_only = $13,
			minimum_amount = $14, duration_months = $15, status = $16,
			updated_at = $17, updated_by = $18
		WHERE id = $1 AND status != $19`,
		c.ID, c.Name, c.Type, c.DiscountValue, c.Currency,
		nullInt(c.MaxRedemptions), nullInt(c.MaxRedemptionsPerTenant),
		pq.Array(c.TierCodes), pq.Array(billingPeriodStrings(c.BillingPeriods)),
		nullTime(c.RedeemAfter), nullTime(c.RedeemBefore),
		c.FirstTimeOnly, c.NewCustomersOnly,
		nullDecimal(c.MinimumAmount), c.DurationMonths, c.Status,
		c.UpdatedAt, c.UpdatedBy, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to update coupon %s", c.Code).
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(res, "coupon", c.ID)
}

func (r *couponRepository) Delete(ctx context.Context, id string) error {
	q := r.client.Querier(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE coupons SET status = $2, updated_at = now()
		WHERE id = $1 AND status != $2`,
		id, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to delete coupon %s", id).
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(res, "coupon", id)
}

func (r *couponRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	q := r.client.Querier(ctx)
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1 AND status != $2)`,
		coupon.NormalizeCode(code), types.StatusDeleted,
	).Scan(&exists)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to check coupon code").
			Mark(ierr.ErrDatabase)
	}
	return exists, nil
}

// IncrementRedemptions is the conditional bump that makes the global cap safe
// under concurrency: the WHERE clause re-checks the cap inside the same
// statement, so at most max_redemptions rows ever succeed.
func (r *couponRepository) IncrementRedemptions(ctx context.Context, id string) error {
	q := r.client.Querier(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE coupons
		SET total_redemptions = total_redemptions + 1, updated_at = now()
		WHERE id = $1 AND status != $2
		  AND (max_redemptions IS NULL OR total_redemptions < max_redemptions)`,
		id, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to increment coupon redemptions").
			Mark(ierr.ErrDatabase)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read rows affected").
			Mark(ierr.ErrDatabase)
	}
	if n == 0 {
		return ierr.NewError("coupon redemption limit reached").
			WithHint("This coupon has reached its redemption limit").
			WithReportableDetails(map[string]interface{}{
				"coupon_id": id,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func scanCoupon(row rowScanner) (*coupon.Coupon, error) {
	var (
		c                         coupon.Coupon
		maxRedemptions            sql.NullInt64
		maxPerTenant              sql.NullInt64
		periods                   []string
		redeemAfter, redeemBefore sql.NullTime
		minimumAmount             decimal.NullDecimal
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Type, &c.DiscountValue, &c.Currency,
		&maxRedemptions, &maxPerTenant, &c.TotalRedemptions,
		pq.Array(&c.TierCodes), pq.Array(&periods),
		&redeemAfter, &redeemBefore,
		&c.FirstTimeOnly, &c.NewCustomersOnly, &minimumAmount, &c.DurationMonths,
		&c.Status, &c.CreatedAt, &c.UpdatedAt, &c.CreatedBy, &c.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	c.MaxRedemptions = intPtr(maxRedemptions)
	c.MaxRedemptionsPerTenant = intPtr(maxPerTenant)
	c.BillingPeriods = billingPeriodsFromStrings(periods)
	c.RedeemAfter = timePtr(redeemAfter)
	c.RedeemBefore = timePtr(redeemBefore)
	if minimumAmount.Valid {
		m := minimumAmount.Decimal
		c.MinimumAmount = &m
	}
	return &c, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func billingPeriodStrings(periods []types.BillingPeriod) []string {
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = string(p)
	}
	return out
}

func billingPeriodsFromStrings(values []string) []types.BillingPeriod {
	if len(values) == 0 {
		return nil
	}
	out := make([]types.BillingPeriod, len(values))
	for i, v := range values {
		out[i] = types.BillingPeriod(v)
	}
	return out
}
