package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/domain/tenant"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type tenantRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

func NewTenantRepository(client *postgres.Client, log *logger.Logger) tenant.Repository {
	return &tenantRepository{client: client, logger: log}
}

const tenantColumns = `id, name, tier_code, billing_period,
	subscription_starts_at, subscription_ends_at, credit_balance,
	scheduled_tier_code, scheduled_tier_effective_at,
	max_users, max_branches, max_storage_mb, features,
	status, created_at, updated_at, created_by, updated_by`

func (r *tenantRepository) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	q := r.client.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE id = $1 AND status != $2`,
		id, types.StatusDeleted,
	)
	t, err := scanTenant(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHintf("Tenant %s was not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch tenant").
			Mark(ierr.ErrDatabase)
	}
	return t, nil
}

func (r *tenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	q := r.client.Querier(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE tenants SET
			tier_code = $2, billing_period = $3,
			subscription_starts_at = $4, subscription_ends_at = $5,
			scheduled_tier_code = $6, scheduled_tier_effective_at = $7,
			max_users = $8, max_branches = $9, max_storage_mb = $10, features = $11,
			updated_at = $12, updated_by = $13
		WHERE id = $1 AND status != $14`,
		t.ID, t.TierCode, t.BillingPeriod,
		nullTime(t.SubscriptionStartsAt), nullTime(t.SubscriptionEndsAt),
		nullString(t.ScheduledTierCode), nullTime(t.ScheduledTierEffectiveAt),
		t.MaxUsers, t.MaxBranches, t.MaxStorageMB, pq.Array(t.Features),
		t.UpdatedAt, t.UpdatedBy, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to update tenant %s", t.ID).
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(res, "tenant", t.ID)
}

// AddCreditBalance relies on a conditional UPDATE so two concurrent spends
// cannot drive the balance below zero.
func (r *tenantRepository) AddCreditBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	q := r.client.Querier(ctx)
	var balance decimal.Decimal
	err := q.QueryRowContext(ctx, `
		UPDATE tenants
		SET credit_balance = credit_balance + $2, updated_at = now()
		WHERE id = $1 AND status != $3 AND credit_balance + $2 >= 0
		RETURNING credit_balance`,
		id, delta, types.StatusDeleted,
	).Scan(&balance)
	if err != nil {
		if isNoRows(err) {
			// Either the tenant is missing or the adjustment would go negative;
			// a second read tells them apart.
			if _, getErr := r.Get(ctx, id); getErr != nil {
				return decimal.Zero, getErr
			}
			return decimal.Zero, ierr.NewError("insufficient credit balance").
				WithHintf("Credit adjustment of %s would make the balance negative", delta.String()).
				WithReportableDetails(map[string]interface{}{
					"tenant_id": id,
					"delta":     delta.String(),
				}).
				Mark(ierr.ErrValidation)
		}
		return decimal.Zero, ierr.WithError(err).
			WithHint("Failed to adjust credit balance").
			Mark(ierr.ErrDatabase)
	}
	return balance, nil
}

func (r *tenantRepository) CountByTierCode(ctx context.Context, code string) (int, error) {
	q := r.client.Querier(ctx)
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tenants
		WHERE status != $2 AND (tier_code = $1 OR scheduled_tier_code = $1)`,
		code, types.StatusDeleted,
	).Scan(&count)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count tenants on tier").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *tenantRepository) ListDowngradesDue(ctx context.Context, now time.Time) ([]*tenant.Tenant, error) {
	q := r.client.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE status != $2
		  AND scheduled_tier_code IS NOT NULL
		  AND scheduled_tier_effective_at <= $1
		ORDER BY scheduled_tier_effective_at`,
		now, types.StatusDeleted,
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list due downgrades").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan tenant").
				Mark(ierr.ErrDatabase)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list due downgrades").
			Mark(ierr.ErrDatabase)
	}
	return tenants, nil
}

func scanTenant(row rowScanner) (*tenant.Tenant, error) {
	var (
		t                tenant.Tenant
		startsAt, endsAt sql.NullTime
		schedCode        sql.NullString
		schedEffectiveAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.TierCode, &t.BillingPeriod,
		&startsAt, &endsAt, &t.CreditBalance,
		&schedCode, &schedEffectiveAt,
		&t.MaxUsers, &t.MaxBranches, &t.MaxStorageMB, pq.Array(&t.Features),
		&t.Status, &t.CreatedAt, &t.UpdatedAt, &t.CreatedBy, &t.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	t.SubscriptionStartsAt = timePtr(startsAt)
	t.SubscriptionEndsAt = timePtr(endsAt)
	t.ScheduledTierCode = stringPtr(schedCode)
	t.ScheduledTierEffectiveAt = timePtr(schedEffectiveAt)
	return &t, nil
}
