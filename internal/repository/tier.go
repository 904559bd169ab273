package repository

import (
	"context"

	"github.com/lib/pq"

	"github.com/stackbill/stackbill/internal/domain/tier"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type tierRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

func NewTierRepository(client *postgres.Client, log *logger.Logger) tier.Repository {
	return &tierRepository{client: client, logger: log}
}

const tierColumns = `id, code, name, description, monthly_price, yearly_price,
	max_users, max_branches, max_storage_mb, features, trial_days, display_order,
	status, created_at, updated_at, created_by, updated_by`

func (r *tierRepository) Create(ctx context.Context, t *tier.Tier) error {
	q := r.client.Querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO tiers (`+tierColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		t.ID, t.Code, t.Name, t.Description, t.MonthlyPrice, t.YearlyPrice,
		t.MaxUsers, t.MaxBranches, t.MaxStorageMB, pq.Array(t.Features), t.TrialDays, t.DisplayOrder,
		t.Status, t.CreatedAt, t.UpdatedAt, t.CreatedBy, t.UpdatedBy,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to create tier %s", t.Code).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *tierRepository) Get(ctx context.Context, id string) (*tier.Tier, error) {
	return r.getBy(ctx, "id", id)
}

func (r *tierRepository) GetByCode(ctx context.Context, code string) (*tier.Tier, error) {
	return r.getBy(ctx, "code", code)
}

func (r *tierRepository) getBy(ctx context.Context, column, value string) (*tier.Tier, error) {
	q := r.client.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT `+tierColumns+`
		FROM tiers
		WHERE `+column+` = $1 AND status != $2`,
		value, types.StatusDeleted,
	)
	t, err := scanTier(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHintf("Tier %s was not found", value).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch tier").
			Mark(ierr.ErrDatabase)
	}
	return t, nil
}

func (r *tierRepository) List(ctx context.Context, filter *types.QueryFilter) ([]*tier.Tier, error) {
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}
	q := r.client.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT `+tierColumns+`
		FROM tiers
		WHERE status = $1
		ORDER BY display_order, code
		LIMIT $2 OFFSET $3`,
		types.StatusPublished, filter.GetLimit(), filter.GetOffset(),
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list tiers").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var tiers []*tier.Tier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan tier").
				Mark(ierr.ErrDatabase)
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list tiers").
			Mark(ierr.ErrDatabase)
	}
	return tiers, nil
}

func (r *tierRepository) Update(ctx context.Context, t *tier.Tier) error {
	q := r.client.Querier(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE tiers SET
			name = $2, description = $3, monthly_price = $4, yearly_price = $5,
			max_users = $6, max_branches = $7, max_storage_mb = $8, features = $9,
			trial_days = $10, display_order = $11, status = $12,
			updated_at = $13, updated_by = $14
		WHERE id = $1 AND status != $15`,
		t.ID, t.Name, t.Description, t.MonthlyPrice, t.YearlyPrice,
		t.MaxUsers, t.MaxBranches, t.MaxStorageMB, pq.Array(t.Features),
		t.TrialDays, t.DisplayOrder, t.Status,
		t.UpdatedAt, t.UpdatedBy, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to update tier %s", t.Code).
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(res, "tier", t.ID)
}

func (r *tierRepository) Delete(ctx context.Context, id string) error {
	q := r.client.Querier(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE tiers SET status = $2, updated_at = now()
		WHERE id = $1 AND status != $2`,
		id, types.StatusDeleted,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to delete tier %s", id).
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(res, "tier", id)
}

func (r *tierRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	q := r.client.Querier(ctx)
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM tiers WHERE code = $1 AND status != $2)`,
		code, types.StatusDeleted,
	).Scan(&exists)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to check tier code").
			Mark(ierr.ErrDatabase)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTier(row rowScanner) (*tier.Tier, error) {
	var t tier.Tier
	err := row.Scan(
		&t.ID, &t.Code, &t.Name, &t.Description, &t.MonthlyPrice, &t.YearlyPrice,
		&t.MaxUsers, &t.MaxBranches, &t.MaxStorageMB, pq.Array(&t.Features),
		&t.TrialDays, &t.DisplayOrder,
		&t.Status, &t.CreatedAt, &t.UpdatedAt, &t.CreatedBy, &t.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
