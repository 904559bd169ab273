package repository

import (
	"context"

	"github.com/stackbill/stackbill/internal/domain/paymentmethod"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type paymentMethodRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

func NewPaymentMethodRepository(client *postgres.Client, log *logger.Logger) paymentmethod.Repository {
	return &paymentMethodRepository{client: client, logger: log}
}

const paymentMethodColumns = `id, name, instructions, active,
	status, created_at, updated_at, created_by, updated_by`

func (r *paymentMethodRepository) Get(ctx context.Context, id string) (*paymentmethod.PaymentMethod, error) {
	q := r.client.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT `+paymentMethodColumns+`
		FROM payment_methods
		WHERE id = $1 AND status != $2`,
		id, types.StatusDeleted,
	)
	var pm paymentmethod.PaymentMethod
	err := row.Scan(
		&pm.ID, &pm.Name, &pm.Instructions, &pm.Active,
		&pm.Status, &pm.CreatedAt, &pm.UpdatedAt, &pm.CreatedBy, &pm.UpdatedBy,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ierr.WithError(err).
				WithHintf("Payment method %s was not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to fetch payment method").
			Mark(ierr.ErrDatabase)
	}
	return &pm, nil
}

func (r *paymentMethodRepository) ListActive(ctx context.Context) ([]*paymentmethod.PaymentMethod, error) {
	q := r.client.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT `+paymentMethodColumns+`
		FROM payment_methods
		WHERE active AND status = $1
		ORDER BY name`,
		types.StatusPublished,
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list payment methods").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var methods []*paymentmethod.PaymentMethod
	for rows.Next() {
		var pm paymentmethod.PaymentMethod
		err := rows.Scan(
			&pm.ID, &pm.Name, &pm.Instructions, &pm.Active,
			&pm.Status, &pm.CreatedAt, &pm.UpdatedAt, &pm.CreatedBy, &pm.UpdatedBy,
		)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan payment method").
				Mark(ierr.ErrDatabase)
		}
		methods = append(methods, &pm)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list payment methods").
			Mark(ierr.ErrDatabase)
	}
	return methods, nil
}
