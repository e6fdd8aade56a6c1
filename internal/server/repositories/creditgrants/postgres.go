// Package creditgrants stores the "credits applied" markers, one per payment.
// A marker is only ever written in the same database transaction as the
// balance increment it stands for.
package creditgrants

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/creditkeeper/internal/dbx"
	"github.com/dmitrijs2005/creditkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, grant *models.CreditGrant) (bool, error) {
	query :=
		`INSERT INTO credit_grants (payment_id, buyer_external_id, credits)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (payment_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, grant.PaymentID, grant.BuyerExternalID, grant.Credits)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}
