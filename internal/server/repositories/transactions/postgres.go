// Package transactions stores the ledger rows created from payment
// notifications. The unique payment_id is the ledger idempotency key.
package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/creditkeeper/internal/common"
	"github.com/dmitrijs2005/creditkeeper/internal/dbx"
	"github.com/dmitrijs2005/creditkeeper/internal/server/models"
)

const transactionColumns = `id, payment_id, amount, plan, credits, buyer_external_id, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, tx *models.Transaction) (*models.Transaction, bool, error) {
	query :=
		`INSERT INTO transactions (payment_id, amount, plan, credits, buyer_external_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (payment_id) DO NOTHING
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		tx.PaymentID, tx.Amount, tx.Plan, tx.Credits, tx.BuyerExternalID, tx.CreatedAt).Scan(&tx.ID, &tx.CreatedAt)

	if err == nil {
		return tx, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	existing, err := r.GetByPaymentID(ctx, tx.PaymentID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepository) GetByPaymentID(ctx context.Context, paymentID string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE payment_id = $1`

	tx := &models.Transaction{}
	err := r.db.QueryRowContext(ctx, query, paymentID).Scan(
		&tx.ID, &tx.PaymentID, &tx.Amount, &tx.Plan, &tx.Credits, &tx.BuyerExternalID, &tx.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tx, nil
}
