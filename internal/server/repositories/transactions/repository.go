package transactions

import (
	"context"

	"github.com/dmitrijs2005/creditkeeper/internal/server/models"
)

type Repository interface {
	// CreateIfAbsent inserts tx unless a row with the same payment ID exists.
	// created is false for a duplicate; the stored row is returned either way.
	CreateIfAbsent(ctx context.Context, tx *models.Transaction) (stored *models.Transaction, created bool, err error)
	GetByPaymentID(ctx context.Context, paymentID string) (*models.Transaction, error)
}
