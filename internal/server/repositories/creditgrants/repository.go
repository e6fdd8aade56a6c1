package creditgrants

import (
	"context"

	"github.com/dmitrijs2005/creditkeeper/internal/server/models"
)

type Repository interface {
	// Insert records the grant marker. inserted is false when the payment
	// was already credited (or is being credited by a concurrent transaction
	// that later commits).
	Insert(ctx context.Context, grant *models.CreditGrant) (inserted bool, err error)
}
