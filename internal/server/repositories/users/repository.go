package users

import (
	"context"

	"github.com/dmitrijs2005/creditkeeper/internal/server/models"
)

type Repository interface {
	// Upsert creates the user on first sighting or refreshes its profile
	// fields. created reports whether a new row was inserted.
	Upsert(ctx context.Context, externalID, email string, profile models.ProfileFields) (user *models.User, created bool, err error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	HandleTakenByOther(ctx context.Context, handle, externalID string) (bool, error)
	ClaimHandle(ctx context.Context, externalID, handle string, synced bool) (*models.User, error)
	MarkHandleSynced(ctx context.Context, externalID, handle string) error
	ListUnsyncedHandles(ctx context.Context, limit, maxAttempts int) ([]*models.User, error)
	RecordHandleSyncFailure(ctx context.Context, externalID string) (attempts int, err error)
	AddCredits(ctx context.Context, externalID string, credits int64) (int64, error)
	Delete(ctx context.Context, externalID string) (bool, error)
}
