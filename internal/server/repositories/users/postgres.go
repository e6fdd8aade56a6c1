// Package users provides the PostgreSQL-backed user store. Handle uniqueness
// and the non-negative balance are enforced by table constraints; this
// package translates their violations into common errors.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/creditkeeper/internal/common"
	"github.com/dmitrijs2005/creditkeeper/internal/dbx"
	"github.com/dmitrijs2005/creditkeeper/internal/server/models"
)

const (
	handleConstraint = "users_handle_key"

	userColumns = `id, external_id, email, handle, first_name, last_name, photo,
		credit_balance, profile_completed, handle_synced, created_at, updated_at`
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner, extra ...any) (*models.User, error) {
	user := &models.User{}
	var handle sql.NullString

	dest := []any{&user.ID, &user.ExternalID, &user.Email, &handle, &user.FirstName, &user.LastName,
		&user.Photo, &user.CreditBalance, &user.ProfileCompleted, &user.HandleSynced,
		&user.CreatedAt, &user.UpdatedAt}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if handle.Valid {
		h := handle.String
		user.Handle = &h
	}
	return user, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, externalID, email string, profile models.ProfileFields) (*models.User, bool, error) {
	query :=
		`INSERT INTO users (external_id, email, first_name, last_name, photo, credit_balance)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (external_id) DO UPDATE
		 SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, photo = EXCLUDED.photo, updated_at = now()
		 RETURNING ` + userColumns + `, (xmax = 0) AS created`

	var created bool
	user, err := scanUser(r.db.QueryRowContext(ctx, query,
		externalID, email, profile.FirstName, profile.LastName, profile.Photo, common.DefaultCreditBalance), &created)

	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return nil, false, fmt.Errorf("upsert user %s: %w", externalID, common.ErrorAlreadyExists)
		}
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	return user, created, nil
}

func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// HandleTakenByOther reports whether a user other than externalID holds handle.
func (r *PostgresRepository) HandleTakenByOther(ctx context.Context, handle, externalID string) (bool, error) {
	query :=
		`SELECT EXISTS (
		   SELECT 1 FROM users WHERE handle = $1 AND external_id <> $2
		 )`

	var taken bool
	if err := r.db.QueryRowContext(ctx, query, handle, externalID).Scan(&taken); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return taken, nil
}

// ClaimHandle sets the handle in a single conditional write. It only
// succeeds while the user has no handle yet (or already holds this one).
// A concurrent claim of the same handle by another user fails on the
// unique index and yields common.ErrConflict. common.ErrorNotFound means no
// row matched: either the user is unknown or it holds a different handle.
func (r *PostgresRepository) ClaimHandle(ctx context.Context, externalID, handle string, synced bool) (*models.User, error) {
	query :=
		`UPDATE users
		 SET handle = $2, profile_completed = true, handle_synced = $3,
		     handle_sync_attempts = 0, handle_sync_attempted_at = NULL, updated_at = now()
		 WHERE external_id = $1 AND (handle IS NULL OR handle = $2)
		 RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query, externalID, handle, synced))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		if dbx.IsUniqueViolation(err, handleConstraint) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// MarkHandleSynced clears the pending-push flag, provided the handle did not
// change in the meantime.
func (r *PostgresRepository) MarkHandleSynced(ctx context.Context, externalID, handle string) error {
	query :=
		`UPDATE users SET handle_synced = true
		 WHERE external_id = $1 AND handle = $2`

	if _, err := r.db.ExecContext(ctx, query, externalID, handle); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListUnsyncedHandles returns pending handles with fewer than maxAttempts
// failed pushes. Rows never attempted come first, then the least recently
// attempted, so a batch of permanently failing rows cannot hide the rest.
func (r *PostgresRepository) ListUnsyncedHandles(ctx context.Context, limit, maxAttempts int) ([]*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE handle_synced = false AND handle IS NOT NULL AND handle_sync_attempts < $2
		 ORDER BY handle_sync_attempted_at NULLS FIRST, updated_at
		 LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

// RecordHandleSyncFailure counts a failed push of the pending handle and
// returns the number of failures so far.
func (r *PostgresRepository) RecordHandleSyncFailure(ctx context.Context, externalID string) (int, error) {
	query :=
		`UPDATE users
		 SET handle_sync_attempts = handle_sync_attempts + 1, handle_sync_attempted_at = now()
		 WHERE external_id = $1 AND handle_synced = false
		 RETURNING handle_sync_attempts`

	var attempts int
	err := r.db.QueryRowContext(ctx, query, externalID).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

// AddCredits atomically increments the balance and returns the new value.
func (r *PostgresRepository) AddCredits(ctx context.Context, externalID string, credits int64) (int64, error) {
	query :=
		`UPDATE users SET credit_balance = credit_balance + $2, updated_at = now()
		 WHERE external_id = $1
		 RETURNING credit_balance`

	var balance int64
	err := r.db.QueryRowContext(ctx, query, externalID, credits).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	return balance, nil
}

// Delete hard-deletes the user row. Transactions are left in place.
func (r *PostgresRepository) Delete(ctx context.Context, externalID string) (bool, error) {
	query := `DELETE FROM users WHERE external_id = $1`

	res, err := r.db.ExecContext(ctx, query, externalID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}
