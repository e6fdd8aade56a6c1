package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/creditkeeper/internal/dbx"
	"github.com/dmitrijs2005/creditkeeper/internal/server/repositories/creditgrants"
	"github.com/dmitrijs2005/creditkeeper/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/creditkeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can run
// the same repository against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Transactions(db dbx.DBTX) transactions.Repository
	CreditGrants(db dbx.DBTX) creditgrants.Repository
}
