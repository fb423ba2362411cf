package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/safepass/internal/dbx"
	"github.com/dmitrijs2005/safepass/internal/server/repositories/identities"
	"github.com/dmitrijs2005/safepass/internal/server/repositories/secrets"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// path works on a plain connection pool or inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Identities(db dbx.DBTX) identities.Repository
	Secrets(db dbx.DBTX) secrets.Repository
}
