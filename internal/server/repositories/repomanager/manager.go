package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/dropserve/internal/dbx"
	"github.com/dmitrijs2005/dropserve/internal/server/repositories/files"
)

// RepositoryManager vends repositories bound to a DBTX, so the same service
// code can run a repository on a plain connection or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
}
