// Package repomanager vends repositories bound to a database handle and owns
// schema migrations and transaction scoping for the selected backend.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/moodcycle/internal/dbx"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/progress"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/tasks"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Progress(db dbx.DBTX) progress.Repository
	Tasks(db dbx.DBTX) tasks.Repository
	// WithTx runs fn atomically. Repositories obtained inside fn must be
	// bound to the tx argument.
	WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx dbx.DBTX) error) error
}
