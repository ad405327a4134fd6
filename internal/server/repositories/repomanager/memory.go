package repomanager

import (
	"context"
	"database/sql"
	"sync"

	"github.com/dmitrijs2005/moodcycle/internal/dbx"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/progress"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/tasks"
)

// InMemoryRepositoryManager shares one set of in-process repositories across
// all handles. Transactions are serialised by a mutex; a failing fn does not
// roll back writes it already made.
type InMemoryRepositoryManager struct {
	txMu     sync.Mutex
	progress *progress.MemoryRepository
	tasks    *tasks.MemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		progress: progress.NewMemoryRepository(),
		tasks:    tasks.NewMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (m *InMemoryRepositoryManager) Progress(dbx.DBTX) progress.Repository {
	return m.progress
}

func (m *InMemoryRepositoryManager) Tasks(dbx.DBTX) tasks.Repository {
	return m.tasks
}

func (m *InMemoryRepositoryManager) WithTx(ctx context.Context, _ *sql.DB, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, nil)
}

// ProgressStore exposes the concrete store so tests can tune its latency.
func (m *InMemoryRepositoryManager) ProgressStore() *progress.MemoryRepository {
	return m.progress
}

// TaskStore exposes the concrete store so tests can inject failures.
func (m *InMemoryRepositoryManager) TaskStore() *tasks.MemoryRepository {
	return m.tasks
}
