package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/dbx"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
)

// PostgresRepository implements task storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new task. An empty ID is replaced with a random UUID.
func (r *PostgresRepository) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	query :=
		`INSERT INTO tasks (id, user_id, title, completed, is_sustainable, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `
	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.Title, t.Completed, t.IsSustainable, t.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Get(ctx context.Context, taskID string) (*models.Task, error) {
	query :=
		`SELECT id, user_id, title, completed, is_sustainable, created_at, completed_at, archived
		 FROM tasks
		 WHERE id = $1
		 `
	t, err := scanTask(r.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context, userID string) ([]*models.Task, error) {
	query :=
		`SELECT id, user_id, title, completed, is_sustainable, created_at, completed_at, archived
		 FROM tasks
		 WHERE user_id = $1 AND archived = FALSE
		 ORDER BY created_at
		 `
	return r.selectTasks(ctx, query, userID)
}

func (r *PostgresRepository) ListArchivedSince(ctx context.Context, userID string, since time.Time) ([]*models.Task, error) {
	query :=
		`SELECT id, user_id, title, completed, is_sustainable, created_at, completed_at, archived
		 FROM tasks
		 WHERE user_id = $1 AND archived = TRUE AND completed_at >= $2
		 ORDER BY completed_at
		 `
	return r.selectTasks(ctx, query, userID, since)
}

func (r *PostgresRepository) selectTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select tasks: %w", err)
	}
	defer rows.Close()

	var result []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// MarkCompleted is a no-op for tasks that are already completed or archived.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, taskID string, at time.Time) error {
	query :=
		`UPDATE tasks SET completed = TRUE, completed_at = $2
		 WHERE id = $1 AND completed = FALSE AND archived = FALSE
		 `
	if _, err := r.db.ExecContext(ctx, query, taskID, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Archive(ctx context.Context, taskID string) (bool, error) {
	query :=
		`UPDATE tasks SET archived = TRUE, title = $2 || title
		 WHERE id = $1 AND archived = FALSE
		 `
	res, err := r.db.ExecContext(ctx, query, taskID, models.ArchivedMarker)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return dbx.AffectedOne(res)
}

// Delete removes an incomplete active task. A task completed after it was
// listed survives and is swept by a later reset.
func (r *PostgresRepository) Delete(ctx context.Context, taskID string) error {
	query :=
		`DELETE FROM tasks
		 WHERE id = $1 AND completed = FALSE AND archived = FALSE
		 `
	if _, err := r.db.ExecContext(ctx, query, taskID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (*models.Task, error) {
	var (
		t           models.Task
		completedAt sql.NullTime
	)
	if err := s.Scan(&t.ID, &t.UserID, &t.Title, &t.Completed, &t.IsSustainable,
		&t.CreatedAt, &completedAt, &t.Archived); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	return &t, nil
}
