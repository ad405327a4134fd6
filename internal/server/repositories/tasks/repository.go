// Package tasks persists user tasks.
package tasks

import (
	"context"
	"time"

	"github.com/dmitrijs2005/moodcycle/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.Task) (*models.Task, error)
	Get(ctx context.Context, taskID string) (*models.Task, error)
	// ListActive returns the user's non-archived tasks.
	ListActive(ctx context.Context, userID string) ([]*models.Task, error)
	// ListArchivedSince returns the user's archived tasks completed at or
	// after since.
	ListArchivedSince(ctx context.Context, userID string, since time.Time) ([]*models.Task, error)
	MarkCompleted(ctx context.Context, taskID string, at time.Time) error
	// Archive marks a completed task historical and prefixes its title with
	// the completion marker. It reports false when the task was already archived.
	Archive(ctx context.Context, taskID string) (bool, error)
	// Delete removes an incomplete active task. Completed or archived tasks
	// are left in place.
	Delete(ctx context.Context, taskID string) error
}
