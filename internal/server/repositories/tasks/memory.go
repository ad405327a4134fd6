package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
)

// MemoryRepository keeps tasks in process memory. FailOn lets tests make
// individual task writes fail.
type MemoryRepository struct {
	mu      sync.Mutex
	tasks   map[string]*models.Task
	Latency time.Duration
	FailOn  func(op, taskID string) error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tasks: make(map[string]*models.Task)}
}

func (r *MemoryRepository) before(ctx context.Context, op, taskID string) error {
	if r.Latency > 0 {
		select {
		case <-time.After(r.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.FailOn != nil {
		return r.FailOn(op, taskID)
	}
	return nil
}

func (r *MemoryRepository) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	if err := r.before(ctx, "create", t.ID); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	c := *t
	r.tasks[t.ID] = &c
	return t, nil
}

func (r *MemoryRepository) Get(ctx context.Context, taskID string) (*models.Task, error) {
	if err := r.before(ctx, "get", taskID); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *t
	return &c, nil
}

func (r *MemoryRepository) ListActive(ctx context.Context, userID string) ([]*models.Task, error) {
	if err := r.before(ctx, "list", ""); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.Task
	for _, t := range r.tasks {
		if t.UserID == userID && !t.Archived {
			c := *t
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryRepository) ListArchivedSince(ctx context.Context, userID string, since time.Time) ([]*models.Task, error) {
	if err := r.before(ctx, "list", ""); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.Task
	for _, t := range r.tasks {
		if t.UserID == userID && t.Archived && t.CompletedAt != nil && !t.CompletedAt.Before(since) {
			c := *t
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CompletedAt.Equal(*result[j].CompletedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CompletedAt.Before(*result[j].CompletedAt)
	})
	return result, nil
}

// All returns every stored task for userID, archived included.
func (r *MemoryRepository) All(userID string) []*models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.Task
	for _, t := range r.tasks {
		if t.UserID == userID {
			c := *t
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (r *MemoryRepository) MarkCompleted(ctx context.Context, taskID string, at time.Time) error {
	if err := r.before(ctx, "complete", taskID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[taskID]; ok && !t.Completed && !t.Archived {
		t.Completed = true
		t.CompletedAt = &at
	}
	return nil
}

func (r *MemoryRepository) Archive(ctx context.Context, taskID string) (bool, error) {
	if err := r.before(ctx, "archive", taskID); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok || t.Archived {
		return false, nil
	}
	t.Archived = true
	t.Title = models.ArchivedMarker + t.Title
	return true, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, taskID string) error {
	if err := r.before(ctx, "delete", taskID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[taskID]; ok && !t.Completed && !t.Archived {
		delete(r.tasks, taskID)
	}
	return nil
}
