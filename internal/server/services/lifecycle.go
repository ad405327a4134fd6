// Package services contains the lifecycle engine's business operations:
// the reset executor, the notification scheduler and the task hooks that
// keep daily progress current. Repository failures are translated into the
// common error taxonomy here and nowhere else.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/tasks"
)

const maxUserIDLength = 128

func normalizeUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: userId is required", common.ErrValidation)
	}
	if len(userID) > maxUserIDLength {
		return "", fmt.Errorf("%w: userId longer than %d bytes", common.ErrValidation, maxUserIDLength)
	}
	return userID, nil
}

// storageError classifies a repository failure. Not-found, lock-lost and
// conflict outcomes keep their identity; everything else is a storage error.
func storageError(op string, err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrAlreadyExists),
		errors.Is(err, common.ErrLockLost):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%w: %s: %w", common.ErrStorage, op, err)
	}
}

// bounded runs fn under a child context limited by timeout.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func boundedErr(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := bounded(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// cycleTasks is the task set a cycle is judged on.
type cycleTasks struct {
	// retire holds every active task the reset must archive or delete,
	// leftovers included.
	retire []*models.Task
	// scored holds the tasks that count toward the cycle's points: active
	// tasks of the cycle and tasks an interrupted reset already archived.
	scored []*models.Task
	// recovered counts the archived tasks in scored.
	recovered int
	leftovers int
}

// loadCycle collects the tasks of the cycle starting at cycleStart.
// Completed tasks archived while cycleStart was already in effect belong to
// this cycle: only a successful reset moves cycleStart, so they were retired
// by a run that never committed its points. Completed tasks from before
// cycleStart are leftovers of an earlier cycle that was already scored.
// Tasks completed at or after until belong to the next cycle and are left
// alone; a zero until disables that bound.
func loadCycle(ctx context.Context, repo tasks.Repository, userID string, cycleStart *time.Time, until time.Time) (*cycleTasks, error) {
	active, err := repo.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	var since time.Time
	if cycleStart != nil {
		since = *cycleStart
	}
	archived, err := repo.ListArchivedSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	c := &cycleTasks{}
	for _, t := range active {
		switch {
		case completedFrom(t, until):
			continue
		case cycleStart != nil && t.Completed && t.CompletedAt != nil && t.CompletedAt.Before(*cycleStart):
			c.leftovers++
		default:
			c.scored = append(c.scored, t)
		}
		c.retire = append(c.retire, t)
	}
	for _, t := range archived {
		if completedFrom(t, until) {
			continue
		}
		c.scored = append(c.scored, t)
		c.recovered++
	}
	return c, nil
}

func completedFrom(t *models.Task, until time.Time) bool {
	return !until.IsZero() && t.Completed && t.CompletedAt != nil && !t.CompletedAt.Before(until)
}
