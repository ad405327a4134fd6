// Package progress persists the per-user lifecycle record. The repository is
// a dumb persistence boundary: it enforces no timing rules, only the
// conditional writes that implement the reset exclusivity guard.
package progress

import (
	"context"
	"time"

	"github.com/dmitrijs2005/moodcycle/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.UserProgress) error
	Get(ctx context.Context, userID string) (*models.UserProgress, error)

	// AcquireLock sets the reset guard when it is free or was taken before
	// staleBefore. It reports false when another reset holds it.
	AcquireLock(ctx context.Context, userID, token string, now, staleBefore time.Time) (bool, error)
	// ReleaseLock clears the guard if it is still held with token.
	ReleaseLock(ctx context.Context, userID, token string) error
	// CompleteCycle persists the rolled-over counters and clears the guard in
	// one conditional write. It fails with common.ErrLockLost when token no
	// longer owns the guard.
	CompleteCycle(ctx context.Context, p *models.UserProgress, token string) error

	// TouchActivity records a task mutation and the recomputed daily score.
	TouchActivity(ctx context.Context, userID string, at time.Time, dailyPoints int, mood models.MoodTier) error

	RecordNotification(ctx context.Context, userID string, sentAt time.Time) error
	RecordNotificationFailure(ctx context.Context, userID string, windowStart time.Time, attempts int) error

	// ListDueForReset returns users whose cycle started at or before
	// cycleStartBefore, plus brand-new users that have no cycle yet. Records
	// missing a cycle start after earning points are left out.
	ListDueForReset(ctx context.Context, cycleStartBefore time.Time, limit int) ([]string, error)
	// ListInactive returns users whose inactivity window of the given length
	// is open at now. Users already nudged for the window, or whose window
	// has used up maxAttempts failed deliveries, are left out.
	ListInactive(ctx context.Context, now time.Time, window time.Duration, maxAttempts, limit int) ([]string, error)
}
