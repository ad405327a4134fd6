package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
)

// MemoryRepository keeps progress records in process memory. It backs the
// "memory" DSN and tests; Latency delays every call to widen race windows.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*models.UserProgress
	Latency time.Duration
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*models.UserProgress)}
}

func (r *MemoryRepository) wait(ctx context.Context) error {
	if r.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(r.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *MemoryRepository) Create(ctx context.Context, p *models.UserProgress) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[p.UserID]; ok {
		return common.ErrAlreadyExists
	}
	r.records[p.UserID] = p.Clone()
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, userID string) (*models.UserProgress, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.records[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryRepository) AcquireLock(ctx context.Context, userID, token string, now, staleBefore time.Time) (bool, error) {
	if err := r.wait(ctx); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.records[userID]
	if !ok {
		return false, nil
	}
	if p.Locked && p.LockedAt != nil && p.LockedAt.After(staleBefore) {
		return false, nil
	}
	p.Locked = true
	p.LockedAt = &now
	p.LockToken = token
	return true, nil
}

func (r *MemoryRepository) ReleaseLock(ctx context.Context, userID, token string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.records[userID]; ok && p.LockToken == token {
		p.Locked = false
		p.LockedAt = nil
		p.LockToken = ""
	}
	return nil
}

func (r *MemoryRepository) CompleteCycle(ctx context.Context, next *models.UserProgress, token string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.records[next.UserID]
	if !ok || p.LockToken != token {
		return common.ErrLockLost
	}
	p.AllTimePoints = next.AllTimePoints
	p.DailyPoints = next.DailyPoints
	p.CycleStart = next.Clone().CycleStart
	p.MoodTier = next.MoodTier
	p.Locked = false
	p.LockedAt = nil
	p.LockToken = ""
	return nil
}

func (r *MemoryRepository) TouchActivity(ctx context.Context, userID string, at time.Time, dailyPoints int, mood models.MoodTier) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.records[userID]
	if !ok {
		return common.ErrorNotFound
	}
	p.LastActivityAt = &at
	p.DailyPoints = dailyPoints
	p.MoodTier = mood
	return nil
}

func (r *MemoryRepository) RecordNotification(ctx context.Context, userID string, sentAt time.Time) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.records[userID]; ok {
		p.LastNotificationSentAt = &sentAt
		p.NotifyAttempts = 0
		p.NotifyWindowStart = nil
	}
	return nil
}

func (r *MemoryRepository) RecordNotificationFailure(ctx context.Context, userID string, windowStart time.Time, attempts int) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.records[userID]; ok {
		p.NotifyWindowStart = &windowStart
		p.NotifyAttempts = attempts
	}
	return nil
}

func (r *MemoryRepository) ListDueForReset(ctx context.Context, cycleStartBefore time.Time, limit int) ([]string, error) {
	return r.list(ctx, limit, func(p *models.UserProgress) bool {
		if p.CycleStart == nil {
			return p.BrandNew()
		}
		return !p.CycleStart.After(cycleStartBefore)
	})
}

func (r *MemoryRepository) ListInactive(ctx context.Context, now time.Time, window time.Duration, maxAttempts, limit int) ([]string, error) {
	activityBefore := now.Add(-window)
	return r.list(ctx, limit, func(p *models.UserProgress) bool {
		if p.LastActivityAt != nil && p.LastActivityAt.After(activityBefore) {
			return false
		}
		ref, windowStart := p.CreatedAt, p.CreatedAt
		if p.LastActivityAt != nil {
			ref = *p.LastActivityAt
			windowStart = p.LastActivityAt.Add(window)
		}
		if p.LastNotificationSentAt != nil && !p.LastNotificationSentAt.Before(ref) {
			return false
		}
		exhausted := p.NotifyAttempts >= maxAttempts &&
			p.NotifyWindowStart != nil && p.NotifyWindowStart.Equal(windowStart)
		return !exhausted
	})
}

func (r *MemoryRepository) list(ctx context.Context, limit int, keep func(*models.UserProgress) bool) ([]string, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, p := range r.records {
		if keep(p) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
