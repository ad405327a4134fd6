// Package scheduler drives the lifecycle engine on a timer: every tick it
// rolls over the cycles that are due and nudges inactive users.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/moodcycle/internal/logging"
	"github.com/dmitrijs2005/moodcycle/internal/server/services"
)

type Resetter interface {
	DueUsers(ctx context.Context, now time.Time, limit int) ([]string, error)
	RunReset(ctx context.Context, userID string, now time.Time) (*services.ResetResult, error)
}

type Nudger interface {
	CandidateUsers(ctx context.Context, now time.Time, limit int) ([]string, error)
	MaybeNotify(ctx context.Context, userID string, now time.Time) (*services.NotificationResult, error)
}

// Stats summarises one tick.
type Stats struct {
	Reset       int
	Skipped     int
	ResetFailed int
	Nudged      int
	NudgeFailed int
}

type Scheduler struct {
	resets   Resetter
	nudges   Nudger
	interval time.Duration
	batch    int
	workers  int
	now      func() time.Time
	log      logging.Logger
}

func New(resets Resetter, nudges Nudger, interval time.Duration, batch, workers int, log logging.Logger) *Scheduler {
	return &Scheduler{
		resets:   resets,
		nudges:   nudges,
		interval: interval,
		batch:    batch,
		workers:  workers,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With("module", "scheduler"),
	}
}

// Run ticks immediately and then every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info(ctx, "scheduler started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			s.log.Info(ctx, "scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one reset pass followed by one nudge pass. Resets go first so
// that a user whose cycle just rolled over is judged on fresh state.
func (s *Scheduler) Tick(ctx context.Context) Stats {
	var (
		stats Stats
		mu    sync.Mutex
	)
	now := s.now()

	if ids, err := s.resets.DueUsers(ctx, now, s.batch); err != nil {
		s.log.Error(ctx, "listing due users failed", "error", err)
	} else {
		s.fanOut(ctx, ids, func(ctx context.Context, userID string) {
			res, err := s.resets.RunReset(ctx, userID, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.ResetFailed++
				s.log.Error(ctx, "scheduled reset failed", "user_id", userID, "error", err)
			case res.Status == services.ResetStatusSkipped:
				stats.Skipped++
			default:
				stats.Reset++
			}
		})
	}

	if ids, err := s.nudges.CandidateUsers(ctx, now, s.batch); err != nil {
		s.log.Error(ctx, "listing inactive users failed", "error", err)
	} else {
		s.fanOut(ctx, ids, func(ctx context.Context, userID string) {
			res, err := s.nudges.MaybeNotify(ctx, userID, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.NudgeFailed++
				s.log.Warn(ctx, "scheduled nudge failed", "user_id", userID, "error", err)
			case res.Sent:
				stats.Nudged++
			}
		})
	}

	if stats != (Stats{}) {
		s.log.Info(ctx, "tick finished",
			"reset", stats.Reset, "skipped", stats.Skipped, "reset_failed", stats.ResetFailed,
			"nudged", stats.Nudged, "nudge_failed", stats.NudgeFailed)
	}
	return stats
}

func (s *Scheduler) fanOut(ctx context.Context, ids []string, fn func(ctx context.Context, userID string)) {
	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}
