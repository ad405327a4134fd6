package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/moodcycle/internal/dbx"
	"github.com/dmitrijs2005/moodcycle/internal/logging"
	"github.com/dmitrijs2005/moodcycle/internal/server/config"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
	"github.com/dmitrijs2005/moodcycle/internal/server/notifier"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/progress"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/repomanager"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	var c config.Config
	c.LoadDefaults()
	c.StoreTimeout = time.Second
	c.NotifyTimeout = time.Second
	return &c
}

func ptr[T any](v T) *T { return &v }

type seed struct {
	progress models.UserProgress
	tasks    []*models.Task
}

func seedStore(t *testing.T, m *repomanager.InMemoryRepositoryManager, s seed) {
	t.Helper()
	ctx := context.Background()
	if s.progress.CreatedAt.IsZero() {
		s.progress.CreatedAt = now.Add(-30 * 24 * time.Hour)
	}
	if s.progress.MoodTier == "" {
		s.progress.MoodTier = models.MoodSad
	}
	require.NoError(t, m.Progress(nil).Create(ctx, &s.progress))
	for _, task := range s.tasks {
		if task.UserID == "" {
			task.UserID = s.progress.UserID
		}
		_, err := m.Tasks(nil).Create(ctx, task)
		require.NoError(t, err)
	}
}

// referenceSeed is a user with three completed regular tasks, one completed
// sustainable task and two incomplete tasks whose cycle started 25h ago.
func referenceSeed(userID string) seed {
	cycleStart := now.Add(-25 * time.Hour)
	done := ptr(cycleStart.Add(2 * time.Hour))
	return seed{
		progress: models.UserProgress{
			UserID:         userID,
			Email:          userID + "@example.com",
			CycleStart:     &cycleStart,
			LastActivityAt: done,
			DailyPoints:    50,
			AllTimePoints:  1000,
		},
		tasks: []*models.Task{
			{ID: userID + "-r1", Title: "Read a chapter", Completed: true, CompletedAt: done},
			{ID: userID + "-r2", Title: "Stretch", Completed: true, CompletedAt: done},
			{ID: userID + "-r3", Title: "Call mom", Completed: true, CompletedAt: done},
			{ID: userID + "-s1", Title: "Bike to work", Completed: true, IsSustainable: true, CompletedAt: done},
			{ID: userID + "-i1", Title: "Do taxes"},
			{ID: userID + "-i2", Title: "Compost", IsSustainable: true},
		},
	}
}

func getProgress(t *testing.T, m repomanager.RepositoryManager, userID string) *models.UserProgress {
	t.Helper()
	p, err := m.Progress(nil).Get(context.Background(), userID)
	require.NoError(t, err)
	return p
}

// overrideManager swaps the progress repository of an in-memory manager.
type overrideManager struct {
	*repomanager.InMemoryRepositoryManager
	progress progress.Repository
}

func (o overrideManager) Progress(dbx.DBTX) progress.Repository { return o.progress }

type failingCycle struct {
	progress.Repository
	err error
}

func (f failingCycle) CompleteCycle(context.Context, *models.UserProgress, string) error {
	return f.err
}

type recordingNotifier struct {
	messages []notifier.Message
	err      error
}

func (r *recordingNotifier) Notify(_ context.Context, msg notifier.Message) error {
	r.messages = append(r.messages, msg)
	return r.err
}

func newResetService(m repomanager.RepositoryManager, cfg *config.Config, summary CycleSummarySender) *ResetService {
	return NewResetService(nil, m, cfg, summary, logging.Nop())
}
