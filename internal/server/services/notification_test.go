package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/logging"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
	"github.com/dmitrijs2005/moodcycle/internal/server/notifier"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/repomanager"
)

func inactiveSeed(userID string, idle time.Duration) seed {
	last := now.Add(-idle)
	cycleStart := now.Add(-time.Hour)
	return seed{progress: models.UserProgress{
		UserID: userID, Email: userID + "@example.com",
		CycleStart: &cycleStart, LastActivityAt: &last, AllTimePoints: 90,
	}}
}

func TestMaybeNotify_SendsOncePerWindow(t *testing.T) {
	m := repomanager.NewInMemoryRepositoryManager()
	s := inactiveSeed("ada", 40*time.Hour)
	done := ptr(now.Add(-50 * time.Minute))
	s.tasks = []*models.Task{
		{ID: "ada-r1", Title: "Read a chapter", Completed: true, CompletedAt: done},
		{ID: "ada-s1", Title: "Bike to work", Completed: true, IsSustainable: true, CompletedAt: done},
		{ID: "ada-i1", Title: "Do taxes"},
	}
	seedStore(t, m, s)
	rec := &recordingNotifier{}
	svc := NewNotificationService(nil, m, testConfig(), rec, logging.Nop())
	ctx := context.Background()

	res, err := svc.MaybeNotify(ctx, "ada", now)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, NotifySent, res.Reason)
	assert.Equal(t, now.Add(-40*time.Hour).Add(36*time.Hour), res.WindowStart)
	require.Len(t, rec.messages, 1)
	assert.Equal(t, notifier.KindInactivityNudge, rec.messages[0].Kind)
	assert.Equal(t, "ada@example.com", rec.messages[0].Email)
	assert.Equal(t, 30, rec.messages[0].PointsEarned)
	assert.Equal(t, 2, rec.messages[0].CompletedCount)
	assert.Equal(t, 1, rec.messages[0].IncompleteCount)
	assert.Equal(t, int64(90), rec.messages[0].AllTimePoints)
	assert.Equal(t, now, *getProgress(t, m, "ada").LastNotificationSentAt)

	res, err = svc.MaybeNotify(ctx, "ada", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, NotifyAlreadySent, res.Reason)
	assert.Len(t, rec.messages, 1)
}

func TestMaybeNotify_NotDue(t *testing.T) {
	m := repomanager.NewInMemoryRepositoryManager()
	seedStore(t, m, inactiveSeed("ada", 36*time.Hour-time.Second))
	rec := &recordingNotifier{}

	res, err := NewNotificationService(nil, m, testConfig(), rec, logging.Nop()).MaybeNotify(context.Background(), "ada", now)
	require.NoError(t, err)
	assert.Equal(t, NotifyNotDue, res.Reason)
	assert.Empty(t, rec.messages)
}

func TestMaybeNotify_NewWindowAfterActivity(t *testing.T) {
	m := repomanager.NewInMemoryRepositoryManager()
	s := inactiveSeed("ada", 40*time.Hour)
	s.progress.LastNotificationSentAt = ptr(now.Add(-100 * time.Hour))
	seedStore(t, m, s)
	rec := &recordingNotifier{}

	res, err := NewNotificationService(nil, m, testConfig(), rec, logging.Nop()).MaybeNotify(context.Background(), "ada", now)
	require.NoError(t, err)
	assert.True(t, res.Sent, "a nudge from an earlier window does not block the current one")
}

func TestMaybeNotify_RetryCeiling(t *testing.T) {
	m := repomanager.NewInMemoryRepositoryManager()
	seedStore(t, m, inactiveSeed("ada", 40*time.Hour))
	rec := &recordingNotifier{err: errors.New("mailer down")}
	cfg := testConfig()
	cfg.MaxNotifyAttempts = 3
	svc := NewNotificationService(nil, m, cfg, rec, logging.Nop())
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		res, err := svc.MaybeNotify(ctx, "ada", now.Add(time.Duration(attempt)*time.Minute))
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrNotifier))
		assert.False(t, res.Sent)
		assert.Equal(t, attempt, res.Attempts)
	}

	res, err := svc.MaybeNotify(ctx, "ada", now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, NotifyRetryCeiling, res.Reason)
	assert.Len(t, rec.messages, 3, "no delivery attempted past the ceiling")

	p := getProgress(t, m, "ada")
	assert.Nil(t, p.LastNotificationSentAt)
	assert.Equal(t, 3, p.NotifyAttempts)
}

func TestMaybeNotify_CeilingResetsWithNewWindow(t *testing.T) {
	ctx := context.Background()
	m := repomanager.NewInMemoryRepositoryManager()
	seedStore(t, m, inactiveSeed("ada", 40*time.Hour))
	oldWindow := now.Add(-40 * time.Hour).Add(36 * time.Hour)
	require.NoError(t, m.Progress(nil).RecordNotificationFailure(ctx, "ada", oldWindow, 3))

	// Activity moves the window forward.
	require.NoError(t, m.Progress(nil).TouchActivity(ctx, "ada", now.Add(-37*time.Hour), 0, models.MoodSad))

	rec := &recordingNotifier{}
	res, err := NewNotificationService(nil, m, testConfig(), rec, logging.Nop()).MaybeNotify(ctx, "ada", now)
	require.NoError(t, err)
	assert.True(t, res.Sent)

	p := getProgress(t, m, "ada")
	assert.Equal(t, 0, p.NotifyAttempts)
	assert.Nil(t, p.NotifyWindowStart)
}

func TestMaybeNotify_MissingActivity(t *testing.T) {
	ctx := context.Background()
	m := repomanager.NewInMemoryRepositoryManager()
	seedStore(t, m, seed{progress: models.UserProgress{UserID: "veteran", AllTimePoints: 10}})
	seedStore(t, m, seed{progress: models.UserProgress{UserID: "fresh", CreatedAt: now.Add(-time.Hour)}})
	rec := &recordingNotifier{}
	svc := NewNotificationService(nil, m, testConfig(), rec, logging.Nop())

	_, err := svc.MaybeNotify(ctx, "veteran", now)
	assert.True(t, errors.Is(err, common.ErrMissingTimestamp))

	res, err := svc.MaybeNotify(ctx, "fresh", now)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, now.Add(-time.Hour), res.WindowStart)
}

func TestMaybeNotify_Validation(t *testing.T) {
	svc := NewNotificationService(nil, repomanager.NewInMemoryRepositoryManager(), testConfig(), &recordingNotifier{}, logging.Nop())

	_, err := svc.MaybeNotify(context.Background(), "", now)
	assert.True(t, errors.Is(err, common.ErrValidation))

	_, err = svc.MaybeNotify(context.Background(), "ghost", now)
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestSendCycleSummary_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.CycleSummaryEnabled = false
	rec := &recordingNotifier{}
	svc := NewNotificationService(nil, repomanager.NewInMemoryRepositoryManager(), cfg, rec, logging.Nop())

	require.NoError(t, svc.SendCycleSummary(context.Background(), &models.UserProgress{UserID: "u"}, &ResetResult{UserID: "u"}))
	assert.Empty(t, rec.messages)
}

func TestCandidateUsers(t *testing.T) {
	m := repomanager.NewInMemoryRepositoryManager()
	seedStore(t, m, inactiveSeed("idle", 40*time.Hour))
	seedStore(t, m, inactiveSeed("busy", time.Hour))

	ids, err := NewNotificationService(nil, m, testConfig(), &recordingNotifier{}, logging.Nop()).CandidateUsers(context.Background(), now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"idle"}, ids)
}

func TestCandidateUsers_SkipsWindowsAtRetryCeiling(t *testing.T) {
	m := repomanager.NewInMemoryRepositoryManager()
	ctx := context.Background()
	seedStore(t, m, inactiveSeed("a-stuck", 40*time.Hour))
	seedStore(t, m, inactiveSeed("b-idle", 40*time.Hour))
	failing := NewNotificationService(nil, m, testConfig(), &recordingNotifier{err: errors.New("smtp down")}, logging.Nop())
	for range testConfig().MaxNotifyAttempts {
		_, err := failing.MaybeNotify(ctx, "a-stuck", now)
		require.Error(t, err)
	}

	ids, err := failing.CandidateUsers(ctx, now, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b-idle"}, ids)

	// activity opens a new window with a fresh budget
	seen := now.Add(-37 * time.Hour)
	require.NoError(t, m.Progress(nil).TouchActivity(ctx, "a-stuck", seen, 0, models.MoodSad))
	ids, err = failing.CandidateUsers(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-stuck", "b-idle"}, ids)
}
