package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/logging"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/repomanager"
)

func newTaskService(m repomanager.RepositoryManager) *TaskService {
	return NewTaskService(nil, m, testConfig(), logging.Nop())
}

func TestEnroll(t *testing.T) {
	m := repomanager.NewInMemoryRepositoryManager()
	svc := newTaskService(m)
	ctx := context.Background()

	p, err := svc.Enroll(ctx, " ada ", "Ada <ada@example.com>", now)
	require.NoError(t, err)
	assert.Equal(t, "ada", p.UserID)
	assert.Equal(t, "ada@example.com", p.Email)

	stored := getProgress(t, m, "ada")
	assert.Equal(t, now, *stored.CycleStart)
	assert.Equal(t, now, *stored.LastActivityAt)
	assert.Equal(t, models.MoodSad, stored.MoodTier)

	_, err = svc.Enroll(ctx, "ada", "", now)
	assert.True(t, errors.Is(err, common.ErrAlreadyExists))

	_, err = svc.Enroll(ctx, "bob", "not-an-address", now)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestCreateAndCompleteTask_UpdatesProgress(t *testing.T) {
	m := repomanager.NewInMemoryRepositoryManager()
	svc := newTaskService(m)
	ctx := context.Background()
	_, err := svc.Enroll(ctx, "ada", "", now)
	require.NoError(t, err)

	var ids []string
	for i, sustainable := range []bool{true, true, true, true, false, false} {
		task, err := svc.CreateTask(ctx, "ada", "task", sustainable, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.NotEmpty(t, task.ID)
		ids = append(ids, task.ID)
	}
	assert.Equal(t, 0, getProgress(t, m, "ada").DailyPoints)

	later := now.Add(time.Hour)
	for _, id := range ids {
		task, err := svc.CompleteTask(ctx, "ada", id, later)
		require.NoError(t, err)
		assert.True(t, task.Completed)
	}

	p := getProgress(t, m, "ada")
	assert.Equal(t, 100, p.DailyPoints)
	assert.Equal(t, models.MoodNeutral, p.MoodTier)
	assert.Equal(t, later, *p.LastActivityAt)

	view, err := svc.Progress(ctx, "ada", later)
	require.NoError(t, err)
	assert.Equal(t, 100, view.DailyPoints)
	assert.Equal(t, now.Add(24*time.Hour), *view.NextResetAt)
	assert.Equal(t, int64(23*3600), view.SecondsUntilReset)
	assert.False(t, view.ResetDue)
}

func TestCompleteTask_Errors(t *testing.T) {
	m := repomanager.NewInMemoryRepositoryManager()
	svc := newTaskService(m)
	ctx := context.Background()
	_, _ = svc.Enroll(ctx, "ada", "", now)
	_, _ = svc.Enroll(ctx, "bob", "", now)
	task, err := svc.CreateTask(ctx, "ada", "Plant a tree", true, now)
	require.NoError(t, err)

	_, err = svc.CompleteTask(ctx, "bob", task.ID, now)
	assert.True(t, errors.Is(err, common.ErrorNotFound), "tasks of other users are invisible")

	_, err = svc.CompleteTask(ctx, "ada", "missing", now)
	assert.True(t, errors.Is(err, common.ErrorNotFound))

	_, err = m.Tasks(nil).Archive(ctx, task.ID)
	require.NoError(t, err)
	_, err = svc.CompleteTask(ctx, "ada", task.ID, now)
	assert.True(t, errors.Is(err, common.ErrValidation))

	_, err = svc.CompleteTask(ctx, "ada", " ", now)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestCreateTask_Validation(t *testing.T) {
	m := repomanager.NewInMemoryRepositoryManager()
	svc := newTaskService(m)
	ctx := context.Background()
	_, _ = svc.Enroll(ctx, "ada", "", now)

	_, err := svc.CreateTask(ctx, "ada", "   ", false, now)
	assert.True(t, errors.Is(err, common.ErrValidation))

	_, err = svc.CreateTask(ctx, "ghost", "Read", false, now)
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestProgress_DueCountdownIsZero(t *testing.T) {
	m := repomanager.NewInMemoryRepositoryManager()
	seedStore(t, m, referenceSeed("ada"))

	view, err := newTaskService(m).Progress(context.Background(), "ada", now)
	require.NoError(t, err)
	assert.True(t, view.ResetDue)
	assert.Zero(t, view.SecondsUntilReset)
}

func TestCompleteTask_PostgresTransaction(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	cycleStart := now.Add(-time.Hour)
	progressCols := []string{"user_id", "email", "cycle_start", "last_activity_at", "last_notification_sent_at",
		"notify_window_start", "notify_attempts", "daily_points", "all_time_points", "mood_tier",
		"locked", "locked_at", "lock_token", "created_at"}
	taskCols := []string{"id", "user_id", "title", "completed", "is_sustainable", "created_at", "completed_at", "archived"}

	mock.ExpectBegin()
	mock.ExpectQuery("FROM tasks").WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows(taskCols).AddRow("t-1", "ada", "Bike", false, true, cycleStart, nil, false))
	mock.ExpectExec("UPDATE tasks SET completed = TRUE").WithArgs("t-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM user_progress").WithArgs("ada").
		WillReturnRows(sqlmock.NewRows(progressCols).AddRow("ada", "", cycleStart, cycleStart, nil, nil, 0, 0, int64(0), "SAD", false, nil, nil, cycleStart))
	mock.ExpectQuery("FROM tasks").WithArgs("ada").
		WillReturnRows(sqlmock.NewRows(taskCols).AddRow("t-1", "ada", "Bike", true, true, cycleStart, now, false))
	mock.ExpectQuery("archived = TRUE").WithArgs("ada", cycleStart).
		WillReturnRows(sqlmock.NewRows(taskCols))
	mock.ExpectExec("UPDATE user_progress SET last_activity_at").WithArgs("ada", now, 20, "SAD").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	svc := NewTaskService(db, repomanager.NewPostgresRepositoryManager(), testConfig(), logging.Nop())
	task, err := svc.CompleteTask(context.Background(), "ada", "t-1", now)
	require.NoError(t, err)
	assert.True(t, task.Completed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteTask_PostgresRollbackOnStorageError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM tasks").WithArgs("t-1").WillReturnError(errors.New("conn refused"))
	mock.ExpectRollback()

	svc := NewTaskService(db, repomanager.NewPostgresRepositoryManager(), testConfig(), logging.Nop())
	_, err = svc.CompleteTask(context.Background(), "ada", "t-1", now)
	assert.True(t, errors.Is(err, common.ErrStorage))
	require.NoError(t, mock.ExpectationsWereMet())
}
