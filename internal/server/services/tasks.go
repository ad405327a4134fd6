package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message/mail"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/dbx"
	"github.com/dmitrijs2005/moodcycle/internal/logging"
	"github.com/dmitrijs2005/moodcycle/internal/server/config"
	"github.com/dmitrijs2005/moodcycle/internal/server/eligibility"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/moodcycle/internal/server/scoring"
)

const maxTitleLength = 280

// ProgressView is the read model behind the progress endpoint.
type ProgressView struct {
	UserID         string
	DailyPoints    int
	AllTimePoints  int64
	Mood           models.MoodTier
	CycleStart     *time.Time
	LastActivityAt *time.Time
	NextResetAt    *time.Time
	// SecondsUntilReset is zero once the reset is due.
	SecondsUntilReset int64
	ResetDue          bool
}

// TaskService owns enrollment and the task hooks. Every task mutation
// refreshes the user's activity timestamp and recomputes the daily score in
// the same transaction.
type TaskService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	scoring     scoring.Engine
	evaluator   eligibility.Evaluator
	log         logging.Logger
}

func NewTaskService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *TaskService {
	return &TaskService{
		db:          db,
		repomanager: m,
		scoring:     cfg.Scoring(),
		evaluator:   cfg.Eligibility(),
		log:         log.With("module", "tasks"),
	}
}

// Enroll creates the progress record of a new user. The first cycle starts
// at now. email may be empty.
func (s *TaskService) Enroll(ctx context.Context, userID, email string, now time.Time) (*models.UserProgress, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)
	if email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid email: %v", common.ErrValidation, err)
		}
		email = addr.Address
	}

	p := &models.UserProgress{
		UserID:         userID,
		Email:          email,
		CycleStart:     &now,
		LastActivityAt: &now,
		MoodTier:       s.scoring.Mood(0),
		CreatedAt:      now,
	}
	if err := s.repomanager.Progress(s.db).Create(ctx, p); err != nil {
		return nil, storageError("create progress", err)
	}
	s.log.Info(ctx, "user enrolled", "user_id", userID)
	return p, nil
}

// CreateTask adds an active task for an enrolled user.
func (s *TaskService) CreateTask(ctx context.Context, userID, title string, sustainable bool, now time.Time) (*models.Task, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", common.ErrValidation)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title longer than %d characters", common.ErrValidation, maxTitleLength)
	}

	var created *models.Task
	err = s.repomanager.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Progress(tx).Get(ctx, userID); err != nil {
			return storageError("load progress", err)
		}
		task, err := s.repomanager.Tasks(tx).Create(ctx, &models.Task{
			UserID:        userID,
			Title:         title,
			IsSustainable: sustainable,
			CreatedAt:     now,
		})
		if err != nil {
			return storageError("create task", err)
		}
		created = task
		return s.refresh(ctx, tx, userID, now)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CompleteTask marks the task completed. Completing an already completed
// task only refreshes the activity timestamp.
func (s *TaskService) CompleteTask(ctx context.Context, userID, taskID string, now time.Time) (*models.Task, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("%w: taskId is required", common.ErrValidation)
	}

	var completed *models.Task
	err = s.repomanager.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Tasks(tx)
		task, err := repo.Get(ctx, taskID)
		if err != nil {
			return storageError("load task", err)
		}
		if task.UserID != userID {
			return fmt.Errorf("task %s: %w", taskID, common.ErrorNotFound)
		}
		if task.Archived {
			return fmt.Errorf("%w: task %s is archived", common.ErrValidation, taskID)
		}
		if !task.Completed {
			if err := repo.MarkCompleted(ctx, taskID, now); err != nil {
				return storageError("complete task", err)
			}
			task.Completed = true
			task.CompletedAt = &now
		}
		completed = task
		return s.refresh(ctx, tx, userID, now)
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// refresh recomputes the daily score from the current cycle's tasks and
// records the activity.
func (s *TaskService) refresh(ctx context.Context, tx dbx.DBTX, userID string, now time.Time) error {
	p, err := s.repomanager.Progress(tx).Get(ctx, userID)
	if err != nil {
		return storageError("load progress", err)
	}
	cycle, err := loadCycle(ctx, s.repomanager.Tasks(tx), userID, p.CycleStart, time.Time{})
	if err != nil {
		return storageError("load tasks", err)
	}
	points := s.scoring.Score(cycle.scored).Points

	if err := s.repomanager.Progress(tx).TouchActivity(ctx, userID, now, points, s.scoring.Mood(points)); err != nil {
		return storageError("touch activity", err)
	}
	return nil
}

// Progress returns the user's standing and the countdown to the next reset.
func (s *TaskService) Progress(ctx context.Context, userID string, now time.Time) (*ProgressView, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	p, err := s.repomanager.Progress(s.db).Get(ctx, userID)
	if err != nil {
		return nil, storageError("load progress", err)
	}
	due, err := s.evaluator.ResetDue(p, now)
	if err != nil {
		return nil, err
	}

	view := &ProgressView{
		UserID:         p.UserID,
		DailyPoints:    p.DailyPoints,
		AllTimePoints:  p.AllTimePoints,
		Mood:           p.MoodTier,
		CycleStart:     p.CycleStart,
		LastActivityAt: p.LastActivityAt,
		ResetDue:       due,
	}
	if next := s.evaluator.NextResetAt(p); !next.IsZero() {
		view.NextResetAt = &next
		if remaining := next.Sub(now); remaining > 0 {
			view.SecondsUntilReset = int64(remaining.Seconds())
		}
	}
	return view, nil
}
