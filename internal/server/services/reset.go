package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/logging"
	"github.com/dmitrijs2005/moodcycle/internal/server/config"
	"github.com/dmitrijs2005/moodcycle/internal/server/eligibility"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/progress"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/tasks"
	"github.com/dmitrijs2005/moodcycle/internal/server/scoring"
)

type ResetStatus string

const (
	ResetStatusReset   ResetStatus = "reset"
	ResetStatusSkipped ResetStatus = "skipped"
	ResetStatusError   ResetStatus = "error"
)

// Skip reasons reported in ResetResult.Reason.
const (
	ReasonNotDue = "not_due"
	ReasonLocked = "locked"
)

// ResetResult describes one RunReset call. Skipped runs carry only Status
// and Reason.
type ResetResult struct {
	UserID string
	Status ResetStatus
	Reason string

	PointsEarned    int
	CompletedCount  int
	IncompleteCount int
	ArchivedCount   int
	DeletedCount    int
	// LeftoverCount counts tasks from an earlier cycle swept without scoring.
	LeftoverCount int
	// RecoveredCount counts tasks archived by an interrupted run of this
	// cycle and scored again.
	RecoveredCount int

	MoodBefore    models.MoodTier
	MoodAfter     models.MoodTier
	AllTimePoints int64
	CycleStart    time.Time

	Failures []common.TaskFailure
}

// Partial returns a *common.PartialArchiveError when some task writes failed,
// nil otherwise.
func (r *ResetResult) Partial() error {
	if pe := common.NewPartialArchiveError(r.Failures); pe != nil {
		return pe
	}
	return nil
}

func skipped(userID, reason string) *ResetResult {
	return &ResetResult{UserID: userID, Status: ResetStatusSkipped, Reason: reason}
}

// CycleSummarySender is told about every successful reset. Its failures
// never affect the reset outcome.
type CycleSummarySender interface {
	SendCycleSummary(ctx context.Context, p *models.UserProgress, r *ResetResult) error
}

// ResetService rolls a user's daily cycle over: it scores the cycle, archives
// completed tasks, deletes incomplete ones and moves the counters forward.
type ResetService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	scoring     scoring.Engine
	evaluator   eligibility.Evaluator
	summary     CycleSummarySender
	log         logging.Logger

	lockStale     time.Duration
	storeTimeout  time.Duration
	notifyTimeout time.Duration
	workers       int
}

// NewResetService wires a ResetService. summary may be nil.
func NewResetService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, summary CycleSummarySender, log logging.Logger) *ResetService {
	return &ResetService{
		db:            db,
		repomanager:   m,
		scoring:       cfg.Scoring(),
		evaluator:     cfg.Eligibility(),
		summary:       summary,
		log:           log.With("module", "reset"),
		lockStale:     cfg.LockStale,
		storeTimeout:  cfg.StoreTimeout,
		notifyTimeout: cfg.NotifyTimeout,
		workers:       cfg.ResetWorkers,
	}
}

// RunReset rolls the user's cycle over when it is due. A cycle that is not
// due, or whose guard is held by another run, yields a skipped result and no
// error. Errors are common.ErrValidation, common.ErrMissingTimestamp,
// common.ErrorNotFound, common.ErrLockLost or common.ErrStorage; on any of
// them the cycle has not been rolled over.
func (s *ResetService) RunReset(ctx context.Context, userID string, now time.Time) (*ResetResult, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	log := s.log.With("user_id", userID)
	progressRepo := s.repomanager.Progress(s.db)

	due, _, err := s.checkDue(ctx, progressRepo, userID, now)
	if err != nil {
		return nil, err
	}
	if !due {
		log.Debug(ctx, "reset not due")
		return skipped(userID, ReasonNotDue), nil
	}

	token := uuid.NewString()
	acquired, err := bounded(ctx, s.storeTimeout, func(ctx context.Context) (bool, error) {
		return progressRepo.AcquireLock(ctx, userID, token, now, now.Add(-s.lockStale))
	})
	if err != nil {
		return nil, storageError("acquire reset lock", err)
	}
	if !acquired {
		log.Info(ctx, "reset skipped", "reason", common.ErrConcurrencyConflict.Error())
		return skipped(userID, ReasonLocked), nil
	}

	result, p, err := s.rollOver(ctx, progressRepo, log, userID, token, now)
	if err != nil || result.Status != ResetStatusReset {
		s.releaseLock(ctx, progressRepo, log, userID, token)
	}
	if err != nil {
		log.Error(ctx, "reset failed", "error", err)
		return nil, err
	}
	if result.Status != ResetStatusReset {
		return result, nil
	}

	log.Info(ctx, "reset completed",
		"points_earned", result.PointsEarned,
		"archived", result.ArchivedCount,
		"deleted", result.DeletedCount,
		"leftovers", result.LeftoverCount,
		"failed_writes", len(result.Failures),
		"mood_before", result.MoodBefore,
	)
	s.sendSummary(ctx, log, p, result)
	return result, nil
}

func (s *ResetService) checkDue(ctx context.Context, repo progress.Repository, userID string, now time.Time) (bool, *models.UserProgress, error) {
	p, err := bounded(ctx, s.storeTimeout, func(ctx context.Context) (*models.UserProgress, error) {
		return repo.Get(ctx, userID)
	})
	if err != nil {
		return false, nil, storageError("load progress", err)
	}
	due, err := s.evaluator.ResetDue(p, now)
	if err != nil {
		return false, nil, err
	}
	return due, p, nil
}

// rollOver runs with the guard held. The progress record is read again
// because a concurrent run may have completed between the first check and
// the lock acquisition.
func (s *ResetService) rollOver(ctx context.Context, progressRepo progress.Repository, log logging.Logger, userID, token string, now time.Time) (*ResetResult, *models.UserProgress, error) {
	due, p, err := s.checkDue(ctx, progressRepo, userID, now)
	if err != nil {
		return nil, nil, err
	}
	if !due {
		return skipped(userID, ReasonNotDue), nil, nil
	}

	taskRepo := s.repomanager.Tasks(s.db)
	cycle, err := bounded(ctx, s.storeTimeout, func(ctx context.Context) (*cycleTasks, error) {
		return loadCycle(ctx, taskRepo, userID, p.CycleStart, now)
	})
	if err != nil {
		return nil, nil, storageError("load tasks", err)
	}
	if cycle.recovered > 0 {
		log.Info(ctx, "rescoring tasks archived by an interrupted reset", "tasks", cycle.recovered)
	}
	score := s.scoring.Score(cycle.scored)

	result := &ResetResult{
		UserID:          userID,
		Status:          ResetStatusReset,
		PointsEarned:    score.Points,
		CompletedCount:  score.CompletedCount,
		IncompleteCount: score.IncompleteCount,
		LeftoverCount:   cycle.leftovers,
		RecoveredCount:  cycle.recovered,
		MoodBefore:      s.scoring.Mood(score.Points),
	}
	s.retireTasks(ctx, taskRepo, log, cycle.retire, result)

	next := p.Clone()
	next.AllTimePoints += int64(score.Points)
	next.DailyPoints = 0
	next.CycleStart = &now
	next.MoodTier = s.scoring.Mood(0)

	err = boundedErr(ctx, s.storeTimeout, func(ctx context.Context) error {
		return progressRepo.CompleteCycle(ctx, next, token)
	})
	if err != nil {
		return nil, nil, storageError("complete cycle", err)
	}

	result.MoodAfter = next.MoodTier
	result.AllTimePoints = next.AllTimePoints
	result.CycleStart = now
	return result, next, nil
}

// retireTasks archives completed tasks and deletes incomplete ones
// concurrently. Each write has its own timeout; failures are collected into
// result and never stop the remaining writes.
func (s *ResetService) retireTasks(ctx context.Context, repo tasks.Repository, log logging.Logger, all []*models.Task, result *ResetResult) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.workers)

	for _, t := range all {
		g.Go(func() error {
			op := "delete"
			if t.Completed {
				op = "archive"
			}

			var archived bool
			err := boundedErr(ctx, s.storeTimeout, func(ctx context.Context) error {
				if op == "delete" {
					return repo.Delete(ctx, t.ID)
				}
				var err error
				archived, err = repo.Archive(ctx, t.ID)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				log.Warn(ctx, "task write failed", "task_id", t.ID, "op", op, "error", err)
				result.Failures = append(result.Failures, common.TaskFailure{TaskID: t.ID, Op: op, Err: err})
			case op == "delete":
				result.DeletedCount++
			case archived:
				result.ArchivedCount++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].TaskID < result.Failures[j].TaskID
	})
}

// releaseLock frees the guard after an aborted run. It must outlive a
// cancelled request context.
func (s *ResetService) releaseLock(ctx context.Context, repo progress.Repository, log logging.Logger, userID, token string) {
	ctx = context.WithoutCancel(ctx)
	err := boundedErr(ctx, s.storeTimeout, func(ctx context.Context) error {
		return repo.ReleaseLock(ctx, userID, token)
	})
	if err != nil {
		log.Warn(ctx, "release reset lock failed; it will go stale", "error", err)
	}
}

func (s *ResetService) sendSummary(ctx context.Context, log logging.Logger, p *models.UserProgress, result *ResetResult) {
	if s.summary == nil {
		return
	}
	err := boundedErr(ctx, s.notifyTimeout, func(ctx context.Context) error {
		return s.summary.SendCycleSummary(ctx, p, result)
	})
	if err != nil {
		log.Warn(ctx, "cycle summary not delivered", "error", err)
	}
}

// DueUsers lists up to limit users whose cycle is due at now.
func (s *ResetService) DueUsers(ctx context.Context, now time.Time, limit int) ([]string, error) {
	repo := s.repomanager.Progress(s.db)
	ids, err := bounded(ctx, s.storeTimeout, func(ctx context.Context) ([]string, error) {
		return repo.ListDueForReset(ctx, now.Add(-s.evaluator.ResetWindow), limit)
	})
	if err != nil {
		return nil, storageError("list due users", err)
	}
	return ids, nil
}
