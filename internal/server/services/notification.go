package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/logging"
	"github.com/dmitrijs2005/moodcycle/internal/server/config"
	"github.com/dmitrijs2005/moodcycle/internal/server/eligibility"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
	"github.com/dmitrijs2005/moodcycle/internal/server/notifier"
	"github.com/dmitrijs2005/moodcycle/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/moodcycle/internal/server/scoring"
)

// Notification outcomes reported in NotificationResult.Reason.
const (
	NotifySent          = "sent"
	NotifyNotDue        = "not_due"
	NotifyAlreadySent   = "already_sent"
	NotifyRetryCeiling  = "retry_ceiling"
	NotifyDeliveryError = "delivery_failed"
)

type NotificationResult struct {
	UserID string
	Sent   bool
	Reason string
	// Attempts counts failed deliveries in the current window.
	Attempts    int
	WindowStart time.Time
}

// NotificationService decides when a user gets an inactivity nudge and
// delivers cycle summaries. Delivery is at-least-once: a nudge whose
// bookkeeping write fails after a successful send may be repeated.
type NotificationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	evaluator   eligibility.Evaluator
	scoring     scoring.Engine
	notifier    notifier.Notifier
	log         logging.Logger

	storeTimeout   time.Duration
	notifyTimeout  time.Duration
	maxAttempts    int
	summaryEnabled bool
}

func NewNotificationService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, n notifier.Notifier, log logging.Logger) *NotificationService {
	return &NotificationService{
		db:             db,
		repomanager:    m,
		evaluator:      cfg.Eligibility(),
		scoring:        cfg.Scoring(),
		notifier:       n,
		log:            log.With("module", "notification"),
		storeTimeout:   cfg.StoreTimeout,
		notifyTimeout:  cfg.NotifyTimeout,
		maxAttempts:    cfg.MaxNotifyAttempts,
		summaryEnabled: cfg.CycleSummaryEnabled,
	}
}

// MaybeNotify sends an inactivity nudge when the user's window has opened
// and no nudge went out for it yet. A failed delivery is counted against the
// window; after the configured number of failures the window is given up.
// Delivery failures return common.ErrNotifier together with the result.
func (s *NotificationService) MaybeNotify(ctx context.Context, userID string, now time.Time) (*NotificationResult, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	log := s.log.With("user_id", userID)
	repo := s.repomanager.Progress(s.db)

	p, err := bounded(ctx, s.storeTimeout, func(ctx context.Context) (*models.UserProgress, error) {
		return repo.Get(ctx, userID)
	})
	if err != nil {
		return nil, storageError("load progress", err)
	}

	due, err := s.evaluator.NotificationDue(p, now)
	if err != nil {
		return nil, err
	}
	result := &NotificationResult{UserID: userID}
	if !due {
		result.Reason = NotifyNotDue
		return result, nil
	}

	windowStart, err := s.evaluator.NotificationWindowStart(p)
	if err != nil {
		return nil, err
	}
	result.WindowStart = windowStart

	if p.LastNotificationSentAt != nil && !p.LastNotificationSentAt.Before(windowStart) {
		result.Reason = NotifyAlreadySent
		return result, nil
	}

	attempts := 0
	if p.NotifyWindowStart != nil && p.NotifyWindowStart.Equal(windowStart) {
		attempts = p.NotifyAttempts
	}
	result.Attempts = attempts
	if attempts >= s.maxAttempts {
		result.Reason = NotifyRetryCeiling
		log.Debug(ctx, "nudge retries exhausted for window", "window_start", windowStart, "attempts", attempts)
		return result, nil
	}

	cycle, err := bounded(ctx, s.storeTimeout, func(ctx context.Context) (*cycleTasks, error) {
		return loadCycle(ctx, s.repomanager.Tasks(s.db), userID, p.CycleStart, time.Time{})
	})
	if err != nil {
		return nil, storageError("load tasks", err)
	}
	score := s.scoring.Score(cycle.scored)

	msg := notifier.Message{
		Kind:            notifier.KindInactivityNudge,
		UserID:          userID,
		Email:           p.Email,
		SentAt:          now,
		LastActivityAt:  p.LastActivityAt,
		PointsEarned:    score.Points,
		CompletedCount:  score.CompletedCount,
		IncompleteCount: score.IncompleteCount,
		Mood:            p.MoodTier,
		AllTimePoints:   p.AllTimePoints,
	}
	sendErr := boundedErr(ctx, s.notifyTimeout, func(ctx context.Context) error {
		return s.notifier.Notify(ctx, msg)
	})
	if sendErr != nil {
		result.Attempts = attempts + 1
		result.Reason = NotifyDeliveryError
		log.Warn(ctx, "nudge delivery failed", "attempt", result.Attempts, "error", sendErr)

		err := fmt.Errorf("%w: %w", common.ErrNotifier, sendErr)
		recErr := boundedErr(ctx, s.storeTimeout, func(ctx context.Context) error {
			return repo.RecordNotificationFailure(ctx, userID, windowStart, result.Attempts)
		})
		if recErr != nil {
			err = errors.Join(err, storageError("record notification failure", recErr))
		}
		return result, err
	}

	err = boundedErr(ctx, s.storeTimeout, func(ctx context.Context) error {
		return repo.RecordNotification(ctx, userID, now)
	})
	result.Sent = true
	result.Reason = NotifySent
	if err != nil {
		log.Error(ctx, "nudge sent but not recorded", "error", err)
		return result, storageError("record notification", err)
	}
	log.Info(ctx, "nudge sent", "window_start", windowStart)
	return result, nil
}

// SendCycleSummary delivers the end-of-cycle message for a completed reset.
func (s *NotificationService) SendCycleSummary(ctx context.Context, p *models.UserProgress, r *ResetResult) error {
	if !s.summaryEnabled {
		return nil
	}
	msg := notifier.Message{
		Kind:            notifier.KindCycleSummary,
		UserID:          r.UserID,
		Email:           p.Email,
		SentAt:          r.CycleStart,
		PointsEarned:    r.PointsEarned,
		CompletedCount:  r.CompletedCount,
		IncompleteCount: r.IncompleteCount,
		Mood:            r.MoodBefore,
		AllTimePoints:   r.AllTimePoints,
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", common.ErrNotifier, err)
	}
	return nil
}

// CandidateUsers lists up to limit users whose inactivity window is open at
// now. MaybeNotify still makes the final decision for each of them.
func (s *NotificationService) CandidateUsers(ctx context.Context, now time.Time, limit int) ([]string, error) {
	repo := s.repomanager.Progress(s.db)
	ids, err := bounded(ctx, s.storeTimeout, func(ctx context.Context) ([]string, error) {
		return repo.ListInactive(ctx, now, s.evaluator.NotifyWindow, s.maxAttempts, limit)
	})
	if err != nil {
		return nil, storageError("list inactive users", err)
	}
	return ids, nil
}
