package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/dbx"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.UserProgress) error {
	query :=
		`INSERT INTO user_progress (user_id, email, cycle_start, last_activity_at, daily_points, all_time_points, mood_tier, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO NOTHING
		 `
	res, err := r.db.ExecContext(ctx, query,
		p.UserID, p.Email, nullTime(p.CycleStart), nullTime(p.LastActivityAt),
		p.DailyPoints, p.AllTimePoints, string(p.MoodTier), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	ok, err := dbx.AffectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrAlreadyExists
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.UserProgress, error) {
	query :=
		`SELECT user_id, email, cycle_start, last_activity_at, last_notification_sent_at,
		        notify_window_start, notify_attempts, daily_points, all_time_points, mood_tier,
		        locked, locked_at, lock_token, created_at
		 FROM user_progress
		 WHERE user_id = $1
		 `

	var (
		p                                          models.UserProgress
		cycleStart, lastActivity, lastSent, window sql.NullTime
		lockedAt                                   sql.NullTime
		lockToken                                  sql.NullString
		mood                                       string
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.Email, &cycleStart, &lastActivity, &lastSent,
		&window, &p.NotifyAttempts, &p.DailyPoints, &p.AllTimePoints, &mood,
		&p.Locked, &lockedAt, &lockToken, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	p.CycleStart = timePtr(cycleStart)
	p.LastActivityAt = timePtr(lastActivity)
	p.LastNotificationSentAt = timePtr(lastSent)
	p.NotifyWindowStart = timePtr(window)
	p.LockedAt = timePtr(lockedAt)
	p.LockToken = lockToken.String
	p.MoodTier = models.MoodTier(mood)

	return &p, nil
}

func (r *PostgresRepository) AcquireLock(ctx context.Context, userID, token string, now, staleBefore time.Time) (bool, error) {
	query :=
		`UPDATE user_progress SET locked = TRUE, locked_at = $3, lock_token = $2
		 WHERE user_id = $1 AND (locked = FALSE OR locked_at IS NULL OR locked_at <= $4)
		 `
	res, err := r.db.ExecContext(ctx, query, userID, token, now, staleBefore)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return dbx.AffectedOne(res)
}

func (r *PostgresRepository) ReleaseLock(ctx context.Context, userID, token string) error {
	query :=
		`UPDATE user_progress SET locked = FALSE, locked_at = NULL, lock_token = NULL
		 WHERE user_id = $1 AND lock_token = $2
		 `
	if _, err := r.db.ExecContext(ctx, query, userID, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CompleteCycle(ctx context.Context, p *models.UserProgress, token string) error {
	query :=
		`UPDATE user_progress
		 SET all_time_points = $2, daily_points = $3, cycle_start = $4, mood_tier = $5,
		     locked = FALSE, locked_at = NULL, lock_token = NULL
		 WHERE user_id = $1 AND lock_token = $6
		 `
	res, err := r.db.ExecContext(ctx, query,
		p.UserID, p.AllTimePoints, p.DailyPoints, nullTime(p.CycleStart), string(p.MoodTier), token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	ok, err := dbx.AffectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrLockLost
	}
	return nil
}

func (r *PostgresRepository) TouchActivity(ctx context.Context, userID string, at time.Time, dailyPoints int, mood models.MoodTier) error {
	query :=
		`UPDATE user_progress SET last_activity_at = $2, daily_points = $3, mood_tier = $4
		 WHERE user_id = $1
		 `
	res, err := r.db.ExecContext(ctx, query, userID, at, dailyPoints, string(mood))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	ok, err := dbx.AffectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) RecordNotification(ctx context.Context, userID string, sentAt time.Time) error {
	query :=
		`UPDATE user_progress
		 SET last_notification_sent_at = $2, notify_attempts = 0, notify_window_start = NULL
		 WHERE user_id = $1
		 `
	if _, err := r.db.ExecContext(ctx, query, userID, sentAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RecordNotificationFailure(ctx context.Context, userID string, windowStart time.Time, attempts int) error {
	query :=
		`UPDATE user_progress SET notify_window_start = $2, notify_attempts = $3
		 WHERE user_id = $1
		 `
	if _, err := r.db.ExecContext(ctx, query, userID, windowStart, attempts); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListDueForReset(ctx context.Context, cycleStartBefore time.Time, limit int) ([]string, error) {
	query :=
		`SELECT user_id FROM user_progress
		 WHERE (cycle_start IS NULL AND all_time_points = 0 AND daily_points = 0)
		    OR cycle_start <= $1
		 ORDER BY cycle_start NULLS FIRST
		 LIMIT $2
		 `
	return r.selectIDs(ctx, query, cycleStartBefore, limit)
}

// ListInactive passes the window in microseconds, the resolution of
// timestamptz, so the recomputed window start compares exactly with the
// stored notify_window_start.
func (r *PostgresRepository) ListInactive(ctx context.Context, now time.Time, window time.Duration, maxAttempts, limit int) ([]string, error) {
	query :=
		`SELECT user_id FROM user_progress
		 WHERE (last_activity_at IS NULL OR last_activity_at <= $1)
		   AND (last_notification_sent_at IS NULL
		        OR last_notification_sent_at < COALESCE(last_activity_at, created_at))
		   AND (notify_attempts < $3
		        OR notify_window_start IS DISTINCT FROM
		           COALESCE(last_activity_at + $2 * INTERVAL '1 microsecond', created_at))
		 ORDER BY last_activity_at NULLS FIRST, user_id
		 LIMIT $4
		 `
	return r.selectIDs(ctx, query, now.Add(-window), window.Microseconds(), maxAttempts, limit)
}

func (r *PostgresRepository) selectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
