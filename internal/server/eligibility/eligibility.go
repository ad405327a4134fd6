// Package eligibility decides when a user's cycle must roll over and when an
// inactivity reminder is due. All functions are pure; the caller injects now.
//
// The reset window and the notification window are separate settings: the
// first bounds a cycle, the second measures inactivity.
package eligibility

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
)

const (
	DefaultResetWindow  = 24 * time.Hour
	DefaultNotifyWindow = 36 * time.Hour
)

// IsResetDue reports whether at least window has elapsed since cycleStart.
func IsResetDue(cycleStart, now time.Time, window time.Duration) bool {
	return now.Sub(cycleStart) >= window
}

// IsNotificationDue reports whether the user has been inactive for at least window.
func IsNotificationDue(lastActivityAt, now time.Time, window time.Duration) bool {
	return now.Sub(lastActivityAt) >= window
}

// Evaluator applies the configured windows to a progress record.
type Evaluator struct {
	ResetWindow  time.Duration
	NotifyWindow time.Duration
}

// New returns an Evaluator for the given windows.
func New(resetWindow, notifyWindow time.Duration) Evaluator {
	return Evaluator{ResetWindow: resetWindow, NotifyWindow: notifyWindow}
}

func (e Evaluator) Validate() error {
	if e.ResetWindow <= 0 {
		return fmt.Errorf("%w: reset window must be positive", common.ErrInvalidConfig)
	}
	if e.NotifyWindow <= 0 {
		return fmt.Errorf("%w: notify window must be positive", common.ErrInvalidConfig)
	}
	return nil
}

// ResetDue evaluates the reset rule for p. A missing cycle start is due
// immediately for a brand-new user and a defect for anyone else.
func (e Evaluator) ResetDue(p *models.UserProgress, now time.Time) (bool, error) {
	if p.CycleStart == nil {
		if p.BrandNew() {
			return true, nil
		}
		return false, fmt.Errorf("%w: user %s has no cycle start", common.ErrMissingTimestamp, p.UserID)
	}
	return IsResetDue(*p.CycleStart, now, e.ResetWindow), nil
}

// NextResetAt returns when the current cycle becomes due, or the zero time
// when the cycle has not started.
func (e Evaluator) NextResetAt(p *models.UserProgress) time.Time {
	if p.CycleStart == nil {
		return time.Time{}
	}
	return p.CycleStart.Add(e.ResetWindow)
}

// NotificationDue evaluates the inactivity rule for p with the same
// missing-timestamp policy as ResetDue.
func (e Evaluator) NotificationDue(p *models.UserProgress, now time.Time) (bool, error) {
	if p.LastActivityAt == nil {
		if p.BrandNew() {
			return true, nil
		}
		return false, fmt.Errorf("%w: user %s has no last activity", common.ErrMissingTimestamp, p.UserID)
	}
	return IsNotificationDue(*p.LastActivityAt, now, e.NotifyWindow), nil
}

// NotificationWindowStart returns the instant the current inactivity window
// opened. A brand-new user without activity has had it open since enrollment.
func (e Evaluator) NotificationWindowStart(p *models.UserProgress) (time.Time, error) {
	if p.LastActivityAt == nil {
		if p.BrandNew() {
			return p.CreatedAt, nil
		}
		return time.Time{}, fmt.Errorf("%w: user %s has no last activity", common.ErrMissingTimestamp, p.UserID)
	}
	return p.LastActivityAt.Add(e.NotifyWindow), nil
}
