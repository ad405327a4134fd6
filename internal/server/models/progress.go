// Package models defines server-side data models persisted in the database.
package models

import "time"

// UserProgress is the per-user lifecycle record. It is mutated only by the
// reset executor and the task-completion hooks.
type UserProgress struct {
	UserID string
	// Email is the contact address used by the mailer.
	Email string

	// CycleStart marks the start of the current cycle. Nil only for records
	// that predate enrollment-time initialisation.
	CycleStart             *time.Time
	LastActivityAt         *time.Time
	LastNotificationSentAt *time.Time

	// NotifyWindowStart is the inactivity window the failed attempts below
	// were counted against.
	NotifyWindowStart *time.Time
	NotifyAttempts    int

	DailyPoints   int
	AllTimePoints int64
	MoodTier      MoodTier

	// Locked together with LockedAt and LockToken form the per-user
	// exclusivity guard of the reset executor.
	Locked    bool
	LockedAt  *time.Time
	LockToken string

	CreatedAt time.Time
}

// BrandNew reports whether the user has never earned a single point, i.e.
// never completed a task.
func (p *UserProgress) BrandNew() bool {
	return p.AllTimePoints == 0 && p.DailyPoints == 0
}

// Clone returns a deep copy, so callers may mutate it freely.
func (p *UserProgress) Clone() *UserProgress {
	c := *p
	c.CycleStart = cloneTime(p.CycleStart)
	c.LastActivityAt = cloneTime(p.LastActivityAt)
	c.LastNotificationSentAt = cloneTime(p.LastNotificationSentAt)
	c.NotifyWindowStart = cloneTime(p.NotifyWindowStart)
	c.LockedAt = cloneTime(p.LockedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
