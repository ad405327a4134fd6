// Package notifier delivers user-facing messages produced by the lifecycle
// engine: inactivity nudges and end-of-cycle summaries.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/moodcycle/internal/server/models"
)

type Kind string

const (
	KindInactivityNudge Kind = "inactivity_nudge"
	KindCycleSummary    Kind = "cycle_summary"
)

// Message is the payload handed to a Notifier.
type Message struct {
	Kind   Kind      `json:"kind"`
	UserID string    `json:"userId"`
	Email  string    `json:"email,omitempty"`
	SentAt time.Time `json:"sentAt"`

	// LastActivityAt is set for inactivity nudges.
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`

	// Cycle progress. A summary reports the finished cycle, a nudge the
	// cycle in progress. Zero is a meaningful value for both.
	PointsEarned    int             `json:"pointsEarned"`
	CompletedCount  int             `json:"completedCount"`
	IncompleteCount int             `json:"incompleteCount"`
	Mood            models.MoodTier `json:"mood,omitempty"`
	AllTimePoints   int64           `json:"allTimePoints,omitempty"`
}

// Notifier sends a single message. Implementations must honour ctx
// cancellation.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, msg Message) error

func (f Func) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }

func subject(msg Message) string {
	switch msg.Kind {
	case KindCycleSummary:
		return fmt.Sprintf("Your day wrapped up: %d points", msg.PointsEarned)
	default:
		return "We miss you! Your tasks are waiting"
	}
}
