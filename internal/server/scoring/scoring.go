// Package scoring turns a set of tasks into gamification points and a mood
// tier. It is pure: no I/O, no clock, no shared state. Point weighting and
// mood thresholds live only here.
package scoring

import (
	"fmt"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
)

// Default weights and thresholds.
const (
	DefaultRegularPoints     = 10
	DefaultSustainablePoints = 20
	DefaultNeutralThreshold  = 100
	DefaultHappyThreshold    = 150
)

// Engine holds the point weights and mood thresholds.
type Engine struct {
	RegularPoints     int
	SustainablePoints int
	NeutralThreshold  int
	HappyThreshold    int
}

// Score is the outcome of scoring a task set.
type Score struct {
	Points               int
	CompletedCount       int
	SustainableCompleted int
	RegularCompleted     int
	IncompleteCount      int
}

// Default returns an engine with the stock weights and thresholds.
func Default() Engine {
	return Engine{
		RegularPoints:     DefaultRegularPoints,
		SustainablePoints: DefaultSustainablePoints,
		NeutralThreshold:  DefaultNeutralThreshold,
		HappyThreshold:    DefaultHappyThreshold,
	}
}

// Validate rejects weights and thresholds that would make scoring meaningless.
func (e Engine) Validate() error {
	if e.RegularPoints <= 0 || e.SustainablePoints <= 0 {
		return fmt.Errorf("%w: task points must be positive (regular=%d, sustainable=%d)",
			common.ErrInvalidConfig, e.RegularPoints, e.SustainablePoints)
	}
	if e.NeutralThreshold < 0 {
		return fmt.Errorf("%w: neutral threshold must not be negative", common.ErrInvalidConfig)
	}
	if e.HappyThreshold <= e.NeutralThreshold {
		return fmt.Errorf("%w: happy threshold (%d) must exceed neutral threshold (%d)",
			common.ErrInvalidConfig, e.HappyThreshold, e.NeutralThreshold)
	}
	return nil
}

// Score counts completed tasks and weights them. Incomplete tasks contribute
// nothing and are only counted.
func (e Engine) Score(tasks []*models.Task) Score {
	var s Score
	for _, t := range tasks {
		if t == nil {
			continue
		}
		if !t.Completed {
			s.IncompleteCount++
			continue
		}
		s.CompletedCount++
		if t.IsSustainable {
			s.SustainableCompleted++
		} else {
			s.RegularCompleted++
		}
	}
	s.Points = s.RegularCompleted*e.RegularPoints + s.SustainableCompleted*e.SustainablePoints
	return s
}

// Mood maps points onto a tier: below neutral is SAD, below happy is NEUTRAL,
// anything else HAPPY.
func (e Engine) Mood(points int) models.MoodTier {
	switch {
	case points < e.NeutralThreshold:
		return models.MoodSad
	case points < e.HappyThreshold:
		return models.MoodNeutral
	default:
		return models.MoodHappy
	}
}
