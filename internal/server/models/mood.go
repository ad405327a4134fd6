package models

// MoodTier is the three-level gamification state derived from points.
type MoodTier string

const (
	MoodSad     MoodTier = "SAD"
	MoodNeutral MoodTier = "NEUTRAL"
	MoodHappy   MoodTier = "HAPPY"
)

// Valid reports whether m is one of the known tiers.
func (m MoodTier) Valid() bool {
	switch m {
	case MoodSad, MoodNeutral, MoodHappy:
		return true
	}
	return false
}
