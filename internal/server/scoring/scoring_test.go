package scoring

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/moodcycle/internal/common"
	"github.com/dmitrijs2005/moodcycle/internal/server/models"
)

func task(completed, sustainable bool) *models.Task {
	return &models.Task{Completed: completed, IsSustainable: sustainable}
}

func TestScore(t *testing.T) {
	e := Default()

	tests := []struct {
		name  string
		tasks []*models.Task
		want  Score
	}{
		{name: "empty", tasks: nil, want: Score{}},
		{
			name:  "only incomplete",
			tasks: []*models.Task{task(false, false), task(false, true)},
			want:  Score{IncompleteCount: 2},
		},
		{
			name: "reference scenario",
			tasks: []*models.Task{
				task(true, false), task(true, false), task(true, false),
				task(true, true),
				task(false, false), task(false, true),
			},
			want: Score{Points: 50, CompletedCount: 4, RegularCompleted: 3, SustainableCompleted: 1, IncompleteCount: 2},
		},
		{
			name:  "nil entries ignored",
			tasks: []*models.Task{nil, task(true, true)},
			want:  Score{Points: 20, CompletedCount: 1, SustainableCompleted: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Score(tt.tasks)
			assert.Empty(t, cmp.Diff(tt.want, got))
		})
	}
}

func TestScore_PointsFormulaHoldsForAllMixes(t *testing.T) {
	e := Engine{RegularPoints: 7, SustainablePoints: 13, NeutralThreshold: 1, HappyThreshold: 2}

	for regular := 0; regular <= 6; regular++ {
		for sustainable := 0; sustainable <= 6; sustainable++ {
			for incomplete := 0; incomplete <= 3; incomplete++ {
				var tasks []*models.Task
				for i := 0; i < regular; i++ {
					tasks = append(tasks, task(true, false))
				}
				for i := 0; i < sustainable; i++ {
					tasks = append(tasks, task(true, true))
				}
				for i := 0; i < incomplete; i++ {
					tasks = append(tasks, task(false, i%2 == 0))
				}

				got := e.Score(tasks)
				require.Equal(t, 7*regular+13*sustainable, got.Points)
				require.Equal(t, regular+sustainable, got.CompletedCount)
				require.Equal(t, incomplete, got.IncompleteCount)
			}
		}
	}
}

func TestMood_Thresholds(t *testing.T) {
	e := Default()

	tests := []struct {
		points int
		want   models.MoodTier
	}{
		{0, models.MoodSad},
		{99, models.MoodSad},
		{100, models.MoodNeutral},
		{149, models.MoodNeutral},
		{150, models.MoodHappy},
		{1000, models.MoodHappy},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Mood(tt.points), "points=%d", tt.points)
	}
}

func TestMood_MonotonicInPoints(t *testing.T) {
	e := Default()
	rank := map[models.MoodTier]int{models.MoodSad: 0, models.MoodNeutral: 1, models.MoodHappy: 2}

	prev := rank[e.Mood(0)]
	for p := 1; p <= 400; p++ {
		cur := rank[e.Mood(p)]
		require.GreaterOrEqual(t, cur, prev, "mood decreased at %d points", p)
		prev = cur
	}
}

func TestEmptyScoreIsSad(t *testing.T) {
	e := Default()
	assert.Equal(t, models.MoodSad, e.Mood(e.Score(nil).Points))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		engine  Engine
		wantErr bool
	}{
		{"defaults", Default(), false},
		{"happy equals neutral", Engine{RegularPoints: 10, SustainablePoints: 20, NeutralThreshold: 100, HappyThreshold: 100}, true},
		{"happy below neutral", Engine{RegularPoints: 10, SustainablePoints: 20, NeutralThreshold: 100, HappyThreshold: 50}, true},
		{"zero regular points", Engine{RegularPoints: 0, SustainablePoints: 20, NeutralThreshold: 100, HappyThreshold: 150}, true},
		{"negative neutral", Engine{RegularPoints: 10, SustainablePoints: 20, NeutralThreshold: -1, HappyThreshold: 150}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.engine.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, common.ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
		})
	}
}
