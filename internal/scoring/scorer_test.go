package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/queue-reliability/internal/config"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(config.DefaultScoring())
	require.NoError(t, err)
	return eng
}

func floatPtr(f float64) *float64 { return &f }

func TestNewEngineRejectsBadWeights(t *testing.T) {
	cfg := config.DefaultScoring()
	cfg.Weights.Completion = 31

	_, err := NewEngine(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 100")
}

func TestScoreCompletion(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name        string
		operational int
		withdrawn   int
		expected    float64
	}{
		{
			name:        "no resolved outcomes is undefined and scores zero",
			operational: 0,
			withdrawn:   0,
			expected:    0,
		},
		{
			name:        "all operational",
			operational: 10,
			withdrawn:   0,
			expected:    100,
		},
		{
			name:        "all withdrawn",
			operational: 0,
			withdrawn:   7,
			expected:    0,
		},
		{
			name:        "five of six resolved reached operation",
			operational: 5,
			withdrawn:   1,
			expected:    83.33333333333334,
		},
		{
			name:        "even split",
			operational: 4,
			withdrawn:   4,
			expected:    50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := eng.scoreCompletion(tt.operational, tt.withdrawn)
			assert.InDelta(t, tt.expected, result, 1e-9)
		})
	}
}

func TestScoreCompletionMonotonicity(t *testing.T) {
	eng := newTestEngine(t)

	// Moving one project from active to operational never decreases the
	// completion sub-score.
	for operational := 0; operational < 20; operational++ {
		for withdrawn := 0; withdrawn < 20; withdrawn++ {
			before := eng.scoreCompletion(operational, withdrawn)
			after := eng.scoreCompletion(operational+1, withdrawn)
			assert.GreaterOrEqual(t, after, before,
				"operational %d->%d, withdrawn %d", operational, operational+1, withdrawn)
		}
	}
}

func TestScoreTimeline(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name        string
		operational int
		avgDays     *float64
		expected    float64
	}{
		{
			name:        "no operational projects scores zero",
			operational: 0,
			avgDays:     nil,
			expected:    0,
		},
		{
			name:        "operational history without usable pairs is neutral",
			operational: 3,
			avgDays:     nil,
			expected:    50,
		},
		{
			name:        "at excellent benchmark",
			operational: 3,
			avgDays:     floatPtr(365),
			expected:    100,
		},
		{
			name:        "under excellent benchmark",
			operational: 3,
			avgDays:     floatPtr(200),
			expected:    100,
		},
		{
			name:        "at poor benchmark",
			operational: 3,
			avgDays:     floatPtr(365 * 6),
			expected:    0,
		},
		{
			name:        "beyond poor benchmark",
			operational: 3,
			avgDays:     floatPtr(5000),
			expected:    0,
		},
		{
			name:        "midpoint interpolates to fifty",
			operational: 3,
			avgDays:     floatPtr((365 + 365*6) / 2.0),
			expected:    50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := eng.scoreTimeline(tt.operational, tt.avgDays)
			assert.InDelta(t, tt.expected, result, 1e-9)
		})
	}
}

func TestScoreTimelineMonotonicity(t *testing.T) {
	eng := newTestEngine(t)

	// Faster average execution never scores lower.
	prev := -1.0
	for days := 5000.0; days >= 100; days -= 50 {
		score := eng.scoreTimeline(1, &days)
		assert.GreaterOrEqual(t, score, prev, "avg days %v", days)
		prev = score
	}
}

func TestScoreVolume(t *testing.T) {
	eng := newTestEngine(t)

	assert.Equal(t, 0.0, eng.scoreVolume(0))
	assert.Equal(t, 0.0, eng.scoreVolume(-1))
	assert.InDelta(t, 100, eng.scoreVolume(200), 1e-9)
	assert.Equal(t, 100.0, eng.scoreVolume(5000))

	// Monotone with diminishing returns.
	small := eng.scoreVolume(5) - eng.scoreVolume(4)
	large := eng.scoreVolume(100) - eng.scoreVolume(99)
	assert.Greater(t, small, large)

	prev := 0.0
	for total := 1; total <= 250; total++ {
		score := eng.scoreVolume(total)
		assert.GreaterOrEqual(t, score, prev)
		assert.LessOrEqual(t, score, 100.0)
		prev = score
	}
}

func TestScoreBreadthAndDiversity(t *testing.T) {
	eng := newTestEngine(t)

	assert.Equal(t, 0.0, eng.scoreBreadth(0))
	assert.InDelta(t, 100.0/9, eng.scoreBreadth(1), 1e-9)
	assert.Equal(t, 100.0, eng.scoreBreadth(9))
	assert.Equal(t, 100.0, eng.scoreBreadth(12), "capped above the region maximum")

	assert.Equal(t, 0.0, eng.scoreDiversity(0))
	assert.Equal(t, 50.0, eng.scoreDiversity(4))
	assert.Equal(t, 100.0, eng.scoreDiversity(8))
	assert.Equal(t, 100.0, eng.scoreDiversity(20))
}

func TestScorePipeline(t *testing.T) {
	eng := newTestEngine(t)

	assert.Equal(t, 0.0, eng.scorePipeline(0))
	assert.InDelta(t, 100, eng.scorePipeline(50), 1e-9)
	assert.Equal(t, 100.0, eng.scorePipeline(500))

	prev := 0.0
	for active := 1; active <= 60; active++ {
		score := eng.scorePipeline(active)
		assert.GreaterOrEqual(t, score, prev)
		prev = score
	}
}

func TestScoreDepth(t *testing.T) {
	eng := newTestEngine(t)

	assert.Equal(t, 0.0, eng.scoreDepth(0))
	assert.Equal(t, 0.0, eng.scoreDepth(-2))
	assert.Equal(t, 50.0, eng.scoreDepth(10))
	assert.Equal(t, 100.0, eng.scoreDepth(20))
	assert.Equal(t, 100.0, eng.scoreDepth(35), "capped at the depth horizon")
}

func TestSubScoresAllWithinRange(t *testing.T) {
	eng := newTestEngine(t)

	inputs := []Inputs{
		{},
		{Operational: 5, Withdrawn: 1, TotalProjects: 6, Regions: 2, FuelTypes: 1, YearsSinceFirst: 3},
		{Operational: 500, Withdrawn: 0, TotalProjects: 5000, AvgTimelineDays: floatPtr(100), Regions: 9, FuelTypes: 8, Active: 4000, YearsSinceFirst: 50},
		{Withdrawn: 40, TotalProjects: 40, Regions: 1, FuelTypes: 1, YearsSinceFirst: 25},
	}

	for _, in := range inputs {
		subs := eng.SubScores(in)
		for _, v := range []float64{subs.Completion, subs.Timeline, subs.Volume, subs.Breadth, subs.Diversity, subs.Pipeline, subs.Depth} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestComposite(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name     string
		subs     SubScores
		expected float64
	}{
		{
			name:     "all zero",
			subs:     SubScores{},
			expected: 0,
		},
		{
			name: "all perfect",
			subs: SubScores{
				Completion: 100, Timeline: 100, Volume: 100,
				Breadth: 100, Diversity: 100, Pipeline: 100, Depth: 100,
			},
			expected: 100,
		},
		{
			name: "weighted combination",
			subs: SubScores{
				Completion: 80, Timeline: 60, Volume: 40,
				Breadth: 20, Diversity: 30, Pipeline: 50, Depth: 90,
			},
			// 0.30*80 + 0.20*60 + 0.15*40 + 0.10*20 + 0.10*30 + 0.10*50 + 0.05*90
			expected: 56.5,
		},
		{
			name: "only completion",
			subs: SubScores{Completion: 100},
			expected: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := eng.Composite(tt.subs)
			assert.InDelta(t, tt.expected, result, 1e-9)
		})
	}
}

func TestCompositeDeterministic(t *testing.T) {
	eng := newTestEngine(t)

	subs := SubScores{
		Completion: 83.3, Timeline: 47.2, Volume: 61.0,
		Breadth: 22.2, Diversity: 37.5, Pipeline: 55.1, Depth: 15.0,
	}

	first := eng.Composite(subs)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, eng.Composite(subs))
	}
}

func TestEligible(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name     string
		in       Inputs
		eligible bool
	}{
		{"no history", Inputs{}, false},
		{"four resolved outcomes", Inputs{Operational: 3, Withdrawn: 1}, false},
		{"five resolved outcomes", Inputs{Operational: 4, Withdrawn: 1}, true},
		{"six resolved outcomes", Inputs{Operational: 5, Withdrawn: 1}, true},
		{"large unresolved pipeline alone never qualifies", Inputs{Active: 200, TotalProjects: 200}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.eligible, eng.Eligible(tt.in))
		})
	}
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 83.3, Round1(83.33333))
	assert.Equal(t, 83.4, Round1(83.35))
	assert.Equal(t, 0.0, Round1(0.04))
	assert.Equal(t, 100.0, Round1(99.99))
}
