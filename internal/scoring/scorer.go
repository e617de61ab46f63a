package scoring

import (
	"fmt"
	"math"

	"github.com/gridwatch/queue-reliability/internal/config"
)

// Engine computes per-developer sub-scores and the weighted composite
// reliability score. All methods are pure functions of their inputs and
// the fixed configuration; the engine is safe for concurrent use.
type Engine struct {
	weights    config.Weights
	benchmarks config.Benchmarks
	minResolve int
}

// NewEngine validates the scoring configuration and returns an engine.
func NewEngine(cfg config.ScoringConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scoring engine: %w", err)
	}
	return &Engine{
		weights:    cfg.Weights,
		benchmarks: cfg.Benchmarks,
		minResolve: cfg.MinResolvedOutcomes,
	}, nil
}

// Eligible reports whether a developer qualifies for scoring. Developers
// below the resolved-outcome floor stay visible in listings but never
// appear in scored views.
func (e *Engine) Eligible(in Inputs) bool {
	return in.Resolved() >= e.minResolve
}

// SubScores computes all seven metric scores for one developer.
func (e *Engine) SubScores(in Inputs) SubScores {
	return SubScores{
		Completion: e.scoreCompletion(in.Operational, in.Withdrawn),
		Timeline:   e.scoreTimeline(in.Operational, in.AvgTimelineDays),
		Volume:     e.scoreVolume(in.TotalProjects),
		Breadth:    e.scoreBreadth(in.Regions),
		Diversity:  e.scoreDiversity(in.FuelTypes),
		Pipeline:   e.scorePipeline(in.Active),
		Depth:      e.scoreDepth(in.YearsSinceFirst),
	}
}

// Composite applies the fixed weights to the seven sub-scores. The result
// is clamped to [0,100] and is a deterministic function of its inputs.
func (e *Engine) Composite(s SubScores) float64 {
	total := e.weights.Completion*s.Completion +
		e.weights.Timeline*s.Timeline +
		e.weights.Volume*s.Volume +
		e.weights.Breadth*s.Breadth +
		e.weights.Diversity*s.Diversity +
		e.weights.Pipeline*s.Pipeline +
		e.weights.Depth*s.Depth

	return clip(total/100, 0, 100)
}

// scoreCompletion is the share of resolved projects that reached
// operation, scaled to [0,100]. Undefined (0) with no resolved outcomes.
func (e *Engine) scoreCompletion(operational, withdrawn int) float64 {
	resolved := operational + withdrawn
	if resolved == 0 {
		return 0
	}
	return float64(operational) / float64(resolved) * 100
}

// scoreTimeline rewards fast queue-to-COD execution. Averages at or under
// the excellent benchmark score 100, at or over the poor benchmark score 0,
// linear in between. Developers with no operational projects score 0; an
// operational history without a usable timeline pair scores neutral.
func (e *Engine) scoreTimeline(operational int, avgDays *float64) float64 {
	if operational == 0 {
		return 0
	}
	if avgDays == nil || *avgDays <= 0 {
		return 50
	}
	b := e.benchmarks
	if *avgDays <= b.TimelineExcellentDays {
		return 100
	}
	if *avgDays >= b.TimelinePoorDays {
		return 0
	}
	return 100 * (1 - (*avgDays-b.TimelineExcellentDays)/(b.TimelinePoorDays-b.TimelineExcellentDays))
}

// scoreVolume is log-scaled so experience counts but raw project count
// can't dominate: saturates near the configured cap.
func (e *Engine) scoreVolume(total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Min(100, math.Log1p(float64(total))/math.Log1p(float64(e.benchmarks.VolumeCap))*100)
}

// scoreBreadth normalizes distinct-region count against the full ISO set.
func (e *Engine) scoreBreadth(regions int) float64 {
	return math.Min(100, float64(regions)/float64(e.benchmarks.RegionsMax)*100)
}

// scoreDiversity normalizes distinct fuel-type count.
func (e *Engine) scoreDiversity(fuelTypes int) float64 {
	return math.Min(100, float64(fuelTypes)/float64(e.benchmarks.FuelTypesMax)*100)
}

// scorePipeline is a log-scaled function of currently active projects,
// signalling ongoing business activity.
func (e *Engine) scorePipeline(active int) float64 {
	if active <= 0 {
		return 0
	}
	return math.Min(100, math.Log1p(float64(active))/math.Log1p(float64(e.benchmarks.PipelineCap))*100)
}

// scoreDepth rewards longevity, saturating at the configured horizon.
func (e *Engine) scoreDepth(years float64) float64 {
	if years <= 0 {
		return 0
	}
	return math.Min(100, years/e.benchmarks.DepthMaxYears*100)
}

// Round1 rounds to one decimal place for presentation.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
