package scorecard

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/gridwatch/queue-reliability/internal/errors"
	"github.com/gridwatch/queue-reliability/internal/projectstore"
	"github.com/gridwatch/queue-reliability/internal/scoring"
)

const daysPerYear = 365.25

// ProjectSource yields the full set of project records for one scoring
// cycle.
type ProjectSource interface {
	LoadAll(ctx context.Context) ([]projectstore.ProjectRecord, error)
}

// Builder materializes a scored Snapshot of the developer population from
// the project store. A build either succeeds wholesale or fails without
// publishing anything.
type Builder struct {
	source      ProjectSource
	engine      *scoring.Engine
	parallelism int
}

// NewBuilder creates a snapshot builder. parallelism bounds the number of
// developers scored concurrently.
func NewBuilder(source ProjectSource, engine *scoring.Engine, parallelism int) *Builder {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Builder{
		source:      source,
		engine:      engine,
		parallelism: parallelism,
	}
}

// Build runs one scoring cycle: load, validate, group by developer name,
// score each developer, and assemble the immutable snapshot. Any invalid
// record aborts the whole build.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	records, err := b.source.LoadAll(ctx)
	if err != nil {
		return nil, apperrors.NewUnavailableError("project store unreadable", err)
	}

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, apperrors.NewDataIntegrityError("invalid project record", err)
		}
	}

	groups := make(map[string][]projectstore.ProjectRecord)
	for _, rec := range records {
		groups[rec.DeveloperName] = append(groups[rec.DeveloperName], rec)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	// Each scorecard depends only on its own developer's records, so the
	// fan-out is race-free by construction.
	cards := make([]*Scorecard, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)

	for i, name := range names {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			cards[i] = b.buildScorecard(name, groups[name])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Only context cancellation reaches here; scoring itself cannot fail.
		return nil, apperrors.NewUnavailableError("scorecard build interrupted", err)
	}

	snap := &Snapshot{
		BuildID:    uuid.New().String(),
		BuiltAt:    time.Now(),
		Scorecards: cards,
		Stats:      computeStats(cards),
		byName:     make(map[string]*Scorecard, len(cards)),
	}
	for _, card := range cards {
		snap.byName[lowerKey(card.DeveloperName)] = card
	}

	slog.Info("Scoring cycle completed",
		"build_id", snap.BuildID,
		"projects", len(records),
		"developers", len(cards),
		"scored", snap.Stats.ScoredDevelopers,
		"duration_ms", time.Since(start).Milliseconds())

	return snap, nil
}

// buildScorecard aggregates one developer's records and scores them.
func (b *Builder) buildScorecard(name string, projects []projectstore.ProjectRecord) *Scorecard {
	// Queue-date descending, queue ID as tiebreak for a stable listing.
	sort.Slice(projects, func(i, j int) bool {
		if !projects[i].QueueDate.Equal(projects[j].QueueDate) {
			return projects[i].QueueDate.After(projects[j].QueueDate)
		}
		return projects[i].QueueID < projects[j].QueueID
	})

	card := &Scorecard{
		DeveloperName: name,
		TotalProjects: len(projects),
		Projects:      projects,
	}

	regions := make(map[string]bool)
	fuels := make(map[string]bool)
	states := make(map[string]bool)

	var (
		timelineSum   float64
		timelineCount int
		firstQueue    time.Time
		latest        time.Time
		latestOutcome time.Time
	)

	for _, p := range projects {
		switch p.Status {
		case projectstore.StatusOperational:
			card.Operational++
			card.OperationalCapacityMW += p.CapacityMW
		case projectstore.StatusWithdrawn:
			card.Withdrawn++
		case projectstore.StatusActive:
			card.Active++
		}

		regions[p.Region] = true
		if p.FuelType != "" {
			fuels[p.FuelType] = true
		}
		if p.State != "" {
			states[p.State] = true
		}
		card.TotalCapacityMW += p.CapacityMW

		if firstQueue.IsZero() || p.QueueDate.Before(firstQueue) {
			firstQueue = p.QueueDate
		}
		if p.QueueDate.After(latest) {
			latest = p.QueueDate
		}
		if p.COD != nil {
			if p.COD.After(latestOutcome) {
				latestOutcome = *p.COD
			}
			if p.COD.After(latest) {
				latest = *p.COD
			}
			if p.COD.After(p.QueueDate) {
				timelineSum += p.COD.Sub(p.QueueDate).Hours() / 24
				timelineCount++
			}
		}
		if p.WithdrawnDate != nil {
			if p.WithdrawnDate.After(latestOutcome) {
				latestOutcome = *p.WithdrawnDate
			}
			if p.WithdrawnDate.After(latest) {
				latest = *p.WithdrawnDate
			}
		}
	}

	card.ResolvedOutcomes = card.Operational + card.Withdrawn
	card.Regions = sortedKeys(regions)
	card.FuelTypes = sortedKeys(fuels)
	card.States = sortedKeys(states)
	card.FirstQueueDate = firstQueue
	card.LatestActivityDate = latest
	if len(projects) > 0 {
		card.AvgCapacityMW = scoring.Round1(card.TotalCapacityMW / float64(len(projects)))
	}

	in := scoring.Inputs{
		Operational:   card.Operational,
		Withdrawn:     card.Withdrawn,
		TotalProjects: card.TotalProjects,
		Regions:       len(card.Regions),
		FuelTypes:     len(card.FuelTypes),
		Active:        card.Active,
	}

	if timelineCount > 0 {
		avg := scoring.Round1(timelineSum / float64(timelineCount))
		in.AvgTimelineDays = &avg
		card.AvgTimelineDays = &avg
	}

	// Track record depth: span from the earliest queue date to the latest
	// resolved outcome. Developers with no resolved outcome have no track
	// record yet.
	if !latestOutcome.IsZero() && latestOutcome.After(firstQueue) {
		in.YearsSinceFirst = latestOutcome.Sub(firstQueue).Hours() / 24 / daysPerYear
	}
	card.TrackRecordYears = scoring.Round1(in.YearsSinceFirst)

	if card.ResolvedOutcomes > 0 {
		rate := float64(card.Operational) / float64(card.ResolvedOutcomes)
		card.CompletionRate = &rate
	}

	card.Eligible = b.engine.Eligible(in)
	if card.Eligible {
		subs := b.engine.SubScores(in)
		subs.Completion = scoring.Round1(subs.Completion)
		subs.Timeline = scoring.Round1(subs.Timeline)
		subs.Volume = scoring.Round1(subs.Volume)
		subs.Breadth = scoring.Round1(subs.Breadth)
		subs.Diversity = scoring.Round1(subs.Diversity)
		subs.Pipeline = scoring.Round1(subs.Pipeline)
		subs.Depth = scoring.Round1(subs.Depth)

		composite := scoring.Round1(b.engine.Composite(subs))
		card.Scores = &subs
		card.ReliabilityScore = &composite
	}

	return card
}

// computeStats derives the population summary served by the stats
// endpoint. Computed once per snapshot, never per request.
func computeStats(cards []*Scorecard) Stats {
	stats := Stats{
		TotalDevelopers:   len(cards),
		TopRegions:        make(map[string]int),
		TopFuelTypes:      make(map[string]int),
		ScoreDistribution: make(map[string]int),
	}

	var scores []float64
	for _, card := range cards {
		stats.TotalProjects += card.TotalProjects

		for _, p := range card.Projects {
			stats.TopRegions[p.Region]++
			if p.FuelType != "" {
				stats.TopFuelTypes[p.FuelType]++
			}
		}

		if card.ReliabilityScore == nil {
			continue
		}
		stats.ScoredDevelopers++
		scores = append(scores, *card.ReliabilityScore)
		stats.ScoreDistribution[scoreBucket(*card.ReliabilityScore)]++
	}

	if len(scores) > 0 {
		avg := scoring.Round1(scoring.Mean(scores))
		med := scoring.Round1(scoring.Median(scores))
		stats.AvgScore = &avg
		stats.MedianScore = &med
	}

	return stats
}

func scoreBucket(score float64) string {
	switch {
	case score >= 80:
		return "excellent_80_100"
	case score >= 60:
		return "good_60_79"
	case score >= 40:
		return "average_40_59"
	case score >= 20:
		return "below_avg_20_39"
	default:
		return "poor_0_19"
	}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

