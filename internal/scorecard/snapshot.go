package scorecard

import (
	"strings"
	"time"

	"github.com/gridwatch/queue-reliability/internal/projectstore"
	"github.com/gridwatch/queue-reliability/internal/scoring"
)

// Scorecard is the derived per-developer record. Scorecards are built in
// one pass at scoring time and never mutated afterwards.
type Scorecard struct {
	DeveloperName string `json:"name"`

	// ReliabilityScore is present only for eligible developers.
	ReliabilityScore *float64           `json:"reliability_score"`
	Scores           *scoring.SubScores `json:"score_breakdown,omitempty"`
	Eligible         bool               `json:"eligible"`

	ResolvedOutcomes int `json:"resolved_outcomes"`
	TotalProjects    int `json:"total_projects"`
	Operational      int `json:"operational"`
	Withdrawn        int `json:"withdrawn"`
	Active           int `json:"active"`

	CompletionRate  *float64 `json:"completion_rate"`
	AvgTimelineDays *float64 `json:"avg_timeline_days"`

	Regions   []string `json:"regions"`
	FuelTypes []string `json:"fuel_types"`
	States    []string `json:"states,omitempty"`

	TotalCapacityMW       float64 `json:"total_capacity_mw"`
	OperationalCapacityMW float64 `json:"operational_capacity_mw"`
	AvgCapacityMW         float64 `json:"avg_capacity_mw"`

	FirstQueueDate     time.Time `json:"first_project_date"`
	LatestActivityDate time.Time `json:"latest_project_date"`
	TrackRecordYears   float64   `json:"track_record_years"`

	// Projects is the developer's full record set, queue-date descending.
	Projects []projectstore.ProjectRecord `json:"-"`
}

// Stats is the population-level summary, computed once per snapshot.
type Stats struct {
	TotalDevelopers   int            `json:"total_developers"`
	ScoredDevelopers  int            `json:"scored_developers"`
	TotalProjects     int            `json:"total_projects"`
	AvgScore          *float64       `json:"avg_score"`
	MedianScore       *float64       `json:"median_score"`
	TopRegions        map[string]int `json:"top_regions"`
	TopFuelTypes      map[string]int `json:"top_fuel_types"`
	ScoreDistribution map[string]int `json:"score_distribution"`
}

// Snapshot is one immutable scored population. A rebuild constructs a new
// snapshot and swaps the reference; readers never see a partial state.
type Snapshot struct {
	BuildID string
	BuiltAt time.Time

	// Scorecards are sorted by developer name ascending.
	Scorecards []*Scorecard
	Stats      Stats

	byName map[string]*Scorecard
}

// Len returns the number of developers in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Scorecards)
}

func lowerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Lookup resolves a developer by name, case-insensitively, with a
// hyphen-to-space fallback so URL-path slugs resolve too.
func (s *Snapshot) Lookup(name string) (*Scorecard, bool) {
	key := lowerKey(name)
	if card, ok := s.byName[key]; ok {
		return card, true
	}
	if strings.Contains(key, "-") {
		if card, ok := s.byName[strings.ReplaceAll(key, "-", " ")]; ok {
			return card, true
		}
	}
	return nil, false
}
