package query

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	apperrors "github.com/gridwatch/queue-reliability/internal/errors"
	"github.com/gridwatch/queue-reliability/internal/projectstore"
	"github.com/gridwatch/queue-reliability/internal/scorecard"
)

// Engine serves read-only queries against the current scorecard snapshot.
// The snapshot pointer is swapped atomically on rebuild, so concurrent
// readers need no locking: every request sees one whole snapshot.
type Engine struct {
	snapshot atomic.Pointer[scorecard.Snapshot]
}

// NewEngine creates an engine in the unloaded state. Every query fails
// with a not-ready condition until the first Publish.
func NewEngine() *Engine {
	return &Engine{}
}

// Publish atomically replaces the serving snapshot. The previous snapshot
// stays valid for any in-flight queries holding it.
func (e *Engine) Publish(snap *scorecard.Snapshot) {
	e.snapshot.Store(snap)
}

// Ready reports whether a snapshot has been published.
func (e *Engine) Ready() bool {
	return e.snapshot.Load() != nil
}

// Current returns the serving snapshot, or a not-ready error before the
// first successful scoring cycle.
func (e *Engine) Current() (*scorecard.Snapshot, error) {
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, apperrors.NewNotReadyError()
	}
	return snap, nil
}

// DeveloperList is one page of the developer listing.
type DeveloperList struct {
	Items []*scorecard.Scorecard `json:"data"`
	Meta  Meta                   `json:"meta"`
}

// ListDevelopers filters, sorts, and paginates the full population,
// ineligible developers included.
func (e *Engine) ListDevelopers(params ListParams) (*DeveloperList, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	snap, err := e.Current()
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(params.Search))

	var matched []*scorecard.Scorecard
	for _, card := range snap.Scorecards {
		if card.TotalProjects < params.MinProjects {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(card.DeveloperName), search) {
			continue
		}
		if params.Region != "" && !containsFold(card.Regions, params.Region) {
			continue
		}
		if params.FuelType != "" && !containsFold(card.FuelTypes, params.FuelType) {
			continue
		}
		matched = append(matched, card)
	}

	sortScorecards(matched, params.SortBy)

	lo, hi := pageBounds(len(matched), params.Page, params.PerPage)
	return &DeveloperList{
		Items: matched[lo:hi],
		Meta:  makeMeta(len(matched), params.Page, params.PerPage),
	}, nil
}

// RankingEntry is one row of the rankings view.
type RankingEntry struct {
	Rank             int     `json:"rank"`
	Name             string  `json:"name"`
	ReliabilityScore float64 `json:"score"`
	TotalProjects    int     `json:"total_projects"`
	Operational      int     `json:"operational"`
	CompletionRate   float64 `json:"completion_rate"`
}

// RankingList is one page of the rankings.
type RankingList struct {
	Items []RankingEntry `json:"data"`
	Meta  Meta           `json:"meta"`
}

// RankDevelopers returns eligible developers only, sorted descending by
// the requested key, ties broken by name ascending. Rank numbers are
// absolute positions in the full ordering, not page-relative.
func (e *Engine) RankDevelopers(params RankParams) (*RankingList, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	snap, err := e.Current()
	if err != nil {
		return nil, err
	}

	var eligible []*scorecard.Scorecard
	for _, card := range snap.Scorecards {
		if card.Eligible && card.ReliabilityScore != nil {
			eligible = append(eligible, card)
		}
	}

	sortScorecards(eligible, params.SortBy)

	lo, hi := pageBounds(len(eligible), params.Page, params.PerPage)
	items := make([]RankingEntry, 0, hi-lo)
	for i, card := range eligible[lo:hi] {
		var completionRate float64
		if card.CompletionRate != nil {
			completionRate = *card.CompletionRate
		}
		items = append(items, RankingEntry{
			Rank:             lo + i + 1,
			Name:             card.DeveloperName,
			ReliabilityScore: *card.ReliabilityScore,
			TotalProjects:    card.TotalProjects,
			Operational:      card.Operational,
			CompletionRate:   completionRate,
		})
	}

	return &RankingList{
		Items: items,
		Meta:  makeMeta(len(eligible), params.Page, params.PerPage),
	}, nil
}

// CompareEntry pairs a requested name with its scorecard, or marks it not
// found. Unknown names never fail the whole comparison.
type CompareEntry struct {
	Name      string               `json:"name"`
	Found     bool                 `json:"found"`
	Scorecard *scorecard.Scorecard `json:"scorecard,omitempty"`
}

// CompareDevelopers resolves 2 to 10 names, preserving request order.
func (e *Engine) CompareDevelopers(names []string) ([]CompareEntry, error) {
	var cleaned []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	if len(cleaned) < minCompareNames || len(cleaned) > maxCompareNames {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("provide between %d and %d developer names", minCompareNames, maxCompareNames), "names")
	}

	snap, err := e.Current()
	if err != nil {
		return nil, err
	}

	entries := make([]CompareEntry, 0, len(cleaned))
	for _, name := range cleaned {
		card, ok := snap.Lookup(name)
		entry := CompareEntry{Name: name, Found: ok}
		if ok {
			entry.Scorecard = card
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// GetDeveloper resolves a single scorecard by name.
func (e *Engine) GetDeveloper(name string) (*scorecard.Scorecard, error) {
	snap, err := e.Current()
	if err != nil {
		return nil, err
	}

	card, ok := snap.Lookup(name)
	if !ok {
		return nil, apperrors.NewNotFoundError("developer", name)
	}
	return card, nil
}

// ProjectList is one page of a developer's project records.
type ProjectList struct {
	Items []projectstore.ProjectRecord `json:"data"`
	Meta  Meta                         `json:"meta"`
}

// GetDeveloperProjects lists a known developer's records, queue-date
// descending. An unknown developer is not found; a known developer with
// an out-of-range page is an empty page, a distinct outcome.
func (e *Engine) GetDeveloperProjects(name string, page, perPage int) (*ProjectList, error) {
	if err := validatePagination(&page, &perPage, defaultProjPerPage, maxProjPerPage); err != nil {
		return nil, err
	}

	snap, err := e.Current()
	if err != nil {
		return nil, err
	}

	card, ok := snap.Lookup(name)
	if !ok {
		return nil, apperrors.NewNotFoundError("developer", name)
	}

	lo, hi := pageBounds(len(card.Projects), page, perPage)
	return &ProjectList{
		Items: card.Projects[lo:hi],
		Meta:  makeMeta(len(card.Projects), page, perPage),
	}, nil
}

// Stats returns the population summary precomputed at build time.
func (e *Engine) Stats() (*scorecard.Stats, error) {
	snap, err := e.Current()
	if err != nil {
		return nil, err
	}
	return &snap.Stats, nil
}

// sortScorecards orders cards by the given key. All non-name keys sort
// descending with unscored developers last; name ascending is the final
// tiebreak everywhere so the order is a stable total order.
func sortScorecards(cards []*scorecard.Scorecard, sortBy string) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		switch sortBy {
		case SortByScore:
			if av, bv := nullableDesc(a.ReliabilityScore), nullableDesc(b.ReliabilityScore); av != bv {
				return av > bv
			}
		case SortByCompletionRate:
			if av, bv := nullableDesc(a.CompletionRate), nullableDesc(b.CompletionRate); av != bv {
				return av > bv
			}
		case SortByTotalProjects:
			if a.TotalProjects != b.TotalProjects {
				return a.TotalProjects > b.TotalProjects
			}
		case SortByOperational:
			if a.Operational != b.Operational {
				return a.Operational > b.Operational
			}
		}
		return a.DeveloperName < b.DeveloperName
	})
}

// nullableDesc maps nil below any real value so unscored developers sort
// last under a descending comparison.
func nullableDesc(v *float64) float64 {
	if v == nil {
		return -1
	}
	return *v
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}
