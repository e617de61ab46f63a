package query

import (
	"fmt"
	"math"

	apperrors "github.com/gridwatch/queue-reliability/internal/errors"
)

// Sort keys accepted by list and ranking queries.
const (
	SortByScore          = "score"
	SortByName           = "name"
	SortByTotalProjects  = "total_projects"
	SortByOperational    = "operational"
	SortByCompletionRate = "completion_rate"
)

const (
	defaultPerPage     = 25
	maxPerPage         = 100
	defaultProjPerPage = 50
	maxProjPerPage     = 200

	minCompareNames = 2
	maxCompareNames = 10
)

var listSortKeys = map[string]bool{
	SortByScore:          true,
	SortByName:           true,
	SortByTotalProjects:  true,
	SortByOperational:    true,
	SortByCompletionRate: true,
}

var rankSortKeys = map[string]bool{
	SortByScore:          true,
	SortByCompletionRate: true,
	SortByTotalProjects:  true,
	SortByOperational:    true,
}

// ListParams filters and paginates the developer listing.
type ListParams struct {
	Search      string
	Region      string
	FuelType    string
	MinProjects int
	SortBy      string
	Page        int
	PerPage     int
}

func (p *ListParams) validate() error {
	if p.SortBy == "" {
		p.SortBy = SortByName
	}
	if !listSortKeys[p.SortBy] {
		return apperrors.NewValidationError(fmt.Sprintf("unknown sort key %q", p.SortBy), "sort_by")
	}
	if p.MinProjects < 0 {
		return apperrors.NewValidationError("min_projects must not be negative", "min_projects")
	}
	return validatePagination(&p.Page, &p.PerPage, defaultPerPage, maxPerPage)
}

// RankParams paginates the eligible-only rankings.
type RankParams struct {
	SortBy  string
	Page    int
	PerPage int
}

func (p *RankParams) validate() error {
	if p.SortBy == "" {
		p.SortBy = SortByScore
	}
	if !rankSortKeys[p.SortBy] {
		return apperrors.NewValidationError(fmt.Sprintf("unknown ranking sort key %q", p.SortBy), "sort_by")
	}
	return validatePagination(&p.Page, &p.PerPage, defaultPerPage, maxPerPage)
}

func validatePagination(page, perPage *int, def, max int) error {
	if *page == 0 {
		*page = 1
	}
	if *perPage == 0 {
		*perPage = def
	}
	if *page < 1 {
		return apperrors.NewValidationError("page must be at least 1", "page")
	}
	if *perPage < 1 || *perPage > max {
		return apperrors.NewValidationError(fmt.Sprintf("per_page must be between 1 and %d", max), "per_page")
	}
	return nil
}

// Meta is the pagination envelope returned with every listing.
type Meta struct {
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Pages   int `json:"pages"`
}

func makeMeta(total, page, perPage int) Meta {
	return Meta{
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   int(math.Ceil(float64(total) / float64(perPage))),
	}
}

// pageBounds returns the half-open slice range for the requested page.
func pageBounds(total, page, perPage int) (int, int) {
	lo := (page - 1) * perPage
	if lo > total {
		lo = total
	}
	hi := lo + perPage
	if hi > total {
		hi = total
	}
	return lo, hi
}
