package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gridwatch/queue-reliability/internal/cache"
	apperrors "github.com/gridwatch/queue-reliability/internal/errors"
	"github.com/gridwatch/queue-reliability/internal/monitoring"
	"github.com/gridwatch/queue-reliability/internal/query"
	"github.com/gridwatch/queue-reliability/internal/resilience"
	"github.com/gridwatch/queue-reliability/internal/scorecard"
)

type server struct {
	queries *query.Engine
	builder *scorecard.Builder
	cache   *cache.Cache
	metrics *monitoring.Metrics
	logger  *monitoring.Logger

	rebuildMu sync.Mutex
}

// rebuild runs one scoring cycle and, on success, swaps the serving
// snapshot and drops every cached response computed from the old one.
// Transient store failures are retried; a failed cycle leaves the
// previous snapshot serving.
func (s *server) rebuild(ctx context.Context) (*scorecard.Snapshot, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	start := time.Now()

	var snap *scorecard.Snapshot
	err := resilience.Retry(ctx, func() error {
		var buildErr error
		snap, buildErr = s.builder.Build(ctx)
		return buildErr
	})
	if err != nil {
		s.metrics.RecordSnapshotFailure()
		return nil, err
	}

	s.queries.Publish(snap)
	s.cache.Clear()

	duration := time.Since(start)
	s.metrics.RecordSnapshotBuild(duration, snap.Len(), snap.Stats.TotalProjects)
	s.logger.BuildLogger(snap.BuildID, snap.Len(), snap.Stats.TotalProjects, snap.Stats.ScoredDevelopers, duration)

	return snap, nil
}

func (s *server) handleHealth(c *gin.Context) {
	response := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"ready":     s.queries.Ready(),
		"metrics":   s.metrics.GetStats(),
	}

	snap, err := s.queries.Current()
	if err != nil {
		response["status"] = "starting"
		c.JSON(http.StatusOK, response)
		return
	}

	response["build_id"] = snap.BuildID
	response["built_at"] = snap.BuiltAt.Format(time.RFC3339)
	response["developers"] = snap.Len()
	c.JSON(http.StatusOK, response)
}

func (s *server) handleListDevelopers(c *gin.Context) {
	params := query.ListParams{
		Search:   c.Query("search"),
		Region:   c.Query("region"),
		FuelType: c.Query("fuel_type"),
		SortBy:   c.Query("sort_by"),
	}

	var err error
	if params.MinProjects, err = intQuery(c, "min_projects"); err != nil {
		abortWith(c, err)
		return
	}
	if params.Page, params.PerPage, err = pageQuery(c); err != nil {
		abortWith(c, err)
		return
	}

	list, err := s.queries.ListDevelopers(params)
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (s *server) handleRankings(c *gin.Context) {
	params := query.RankParams{
		SortBy: c.Query("sort_by"),
	}

	var err error
	if params.Page, params.PerPage, err = pageQuery(c); err != nil {
		abortWith(c, err)
		return
	}

	rankings, err := s.queries.RankDevelopers(params)
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, rankings)
}

func (s *server) handleCompare(c *gin.Context) {
	raw := c.Query("names")
	if raw == "" {
		abortWith(c, apperrors.NewValidationError("names parameter is required", "names"))
		return
	}

	entries, err := s.queries.CompareDevelopers(strings.Split(raw, ","))
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *server) handleGetDeveloper(c *gin.Context) {
	card, err := s.queries.GetDeveloper(c.Param("name"))
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": card})
}

func (s *server) handleDeveloperProjects(c *gin.Context) {
	page, perPage, err := pageQuery(c)
	if err != nil {
		abortWith(c, err)
		return
	}

	list, err := s.queries.GetDeveloperProjects(c.Param("name"), page, perPage)
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (s *server) handleStats(c *gin.Context) {
	stats, err := s.queries.Stats()
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *server) handleRebuild(c *gin.Context) {
	snap, err := s.rebuild(c.Request.Context())
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"build_id":   snap.BuildID,
		"built_at":   snap.BuiltAt.Format(time.RFC3339),
		"developers": snap.Len(),
		"projects":   snap.Stats.TotalProjects,
	})
}

func (s *server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.GetStats())
}

func (s *server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.Stats())
}

// abortWith hands the error to the ErrorHandler middleware, which owns
// response rendering.
func abortWith(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(name+" must be an integer", name)
	}
	return n, nil
}

func pageQuery(c *gin.Context) (page, perPage int, err error) {
	if page, err = intQuery(c, "page"); err != nil {
		return 0, 0, err
	}
	if perPage, err = intQuery(c, "per_page"); err != nil {
		return 0, 0, err
	}
	return page, perPage, nil
}
