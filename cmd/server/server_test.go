package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/queue-reliability/internal/cache"
	"github.com/gridwatch/queue-reliability/internal/config"
	"github.com/gridwatch/queue-reliability/internal/monitoring"
	"github.com/gridwatch/queue-reliability/internal/projectstore"
	"github.com/gridwatch/queue-reliability/internal/query"
	"github.com/gridwatch/queue-reliability/internal/scorecard"
	"github.com/gridwatch/queue-reliability/internal/scoring"
)

const testAPIKey = "test-key"

type sliceSource struct {
	records []projectstore.ProjectRecord
	err     error
}

func (s *sliceSource) LoadAll(ctx context.Context) ([]projectstore.ProjectRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func fixtureRecords() []projectstore.ProjectRecord {
	var records []projectstore.ProjectRecord

	// Acme Solar: five operational, one withdrawn, eligible.
	for i := 0; i < 5; i++ {
		queued := time.Date(2014+i, 1, 1, 0, 0, 0, 0, time.UTC)
		cod := queued.AddDate(2, 0, 0)
		records = append(records, projectstore.ProjectRecord{
			QueueID:       fmt.Sprintf("ACME-%03d", i+1),
			DeveloperName: "Acme Solar",
			Status:        projectstore.StatusOperational,
			CapacityMW:    120,
			FuelType:      "Solar",
			Region:        "CAISO",
			QueueDate:     queued,
			COD:           &cod,
		})
	}
	withdrawn := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	records = append(records, projectstore.ProjectRecord{
		QueueID:       "ACME-006",
		DeveloperName: "Acme Solar",
		Status:        projectstore.StatusWithdrawn,
		CapacityMW:    90,
		FuelType:      "Solar",
		Region:        "CAISO",
		QueueDate:     time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC),
		WithdrawnDate: &withdrawn,
	})

	// Dawn Energy: two resolved outcomes, below the eligibility gate.
	cod := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	records = append(records,
		projectstore.ProjectRecord{
			QueueID:       "DAWN-001",
			DeveloperName: "Dawn Energy",
			Status:        projectstore.StatusOperational,
			CapacityMW:    60,
			FuelType:      "Wind",
			Region:        "MISO",
			QueueDate:     time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC),
			COD:           &cod,
		},
		projectstore.ProjectRecord{
			QueueID:       "DAWN-002",
			DeveloperName: "Dawn Energy",
			Status:        projectstore.StatusWithdrawn,
			CapacityMW:    40,
			FuelType:      "Wind",
			Region:        "MISO",
			QueueDate:     time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
			WithdrawnDate: &withdrawn,
		},
	)

	return records
}

func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		APIKeys:        []string{testAPIKey},
		AllowedOrigins: []string{"http://localhost:3000"},
		CacheTTL:       time.Minute,
		RateLimitRPS:   1000,
		RateBurst:      1000,
		BuildParallel:  2,
		Scoring:        config.DefaultScoring(),
	}
}

func newTestServer(t *testing.T, source scorecard.ProjectSource, buildAtStart bool) (*gin.Engine, *server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine, err := scoring.NewEngine(config.DefaultScoring())
	require.NoError(t, err)

	srv := &server{
		queries: query.NewEngine(),
		builder: scorecard.NewBuilder(source, engine, 2),
		cache:   cache.NewCache(time.Minute),
		metrics: monitoring.NewMetrics(),
		logger:  monitoring.NewLogger(),
	}

	if buildAtStart {
		_, err := srv.rebuild(context.Background())
		require.NoError(t, err)
	}

	return newRouter(testConfig(), srv), srv
}

func get(router *gin.Engine, path string, authenticated bool) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authenticated {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestHealthIsOpenAndReportsReadiness(t *testing.T) {
	router, _ := newTestServer(t, &sliceSource{records: fixtureRecords()}, true)

	w := get(router, "/health", false)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["ready"])
	assert.NotEmpty(t, body["build_id"])
	assert.Equal(t, float64(2), body["developers"])
}

func TestV1RequiresAPIKey(t *testing.T) {
	router, _ := newTestServer(t, &sliceSource{records: fixtureRecords()}, true)

	assert.Equal(t, http.StatusUnauthorized, get(router, "/v1/developers", false).Code)
	assert.Equal(t, http.StatusOK, get(router, "/v1/developers", true).Code)
}

func TestListDevelopersEndpoint(t *testing.T) {
	router, _ := newTestServer(t, &sliceSource{records: fixtureRecords()}, true)

	w := get(router, "/v1/developers", true)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []map[string]interface{} `json:"data"`
		Meta map[string]interface{}   `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "Acme Solar", body.Data[0]["developer_name"])
	assert.Equal(t, float64(2), body.Meta["total"])
}

func TestRankingsExcludeIneligible(t *testing.T) {
	router, _ := newTestServer(t, &sliceSource{records: fixtureRecords()}, true)

	w := get(router, "/v1/developers/rankings", true)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1, "only Acme Solar is eligible")
	assert.Equal(t, "Acme Solar", body.Data[0]["name"])
	assert.Equal(t, float64(1), body.Data[0]["rank"])
}

func TestCompareEndpoint(t *testing.T) {
	router, _ := newTestServer(t, &sliceSource{records: fixtureRecords()}, true)

	w := get(router, "/v1/developers/compare?names=Acme+Solar,Unknown+LLC", true)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []struct {
			Name  string `json:"name"`
			Found bool   `json:"found"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.True(t, body.Data[0].Found)
	assert.False(t, body.Data[1].Found)

	// Missing names parameter is a validation error.
	assert.Equal(t, http.StatusBadRequest, get(router, "/v1/developers/compare", true).Code)
}

func TestGetDeveloperEndpoint(t *testing.T) {
	router, _ := newTestServer(t, &sliceSource{records: fixtureRecords()}, true)

	assert.Equal(t, http.StatusOK, get(router, "/v1/developers/Acme%20Solar", true).Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/v1/developers/Nobody", true).Code)
}

func TestDeveloperProjectsEndpoint(t *testing.T) {
	router, _ := newTestServer(t, &sliceSource{records: fixtureRecords()}, true)

	w := get(router, "/v1/developers/Acme%20Solar/projects", true)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []map[string]interface{} `json:"data"`
		Meta map[string]interface{}   `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 6)
}

func TestInvalidPaginationRejected(t *testing.T) {
	router, _ := newTestServer(t, &sliceSource{records: fixtureRecords()}, true)

	w := get(router, "/v1/developers?page=abc", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation")
}

func TestNotReadyBeforeFirstBuild(t *testing.T) {
	router, _ := newTestServer(t, &sliceSource{err: fmt.Errorf("store offline")}, false)

	w := get(router, "/v1/stats", true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// Health still answers, reporting not ready.
	h := get(router, "/health", false)
	require.Equal(t, http.StatusOK, h.Code)
	assert.Contains(t, h.Body.String(), `"ready":false`)
}

func TestRebuildEndpointSwapsSnapshot(t *testing.T) {
	router, srv := newTestServer(t, &sliceSource{records: fixtureRecords()}, true)

	before, err := srv.queries.Current()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/rebuild", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	after, err := srv.queries.Current()
	require.NoError(t, err)
	assert.NotEqual(t, before.BuildID, after.BuildID)
	assert.Equal(t, before.Len(), after.Len())
}

// flakySource fails its first few reads before recovering, the way a
// briefly locked SQLite file does.
type flakySource struct {
	failures int
	calls    int
	records  []projectstore.ProjectRecord
}

func (s *flakySource) LoadAll(ctx context.Context) ([]projectstore.ProjectRecord, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, fmt.Errorf("database is locked")
	}
	return s.records, nil
}

func TestRebuildRetriesTransientStoreFailures(t *testing.T) {
	source := &flakySource{failures: 2, records: fixtureRecords()}
	_, srv := newTestServer(t, source, false)

	snap, err := srv.rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, source.calls, "two failed reads then one good one")
	assert.Equal(t, len(fixtureRecords()), snap.Stats.TotalProjects)
	assert.True(t, srv.queries.Ready())
}

func TestRebuildGivesUpOnBadRecords(t *testing.T) {
	bad := fixtureRecords()
	bad[0].Region = ""
	source := &flakySource{records: bad}
	_, srv := newTestServer(t, source, false)

	_, err := srv.rebuild(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, source.calls, "invalid records are final, not retried")
	assert.False(t, srv.queries.Ready())
	assert.Equal(t, int64(1), srv.metrics.SnapshotFailures)
}

func TestCachedListServedAfterFirstRead(t *testing.T) {
	router, srv := newTestServer(t, &sliceSource{records: fixtureRecords()}, true)

	first := get(router, "/v1/stats", true)
	second := get(router, "/v1/stats", true)

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int64(1), srv.metrics.CacheHits)
}
