package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds service counters. Scalar counters are updated with
// atomics; keyed counters and the response-time window take a mutex.
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	CacheHits           int64
	CacheMisses         int64
	RateLimitBlocks     int64
	AverageResponseTime int64 // nanoseconds
	StartTime           time.Time

	// Snapshot build lifecycle
	SnapshotBuilds      int64
	SnapshotFailures    int64
	LastBuildDurationNs int64
	lastBuildAt         atomic.Int64 // unix nanos, 0 until first build
	DevelopersScored    int64
	ProjectsLoaded      int64

	// Last 1000 response times, for percentiles
	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	RateLimitBlocksByKey map[string]int64
	RateLimitMutex       sync.RWMutex

	// System metrics sampled by the memory monitor
	GCCount        int64
	GCPauseTotalNs int64
	HeapAlloc      int64
	HeapSys        int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		ResponseTimes:        make([]time.Duration, 0, 1000),
		RequestCountByStatus: make(map[int]int64),
		RateLimitBlocksByKey: make(map[string]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// IncrementRateLimitBlock records a throttled request for the given client key.
func (m *Metrics) IncrementRateLimitBlock(key string) {
	atomic.AddInt64(&m.RateLimitBlocks, 1)

	m.RateLimitMutex.Lock()
	m.RateLimitBlocksByKey[key]++
	m.RateLimitMutex.Unlock()
}

// RecordSnapshotBuild records a completed scoring cycle.
func (m *Metrics) RecordSnapshotBuild(duration time.Duration, developers, projects int) {
	atomic.AddInt64(&m.SnapshotBuilds, 1)
	atomic.StoreInt64(&m.LastBuildDurationNs, duration.Nanoseconds())
	atomic.StoreInt64(&m.DevelopersScored, int64(developers))
	atomic.StoreInt64(&m.ProjectsLoaded, int64(projects))
	m.lastBuildAt.Store(time.Now().UnixNano())
}

// RecordSnapshotFailure records a scoring cycle that aborted.
func (m *Metrics) RecordSnapshotFailure() {
	atomic.AddInt64(&m.SnapshotFailures, 1)
}

// RecordResponseTime records response time for averaging and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	current := atomic.LoadInt64(&m.AverageResponseTime)
	newAverage := (current + duration.Nanoseconds()) / 2
	atomic.StoreInt64(&m.AverageResponseTime, newAverage)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > 1000 {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// RecordGCMetrics records Go garbage collector metrics
func (m *Metrics) RecordGCMetrics(gcCount, gcPauseTotalNs, heapAlloc, heapSys int64) {
	atomic.StoreInt64(&m.GCCount, gcCount)
	atomic.StoreInt64(&m.GCPauseTotalNs, gcPauseTotalNs)
	atomic.StoreInt64(&m.HeapAlloc, heapAlloc)
	atomic.StoreInt64(&m.HeapSys, heapSys)
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	defer m.ResponseTimesMutex.RUnlock()

	if len(m.ResponseTimes) == 0 {
		return 0
	}

	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}

	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64)
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetRateLimitStats returns throttling counters per client key.
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	m.RateLimitMutex.RLock()
	byKey := make(map[string]int64, len(m.RateLimitBlocksByKey))
	for k, v := range m.RateLimitBlocksByKey {
		byKey[k] = v
	}
	m.RateLimitMutex.RUnlock()

	return map[string]interface{}{
		"total_blocks":  atomic.LoadInt64(&m.RateLimitBlocks),
		"blocks_by_key": byKey,
	}
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)
	avgResponseTime := atomic.LoadInt64(&m.AverageResponseTime)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	totalCacheRequests := cacheHits + cacheMisses
	if totalCacheRequests > 0 {
		cacheHitRate = float64(cacheHits) / float64(totalCacheRequests) * 100
	}

	uptime := time.Since(m.StartTime)

	lastBuildAt := ""
	if nanos := m.lastBuildAt.Load(); nanos > 0 {
		lastBuildAt = time.Unix(0, nanos).UTC().Format(time.RFC3339)
	}

	heapAlloc := atomic.LoadInt64(&m.HeapAlloc)
	heapSys := atomic.LoadInt64(&m.HeapSys)
	heapUsage := float64(0)
	if heapSys > 0 {
		heapUsage = float64(heapAlloc) / float64(heapSys) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":         uptime.Seconds(),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     errorRate,
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,
		"rate_limit_blocks":      atomic.LoadInt64(&m.RateLimitBlocks),
		"avg_response_time_ms":   float64(avgResponseTime) / 1e6,
		"start_time":             m.StartTime.Format(time.RFC3339),

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1e6,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1e6,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1e6,
		"status_code_distribution": m.GetStatusCodeDistribution(),

		"snapshot_builds":        atomic.LoadInt64(&m.SnapshotBuilds),
		"snapshot_failures":      atomic.LoadInt64(&m.SnapshotFailures),
		"last_build_duration_ms": float64(atomic.LoadInt64(&m.LastBuildDurationNs)) / 1e6,
		"last_build_at":          lastBuildAt,
		"developers_scored":      atomic.LoadInt64(&m.DevelopersScored),
		"projects_loaded":        atomic.LoadInt64(&m.ProjectsLoaded),

		"go_gc_count":           atomic.LoadInt64(&m.GCCount),
		"go_gc_pause_total_ns":  atomic.LoadInt64(&m.GCPauseTotalNs),
		"go_heap_alloc_bytes":   heapAlloc,
		"go_heap_sys_bytes":     heapSys,
		"go_heap_usage_percent": heapUsage,
	}
}

// Reset resets all metrics (useful for testing)
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.RequestCount, 0)
	atomic.StoreInt64(&m.ErrorCount, 0)
	atomic.StoreInt64(&m.CacheHits, 0)
	atomic.StoreInt64(&m.CacheMisses, 0)
	atomic.StoreInt64(&m.RateLimitBlocks, 0)
	atomic.StoreInt64(&m.AverageResponseTime, 0)
	atomic.StoreInt64(&m.SnapshotBuilds, 0)
	atomic.StoreInt64(&m.SnapshotFailures, 0)
	atomic.StoreInt64(&m.LastBuildDurationNs, 0)
	atomic.StoreInt64(&m.DevelopersScored, 0)
	atomic.StoreInt64(&m.ProjectsLoaded, 0)
	m.lastBuildAt.Store(0)
	atomic.StoreInt64(&m.GCCount, 0)
	atomic.StoreInt64(&m.GCPauseTotalNs, 0)
	atomic.StoreInt64(&m.HeapAlloc, 0)
	atomic.StoreInt64(&m.HeapSys, 0)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = m.ResponseTimes[:0]
	m.ResponseTimesMutex.Unlock()

	m.StatusMutex.Lock()
	m.RequestCountByStatus = make(map[int]int64)
	m.StatusMutex.Unlock()

	m.RateLimitMutex.Lock()
	m.RateLimitBlocksByKey = make(map[string]int64)
	m.RateLimitMutex.Unlock()

	m.StartTime = time.Now()
}
