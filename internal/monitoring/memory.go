package monitoring

import (
	"fmt"
	"runtime"
	"time"
)

// MemoryMonitor periodically samples runtime memory statistics and feeds
// them into the shared Metrics so /metrics can report heap and GC state.
type MemoryMonitor struct {
	metrics     *Metrics
	logger      *Logger
	interval    time.Duration
	stopChannel chan struct{}
}

// NewMemoryMonitor creates a new memory monitor
func NewMemoryMonitor(interval time.Duration, metrics *Metrics, logger *Logger) *MemoryMonitor {
	return &MemoryMonitor{
		metrics:     metrics,
		logger:      logger,
		interval:    interval,
		stopChannel: make(chan struct{}),
	}
}

// Start begins memory monitoring in a goroutine
func (mm *MemoryMonitor) Start() {
	go func() {
		ticker := time.NewTicker(mm.interval)
		defer ticker.Stop()

		mm.logger.Info("Starting memory monitoring", "interval_ms", mm.interval.Milliseconds())

		for {
			select {
			case <-ticker.C:
				mm.collectStats()

			case <-mm.stopChannel:
				mm.logger.Info("Memory monitoring stopped")
				return
			}
		}
	}()
}

// Stop stops memory monitoring
func (mm *MemoryMonitor) Stop() {
	close(mm.stopChannel)
}

func (mm *MemoryMonitor) collectStats() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	mm.metrics.RecordGCMetrics(
		int64(memStats.NumGC),
		int64(memStats.PauseTotalNs),
		int64(memStats.HeapAlloc),
		int64(memStats.HeapSys),
	)

	mm.logger.SystemLogger("memory_stats", fmt.Sprintf(
		"alloc:%dMB sys:%dMB heap:%dMB/%dMB gc:%d goroutines:%d",
		memStats.Alloc/(1024*1024),
		memStats.Sys/(1024*1024),
		memStats.HeapInuse/(1024*1024),
		memStats.HeapSys/(1024*1024),
		memStats.NumGC,
		runtime.NumGoroutine(),
	))
}
