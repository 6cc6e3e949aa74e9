package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/matter-ipmap/internal/report"
)

// SystemMetrics represents the complete metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	LastRun       *RunMetrics      `json:"last_run,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// RunMetrics summarises the latest successful mapping run.
type RunMetrics struct {
	ID         string  `json:"id"`
	FinishedAt string  `json:"finished_at"`
	DurationMS int64   `json:"duration_ms"`
	Sources    int     `json:"sources"`
	Targets    int     `json:"targets"`
	Matched    int     `json:"matched"`
	Unmatched  int     `json:"unmatched"`
	WithIP     int     `json:"with_ip"`
	Threshold  float64 `json:"threshold"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime and last-run metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if run, err := s.runner.Last(); err == nil {
		metrics.LastRun = &RunMetrics{
			ID:         run.ID,
			FinishedAt: run.FinishedAt.UTC().Format(time.RFC3339),
			DurationMS: run.Duration().Milliseconds(),
			Sources:    len(run.Result.Sources),
			Targets:    len(run.Result.Targets),
			Matched:    len(run.Report.Records),
			Unmatched:  len(run.Report.Unmatched),
			WithIP:     report.WithIP(run.Report.Records),
			Threshold:  run.Threshold,
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
