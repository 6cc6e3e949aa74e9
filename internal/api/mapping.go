package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/matter-ipmap/internal/delivery"
	"github.com/nerrad567/matter-ipmap/internal/inventory"
	"github.com/nerrad567/matter-ipmap/internal/report"
)

// msgNoMapping is returned before the first successful run.
const msgNoMapping = "no mapping yet"

// MappingResponse is the JSON view of the latest run.
type MappingResponse struct {
	RunID         string       `json:"run_id"`
	GeneratedAt   time.Time    `json:"generated_at"`
	Threshold     float64      `json:"threshold"`
	SourceCount   int          `json:"source_count"`
	TargetCount   int          `json:"target_count"`
	MatchedCount  int          `json:"matched_count"`
	WithIPCount   int          `json:"with_ip_count"`
	Devices       []report.Row `json:"devices"`
	Unmatched     []string     `json:"unmatched"`
	DeliveryError string       `json:"delivery_error,omitempty"`
}

func newMappingResponse(run delivery.Run) MappingResponse {
	devices := run.Report.Records
	if devices == nil {
		devices = []report.Row{}
	}
	unmatched := run.Report.Unmatched
	if unmatched == nil {
		unmatched = []string{}
	}

	return MappingResponse{
		RunID:        run.ID,
		GeneratedAt:  run.Report.GeneratedAt,
		Threshold:    run.Threshold,
		SourceCount:  len(run.Result.Sources),
		TargetCount:  len(run.Result.Targets),
		MatchedCount: len(devices),
		WithIPCount:  report.WithIP(devices),
		Devices:      devices,
		Unmatched:    unmatched,
	}
}

// lastRun writes 404 and returns false when nothing has been mapped yet.
func (s *Server) lastRun(w http.ResponseWriter) (delivery.Run, bool) {
	run, err := s.runner.Last()
	if err != nil {
		writeNotFound(w, msgNoMapping)
		return delivery.Run{}, false
	}
	return run, true
}

// handleGetMapping returns the latest mapping as JSON.
func (s *Server) handleGetMapping(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.lastRun(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newMappingResponse(run))
}

// handleGetMappingCSV returns the latest mapping's CSV block.
func (s *Server) handleGetMappingCSV(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.lastRun(w)
	if !ok {
		return
	}
	writeText(w, "text/csv; charset=utf-8", run.Report.CSV)
}

// handleGetMappingText returns the latest human-readable report.
func (s *Server) handleGetMappingText(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.lastRun(w)
	if !ok {
		return
	}
	writeText(w, "text/plain; charset=utf-8", run.Report.Text)
}

// handleGetMappingMarkdown returns the latest network info table.
func (s *Server) handleGetMappingMarkdown(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.lastRun(w)
	if !ok {
		return
	}
	writeText(w, "text/markdown; charset=utf-8", run.Report.Markdown)
}

// handleRefreshMapping performs a run synchronously and returns its mapping.
//
// An unreachable or unreadable inventory is a 502 and leaves the previous
// mapping in place. A delivery failure still returns the new mapping with
// the failure in delivery_error.
func (s *Server) handleRefreshMapping(w http.ResponseWriter, r *http.Request) {
	run, err := s.runner.Execute(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, newMappingResponse(run))

	case errors.Is(err, inventory.ErrInventoryUnavailable), errors.Is(err, inventory.ErrInvalidSnapshot):
		writeBadGateway(w, err.Error())

	case errors.Is(err, delivery.ErrDeliveryFailed):
		s.logger.Warn("refresh delivered partially", "run_id", run.ID, "error", err)
		resp := newMappingResponse(run)
		resp.DeliveryError = err.Error()
		writeJSON(w, http.StatusOK, resp)

	default:
		s.logger.Error("refresh failed", "error", err)
		writeInternalError(w, "mapping run failed")
	}
}
