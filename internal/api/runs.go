package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/matter-ipmap/internal/history"
)

// maxListLimit caps the limit query parameter of GET /runs.
const maxListLimit = 500

// handleListRuns returns stored run summaries, newest first.
//
// Query parameters:
//   - limit: number of runs (default history.DefaultListLimit, max 500)
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "run history disabled")
		return
	}

	limit := history.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing runs", "error", err)
		writeInternalError(w, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetRun returns one stored run with its matches.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "run history disabled")
		return
	}

	run, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	s.writeRun(w, run, err)
}

// handleLatestRun returns the most recently stored run.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "run history disabled")
		return
	}

	run, err := s.history.Latest(r.Context())
	s.writeRun(w, run, err)
}

func (s *Server) writeRun(w http.ResponseWriter, run *history.Run, err error) {
	switch {
	case errors.Is(err, history.ErrRunNotFound):
		writeNotFound(w, "run not found")
	case err != nil:
		s.logger.Error("loading run", "error", err)
		writeInternalError(w, "failed to load run")
	default:
		writeJSON(w, http.StatusOK, run)
	}
}
