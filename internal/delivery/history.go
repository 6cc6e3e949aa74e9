package delivery

import (
	"context"

	"github.com/nerrad567/matter-ipmap/internal/history"
)

// HistorySink stores every run in the history repository.
type HistorySink struct {
	repo history.Repository
}

// NewHistorySink creates a sink saving to repo.
func NewHistorySink(repo history.Repository) *HistorySink {
	return &HistorySink{repo: repo}
}

// Name implements Sink.
func (s *HistorySink) Name() string { return "history" }

// Deliver implements Sink.
func (s *HistorySink) Deliver(ctx context.Context, run Run) error {
	return s.repo.Save(ctx, HistoryRun(run))
}

// HistoryRun converts a run into its stored form.
func HistoryRun(run Run) *history.Run {
	matches := make([]history.Match, len(run.Result.Mapping.Matches))
	for i, m := range run.Result.Mapping.Matches {
		matches[i] = history.Match{
			SourceName:   m.Source.DisplayName,
			TargetName:   m.Target.DisplayName,
			IP:           m.Target.IP,
			MAC:          m.Target.MAC,
			Manufacturer: m.Target.Manufacturer,
			Model:        m.Target.Model,
			ConfigURL:    m.Target.ConfigURL,
			Score:        m.Score,
		}
	}

	return &history.Run{
		ID:             run.ID,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
		SourceCount:    len(run.Result.Sources),
		TargetCount:    len(run.Result.Targets),
		MatchedCount:   len(matches),
		UnmatchedCount: len(run.Result.Mapping.Unmatched),
		Threshold:      run.Threshold,
		Matches:        matches,
		Unmatched:      append([]string(nil), run.Report.Unmatched...),
	}
}
