// Package mapper pairs Matter devices with Leviton bridge devices by name.
//
// For every source (Matter) device the mapper scores each target (bridge)
// device's display name with similarity.Ratio, keeps the best, and accepts
// it only when the score is strictly above the acceptance threshold. A
// source without a confident match is left out of the mapping; that is the
// expected outcome, not an error.
//
// Matching is heuristic. Two devices with similar names on different
// circuits can be paired wrongly, and a renamed device can be missed.
package mapper

import (
	"sort"
	"time"

	"github.com/nerrad567/matter-ipmap/internal/inventory"
	"github.com/nerrad567/matter-ipmap/internal/similarity"
)

// DefaultThreshold is the minimum score a match must strictly exceed.
const DefaultThreshold = 0.6

// Logger defines the logging interface used by the Mapper.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// MatchResult associates one source device with its best target device.
type MatchResult struct {
	Source inventory.DeviceInfo `json:"source"`
	Target inventory.DeviceInfo `json:"target"`
	Score  float64              `json:"similarity_score"`
}

// Mapping is the outcome of one mapping pass.
//
// Matches holds at most one entry per source device, ordered by source
// display name (byte-wise ascending, stable for equal names). Unmatched
// lists the sources that had no target above the threshold, in input order.
type Mapping struct {
	Matches   []MatchResult          `json:"matches"`
	Unmatched []inventory.DeviceInfo `json:"unmatched,omitempty"`
}

// Len returns the number of matched source devices.
func (m Mapping) Len() int {
	return len(m.Matches)
}

// Lookup returns the match for a source display name.
func (m Mapping) Lookup(name string) (MatchResult, bool) {
	for _, r := range m.Matches {
		if r.Source.DisplayName == name {
			return r, true
		}
	}
	return MatchResult{}, false
}

// Result is the outcome of Run: the mapping plus the classified inventories.
type Result struct {
	Mapping   Mapping                `json:"mapping"`
	Sources   []inventory.DeviceInfo `json:"sources"`
	Targets   []inventory.DeviceInfo `json:"targets"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// Mapper runs classification, extraction and matching.
type Mapper struct {
	classifier *inventory.Classifier
	threshold  float64
	logger     Logger
}

// Options configures a Mapper. Zero values select the defaults.
type Options struct {
	SourceMarker string
	TargetMarker string
	Threshold    float64
}

// New creates a Mapper.
func New(opts Options) *Mapper {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Mapper{
		classifier: inventory.NewClassifier(opts.SourceMarker, opts.TargetMarker),
		threshold:  threshold,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the mapper.
func (m *Mapper) SetLogger(logger Logger) {
	m.logger = logger
}

// Threshold returns the acceptance threshold in use.
func (m *Mapper) Threshold() float64 {
	return m.threshold
}

// Run classifies the snapshot's devices, extracts their info and maps them.
// Target order from the classifier is preserved, so tie-breaking is stable.
func (m *Mapper) Run(snap inventory.Snapshot) Result {
	sourceRecs, targetRecs := m.classifier.Classify(snap.Devices)

	sources := make([]inventory.DeviceInfo, len(sourceRecs))
	for i, rec := range sourceRecs {
		sources[i] = snap.Info(rec)
	}
	targets := make([]inventory.DeviceInfo, len(targetRecs))
	for i, rec := range targetRecs {
		targets[i] = snap.Info(rec)
	}

	m.logger.Info("inventory classified",
		"devices", len(snap.Devices),
		"sources", len(sources),
		"targets", len(targets),
	)

	mapping := m.Map(sources, targets)

	m.logger.Info("mapping complete",
		"matched", len(mapping.Matches),
		"unmatched", len(mapping.Unmatched),
	)

	return Result{
		Mapping:   mapping,
		Sources:   sources,
		Targets:   targets,
		FetchedAt: snap.FetchedAt,
	}
}

// Map selects, for every source, the best-scoring target strictly above
// the threshold. Ties keep the first target in list order.
func (m *Mapper) Map(sources, targets []inventory.DeviceInfo) Mapping {
	var mapping Mapping

	for _, src := range sources {
		best, score, ok := bestTarget(src, targets)
		if !ok || score <= m.threshold {
			m.logger.Debug("no confident match",
				"source", src.DisplayName,
				"best_score", score,
			)
			mapping.Unmatched = append(mapping.Unmatched, src)
			continue
		}

		mapping.Matches = append(mapping.Matches, MatchResult{
			Source: src,
			Target: best,
			Score:  score,
		})
	}

	sort.SliceStable(mapping.Matches, func(i, j int) bool {
		return mapping.Matches[i].Source.DisplayName < mapping.Matches[j].Source.DisplayName
	})

	return mapping
}

// bestTarget returns the highest-scoring target for src. Only a strictly
// greater score replaces the current best.
func bestTarget(src inventory.DeviceInfo, targets []inventory.DeviceInfo) (inventory.DeviceInfo, float64, bool) {
	var (
		best      inventory.DeviceInfo
		bestScore float64
		found     bool
	)

	for _, tgt := range targets {
		score := similarity.Ratio(src.DisplayName, tgt.DisplayName)
		if !found || score > bestScore {
			best, bestScore, found = tgt, score, true
		}
	}

	return best, bestScore, found
}
