package inventory

import "strings"

// Default inventory markers.
const (
	// DefaultSourceMarker identifies Matter (pairing protocol, no IP) devices.
	DefaultSourceMarker = "matter"

	// DefaultTargetMarker identifies Leviton WiFi bridge (IP bearing) devices.
	DefaultTargetMarker = "leviton"
)

// Classifier partitions registry records into source and target devices by
// case-insensitive marker containment.
//
// The heuristic is deliberately loose: a device whose model or name happens
// to contain a marker word is classified by it. Tightening it would change
// which devices get mapped, so it is kept as is.
type Classifier struct {
	sourceMarker string
	targetMarker string
}

// NewClassifier creates a classifier. Empty markers fall back to the defaults.
func NewClassifier(sourceMarker, targetMarker string) *Classifier {
	if sourceMarker == "" {
		sourceMarker = DefaultSourceMarker
	}
	if targetMarker == "" {
		targetMarker = DefaultTargetMarker
	}
	return &Classifier{
		sourceMarker: strings.ToLower(sourceMarker),
		targetMarker: strings.ToLower(targetMarker),
	}
}

// Classify splits records into sources and targets, preserving input order
// within each list. A record is a target if its manufacturer or any field
// contains the target marker; otherwise it is a source if any field contains
// the source marker. Records matching neither are dropped.
func (c *Classifier) Classify(records []DeviceRecord) (source, target []DeviceRecord) {
	for _, rec := range records {
		switch {
		case c.IsTarget(rec):
			target = append(target, rec)
		case c.IsSource(rec):
			source = append(source, rec)
		}
	}
	return source, target
}

// IsTarget reports whether the record belongs to the bridge inventory.
func (c *Classifier) IsTarget(rec DeviceRecord) bool {
	if containsFold(rec.Manufacturer, c.targetMarker) {
		return true
	}
	return anyFieldContains(rec, c.targetMarker)
}

// IsSource reports whether the record belongs to the pairing-protocol
// inventory. Target records are never sources.
func (c *Classifier) IsSource(rec DeviceRecord) bool {
	if c.IsTarget(rec) {
		return false
	}
	return anyFieldContains(rec, c.sourceMarker)
}

func anyFieldContains(rec DeviceRecord, marker string) bool {
	for _, f := range rec.Fields() {
		if containsFold(f.Value, marker) {
			return true
		}
	}
	return false
}

// containsFold reports whether s contains the already lower-cased marker.
func containsFold(s, lowerMarker string) bool {
	return strings.Contains(strings.ToLower(s), lowerMarker)
}
