package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDeviceMatch = "device_match"
	MeasurementMappingRun  = "mapping_run"
)

// MatchPoint describes one matched device of a run.
type MatchPoint struct {
	RunID  string
	Source string
	Target string
	IP     string
	MAC    string
	Score  float64
	Time   time.Time
}

// RunPoint summarises one mapping run.
type RunPoint struct {
	RunID     string
	Sources   int
	Targets   int
	Matched   int
	Unmatched int
	WithIP    int
	Threshold float64
	Duration  time.Duration
	Time      time.Time
}

// NewMatchPoint builds a device_match point. Device names are tags so
// scores can be graphed per device; the run id is a field to keep series
// cardinality flat.
func NewMatchPoint(m MatchPoint) *write.Point {
	return write.NewPoint(
		MeasurementDeviceMatch,
		map[string]string{
			"source": m.Source,
			"target": m.Target,
		},
		map[string]interface{}{
			"score":  m.Score,
			"ip":     m.IP,
			"mac":    m.MAC,
			"run_id": m.RunID,
		},
		m.Time,
	)
}

// NewRunPoint builds a mapping_run point.
func NewRunPoint(r RunPoint) *write.Point {
	return write.NewPoint(
		MeasurementMappingRun,
		nil,
		map[string]interface{}{
			"run_id":      r.RunID,
			"sources":     r.Sources,
			"targets":     r.Targets,
			"matched":     r.Matched,
			"unmatched":   r.Unmatched,
			"with_ip":     r.WithIP,
			"threshold":   r.Threshold,
			"duration_ms": r.Duration.Milliseconds(),
		},
		r.Time,
	)
}

// WritePoints writes points in batches of the configured size and returns
// the first failure.
func (c *Client) WritePoints(ctx context.Context, points ...*write.Point) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	for start := 0; start < len(points); start += c.batchSize {
		end := min(start+c.batchSize, len(points))
		if err := c.writeAPI.WritePoint(ctx, points[start:end]...); err != nil {
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
	}
	return nil
}
