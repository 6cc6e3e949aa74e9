package delivery

import (
	"context"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/matter-ipmap/internal/infrastructure/influxdb"
	"github.com/nerrad567/matter-ipmap/internal/report"
)

// PointWriter writes InfluxDB points. *influxdb.Client implements it.
type PointWriter interface {
	WritePoints(ctx context.Context, points ...*write.Point) error
}

// InfluxSink records one device_match point per match and a mapping_run
// summary, all stamped with the run's finish time.
type InfluxSink struct {
	writer PointWriter
}

// NewInfluxSink creates a sink writing through w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{writer: w}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Deliver implements Sink.
func (s *InfluxSink) Deliver(ctx context.Context, run Run) error {
	return s.writer.WritePoints(ctx, Points(run)...)
}

// Points builds the points for a run.
func Points(run Run) []*write.Point {
	rows := run.Report.Records
	points := make([]*write.Point, 0, len(rows)+1)
	for _, row := range rows {
		points = append(points, influxdb.NewMatchPoint(influxdb.MatchPoint{
			RunID:  run.ID,
			Source: row.Name,
			Target: row.BridgeName,
			IP:     row.IP,
			MAC:    row.MAC,
			Score:  row.Score,
			Time:   run.FinishedAt,
		}))
	}
	points = append(points, influxdb.NewRunPoint(influxdb.RunPoint{
		RunID:     run.ID,
		Sources:   len(run.Result.Sources),
		Targets:   len(run.Result.Targets),
		Matched:   len(rows),
		Unmatched: len(run.Report.Unmatched),
		WithIP:    report.WithIP(rows),
		Threshold: run.Threshold,
		Duration:  run.Duration(),
		Time:      run.FinishedAt,
	}))
	return points
}
