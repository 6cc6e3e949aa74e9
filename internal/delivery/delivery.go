package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/matter-ipmap/internal/mapper"
	"github.com/nerrad567/matter-ipmap/internal/report"
)

// ErrDeliveryFailed wraps the joined errors of every sink that failed.
var ErrDeliveryFailed = errors.New("delivery: one or more sinks failed")

// Logger defines the logging interface used by the Dispatcher and sinks.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Run is one completed mapping run and its renderings.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Threshold  float64
	Result     mapper.Result
	Report     report.Report
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Sink publishes a run somewhere.
type Sink interface {
	// Name identifies the sink in logs and errors.
	Name() string

	// Deliver publishes the run. It must not modify it.
	Deliver(ctx context.Context, run Run) error
}

// Dispatcher hands a run to every sink in registration order. A failing
// sink does not stop the others.
type Dispatcher struct {
	sinks  []Sink
	logger Logger
}

// NewDispatcher creates a dispatcher over sinks.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Add registers another sink.
func (d *Dispatcher) Add(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Names returns the registered sink names in order.
func (d *Dispatcher) Names() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Deliver runs every sink. The returned error wraps ErrDeliveryFailed and
// each sink failure, prefixed with the sink name.
func (d *Dispatcher) Deliver(ctx context.Context, run Run) error {
	var errs []error
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, run); err != nil {
			d.logger.Warn("delivery failed",
				"sink", s.Name(),
				"run_id", run.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		d.logger.Debug("delivered",
			"sink", s.Name(),
			"run_id", run.ID,
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, errors.Join(errs...))
	}
	return nil
}
