package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/matter-ipmap/internal/delivery"
	"github.com/nerrad567/matter-ipmap/internal/history"
	"github.com/nerrad567/matter-ipmap/internal/inventory"
	"github.com/nerrad567/matter-ipmap/internal/mapper"
	"github.com/nerrad567/matter-ipmap/internal/report"
)

// ErrNoRun is returned by Last before the first successful run.
var ErrNoRun = errors.New("runner: no mapping yet")

// Logger defines the logging interface used by the Runner.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SnapshotSource provides the device inventory. *homeassistant.Client and
// FileSource implement it.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (inventory.Snapshot, error)
}

// FailureNotifier is told when a run cannot acquire its inventory.
// *delivery.NotificationSink implements it.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, cause error) error
}

// FileSource reads the inventory from a JSON snapshot file on every call.
type FileSource struct {
	Path string
}

// Snapshot implements SnapshotSource.
func (s FileSource) Snapshot(_ context.Context) (inventory.Snapshot, error) {
	return inventory.LoadSnapshot(s.Path)
}

// Runner performs mapping runs: fetch, map, render, deliver. Runs are
// serialised and the most recent successful one is kept for readers.
type Runner struct {
	source     SnapshotSource
	mapper     *mapper.Mapper
	dispatcher *delivery.Dispatcher
	failure    FailureNotifier
	logger     Logger
	now        func() time.Time

	// exec serialises Execute.
	exec sync.Mutex

	mu      sync.RWMutex
	last    *delivery.Run
	lastErr error
}

// New creates a Runner. dispatcher may be nil when nothing should be
// delivered.
func New(source SnapshotSource, m *mapper.Mapper, dispatcher *delivery.Dispatcher) *Runner {
	if dispatcher == nil {
		dispatcher = delivery.NewDispatcher()
	}
	return &Runner{
		source:     source,
		mapper:     m,
		dispatcher: dispatcher,
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// SetFailureNotifier sets who is told about failed runs.
func (r *Runner) SetFailureNotifier(n FailureNotifier) {
	r.failure = n
}

// Execute performs one run.
//
// If the inventory cannot be acquired no mapping is produced, the failure
// notifier is told and the source error is returned wrapped. Otherwise the
// run is recorded as the latest and delivered; a delivery failure is
// returned alongside the completed run.
func (r *Runner) Execute(ctx context.Context) (delivery.Run, error) {
	r.exec.Lock()
	defer r.exec.Unlock()

	started := r.now()

	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		err = fmt.Errorf("acquiring inventory: %w", err)
		r.logger.Error("mapping run failed", "error", err)
		r.recordFailure(err)
		r.notifyFailure(ctx, err)
		return delivery.Run{}, err
	}

	result := r.mapper.Run(snap)
	finished := r.now()
	rep := report.Format(result.Mapping, finished)

	if dups := rep.Duplicates(); len(dups) > 0 {
		r.logger.Warn("duplicate device names, later entries win in JSON output", "names", dups)
	}

	run := delivery.Run{
		ID:         history.NewRunID(),
		StartedAt:  started,
		FinishedAt: finished,
		Threshold:  r.mapper.Threshold(),
		Result:     result,
		Report:     rep,
	}
	r.recordSuccess(run)

	r.logger.Info("mapping run complete",
		"run_id", run.ID,
		"matched", len(rep.Records),
		"unmatched", len(rep.Unmatched),
		"with_ip", report.WithIP(rep.Records),
		"duration", run.Duration(),
	)

	if err := r.dispatcher.Deliver(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// Last returns the most recent successful run, or ErrNoRun.
func (r *Runner) Last() (delivery.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return delivery.Run{}, ErrNoRun
	}
	return *r.last, nil
}

// LastError returns the error of the most recent run, nil if it succeeded.
func (r *Runner) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// RunEvery executes immediately and then every interval until ctx is
// cancelled. Run errors are logged, not returned. A non-positive interval
// runs once.
func (r *Runner) RunEvery(ctx context.Context, interval time.Duration) {
	r.executeLogged(ctx)

	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.executeLogged(ctx)
		}
	}
}

func (r *Runner) executeLogged(ctx context.Context) {
	if _, err := r.Execute(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("scheduled run incomplete", "error", err)
	}
}

func (r *Runner) recordSuccess(run delivery.Run) {
	r.mu.Lock()
	r.last = &run
	r.lastErr = nil
	r.mu.Unlock()
}

func (r *Runner) recordFailure(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

func (r *Runner) notifyFailure(ctx context.Context, cause error) {
	if r.failure == nil {
		return
	}
	if err := r.failure.NotifyFailure(ctx, cause); err != nil {
		r.logger.Warn("failure notification not sent", "error", err)
	}
}
