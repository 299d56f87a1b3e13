package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kiranshivaraju/livewatch/pkg/models"
)

// StatusSource fetches the aggregate status of a job.
type StatusSource interface {
	JobStatus(ctx context.Context, jobID string) (*models.JobStatusReport, error)
}

// StatusStore remembers the last status observed for a job.
type StatusStore interface {
	SetJobStatus(ctx context.Context, jobID string, status string, ttl time.Duration) error
}

// Reloader is told when the page for a job must be rebuilt.
type Reloader interface {
	Reload(ctx context.Context, jobID string, status models.JobStatus)
}

// ReloadFunc adapts a function to Reloader.
type ReloadFunc func(ctx context.Context, jobID string, status models.JobStatus)

func (f ReloadFunc) Reload(ctx context.Context, jobID string, status models.JobStatus) {
	f(ctx, jobID, status)
}

// WatcherState is the watcher's lifecycle position.
type WatcherState int32

const (
	WatcherWatching WatcherState = iota
	WatcherReloading
)

func (s WatcherState) String() string {
	if s == WatcherReloading {
		return "reloading"
	}
	return "watching"
}

// Watcher polls the job status and triggers a single reload once the job
// is Running or Complete. Reloading is terminal.
type Watcher struct {
	jobID     string
	source    StatusSource
	reloader  Reloader
	store     StatusStore
	statusTTL time.Duration
	state     atomic.Int32
}

// NewWatcher creates a watcher for one job.
func NewWatcher(jobID string, source StatusSource, reloader Reloader) *Watcher {
	return &Watcher{jobID: jobID, source: source, reloader: reloader}
}

// WithStatusStore records every observed status in s for ttl.
func (w *Watcher) WithStatusStore(s StatusStore, ttl time.Duration) *Watcher {
	w.store = s
	w.statusTTL = ttl
	return w
}

// State returns the current lifecycle state.
func (w *Watcher) State() WatcherState { return WatcherState(w.state.Load()) }

// Tick checks the job status once. It returns ErrDone after the reload has
// been triggered, ending the loop.
func (w *Watcher) Tick(ctx context.Context) error {
	if w.State() == WatcherReloading {
		return ErrDone
	}

	report, err := w.source.JobStatus(ctx, w.jobID)
	if err != nil {
		return fmt.Errorf("fetching status for job %s: %w", w.jobID, err)
	}

	if w.store != nil {
		if err := w.store.SetJobStatus(ctx, w.jobID, string(report.Status), w.statusTTL); err != nil {
			slog.Warn("failed to record job status", "job_id", w.jobID, "error", err)
		}
	}

	if !report.Status.Active() {
		return nil
	}

	if !w.state.CompareAndSwap(int32(WatcherWatching), int32(WatcherReloading)) {
		return ErrDone
	}
	slog.Info("job became active, reloading page", "job_id", w.jobID, "status", report.Status)
	w.reloader.Reload(ctx, w.jobID, report.Status)
	return ErrDone
}
