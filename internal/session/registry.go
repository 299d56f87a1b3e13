// Package session hosts one live page per job and owns its poll loops.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/livewatch/internal/page"
	"github.com/kiranshivaraju/livewatch/internal/poll"
	"github.com/kiranshivaraju/livewatch/internal/reconcile"
	"github.com/kiranshivaraju/livewatch/internal/snapshot"
	"github.com/kiranshivaraju/livewatch/pkg/models"
	"golang.org/x/sync/singleflight"
)

var (
	ErrClosed       = errors.New("session registry closed")
	ErrInvalidJobID = errors.New("invalid job id")
	ErrNotFound     = errors.New("session not found")
)

const (
	maxJobIDLength = 128

	// bootstrapTimeout bounds the first status and snapshot fetches, which
	// run detached from the request that triggered them.
	bootstrapTimeout = 30 * time.Second
)

// Journal receives everything the loops want to keep a record of.
type Journal interface {
	reconcile.Recorder
	RecordFetchError(ctx context.Context, jobID string, err error)
}

// Config holds the per-page settings shared by every session.
type Config struct {
	APIURL           string
	UglymolURL       string
	PercentThreshold float64
	ResultsInterval  time.Duration
	StatusInterval   time.Duration
	IdleTTL          time.Duration
}

// Registry owns every open session.
type Registry struct {
	cfg     Config
	source  snapshot.Client
	journal Journal
	status  poll.StatusStore

	// loops outlive the request that opened them
	ctx    context.Context
	cancel context.CancelFunc

	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	now func() time.Time
}

// NewRegistry creates a Registry. journal and status may be nil.
func NewRegistry(cfg Config, source snapshot.Client, journal Journal, status poll.StatusStore) *Registry {
	if journal == nil {
		journal = nopJournal{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:      cfg,
		source:   source,
		journal:  journal,
		status:   status,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Open returns the session for jobID, bootstrapping it on first use.
// Concurrent first opens of one job share a single bootstrap, which keeps
// running when the caller that started it goes away. Opening an existing
// live session binds any tasks its loop has learned about since.
func (r *Registry) Open(ctx context.Context, jobID string) (*Session, error) {
	if jobID == "" || len(jobID) > maxJobIDLength {
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	if s, ok := r.Get(jobID); ok {
		if n := s.rebind(ctx); n > 0 {
			slog.Info("session rebound", "job_id", jobID, "added", n, "session_id", s.ID())
		}
		return s, nil
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	v, err, _ := r.group.Do(jobID, func() (any, error) {
		if s, ok := r.Get(jobID); ok {
			return s, nil
		}
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bootstrapTimeout)
		defer cancel()
		s, err := r.bootstrap(bctx, jobID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			go s.stop()
			return nil, ErrClosed
		}
		r.sessions[jobID] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Get returns an open session and marks it as seen.
func (r *Registry) Get(jobID string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[jobID]
	r.mu.Unlock()
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops and forgets the session for jobID.
func (r *Registry) Close(jobID string) error {
	r.mu.Lock()
	s, ok := r.sessions[jobID]
	delete(r.sessions, jobID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	s.stop()
	slog.Info("session closed", "job_id", jobID, "session_id", s.ID())
	return nil
}

// Sweep closes sessions not seen for longer than the idle TTL and returns
// how many were closed.
func (r *Registry) Sweep() int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}
	now := r.now()

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.idleSince(now) > r.cfg.IdleTTL {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.stop()
		slog.Info("idle session swept", "job_id", s.JobID(), "session_id", s.ID())
	}
	return len(idle)
}

// RunSweeper sweeps idle sessions until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context) error {
	interval := r.cfg.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	return poll.NewScheduler("session-sweeper", interval, func(context.Context) error {
		r.Sweep()
		return nil
	}).Run(ctx)
}

// Shutdown stops every session. Open fails afterwards.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	r.cancel()
	for _, s := range sessions {
		s.stop()
	}
	slog.Info("session registry shut down", "sessions", len(sessions))
}

// --- Bootstrap ---

func (r *Registry) bootstrap(ctx context.Context, jobID string) (*Session, error) {
	report, err := r.source.JobStatus(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("bootstrap job %s: %w", jobID, err)
	}

	s := newSession(jobID, r.now())
	s.jobStatus = report.Status

	if !report.Status.Active() {
		s.refresh = r.cfg.StatusInterval
		// a reload may run before Start returns
		s.mu.Lock()
		s.watcher = r.startWatcher(s, 0)
		s.mu.Unlock()
		slog.Info("session waiting for job", "job_id", jobID, "status", report.Status, "session_id", s.ID())
		return s, nil
	}

	live, err := r.buildLive(ctx, jobID)
	if err != nil {
		return nil, err
	}
	r.goLive(s, live)
	slog.Info("session live", "job_id", jobID, "tasks", live.page.Len(), "session_id", s.ID())
	return s, nil
}

type livePage struct {
	page   *page.Page
	poller *poll.Poller
}

// buildLive fetches the first snapshot, binds the page to its task keys and
// reconciles it once so the first render is current.
func (r *Registry) buildLive(ctx context.Context, jobID string) (*livePage, error) {
	snap, err := r.source.Result(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("first snapshot for job %s: %w", jobID, err)
	}

	keys := make([]string, 0, len(snap.Results))
	for _, res := range snap.Results {
		keys = append(keys, res.UniprotID)
	}
	p := page.New(jobID, keys)

	rec := reconcile.NewReconciler(r.pageConfig(jobID), r.journal)
	rec.Reconcile(ctx, p, snap.Results)
	reconcile.Deduplicator{}.Apply(p, snap.Messages)

	return &livePage{page: p, poller: poll.NewPoller(r.source, p, rec)}, nil
}

// goLive installs the page and starts the reconcile loop. buildLive already
// performed the first load, so the loop waits one interval before its first tick.
func (r *Registry) goLive(s *Session, live *livePage) {
	s.page = live.page
	s.poller = live.poller
	s.mode = ModeLive
	s.refresh = r.cfg.ResultsInterval
	s.results = poll.NewScheduler("results:"+s.jobID, r.cfg.ResultsInterval, func(ctx context.Context) error {
		err := live.poller.Tick(ctx)
		if err != nil && ctx.Err() == nil {
			r.journal.RecordFetchError(ctx, s.jobID, err)
		}
		return err
	}).Delayed(r.cfg.ResultsInterval).Start(r.ctx)
}

// startWatcher must be called with s.mu held or before s is shared.
func (r *Registry) startWatcher(s *Session, delay time.Duration) *poll.Handle {
	w := poll.NewWatcher(s.jobID, r.source, poll.ReloadFunc(func(ctx context.Context, jobID string, status models.JobStatus) {
		r.reload(ctx, s, status)
	}))
	if r.status != nil {
		w.WithStatusStore(r.status, r.cfg.IdleTTL)
	}
	return poll.NewScheduler("watcher:"+s.jobID, r.cfg.StatusInterval, func(ctx context.Context) error {
		err := w.Tick(ctx)
		if err != nil && !errors.Is(err, poll.ErrDone) && ctx.Err() == nil {
			r.journal.RecordFetchError(ctx, s.jobID, err)
		}
		return err
	}).Delayed(delay).Start(r.ctx)
}

// reload rebuilds a waiting session as a live one. It runs on the watcher
// loop, which ends right after.
func (r *Registry) reload(ctx context.Context, s *Session, status models.JobStatus) {
	live, err := r.buildLive(ctx, s.jobID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeClosed {
		return
	}
	s.jobStatus = status
	if err != nil {
		slog.Warn("reload failed, still waiting", "job_id", s.jobID, "error", err)
		if ctx.Err() == nil {
			r.journal.RecordFetchError(ctx, s.jobID, err)
		}
		s.watcher = r.startWatcher(s, r.cfg.StatusInterval)
		return
	}
	s.watcher = nil
	r.goLive(s, live)
	slog.Info("session reloaded", "job_id", s.jobID, "status", status, "tasks", live.page.Len())
}

func (r *Registry) pageConfig(jobID string) models.PageConfig {
	return models.PageConfig{
		APIURL:           r.cfg.APIURL,
		JobID:            jobID,
		PercentThreshold: r.cfg.PercentThreshold,
		UglymolURL:       r.cfg.UglymolURL,
	}
}

type nopJournal struct{}

func (nopJournal) RecordDiagnostic(context.Context, models.Diagnostic) {}
func (nopJournal) RecordSettlement(context.Context, models.Settlement) {}
func (nopJournal) RecordFetchError(context.Context, string, error)     {}
