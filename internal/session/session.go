package session

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/livewatch/internal/page"
	"github.com/kiranshivaraju/livewatch/internal/poll"
	"github.com/kiranshivaraju/livewatch/pkg/models"
)

// Mode is what a session is currently doing for its job.
type Mode string

const (
	// ModeWaiting: the job is not active yet; only the job-level watcher runs.
	ModeWaiting Mode = "waiting"
	// ModeLive: the page is built and the reconcile loop runs.
	ModeLive Mode = "live"
	// ModeClosed: every loop is stopped.
	ModeClosed Mode = "closed"
)

// Session is one live page for one job.
type Session struct {
	id     uuid.UUID
	jobID  string
	opened time.Time

	lastSeen atomic.Int64

	mu        sync.Mutex
	mode      Mode
	jobStatus models.JobStatus
	page      *page.Page
	poller    *poll.Poller
	results   *poll.Handle
	watcher   *poll.Handle
	refresh   time.Duration
}

// View is the JSON form of a session.
type View struct {
	SessionID uuid.UUID        `json:"session_id"`
	JobID     string           `json:"job_id"`
	Mode      Mode             `json:"mode"`
	JobStatus models.JobStatus `json:"job_status"`
	OpenedAt  time.Time        `json:"opened_at"`
	Page      *page.View       `json:"page,omitempty"`
}

func newSession(jobID string, now time.Time) *Session {
	s := &Session{id: uuid.New(), jobID: jobID, opened: now, mode: ModeWaiting}
	s.touch(now)
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() uuid.UUID { return s.id }

// JobID returns the job the session follows.
func (s *Session) JobID() string { return s.jobID }

// Mode returns the session's current mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Page returns the live page, or nil while waiting.
func (s *Session) Page() *page.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// View snapshots the session for JSON output.
func (s *Session) View() View {
	s.mu.Lock()
	v := View{
		SessionID: s.id,
		JobID:     s.jobID,
		Mode:      s.mode,
		JobStatus: s.jobStatus,
		OpenedAt:  s.opened,
	}
	p := s.page
	s.mu.Unlock()

	if p != nil {
		pv := p.View()
		v.Page = &pv
	}
	return v
}

// Render writes the HTML page. A waiting session renders an empty task
// list; both modes ask the browser to refresh at their poll interval.
func (s *Session) Render(w io.Writer) error {
	s.mu.Lock()
	p := s.page
	refresh := s.refresh
	s.mu.Unlock()

	if p == nil {
		p = page.New(s.jobID, nil)
	}
	return p.Render(w, page.RenderOptions{RefreshSeconds: int(refresh / time.Second)})
}

// rebind binds task keys the reconcile loop learned since the page was built.
// It returns the number of tasks added; a waiting session has none.
func (s *Session) rebind(ctx context.Context) int {
	s.mu.Lock()
	poller := s.poller
	s.mu.Unlock()

	if poller == nil {
		return 0
	}
	return poller.Rebind(ctx)
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// stop halts both loops. Handles are stopped outside the lock because a
// watcher tick may be waiting on it.
func (s *Session) stop() {
	s.mu.Lock()
	if s.mode == ModeClosed {
		s.mu.Unlock()
		return
	}
	s.mode = ModeClosed
	results, watcher := s.results, s.watcher
	s.results, s.watcher = nil, nil
	s.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}
	if results != nil {
		results.Stop()
	}
}
