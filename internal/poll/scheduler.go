// Package poll runs the repeating fetch loops behind a live job page.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrDone ends a loop from inside a tick. Run returns nil when it sees it.
var ErrDone = errors.New("poll loop done")

// TickFunc performs one poll. A non-nil error other than ErrDone is logged
// and the loop keeps going; the next tick is the retry.
type TickFunc func(ctx context.Context) error

// Scheduler calls a TickFunc immediately and then once per interval.
// Ticks never overlap: the timer is armed only after a tick returns.
type Scheduler struct {
	name     string
	interval time.Duration
	delay    time.Duration
	tick     TickFunc
}

// NewScheduler creates a scheduler. A non-positive interval defaults to one second.
func NewScheduler(name string, interval time.Duration, tick TickFunc) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{name: name, interval: interval, tick: tick}
}

// Delayed postpones the first tick by d instead of running it immediately.
func (s *Scheduler) Delayed(d time.Duration) *Scheduler {
	if d > 0 {
		s.delay = d
	}
	return s
}

// Run blocks until ctx is cancelled or a tick returns ErrDone.
// The first tick runs right away unless Delayed was set.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Debug("poll loop starting", "loop", s.name, "interval", s.interval.String())

	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("poll loop stopping", "loop", s.name, "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-timer.C:
			err := s.tick(ctx)
			if errors.Is(err, ErrDone) {
				slog.Debug("poll loop finished", "loop", s.name)
				return nil
			}
			if err != nil && ctx.Err() == nil {
				slog.Warn("poll tick failed", "loop", s.name, "error", err)
			}
			timer.Reset(s.interval)
		}
	}
}

// Start runs the scheduler in its own goroutine and returns its stop handle.
func (s *Scheduler) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.err = s.Run(ctx)
	}()
	return h
}

// Handle controls a running scheduler.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// Stop cancels the loop and waits for the in-flight tick to return.
// Safe to call more than once and from several goroutines.
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the loop's exit error. Valid after Done is closed.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}
