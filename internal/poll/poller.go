package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kiranshivaraju/livewatch/internal/page"
	"github.com/kiranshivaraju/livewatch/internal/reconcile"
	"github.com/kiranshivaraju/livewatch/pkg/models"
)

// SnapshotSource fetches the result snapshot for a job.
type SnapshotSource interface {
	Result(ctx context.Context, jobID string) (*models.JobSnapshot, error)
}

// Poller is the reconcile loop body: fetch one snapshot, then apply its
// task results and messages to the page. A failed fetch leaves the page untouched.
//
// Result keys the page has no handle for are remembered until Rebind adds
// them to the page.
type Poller struct {
	source     SnapshotSource
	page       *page.Page
	reconciler *reconcile.Reconciler
	dedup      reconcile.Deduplicator

	mu      sync.Mutex
	unbound []string
	seen    map[string]struct{}
	last    []models.TaskResult
}

// NewPoller binds a page to its snapshot source.
func NewPoller(source SnapshotSource, p *page.Page, r *reconcile.Reconciler) *Poller {
	return &Poller{source: source, page: p, reconciler: r, seen: make(map[string]struct{})}
}

// Tick runs one fetch and reconciliation pass.
func (p *Poller) Tick(ctx context.Context) error {
	jobID := p.reconciler.Config().JobID

	snap, err := p.source.Result(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetching snapshot for job %s: %w", jobID, err)
	}

	p.mu.Lock()
	out := p.reconciler.Reconcile(ctx, p.page, snap.Results)
	appended := p.dedup.Apply(p.page, snap.Messages)
	for _, key := range out.UnknownKeys {
		if _, ok := p.seen[key]; !ok {
			p.seen[key] = struct{}{}
			p.unbound = append(p.unbound, key)
		}
	}
	p.last = snap.Results
	p.mu.Unlock()

	if out.Updated > 0 || out.Settled > 0 || appended > 0 {
		slog.Debug("page reconciled",
			"job_id", jobID,
			"updated", out.Updated,
			"settled", out.Settled,
			"unknown", out.Unknown,
			"messages", appended,
		)
	}
	return nil
}

// Rebind adds a handle for every result key seen since the last rebind and
// replays the latest snapshot so the new handles show their current state.
// It returns the number of handles added.
func (p *Poller) Rebind(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.unbound) == 0 {
		return 0
	}
	added := p.page.Bind(p.unbound)
	p.unbound = nil
	clear(p.seen)
	if added > 0 {
		p.reconciler.Reconcile(ctx, p.page, p.last)
	}
	return added
}

// Page returns the page this poller writes to.
func (p *Poller) Page() *page.Page { return p.page }
