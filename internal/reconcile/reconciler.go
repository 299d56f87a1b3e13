package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/livewatch/internal/page"
	"github.com/kiranshivaraju/livewatch/pkg/links"
	"github.com/kiranshivaraju/livewatch/pkg/models"
)

// ErrUnknownTaskKey is reported when a snapshot names a task the page was never bootstrapped with.
var ErrUnknownTaskKey = errors.New("unknown task key")

// Recorder receives reconciliation diagnostics and settlements.
// Implementations must not block the reconcile loop for long.
type Recorder interface {
	RecordDiagnostic(ctx context.Context, d models.Diagnostic)
	RecordSettlement(ctx context.Context, s models.Settlement)
}

// Outcome summarizes one reconciliation pass.
type Outcome struct {
	Updated int
	Settled int
	Frozen  int
	Unknown int
	// UnknownKeys lists the skipped keys in snapshot order.
	UnknownKeys []string
}

// Reconciler applies task results to a page.
type Reconciler struct {
	cfg      models.PageConfig
	links    links.LinkBuilder
	recorder Recorder
	now      func() time.Time

	mu       sync.Mutex
	reported map[string]struct{}
}

// NewReconciler creates a Reconciler. A nil recorder discards everything.
func NewReconciler(cfg models.PageConfig, rec Recorder) *Reconciler {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Reconciler{cfg: cfg, recorder: rec, now: time.Now, reported: make(map[string]struct{})}
}

// Config returns the page configuration the reconciler was built with.
func (r *Reconciler) Config() models.PageConfig { return r.cfg }

// Reconcile applies results to p in order. Settled tasks are never touched
// again. An unknown key is skipped without affecting the remaining entries;
// each key is reported as a diagnostic once per Reconciler.
func (r *Reconciler) Reconcile(ctx context.Context, p *page.Page, results []models.TaskResult) Outcome {
	var out Outcome
	for _, res := range results {
		h, ok := p.Task(res.UniprotID)
		if !ok {
			out.Unknown++
			out.UnknownKeys = append(out.UnknownKeys, res.UniprotID)
			r.reportUnknown(ctx, res.UniprotID)
			continue
		}

		if h.Settled() {
			out.Frozen++
			continue
		}

		settledNow := false
		if res.Status != models.TaskStatusRunning {
			settledNow = h.Settle()
		}

		indicator, popover := r.Derive(res)
		if h.Apply(indicator, popover) {
			out.Updated++
		}

		if settledNow {
			out.Settled++
			r.recorder.RecordSettlement(ctx, models.Settlement{
				ID:        uuid.New(),
				JobID:     r.cfg.JobID,
				UniprotID: res.UniprotID,
				Status:    res.Status,
				Percent:   res.Percent,
				Indicator: string(indicator),
				SettledAt: r.now().UTC(),
			})
		}
	}
	return out
}

// Derive computes the indicator and popover markup for one result.
func (r *Reconciler) Derive(res models.TaskResult) (page.Indicator, string) {
	return Classify(res.Percent, r.cfg.PercentThreshold), r.popover(res)
}

// Classify maps a solution percent to an indicator. A percent equal to the
// threshold is a warning.
func Classify(percent, threshold float64) page.Indicator {
	switch {
	case percent <= 0:
		return page.IndicatorNone
	case percent > threshold:
		return page.IndicatorSuccess
	default:
		return page.IndicatorWarning
	}
}

func (r *Reconciler) reportUnknown(ctx context.Context, key string) {
	err := fmt.Errorf("%w: %q", ErrUnknownTaskKey, key)

	r.mu.Lock()
	_, seen := r.reported[key]
	r.reported[key] = struct{}{}
	r.mu.Unlock()
	if seen {
		slog.Debug("skipping result for unknown task", "job_id", r.cfg.JobID, "uniprot_id", key)
		return
	}

	slog.Warn("skipping result for unknown task", "job_id", r.cfg.JobID, "uniprot_id", key, "error", err)

	k := key
	r.recorder.RecordDiagnostic(ctx, models.Diagnostic{
		ID:        uuid.New(),
		JobID:     r.cfg.JobID,
		Kind:      models.DiagnosticUnknownTask,
		TaskKey:   &k,
		Detail:    err.Error(),
		CreatedAt: r.now().UTC(),
	})
}

type nopRecorder struct{}

func (nopRecorder) RecordDiagnostic(context.Context, models.Diagnostic) {}
func (nopRecorder) RecordSettlement(context.Context, models.Settlement) {}
