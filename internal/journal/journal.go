// Package journal persists reconciliation diagnostics and task settlements.
// Writes are best-effort: a failing database is logged and never reaches
// the poll loop.
package journal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/livewatch/internal/reconcile"
	"github.com/kiranshivaraju/livewatch/internal/snapshot"
	"github.com/kiranshivaraju/livewatch/pkg/models"
)

var _ reconcile.Recorder = (*Journal)(nil)

// Writer is the subset of store.Store the journal writes to.
type Writer interface {
	CreateDiagnostic(ctx context.Context, d *models.Diagnostic) error
	CreateSettlement(ctx context.Context, s *models.Settlement) (bool, error)
}

// Journal records to a Writer. A nil writer only logs.
type Journal struct {
	w            Writer
	writeTimeout time.Duration
}

// New creates a Journal.
func New(w Writer) *Journal {
	return &Journal{w: w, writeTimeout: 5 * time.Second}
}

// RecordDiagnostic logs d and stores it.
func (j *Journal) RecordDiagnostic(ctx context.Context, d models.Diagnostic) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	slog.Info("reconcile diagnostic", "job_id", d.JobID, "kind", d.Kind, "detail", d.Detail)

	if j.w == nil {
		return
	}
	ctx, cancel := j.writeContext(ctx)
	defer cancel()
	if err := j.w.CreateDiagnostic(ctx, &d); err != nil {
		slog.Warn("failed to store diagnostic", "job_id", d.JobID, "kind", d.Kind, "error", err)
	}
}

// RecordSettlement logs s and stores it if the task has no settlement yet.
func (j *Journal) RecordSettlement(ctx context.Context, s models.Settlement) {
	slog.Info("task settled",
		"job_id", s.JobID,
		"uniprot_id", s.UniprotID,
		"status", s.Status,
		"indicator", s.Indicator,
	)

	if j.w == nil {
		return
	}
	ctx, cancel := j.writeContext(ctx)
	defer cancel()
	inserted, err := j.w.CreateSettlement(ctx, &s)
	if err != nil {
		slog.Warn("failed to store settlement", "job_id", s.JobID, "uniprot_id", s.UniprotID, "error", err)
		return
	}
	if !inserted {
		slog.Debug("settlement already stored", "job_id", s.JobID, "uniprot_id", s.UniprotID)
	}
}

// RecordFetchError turns a failed poll into a transport or decode diagnostic.
func (j *Journal) RecordFetchError(ctx context.Context, jobID string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	j.RecordDiagnostic(ctx, models.Diagnostic{
		JobID:  jobID,
		Kind:   KindOf(err),
		Detail: err.Error(),
	})
}

// KindOf classifies a fetch error as a diagnostic kind.
func KindOf(err error) string {
	if errors.Is(err, snapshot.ErrDecode) {
		return models.DiagnosticDecode
	}
	return models.DiagnosticTransport
}

// writeContext detaches from ctx cancellation so a stopping loop still
// flushes its last record.
func (j *Journal) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), j.writeTimeout)
}
