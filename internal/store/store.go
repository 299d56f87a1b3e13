package store

import (
	"context"
	"errors"
	"time"

	"github.com/kiranshivaraju/livewatch/pkg/models"
)

// MaxPage is the highest diagnostics page ListDiagnostics serves.
const MaxPage = 10000

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateDiagnostic(ctx context.Context, d *models.Diagnostic) error
	ListDiagnostics(ctx context.Context, filter DiagnosticFilter) ([]*models.Diagnostic, int, error)

	// CreateSettlement stores the first settlement of a task. It reports
	// false when the task already has one; the stored row is never replaced.
	CreateSettlement(ctx context.Context, s *models.Settlement) (bool, error)
	ListSettlements(ctx context.Context, jobID string) ([]*models.Settlement, error)
	GetSettlement(ctx context.Context, jobID, uniprotID string) (*models.Settlement, error)
}

type DiagnosticFilter struct {
	JobID string
	Kind  string
	Since time.Time
	Page  int
	Limit int
}
