package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/livewatch/pkg/models"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Diagnostics ---

func (s *PostgresStore) CreateDiagnostic(ctx context.Context, d *models.Diagnostic) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO diagnostics (id, job_id, kind, task_key, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.JobID, d.Kind, d.TaskKey, d.Detail, d.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: diagnostic %s", ErrDuplicateKey, d.ID)
		}
		return fmt.Errorf("create diagnostic: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDiagnostics(ctx context.Context, filter DiagnosticFilter) ([]*models.Diagnostic, int, error) {
	conditions := []string{"job_id = $1"}
	args := []any{filter.JobID}
	argIdx := 2

	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, filter.Kind)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM diagnostics WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count diagnostics: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT id, job_id, kind, task_key, detail, created_at
		 FROM diagnostics WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list diagnostics: %w", err)
	}
	defer rows.Close()

	var out []*models.Diagnostic
	for rows.Next() {
		var d models.Diagnostic
		if err := rows.Scan(&d.ID, &d.JobID, &d.Kind, &d.TaskKey, &d.Detail, &d.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan diagnostic: %w", err)
		}
		out = append(out, &d)
	}
	return out, total, rows.Err()
}

// --- Settlements ---

func (s *PostgresStore) CreateSettlement(ctx context.Context, st *models.Settlement) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO settlements (id, job_id, uniprot_id, status, percent, indicator, settled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (job_id, uniprot_id) DO NOTHING`,
		st.ID, st.JobID, st.UniprotID, string(st.Status), st.Percent, st.Indicator, st.SettledAt)
	if err != nil {
		return false, fmt.Errorf("create settlement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListSettlements(ctx context.Context, jobID string) ([]*models.Settlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, uniprot_id, status, percent, indicator, settled_at
		 FROM settlements WHERE job_id = $1 ORDER BY settled_at, uniprot_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []*models.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSettlement(ctx context.Context, jobID, uniprotID string) (*models.Settlement, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, job_id, uniprot_id, status, percent, indicator, settled_at
		 FROM settlements WHERE job_id = $1 AND uniprot_id = $2`, jobID, uniprotID)
	st, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return st, err
}

func scanSettlement(row pgx.Row) (*models.Settlement, error) {
	var st models.Settlement
	var status string
	if err := row.Scan(&st.ID, &st.JobID, &st.UniprotID, &status, &st.Percent, &st.Indicator, &st.SettledAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan settlement: %w", err)
	}
	st.Status = models.TaskStatus(status)
	return &st, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
