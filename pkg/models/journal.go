package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DiagnosticUnknownTask = "unknown_task_key"
	DiagnosticTransport   = "transport"
	DiagnosticDecode      = "decode"
)

// Diagnostic records a non-fatal reconciliation failure for a job page.
type Diagnostic struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	JobID     string    `db:"job_id"     json:"job_id"`
	Kind      string    `db:"kind"       json:"kind"`
	TaskKey   *string   `db:"task_key"   json:"task_key,omitempty"`
	Detail    string    `db:"detail"     json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Settlement records the moment a task left the Running state on a page.
// At most one settlement exists per (JobID, UniprotID).
type Settlement struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	JobID     string     `db:"job_id"     json:"job_id"`
	UniprotID string     `db:"uniprot_id" json:"uniprot_id"`
	Status    TaskStatus `db:"status"     json:"status"`
	Percent   float64    `db:"percent"    json:"percent"`
	Indicator string     `db:"indicator"  json:"indicator"`
	SettledAt time.Time  `db:"settled_at" json:"settled_at"`
}
