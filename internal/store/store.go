// Package store persists support emails and pipeline run audit rows.
// Two backends implement the same interface: SQLite (default) and
// Postgres. All single-record operations are atomic; a reader never
// observes a row with a partial mix of derived fields.
package store

import (
	"context"

	"github.com/sells-group/triage-cli/internal/model"
)

// Store defines the persistence contract for the triage pipeline.
type Store interface {
	// Emails
	Exists(ctx context.Context, id int64) (bool, error)
	Get(ctx context.Context, id int64) (*model.Email, error)
	// Insert creates a new record and fails with model.ErrDuplicateID if
	// the id is already present.
	Insert(ctx context.Context, email *model.Email) error
	// InsertAssigned atomically assigns max(email_id)+1 and inserts the
	// record under that id, returning it. The read-then-write runs in a
	// single transaction so concurrent runs cannot race for an id.
	InsertAssigned(ctx context.Context, email *model.Email) (int64, error)
	// Upsert inserts the record or atomically replaces the existing row.
	Upsert(ctx context.Context, email *model.Email) error
	// UpdateDerived sets intent_label, urgency_score and response on an
	// existing record in one statement. Fails with model.ErrNotFound if
	// no record with that id exists. The urgency score is clamped to the
	// documented range at this boundary.
	UpdateDerived(ctx context.Context, id int64, intent string, urgency int, response string) error
	MaxID(ctx context.Context) (int64, error)
	CountEmails(ctx context.Context) (int64, error)
	// BulkInsert loads many records at once (initial dataset ingestion).
	BulkInsert(ctx context.Context, emails []model.Email) (int64, error)

	// Run audit
	StartRun(ctx context.Context) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, stage model.Stage) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, stage model.Stage, emailID *int64, runErr string) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
