package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/triage-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS support_emails (
	email_id      INTEGER PRIMARY KEY,
	timestamp     TEXT NOT NULL,
	sender        TEXT NOT NULL,
	subject       TEXT NOT NULL,
	body          TEXT NOT NULL,
	intent_label  TEXT,
	urgency_score INTEGER,
	response      TEXT
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	email_id    INTEGER,
	status      TEXT NOT NULL DEFAULT 'idle',
	stage       TEXT,
	error       TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM support_emails WHERE email_id = ?`, id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: exists %d", id)
	}
	return true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*model.Email, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT email_id, timestamp, sender, subject, body, intent_label, urgency_score, response
		 FROM support_emails WHERE email_id = ?`, id,
	)
	return scanEmail(row)
}

func (s *SQLiteStore) Insert(ctx context.Context, email *model.Email) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO support_emails (email_id, timestamp, sender, subject, body, intent_label, urgency_score, response)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email_id) DO NOTHING`,
		emailArgs(email)...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert email %d", email.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrDuplicateID, "sqlite: insert email %d", email.ID)
	}
	return nil
}

func (s *SQLiteStore) InsertAssigned(ctx context.Context, email *model.Email) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin assign tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var maxID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(email_id), 0) FROM support_emails`,
	).Scan(&maxID); err != nil {
		return 0, eris.Wrap(err, "sqlite: max id")
	}

	id := maxID + 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO support_emails (email_id, timestamp, sender, subject, body)
		 VALUES (?, ?, ?, ?, ?)`,
		id, email.Timestamp, email.Sender, email.Subject, email.Body,
	); err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert assigned %d", id)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit assign tx")
	}
	return id, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, email *model.Email) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO support_emails (email_id, timestamp, sender, subject, body, intent_label, urgency_score, response)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email_id) DO UPDATE SET
			timestamp = excluded.timestamp,
			sender = excluded.sender,
			subject = excluded.subject,
			body = excluded.body,
			intent_label = excluded.intent_label,
			urgency_score = excluded.urgency_score,
			response = excluded.response`,
		emailArgs(email)...,
	)
	return eris.Wrapf(err, "sqlite: upsert email %d", email.ID)
}

func (s *SQLiteStore) UpdateDerived(ctx context.Context, id int64, intent string, urgency int, response string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE support_emails SET intent_label = ?, urgency_score = ?, response = ? WHERE email_id = ?`,
		intent, model.ClampUrgency(urgency), response, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update derived %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrNotFound, "sqlite: update derived %d", id)
	}
	return nil
}

func (s *SQLiteStore) MaxID(ctx context.Context) (int64, error) {
	var maxID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(email_id), 0) FROM support_emails`,
	).Scan(&maxID)
	return maxID, eris.Wrap(err, "sqlite: max id")
}

func (s *SQLiteStore) CountEmails(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM support_emails`,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count emails")
}

func (s *SQLiteStore) BulkInsert(ctx context.Context, emails []model.Email) (int64, error) {
	if len(emails) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin bulk insert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO support_emails (email_id, timestamp, sender, subject, body, intent_label, urgency_score, response)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email_id) DO NOTHING`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare bulk insert")
	}
	defer stmt.Close() //nolint:errcheck

	var inserted int64
	for i := range emails {
		e := &emails[i]
		res, err := stmt.ExecContext(ctx, emailArgs(e)...)
		if err != nil {
			return inserted, eris.Wrapf(err, "sqlite: bulk insert email %d", e.ID)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit bulk insert")
	}
	return inserted, nil
}

func (s *SQLiteStore) StartRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunStatusIdle), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: start run")
	}

	return &model.Run{ID: id, Status: model.RunStatusIdle, StartedAt: now}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, stage model.Stage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, stage = ? WHERE id = ?`,
		string(status), string(stage), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return sqliteRowsAffected(res, runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, stage model.Stage, emailID *int64, runErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, stage = ?, email_id = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), string(stage), emailID, nullIfEmpty(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return sqliteRowsAffected(res, runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email_id, status, stage, error, started_at, finished_at
		 FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var emailID sql.NullInt64
		var stage, errMsg sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &emailID, &r.Status, &stage, &errMsg, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if emailID.Valid {
			r.EmailID = &emailID.Int64
		}
		r.Stage = model.Stage(stage.String)
		r.Error = errMsg.String
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func sqliteRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrNotFound, "run %s", runID)
	}
	return nil
}

// emailArgs returns all eight columns as SQL args with the derived
// fields nullable and urgency clamped at the store boundary.
func emailArgs(e *model.Email) []any {
	var intent, urgency, response any
	if e.IntentLabel != nil {
		intent = *e.IntentLabel
	}
	if e.UrgencyScore != nil {
		urgency = model.ClampUrgency(*e.UrgencyScore)
	}
	if e.Response != nil {
		response = *e.Response
	}
	return []any{e.ID, e.Timestamp, e.Sender, e.Subject, e.Body, intent, urgency, response}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEmail(row scannable) (*model.Email, error) {
	var e model.Email
	var intent, response sql.NullString
	var urgency sql.NullInt64

	err := row.Scan(&e.ID, &e.Timestamp, &e.Sender, &e.Subject, &e.Body, &intent, &urgency, &response)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(model.ErrNotFound, "email")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan email")
	}

	if intent.Valid {
		e.IntentLabel = &intent.String
	}
	if urgency.Valid {
		u := int(urgency.Int64)
		e.UrgencyScore = &u
	}
	if response.Valid {
		e.Response = &response.String
	}
	return &e, nil
}
