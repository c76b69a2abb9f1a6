package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/triage-cli/internal/db"
	"github.com/sells-group/triage-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// preparedStatements lists queries to prepare on each new connection for
// the hot path of a pipeline run.
var preparedStatements = map[string]string{
	"email_exists": `SELECT 1 FROM support_emails WHERE email_id = $1`,
	"email_get": `SELECT email_id, timestamp, sender, subject, body, intent_label, urgency_score, response
		FROM support_emails WHERE email_id = $1`,
	"email_update_derived": `UPDATE support_emails SET intent_label = $1, urgency_score = $2, response = $3
		WHERE email_id = $4`,
	"email_max_id": `SELECT COALESCE(MAX(email_id), 0) FROM support_emails`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS support_emails (
	email_id      BIGINT PRIMARY KEY,
	timestamp     TEXT NOT NULL,
	sender        TEXT NOT NULL,
	subject       TEXT NOT NULL,
	body          TEXT NOT NULL,
	intent_label  TEXT,
	urgency_score INT,
	response      TEXT
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	email_id    BIGINT,
	status      TEXT NOT NULL DEFAULT 'idle',
	stage       TEXT,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM support_emails WHERE email_id = $1`, id,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: exists %d", id)
	}
	return true, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*model.Email, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT email_id, timestamp, sender, subject, body, intent_label, urgency_score, response
		 FROM support_emails WHERE email_id = $1`, id,
	)
	e, err := scanEmailPg(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get email %d", id)
	}
	return e, nil
}

func (s *PostgresStore) Insert(ctx context.Context, email *model.Email) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO support_emails (email_id, timestamp, sender, subject, body, intent_label, urgency_score, response)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (email_id) DO NOTHING`,
		emailArgs(email)...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert email %d", email.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrDuplicateID, "postgres: insert email %d", email.ID)
	}
	return nil
}

func (s *PostgresStore) InsertAssigned(ctx context.Context, email *model.Email) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin assign tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Advisory lock serializes the max+insert critical section across
	// concurrent runs; released automatically at commit/rollback.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('support_emails_assign'))`); err != nil {
		return 0, eris.Wrap(err, "postgres: assign lock")
	}

	var id int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(email_id), 0) + 1 FROM support_emails`,
	).Scan(&id); err != nil {
		return 0, eris.Wrap(err, "postgres: next id")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO support_emails (email_id, timestamp, sender, subject, body)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, email.Timestamp, email.Sender, email.Subject, email.Body,
	); err != nil {
		return 0, eris.Wrapf(err, "postgres: insert assigned %d", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit assign tx")
	}
	return id, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, email *model.Email) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO support_emails (email_id, timestamp, sender, subject, body, intent_label, urgency_score, response)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (email_id) DO UPDATE SET
			timestamp = EXCLUDED.timestamp,
			sender = EXCLUDED.sender,
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			intent_label = EXCLUDED.intent_label,
			urgency_score = EXCLUDED.urgency_score,
			response = EXCLUDED.response`,
		emailArgs(email)...,
	)
	return eris.Wrapf(err, "postgres: upsert email %d", email.ID)
}

func (s *PostgresStore) UpdateDerived(ctx context.Context, id int64, intent string, urgency int, response string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE support_emails SET intent_label = $1, urgency_score = $2, response = $3 WHERE email_id = $4`,
		intent, model.ClampUrgency(urgency), response, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update derived %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "postgres: update derived %d", id)
	}
	return nil
}

func (s *PostgresStore) MaxID(ctx context.Context) (int64, error) {
	var maxID int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(email_id), 0) FROM support_emails`,
	).Scan(&maxID)
	return maxID, eris.Wrap(err, "postgres: max id")
}

func (s *PostgresStore) CountEmails(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM support_emails`,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count emails")
}

func (s *PostgresStore) BulkInsert(ctx context.Context, emails []model.Email) (int64, error) {
	if len(emails) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(emails))
	for i := range emails {
		rows = append(rows, emailArgs(&emails[i]))
	}

	columns := []string{"email_id", "timestamp", "sender", "subject", "body", "intent_label", "urgency_score", "response"}
	n, err := db.CopyFrom(ctx, s.pool, "support_emails", columns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk insert")
	}
	return n, nil
}

func (s *PostgresStore) StartRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, status, started_at) VALUES ($1, $2, $3)`,
		id, string(model.RunStatusIdle), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: start run")
	}

	return &model.Run{ID: id, Status: model.RunStatusIdle, StartedAt: now}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, stage model.Stage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, stage = $2 WHERE id = $3`,
		string(status), string(stage), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, stage model.Stage, emailID *int64, runErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, stage = $2, email_id = $3, error = $4, finished_at = $5 WHERE id = $6`,
		string(status), string(stage), emailID, nullIfEmpty(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, email_id, status, stage, error, started_at, finished_at
		 FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var emailID *int64
		var stage, errMsg *string
		var finished *time.Time
		if err := rows.Scan(&r.ID, &emailID, &r.Status, &stage, &errMsg, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.EmailID = emailID
		if stage != nil {
			r.Stage = model.Stage(*stage)
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		r.FinishedAt = finished
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanEmailPg(row pgx.Row) (*model.Email, error) {
	var e model.Email
	var intent, response *string
	var urgency *int

	err := row.Scan(&e.ID, &e.Timestamp, &e.Sender, &e.Subject, &e.Body, &intent, &urgency, &response)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	e.IntentLabel = intent
	e.UrgencyScore = urgency
	e.Response = response
	return &e, nil
}
