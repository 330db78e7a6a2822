package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/nexcred/backoffice/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for local
// development and for behavior tests that need a real database without a
// postgres instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batch_jobs (
	id          TEXT PRIMARY KEY,
	provider    TEXT NOT NULL,
	file_name   TEXT NOT NULL DEFAULT '',
	identifiers TEXT NOT NULL,
	total       INTEGER NOT NULL,
	processed   INTEGER NOT NULL DEFAULT 0 CHECK (processed >= 0 AND processed <= total),
	status      TEXT NOT NULL DEFAULT 'processing',
	error_msg   TEXT NOT NULL DEFAULT '',
	owner_id    TEXT NOT NULL,
	owner_email TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_batch_jobs_status ON batch_jobs(status);
CREATE INDEX IF NOT EXISTS idx_batch_jobs_owner ON batch_jobs(owner_id);

CREATE TABLE IF NOT EXISTS result_records (
	correlation_key TEXT PRIMARY KEY,
	provider        TEXT NOT NULL,
	identifier      TEXT NOT NULL,
	status          TEXT NOT NULL,
	message         TEXT NOT NULL DEFAULT '',
	balance         REAL,
	raw_payload     BLOB,
	received_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_result_records_identifier ON result_records(identifier);

CREATE TABLE IF NOT EXISTS activity_log (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	user_email TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL,
	identifier TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS partner_credentials (
	owner_id   TEXT NOT NULL,
	provider   TEXT NOT NULL,
	fields     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (owner_id, provider)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.BatchJob) error {
	identifiersJSON, err := json.Marshal(job.Identifiers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal identifiers")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batch_jobs (id, provider, file_name, identifiers, total, processed, status, error_msg, owner_id, owner_email, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Provider), job.FileName, string(identifiersJSON), job.Total, job.Processed,
		string(job.Status), job.ErrorMsg, job.OwnerID, job.OwnerEmail, job.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert job %s", job.ID)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.BatchJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, provider, file_name, identifiers, total, processed, status, error_msg, owner_id, owner_email, created_at FROM batch_jobs WHERE id = ?`,
		jobID,
	)
	return scanJob(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.BatchJob, error) {
	var j model.BatchJob
	var identifiersJSON string

	err := row.Scan(&j.ID, &j.Provider, &j.FileName, &identifiersJSON, &j.Total, &j.Processed,
		&j.Status, &j.ErrorMsg, &j.OwnerID, &j.OwnerEmail, &j.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	if err := json.Unmarshal([]byte(identifiersJSON), &j.Identifiers); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal identifiers")
	}
	return &j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.BatchJob, error) {
	query := `SELECT id, provider, file_name, identifiers, total, processed, status, error_msg, owner_id, owner_email, created_at FROM batch_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, string(filter.Provider))
	}
	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.BatchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) IncrementJobProgress(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_jobs SET processed = processed + 1 WHERE id = ? AND status = 'processing' AND processed < total`,
		jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment job %s", jobID)
	}
	return checkRowsAffected(res, "job not found, terminal, or already at total", jobID)
}

func (s *SQLiteStore) FinalizeJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	if status != model.JobStatusCompleted && status != model.JobStatusError {
		return eris.Errorf("sqlite: finalize with non-terminal status %q", status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_jobs SET status = ?, error_msg = ? WHERE id = ? AND status = 'processing'`,
		string(status), errMsg, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize job %s", jobID)
	}
	return checkRowsAffected(res, "job not found or already terminal", jobID)
}

func checkRowsAffected(res sql.Result, msg, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s: %s", msg, id)
	}
	return nil
}

func (s *SQLiteStore) UpsertResult(ctx context.Context, rec *model.ResultRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO result_records (correlation_key, provider, identifier, status, message, balance, raw_payload, received_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (correlation_key) DO UPDATE SET provider = excluded.provider, identifier = excluded.identifier, status = excluded.status, message = excluded.message, balance = excluded.balance, raw_payload = excluded.raw_payload, received_at = excluded.received_at`,
		rec.CorrelationKey, string(rec.Provider), rec.Identifier, string(rec.Status),
		rec.Message, rec.Balance, rec.RawPayload, rec.ReceivedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert result %s", rec.CorrelationKey)
	}
	return nil
}

func (s *SQLiteStore) GetResult(ctx context.Context, correlationKey string) (*model.ResultRecord, error) {
	var r model.ResultRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT correlation_key, provider, identifier, status, message, balance, raw_payload, received_at FROM result_records WHERE correlation_key = ?`,
		correlationKey,
	).Scan(&r.CorrelationKey, &r.Provider, &r.Identifier, &r.Status, &r.Message, &r.Balance, &r.RawPayload, &r.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get result %s", correlationKey)
	}
	return &r, nil
}

func (s *SQLiteStore) GetResults(ctx context.Context, correlationKeys []string) (map[string]model.ResultRecord, error) {
	if len(correlationKeys) == 0 {
		return map[string]model.ResultRecord{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(correlationKeys)), ",")
	args := make([]any, len(correlationKeys))
	for i, k := range correlationKeys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT correlation_key, provider, identifier, status, message, balance, raw_payload, received_at FROM result_records WHERE correlation_key IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get results")
	}
	defer rows.Close()

	results := make(map[string]model.ResultRecord)
	for rows.Next() {
		var r model.ResultRecord
		if err := rows.Scan(&r.CorrelationKey, &r.Provider, &r.Identifier, &r.Status, &r.Message, &r.Balance, &r.RawPayload, &r.ReceivedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		results[r.CorrelationKey] = r
	}
	return results, eris.Wrap(rows.Err(), "sqlite: get results iterate")
}

func (s *SQLiteStore) AppendActivity(ctx context.Context, entry *model.ActivityLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log (id, user_id, user_email, action, identifier, provider, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.UserEmail, entry.Action, entry.Identifier, string(entry.Provider), entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: append activity")
	}
	return nil
}

func (s *SQLiteStore) ListActivity(ctx context.Context, limit int) ([]model.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, user_email, action, identifier, provider, detail, created_at FROM activity_log ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activity")
	}
	defer rows.Close()

	var entries []model.ActivityLogEntry
	for rows.Next() {
		var e model.ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action, &e.Identifier, &e.Provider, &e.Detail, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list activity iterate")
}

func (s *SQLiteStore) GetCredentials(ctx context.Context, ownerID string, provider model.Provider) (*model.PartnerCredentials, error) {
	var c model.PartnerCredentials
	var fieldsJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id, provider, fields, updated_at FROM partner_credentials WHERE owner_id = ? AND provider = ?`,
		ownerID, string(provider),
	).Scan(&c.OwnerID, &c.Provider, &fieldsJSON, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get credentials %s/%s", ownerID, provider)
	}

	if err := json.Unmarshal([]byte(fieldsJSON), &c.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal credential fields")
	}
	return &c, nil
}

func (s *SQLiteStore) PutCredentials(ctx context.Context, creds *model.PartnerCredentials) error {
	fieldsJSON, err := json.Marshal(creds.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal credential fields")
	}

	updatedAt := creds.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO partner_credentials (owner_id, provider, fields, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT (owner_id, provider) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
		creds.OwnerID, string(creds.Provider), string(fieldsJSON), updatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: put credentials %s/%s", creds.OwnerID, creds.Provider)
	}
	return nil
}
