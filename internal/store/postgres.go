package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/nexcred/backoffice/internal/db"
	"github.com/nexcred/backoffice/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"insert_job":    `INSERT INTO batch_jobs (id, provider, file_name, identifiers, total, processed, status, error_msg, owner_id, owner_email, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"get_job":       `SELECT id, provider, file_name, identifiers, total, processed, status, error_msg, owner_id, owner_email, created_at FROM batch_jobs WHERE id = $1`,
	"increment_job": `UPDATE batch_jobs SET processed = processed + 1 WHERE id = $1 AND status = 'processing' AND processed < total`,
	"finalize_job":  `UPDATE batch_jobs SET status = $1, error_msg = $2 WHERE id = $3 AND status = 'processing'`,
	"upsert_result": `INSERT INTO result_records (correlation_key, provider, identifier, status, message, balance, raw_payload, received_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (correlation_key) DO UPDATE SET provider = EXCLUDED.provider, identifier = EXCLUDED.identifier, status = EXCLUDED.status, message = EXCLUDED.message, balance = EXCLUDED.balance, raw_payload = EXCLUDED.raw_payload, received_at = EXCLUDED.received_at`,
	"get_result":    `SELECT correlation_key, provider, identifier, status, message, balance, raw_payload, received_at FROM result_records WHERE correlation_key = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batch_jobs (
	id          TEXT PRIMARY KEY,
	provider    TEXT NOT NULL,
	file_name   TEXT NOT NULL DEFAULT '',
	identifiers JSONB NOT NULL,
	total       INTEGER NOT NULL,
	processed   INTEGER NOT NULL DEFAULT 0 CHECK (processed >= 0 AND processed <= total),
	status      TEXT NOT NULL DEFAULT 'processing',
	error_msg   TEXT NOT NULL DEFAULT '',
	owner_id    TEXT NOT NULL,
	owner_email TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_batch_jobs_status ON batch_jobs(status);
CREATE INDEX IF NOT EXISTS idx_batch_jobs_owner ON batch_jobs(owner_id);
CREATE INDEX IF NOT EXISTS idx_batch_jobs_created_at ON batch_jobs(created_at DESC);

CREATE TABLE IF NOT EXISTS result_records (
	correlation_key TEXT PRIMARY KEY,
	provider        TEXT NOT NULL,
	identifier      TEXT NOT NULL,
	status          TEXT NOT NULL,
	message         TEXT NOT NULL DEFAULT '',
	balance         DOUBLE PRECISION,
	raw_payload     BYTEA,
	received_at     TIMESTAMPTZ NOT NULL DEFAULT now()
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
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_activity_log_created_at ON activity_log(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_activity_log_user ON activity_log(user_id);

CREATE TABLE IF NOT EXISTS partner_credentials (
	owner_id   TEXT NOT NULL,
	provider   TEXT NOT NULL,
	fields     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner_id, provider)
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.BatchJob) error {
	identifiersJSON, err := json.Marshal(job.Identifiers)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal identifiers")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO batch_jobs (id, provider, file_name, identifiers, total, processed, status, error_msg, owner_id, owner_email, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, string(job.Provider), job.FileName, identifiersJSON, job.Total, job.Processed,
		string(job.Status), job.ErrorMsg, job.OwnerID, job.OwnerEmail, job.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert job %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.BatchJob, error) {
	var j model.BatchJob
	var identifiersJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, provider, file_name, identifiers, total, processed, status, error_msg, owner_id, owner_email, created_at FROM batch_jobs WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &j.Provider, &j.FileName, &identifiersJSON, &j.Total, &j.Processed,
		&j.Status, &j.ErrorMsg, &j.OwnerID, &j.OwnerEmail, &j.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}

	if err := json.Unmarshal(identifiersJSON, &j.Identifiers); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal identifiers")
	}
	return &j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.BatchJob, error) {
	query := `SELECT id, provider, file_name, identifiers, total, processed, status, error_msg, owner_id, owner_email, created_at FROM batch_jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Provider != "" {
		query += fmt.Sprintf(` AND provider = $%d`, argIdx)
		args = append(args, string(filter.Provider))
		argIdx++
	}
	if filter.OwnerID != "" {
		query += fmt.Sprintf(` AND owner_id = $%d`, argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.BatchJob
	for rows.Next() {
		var j model.BatchJob
		var identifiersJSON []byte

		if err := rows.Scan(&j.ID, &j.Provider, &j.FileName, &identifiersJSON, &j.Total, &j.Processed,
			&j.Status, &j.ErrorMsg, &j.OwnerID, &j.OwnerEmail, &j.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		if err := json.Unmarshal(identifiersJSON, &j.Identifiers); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal identifiers")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) IncrementJobProgress(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batch_jobs SET processed = processed + 1 WHERE id = $1 AND status = 'processing' AND processed < total`,
		jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found, terminal, or already at total: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) FinalizeJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	if status != model.JobStatusCompleted && status != model.JobStatusError {
		return eris.Errorf("postgres: finalize with non-terminal status %q", status)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE batch_jobs SET status = $1, error_msg = $2 WHERE id = $3 AND status = 'processing'`,
		string(status), errMsg, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found or already terminal: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) UpsertResult(ctx context.Context, rec *model.ResultRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO result_records (correlation_key, provider, identifier, status, message, balance, raw_payload, received_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (correlation_key) DO UPDATE SET provider = EXCLUDED.provider, identifier = EXCLUDED.identifier, status = EXCLUDED.status, message = EXCLUDED.message, balance = EXCLUDED.balance, raw_payload = EXCLUDED.raw_payload, received_at = EXCLUDED.received_at`,
		rec.CorrelationKey, string(rec.Provider), rec.Identifier, string(rec.Status),
		rec.Message, rec.Balance, rec.RawPayload, rec.ReceivedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert result %s", rec.CorrelationKey)
	}
	return nil
}

func (s *PostgresStore) GetResult(ctx context.Context, correlationKey string) (*model.ResultRecord, error) {
	var r model.ResultRecord
	err := s.pool.QueryRow(ctx,
		`SELECT correlation_key, provider, identifier, status, message, balance, raw_payload, received_at FROM result_records WHERE correlation_key = $1`,
		correlationKey,
	).Scan(&r.CorrelationKey, &r.Provider, &r.Identifier, &r.Status, &r.Message, &r.Balance, &r.RawPayload, &r.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get result %s", correlationKey)
	}
	return &r, nil
}

func (s *PostgresStore) GetResults(ctx context.Context, correlationKeys []string) (map[string]model.ResultRecord, error) {
	if len(correlationKeys) == 0 {
		return map[string]model.ResultRecord{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT correlation_key, provider, identifier, status, message, balance, raw_payload, received_at FROM result_records WHERE correlation_key = ANY($1)`,
		correlationKeys,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get results")
	}
	defer rows.Close()

	results := make(map[string]model.ResultRecord)
	for rows.Next() {
		var r model.ResultRecord
		if err := rows.Scan(&r.CorrelationKey, &r.Provider, &r.Identifier, &r.Status, &r.Message, &r.Balance, &r.RawPayload, &r.ReceivedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		results[r.CorrelationKey] = r
	}
	return results, eris.Wrap(rows.Err(), "postgres: get results iterate")
}

func (s *PostgresStore) AppendActivity(ctx context.Context, entry *model.ActivityLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO activity_log (id, user_id, user_email, action, identifier, provider, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.UserID, entry.UserEmail, entry.Action, entry.Identifier, string(entry.Provider), entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: append activity")
	}
	return nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, limit int) ([]model.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, user_email, action, identifier, provider, detail, created_at FROM activity_log ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list activity")
	}
	defer rows.Close()

	var entries []model.ActivityLogEntry
	for rows.Next() {
		var e model.ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action, &e.Identifier, &e.Provider, &e.Detail, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list activity iterate")
}

func (s *PostgresStore) GetCredentials(ctx context.Context, ownerID string, provider model.Provider) (*model.PartnerCredentials, error) {
	var c model.PartnerCredentials
	var fieldsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT owner_id, provider, fields, updated_at FROM partner_credentials WHERE owner_id = $1 AND provider = $2`,
		ownerID, string(provider),
	).Scan(&c.OwnerID, &c.Provider, &fieldsJSON, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get credentials %s/%s", ownerID, provider)
	}

	if err := json.Unmarshal(fieldsJSON, &c.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal credential fields")
	}
	return &c, nil
}

func (s *PostgresStore) PutCredentials(ctx context.Context, creds *model.PartnerCredentials) error {
	fieldsJSON, err := json.Marshal(creds.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal credential fields")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO partner_credentials (owner_id, provider, fields, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (owner_id, provider) DO UPDATE SET fields = EXCLUDED.fields, updated_at = EXCLUDED.updated_at`,
		creds.OwnerID, string(creds.Provider), fieldsJSON, creds.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: put credentials %s/%s", creds.OwnerID, creds.Provider)
	}
	return nil
}
