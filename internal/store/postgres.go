package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/landuse-cli/internal/db"
)

// PostgresStore implements Store on PostgreSQL, next to the PostGIS layers.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres connects to PostgreSQL.
func NewPostgres(ctx context.Context, url string, maxConns int32) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, url, maxConns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool so the PostGIS sink can share it.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS landuse;

CREATE TABLE IF NOT EXISTS landuse.runs (
	id           TEXT PRIMARY KEY,
	location_key TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	result       JSONB,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON landuse.runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_location_key ON landuse.runs(location_key);
`

// Migrate creates the runs table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool when the store opened it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// CreateRun records a new running run for a location.
func (s *PostgresStore) CreateRun(ctx context.Context, locationKey string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO landuse.runs (id, location_key, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, locationKey, string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &Run{ID: id, LocationKey: locationKey, Status: RunStatusRunning, CreatedAt: now, UpdatedAt: now}, nil
}

// CompleteRun stores the result and marks the run complete.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE landuse.runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

// FailRun marks the run failed with the error message.
func (s *PostgresStore) FailRun(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE landuse.runs SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		msg, string(RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

// GetRun returns one run or ErrNotFound.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, location_key, status, result, error, created_at, updated_at FROM landuse.runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, location_key, status, result, error, created_at, updated_at FROM landuse.runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.LocationKey != "" {
		query += fmt.Sprintf(` AND location_key = $%d`, argIdx)
		args = append(args, filter.LocationKey)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgRun(row pgx.Row) (*Run, error) {
	var r Run
	var status string
	var resultJSON []byte
	var errMsg *string

	if err := row.Scan(&r.ID, &r.LocationKey, &status, &resultJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	if errMsg != nil {
		r.Error = *errMsg
	}
	if resultJSON != nil {
		r.Result = &RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}
