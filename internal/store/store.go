// internal/store/store.go
// Package store persists run reports in PostgreSQL so results from many runs can be queried
// together.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kwdriver/internal/execution"
	"github.com/xkilldash9x/kwdriver/internal/reporting"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the tables SaveRun writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS kw_runs (
    id          TEXT PRIMARY KEY,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    passed      INTEGER NOT NULL,
    failed      INTEGER NOT NULL,
    events      JSONB NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS kw_scripts (
    run_id      TEXT NOT NULL REFERENCES kw_runs(id) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    name        TEXT NOT NULL,
    test_case   TEXT NOT NULL DEFAULT '',
    passed      BOOLEAN NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_id, position)
);
CREATE TABLE IF NOT EXISTS kw_steps (
    run_id      TEXT NOT NULL,
    script_pos  INTEGER NOT NULL,
    step_index  INTEGER NOT NULL,
    keyword     TEXT NOT NULL,
    channel     TEXT NOT NULL,
    succeeded   BOOLEAN NOT NULL,
    value       TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    kind        TEXT NOT NULL DEFAULT '',
    elapsed_ns  BIGINT NOT NULL,
    PRIMARY KEY (run_id, script_pos, step_index),
    FOREIGN KEY (run_id, script_pos) REFERENCES kw_scripts(run_id, position) ON DELETE CASCADE
);
`

const (
	sqlInsertRun = `
        INSERT INTO kw_runs (id, started_at, finished_at, passed, failed, events)
        VALUES ($1, $2, $3, $4, $5, $6)`
	sqlInsertScript = `
        INSERT INTO kw_scripts (run_id, position, name, test_case, passed, error, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	sqlInsertStep = `
        INSERT INTO kw_steps (run_id, script_pos, step_index, keyword, channel, succeeded, value, error, kind, elapsed_ns)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	sqlSelectScripts = `
        SELECT position, name, test_case, passed, error, started_at, finished_at
        FROM kw_scripts
        WHERE run_id = $1
        ORDER BY position ASC`
	sqlSelectSteps = `
        SELECT script_pos, step_index, keyword, channel, succeeded, value, error, kind, elapsed_ns
        FROM kw_steps
        WHERE run_id = $1
        ORDER BY script_pos ASC, step_index ASC`
)

// Store writes run reports to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SaveRun writes run, its scripts and their steps in one transaction.
func (s *Store) SaveRun(ctx context.Context, run reporting.Run) error {
	events := run.Events
	if events == nil {
		events = []execution.Event{}
	}
	encoded, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports ErrTxClosed, which is expected.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlInsertRun,
		run.ID, run.Started.UTC(), run.Finished.UTC(), run.Passed, run.Failed, encoded); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	for pos, script := range run.Scripts {
		if _, err := tx.Exec(ctx, sqlInsertScript,
			run.ID, pos, script.Name, script.TestCase, script.Passed, script.Error,
			script.Started.UTC(), script.Finished.UTC()); err != nil {
			return fmt.Errorf("failed to insert script %q: %w", script.Name, err)
		}
		for _, step := range script.Steps {
			if _, err := tx.Exec(ctx, sqlInsertStep,
				run.ID, pos, step.Index, step.Keyword, step.Channel.String(), step.Succeeded,
				step.Value, step.Error, step.Kind, int64(step.Elapsed)); err != nil {
				return fmt.Errorf("failed to insert step %d of script %q: %w", step.Index, script.Name, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run persisted.", zap.String("run_id", run.ID), zap.Int("scripts", len(run.Scripts)))
	return nil
}

// ScriptResults loads the scripts of a stored run with their steps, in run order.
func (s *Store) ScriptResults(ctx context.Context, runID string) ([]reporting.ScriptResult, error) {
	rows, err := s.pool.Query(ctx, sqlSelectScripts, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scripts: %w", err)
	}
	var (
		scripts []reporting.ScriptResult
		byPos   = make(map[int]int)
	)
	for rows.Next() {
		var (
			pos int
			r   reporting.ScriptResult
		)
		if err := rows.Scan(&pos, &r.Name, &r.TestCase, &r.Passed, &r.Error, &r.Started, &r.Finished); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan script row: %w", err)
		}
		byPos[pos] = len(scripts)
		scripts = append(scripts, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during script iteration: %w", err)
	}

	steps, err := s.pool.Query(ctx, sqlSelectSteps, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer steps.Close()
	for steps.Next() {
		var (
			pos     int
			channel string
			elapsed int64
			st      reporting.StepResult
		)
		if err := steps.Scan(&pos, &st.Index, &st.Keyword, &channel, &st.Succeeded,
			&st.Value, &st.Error, &st.Kind, &elapsed); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		i, ok := byPos[pos]
		if !ok {
			return nil, fmt.Errorf("step %d references unknown script position %d", st.Index, pos)
		}
		if st.Channel, err = execution.ParseChannel(channel); err != nil {
			return nil, fmt.Errorf("step %d: %w", st.Index, err)
		}
		st.Elapsed = time.Duration(elapsed)
		scripts[i].Steps = append(scripts[i].Steps, st)
	}
	if err := steps.Err(); err != nil {
		return nil, fmt.Errorf("error during step iteration: %w", err)
	}
	return scripts, nil
}
