package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   INTEGER NOT NULL,
	strategy     TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	folds        INTEGER NOT NULL,
	scenarios    INTEGER NOT NULL,
	workers      INTEGER NOT NULL,
	total        INTEGER NOT NULL,
	completed    INTEGER NOT NULL,
	failed       INTEGER NOT NULL,
	skipped      INTEGER NOT NULL,
	cancelled    INTEGER NOT NULL,
	wall_seconds REAL NOT NULL,
	report_path  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS task_outcomes (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	task_id      INTEGER NOT NULL,
	fold_id      INTEGER NOT NULL,
	scenario_id  TEXT NOT NULL,
	status       TEXT NOT NULL,
	error        TEXT NOT NULL,
	trades       INTEGER NOT NULL,
	raw_pnl      REAL NOT NULL,
	adjusted_pnl REAL NOT NULL,
	duration_ms  INTEGER NOT NULL,
	PRIMARY KEY (run_id, task_id)
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// ledger tables and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run and all of its task outcomes in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord, tasks []TaskRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, started_at, strategy, symbol, folds, scenarios, workers, total, completed, failed, skipped, cancelled, wall_seconds, report_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.Strategy, run.Symbol, run.Folds, run.Scenarios, run.Workers,
		run.Total, run.Completed, run.Failed, run.Skipped, run.Cancelled, run.WallSeconds, run.ReportPath)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO task_outcomes
		(run_id, task_id, fold_id, scenario_id, status, error, trades, raw_pnl, adjusted_pnl, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing task insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		if _, err := stmt.ExecContext(ctx, run.ID, t.TaskID, t.FoldID, t.ScenarioID, t.Status, t.Error,
			t.Trades, t.RawPnL, t.AdjustedPnL, t.DurationMS); err != nil {
			return fmt.Errorf("inserting task %d: %w", t.TaskID, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, started_at, strategy, symbol, folds, scenarios, workers, total, completed, failed, skipped, cancelled, wall_seconds, report_path
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r  RunRecord
			ms int64
		)
		if err := rows.Scan(&r.ID, &ms, &r.Strategy, &r.Symbol, &r.Folds, &r.Scenarios, &r.Workers,
			&r.Total, &r.Completed, &r.Failed, &r.Skipped, &r.Cancelled, &r.WallSeconds, &r.ReportPath); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt = time.UnixMilli(ms).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TaskOutcomes returns the task rows of a run ordered by task id.
func (s *SQLiteStore) TaskOutcomes(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		task_id, fold_id, scenario_id, status, error, trades, raw_pnl, adjusted_pnl, duration_ms
		FROM task_outcomes WHERE run_id = ? ORDER BY task_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying task outcomes: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var t TaskRecord
		if err := rows.Scan(&t.TaskID, &t.FoldID, &t.ScenarioID, &t.Status, &t.Error,
			&t.Trades, &t.RawPnL, &t.AdjustedPnL, &t.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning task outcome: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
