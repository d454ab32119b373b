package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/task"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS report_runtime (
		report_name       TEXT PRIMARY KEY,
		last_run_utc      TEXT NOT NULL DEFAULT '',
		next_run_utc      TEXT NOT NULL DEFAULT '',
		execution_count   INTEGER NOT NULL DEFAULT 0,
		source_type       TEXT NOT NULL DEFAULT '',
		source_definition TEXT NOT NULL DEFAULT '',
		updated_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	);
	CREATE TABLE IF NOT EXISTS report_runs (
		run_id        TEXT PRIMARY KEY,
		report_name   TEXT NOT NULL,
		outcome       TEXT NOT NULL,
		started_at    TEXT NOT NULL,
		duration_ms   INTEGER NOT NULL DEFAULT 0,
		row_count     INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_report_runs_started_at ON report_runs (started_at);
`

// sqliteRunLayout is fixed width so run start times sort as text.
const sqliteRunLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite state store requires a database path")
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create report tables: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Load(ctx context.Context) (map[string]task.RuntimeInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT report_name, last_run_utc, next_run_utc,
		       execution_count, source_type, source_definition
		FROM report_runtime
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load report runtime: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("Failed to close rows", tag.Error(err))
		}
	}()

	infos := make(map[string]task.RuntimeInfo)
	for rows.Next() {
		var rec runtimeRecord
		if err := rows.Scan(&rec.Name, &rec.LastRun, &rec.NextRun, &rec.ExecutionCount, &rec.SourceType, &rec.SourceDefinition); err != nil {
			return nil, err
		}
		info, err := rec.info()
		if err != nil {
			slog.Warn("Ignoring unreadable runtime row", tag.Report(rec.Name), tag.Error(err))
			continue
		}
		infos[rec.Name] = info
	}

	return infos, rows.Err()
}

func (r *SQLiteRepository) Save(ctx context.Context, infos map[string]task.RuntimeInfo) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO report_runtime (
			report_name, last_run_utc, next_run_utc,
			execution_count, source_type, source_definition, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT (report_name) DO UPDATE SET
			last_run_utc = excluded.last_run_utc,
			next_run_utc = excluded.next_run_utc,
			execution_count = excluded.execution_count,
			source_type = excluded.source_type,
			source_definition = excluded.source_definition,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare runtime upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range toRecords(infos) {
		if _, err := stmt.ExecContext(ctx, rec.Name, rec.LastRun, rec.NextRun,
			rec.ExecutionCount, rec.SourceType, rec.SourceDefinition); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to save report %s: %w", rec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report runtime: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO report_runs (
			run_id, report_name, outcome, started_at,
			duration_ms, row_count, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Report, run.Outcome, run.StartedAt.UTC().Format(sqliteRunLayout), run.DurationMs, run.Rows, run.Error)

	return err
}

func (r *SQLiteRepository) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, report_name, outcome, started_at,
		       duration_ms, row_count, error_message
		FROM report_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, runLimit(limit))
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("Failed to close rows", tag.Error(err))
		}
	}()

	runs := []RunRecord{}
	for rows.Next() {
		var (
			run     RunRecord
			started string
		)
		if err := rows.Scan(&run.ID, &run.Report, &run.Outcome, &started, &run.DurationMs, &run.Rows, &run.Error); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(sqliteRunLayout, started); err != nil {
			return nil, fmt.Errorf("run %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
