package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/task"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS report_runtime (
		report_name       TEXT PRIMARY KEY,
		last_run_utc      TIMESTAMPTZ NULL,
		next_run_utc      TIMESTAMPTZ NULL,
		execution_count   INTEGER NOT NULL DEFAULT 0,
		source_type       TEXT NOT NULL DEFAULT '',
		source_definition TEXT NOT NULL DEFAULT '',
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS report_runs (
		run_id        UUID PRIMARY KEY,
		report_name   TEXT NOT NULL,
		outcome       TEXT NOT NULL,
		started_at    TIMESTAMPTZ NOT NULL,
		duration_ms   BIGINT NOT NULL DEFAULT 0,
		row_count     INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_report_runs_started_at ON report_runs (started_at DESC);
`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(ctx context.Context, connectionString string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	repo := &PostgresRepository{db: db}
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create report tables: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Load(ctx context.Context) (map[string]task.RuntimeInfo, error) {
	query := `
		SELECT report_name, last_run_utc, next_run_utc,
		       execution_count, source_type, source_definition
		FROM report_runtime
		ORDER BY report_name
	`
	rows, err := r.db.QueryContext(ctx, query)
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
		var (
			name             string
			lastRun, nextRun sql.NullTime
			info             task.RuntimeInfo
			sourceType       string
		)
		if err := rows.Scan(&name, &lastRun, &nextRun, &info.ExecutionCount, &sourceType, &info.SourceDefinition); err != nil {
			return nil, err
		}
		if lastRun.Valid {
			info.LastRun = lastRun.Time.UTC()
		}
		if nextRun.Valid {
			info.NextRun = nextRun.Time.UTC()
		}
		info.SourceType = task.SourceType(sourceType)
		infos[name] = info
	}

	return infos, rows.Err()
}

// Save upserts every record in one transaction.
func (r *PostgresRepository) Save(ctx context.Context, infos map[string]task.RuntimeInfo) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
		INSERT INTO report_runtime (
			report_name, last_run_utc, next_run_utc,
			execution_count, source_type, source_definition, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (report_name) DO UPDATE SET
			last_run_utc = EXCLUDED.last_run_utc,
			next_run_utc = EXCLUDED.next_run_utc,
			execution_count = EXCLUDED.execution_count,
			source_type = EXCLUDED.source_type,
			source_definition = EXCLUDED.source_definition,
			updated_at = NOW()
	`

	for _, rec := range toRecords(infos) {
		info := infos[rec.Name]
		if _, err := tx.ExecContext(
			ctx,
			query,
			rec.Name,
			nullableTime(info.LastRun),
			nullableTime(info.NextRun),
			info.ExecutionCount,
			rec.SourceType,
			rec.SourceDefinition,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to save report %s: %w", rec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report runtime: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RecordRun(ctx context.Context, run RunRecord) error {
	query := `
		INSERT INTO report_runs (
			run_id, report_name, outcome, started_at,
			duration_ms, row_count, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		run.ID,
		run.Report,
		run.Outcome,
		run.StartedAt.UTC().Truncate(time.Microsecond),
		run.DurationMs,
		run.Rows,
		nullableString(run.Error),
	)

	return err
}

func (r *PostgresRepository) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, report_name, outcome, started_at,
		       duration_ms, row_count, COALESCE(error_message, '')
		FROM report_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, runLimit(limit))
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
		var run RunRecord
		if err := rows.Scan(
			&run.ID,
			&run.Report,
			&run.Outcome,
			&run.StartedAt,
			&run.DurationMs,
			&run.Rows,
			&run.Error,
		); err != nil {
			return nil, err
		}

		run.StartedAt = run.StartedAt.UTC()
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (r *PostgresRepository) DB() *sql.DB {
	return r.db
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
