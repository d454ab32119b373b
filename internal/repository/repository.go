// Package repository persists report runtime state and run history.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nadmax/reportd/internal/task"
)

var ErrUnknownDriver = errors.New("unknown state driver")

const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
)

// Repository stores one RuntimeInfo record per report name. Save upserts
// the given records; the file store rewrites its document, the database
// stores leave records for names not in the set untouched.
type Repository interface {
	Load(ctx context.Context) (map[string]task.RuntimeInfo, error)
	Save(ctx context.Context, infos map[string]task.RuntimeInfo) error
	RecordRun(ctx context.Context, run RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

type RunRecord struct {
	ID         string    `json:"id"`
	Report     string    `json:"report"`
	Outcome    string    `json:"outcome"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Rows       int       `json:"rows"`
	Error      string    `json:"error,omitempty"`
}

type Config struct {
	Driver    string
	Path      string
	DSN       string
	RedisAddr string
}

// Open connects the configured backend. An empty driver selects the file
// store.
func Open(ctx context.Context, cfg Config) (Repository, error) {
	switch cfg.Driver {
	case "", DriverFile:
		return NewFileRepository(cfg.Path), nil
	case DriverPostgres:
		return NewPostgresRepository(ctx, cfg.DSN)
	case DriverSQLite:
		path := cfg.DSN
		if path == "" {
			path = cfg.Path
		}
		return NewSQLiteRepository(ctx, path)
	case DriverRedis:
		return NewRedisRepository(ctx, cfg.RedisAddr)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
