package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/task"
	"github.com/redis/go-redis/v9"
)

const (
	redisRuntimeKey = "reportd:runtime"
	redisRunsKey    = "reportd:runs"
	redisRunsCap    = 1000
)

// RedisRepository keeps one JSON record per report in a hash and the run
// history in a capped list, newest first.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(ctx context.Context, redisAddr string) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRepository{client: client}, nil
}

func (r *RedisRepository) Load(ctx context.Context) (map[string]task.RuntimeInfo, error) {
	entries, err := r.client.HGetAll(ctx, redisRuntimeKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load report runtime: %w", err)
	}

	infos := make(map[string]task.RuntimeInfo, len(entries))
	for name, raw := range entries {
		var rec runtimeRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			slog.Warn("Ignoring unreadable runtime entry", tag.Report(name), tag.Error(err))
			continue
		}
		rec.Name = name
		info, err := rec.info()
		if err != nil {
			slog.Warn("Ignoring unreadable runtime entry", tag.Report(name), tag.Error(err))
			continue
		}
		infos[name] = info
	}
	return infos, nil
}

func (r *RedisRepository) Save(ctx context.Context, infos map[string]task.RuntimeInfo) error {
	if len(infos) == 0 {
		return nil
	}

	fields := make(map[string]any, len(infos))
	for _, rec := range toRecords(infos) {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal report %s: %w", rec.Name, err)
		}
		fields[rec.Name] = data
	}

	if err := r.client.HSet(ctx, redisRuntimeKey, fields).Err(); err != nil {
		return fmt.Errorf("failed to save report runtime: %w", err)
	}
	return nil
}

func (r *RedisRepository) RecordRun(ctx context.Context, run RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, redisRunsKey, data)
		pipe.LTrim(ctx, redisRunsKey, 0, redisRunsCap-1)
		return nil
	})
	return err
}

func (r *RedisRepository) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	raw, err := r.client.LRange(ctx, redisRunsKey, 0, int64(runLimit(limit)-1)).Result()
	if err != nil {
		return nil, err
	}

	runs := make([]RunRecord, 0, len(raw))
	for _, item := range raw {
		var run RunRecord
		if err := json.Unmarshal([]byte(item), &run); err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}
