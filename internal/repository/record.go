package repository

import (
	"fmt"
	"slices"
	"time"

	"github.com/nadmax/reportd/internal/task"
)

// runtimeRecord is the serialized shape of one report's state. Times are
// RFC 3339 in UTC; an empty string means never.
type runtimeRecord struct {
	Name             string `json:"name"`
	LastRun          string `json:"last_run_utc"`
	NextRun          string `json:"next_run_utc"`
	ExecutionCount   int    `json:"execution_count"`
	SourceType       string `json:"source_type"`
	SourceDefinition string `json:"source_definition"`
}

func toRecord(name string, info task.RuntimeInfo) runtimeRecord {
	return runtimeRecord{
		Name:             name,
		LastRun:          formatTime(info.LastRun),
		NextRun:          formatTime(info.NextRun),
		ExecutionCount:   info.ExecutionCount,
		SourceType:       string(info.SourceType),
		SourceDefinition: info.SourceDefinition,
	}
}

func (r runtimeRecord) info() (task.RuntimeInfo, error) {
	last, err := parseTime(r.LastRun)
	if err != nil {
		return task.RuntimeInfo{}, fmt.Errorf("report %s: last run: %w", r.Name, err)
	}
	next, err := parseTime(r.NextRun)
	if err != nil {
		return task.RuntimeInfo{}, fmt.Errorf("report %s: next run: %w", r.Name, err)
	}

	return task.RuntimeInfo{
		LastRun:          last,
		NextRun:          next,
		ExecutionCount:   max(r.ExecutionCount, 0),
		SourceType:       task.SourceType(r.SourceType),
		SourceDefinition: r.SourceDefinition,
	}, nil
}

// toRecords returns the records sorted by report name.
func toRecords(infos map[string]task.RuntimeInfo) []runtimeRecord {
	names := make([]string, 0, len(infos))
	for name := range infos {
		names = append(names, name)
	}
	slices.Sort(names)

	records := make([]runtimeRecord, 0, len(names))
	for _, name := range names {
		records = append(records, toRecord(name, infos[name]))
	}
	return records
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// nullableTime rounds down to microseconds, the precision of TIMESTAMPTZ,
// so a saved value loads back unchanged.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Truncate(time.Microsecond)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const defaultRunLimit = 50

func runLimit(limit int) int {
	if limit <= 0 {
		return defaultRunLimit
	}
	return limit
}
