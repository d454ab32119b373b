package task

import "time"

// RuntimeInfo is the persisted projection of a task's scheduling state.
// A zero LastRun means the task has never run.
type RuntimeInfo struct {
	LastRun          time.Time  `json:"last_run_utc"`
	NextRun          time.Time  `json:"next_run_utc"`
	ExecutionCount   int        `json:"execution_count"`
	SourceType       SourceType `json:"source_type"`
	SourceDefinition string     `json:"source_definition"`
}

func (r RuntimeInfo) Equal(o RuntimeInfo) bool {
	return r.LastRun.Equal(o.LastRun) &&
		r.NextRun.Equal(o.NextRun) &&
		r.ExecutionCount == o.ExecutionCount &&
		r.SourceType == o.SourceType &&
		r.SourceDefinition == o.SourceDefinition
}

// Snapshot is a read-only view of a live task for status reporting.
type Snapshot struct {
	ID               string     `json:"id"`
	Mode             string     `json:"mode"`
	Schedule         string     `json:"schedule"`
	LastRun          *time.Time `json:"last_run_utc,omitempty"`
	NextRun          time.Time  `json:"next_run_utc"`
	ExecutionCount   int        `json:"execution_count"`
	SourceType       SourceType `json:"source_type"`
	SourceDefinition string     `json:"source_definition"`
	Recipients       []string   `json:"recipients"`
	Subject          string     `json:"subject"`
}
