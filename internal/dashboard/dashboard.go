// Package dashboard serves summary statistics and run history for the
// status server.
package dashboard

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nadmax/reportd/internal/httputil"
	"github.com/nadmax/reportd/internal/repository"
	"github.com/nadmax/reportd/internal/scheduler"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	historyWindow       = 24 * time.Hour
)

// StatusSource is satisfied by *scheduler.Scheduler.
type StatusSource interface {
	Status() *scheduler.Status
}

type RunSource interface {
	RecentRuns(ctx context.Context, limit int) ([]repository.RunRecord, error)
}

type Dashboard struct {
	status StatusSource
	runs   RunSource
	clock  func() time.Time
}

type Stats struct {
	TotalReports    int            `json:"total_reports"`
	ReportsByMode   map[string]int `json:"reports_by_mode"`
	ReportsBySource map[string]int `json:"reports_by_source"`
	TotalExecutions int            `json:"total_executions"`
	OrphanedReports int            `json:"orphaned_reports"`
	NextReport      string         `json:"next_report,omitempty"`
	NextRun         *time.Time     `json:"next_run_utc,omitempty"`
	DueWithinHour   int            `json:"due_within_hour"`
	StartedAt       time.Time      `json:"started_at"`
	LastUpdated     time.Time      `json:"last_updated"`
}

type RunHistory struct {
	ID        string    `json:"id"`
	Report    string    `json:"report"`
	Outcome   string    `json:"outcome"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Rows      int       `json:"rows"`
	Error     string    `json:"error,omitempty"`
}

func NewDashboard(status StatusSource, runs RunSource) *Dashboard {
	return &Dashboard{status: status, runs: runs, clock: time.Now}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}

	st := d.status.Status()
	now := d.clock().UTC()
	stats := Stats{
		TotalReports:    len(st.Reports),
		ReportsByMode:   make(map[string]int),
		ReportsBySource: make(map[string]int),
		OrphanedReports: len(st.Orphans),
		StartedAt:       st.StartedAt,
		LastUpdated:     st.UpdatedAt,
	}

	horizon := now.Add(time.Hour)
	for _, rep := range st.Reports {
		stats.ReportsByMode[rep.Mode]++
		stats.ReportsBySource[string(rep.SourceType)]++
		stats.TotalExecutions += rep.ExecutionCount

		if !rep.NextRun.After(horizon) {
			stats.DueWithinHour++
		}
		if stats.NextRun == nil || rep.NextRun.Before(*stats.NextRun) {
			next := rep.NextRun
			stats.NextRun = &next
			stats.NextReport = rep.ID
		}
	}

	httputil.WriteJSON(w, http.StatusOK, stats)
}

// GetRecentRuns lists runs from the last 24 hours, newest first. The
// optional limit parameter caps the count.
func (d *Dashboard) GetRecentRuns(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := d.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cutoff := d.clock().Add(-historyWindow)
	history := []RunHistory{}
	for _, run := range runs {
		if run.StartedAt.Before(cutoff) {
			continue
		}
		history = append(history, RunHistory{
			ID:        run.ID,
			Report:    run.Report,
			Outcome:   run.Outcome,
			StartedAt: run.StartedAt,
			Duration:  (time.Duration(run.DurationMs) * time.Millisecond).String(),
			Rows:      run.Rows,
			Error:     run.Error,
		})
	}

	httputil.WriteJSON(w, http.StatusOK, history)
}
