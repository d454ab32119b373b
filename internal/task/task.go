// Package task holds the scheduling core: a report's frequency policy,
// due-time computation and run state.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nadmax/reportd/internal/logger/tag"
)

type RunStatus string

const (
	StatusRan     RunStatus = "ran"
	StatusSkipped RunStatus = "skipped"
)

// Outcome describes one Execute or RunNow call. Report is nil when the run
// was skipped. Err is the retrieval error, already folded into
// Report.Results.
type Outcome struct {
	Status   RunStatus
	Report   *Report
	Err      error
	Duration time.Duration
}

type Option func(*ScheduledTask)

// WithClock sets the clock used when computing the initial next run.
func WithClock(now func() time.Time) Option {
	return func(t *ScheduledTask) {
		t.clock = now
	}
}

// WithLocation sets the zone that time-of-day schedules and the weekday
// filter are evaluated in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(t *ScheduledTask) {
		if loc != nil {
			t.loc = loc
		}
	}
}

type ScheduledTask struct {
	id     string
	source DataSource
	email  EmailSettings
	hook   Hook
	freq   Frequency

	lastRun    time.Time
	nextRun    time.Time
	executions int

	clock func() time.Time
	loc   *time.Location
}

func NewInterval(id string, source DataSource, email EmailSettings, lastRun time.Time, count int, unit Unit, opts ...Option) (*ScheduledTask, error) {
	def := Definition{ID: id, Source: source, Email: email, Frequency: Every(count, unit)}
	return New(def, lastRun, 0, opts...)
}

func NewTimeOfDay(id string, source DataSource, email EmailSettings, lastRun time.Time, at Clock, opts ...Option) (*ScheduledTask, error) {
	def := Definition{ID: id, Source: source, Email: email, Frequency: DailyAt(at)}
	return New(def, lastRun, 0, opts...)
}

func NewTimeOfDayOnDays(id string, source DataSource, email EmailSettings, lastRun time.Time, at Clock, days Weekdays, opts ...Option) (*ScheduledTask, error) {
	def := Definition{ID: id, Source: source, Email: email, Frequency: Frequency{Mode: TimeOfDay, At: at, Days: days}}
	return New(def, lastRun, 0, opts...)
}

// New builds a task from a definition and the state carried over from a
// previous run. A zero lastRun means the task has never run.
func New(def Definition, lastRun time.Time, executions int, opts ...Option) (*ScheduledTask, error) {
	if strings.TrimSpace(def.ID) == "" {
		return nil, errors.New("task id is required")
	}
	if def.Source == nil {
		return nil, fmt.Errorf("task %s: data source is required", def.ID)
	}
	if def.Frequency.Mode == TimeOfDay && !def.Frequency.At.Valid() {
		return nil, fmt.Errorf("task %s: invalid time of day %02d:%02d:%02d", def.ID,
			def.Frequency.At.Hour, def.Frequency.At.Minute, def.Frequency.At.Second)
	}

	t := &ScheduledTask{
		id:         def.ID,
		source:     def.Source,
		email:      def.Email,
		hook:       def.Hook,
		freq:       def.Frequency,
		lastRun:    lastRun.UTC(),
		executions: max(executions, 0),
		clock:      time.Now,
		loc:        time.Local,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.computeInitialNextRun(t.clock().UTC())
	return t, nil
}

func (t *ScheduledTask) computeInitialNextRun(now time.Time) {
	if t.freq.Mode == TimeOfDay {
		if t.lastRun.IsZero() {
			t.lastRun = t.freq.At.On(now.In(t.loc)).UTC()
		} else {
			prev := t.lastRun.In(t.loc)
			if prev.Hour() != t.freq.At.Hour || prev.Minute() != t.freq.At.Minute {
				t.lastRun = t.freq.At.On(prev).UTC()
				slog.Info("Time of day changed; re-anchoring last run",
					tag.Report(t.id), tag.Time("last_run", t.lastRun))
			}
		}

		prev := t.lastRun.In(t.loc)
		days := 1
		next := t.freq.At.DaysAfter(prev, days)
		cutoff := now.Add(-24 * time.Hour)
		for next.Before(cutoff) {
			days++
			next = t.freq.At.DaysAfter(prev, days)
		}
		t.nextRun = next.UTC()
		return
	}

	if !t.freq.Interval.Valid() {
		slog.Warn("Invalid interval; defaulting to 1 day",
			tag.Report(t.id), slog.Int("interval", t.freq.Interval.Count), slog.String("units", t.freq.Interval.Unit.String()))
		t.freq.Interval = Interval{Count: 1, Unit: Day}
	}

	if t.lastRun.IsZero() {
		t.lastRun = t.freq.Interval.SubtractFrom(now)
		t.nextRun = now
		return
	}
	t.nextRun = t.freq.Interval.AddTo(t.lastRun)
}

func (t *ScheduledTask) IsDue(now time.Time) bool {
	return !t.nextRun.After(now)
}

// ScheduledToday reports whether the weekday filter lets the task run on
// now's local weekday. Interval tasks always pass.
func (t *ScheduledTask) ScheduledToday(now time.Time) bool {
	if t.freq.Mode != TimeOfDay {
		return true
	}
	return t.freq.Days.Allows(now.In(t.loc).Weekday())
}

// Execute runs a due task. A time-of-day task whose weekday filter excludes
// today is skipped: no data is fetched and the execution count is unchanged,
// but last run moves to now. The next run is always recomputed. Execute
// never fails; retrieval errors become ErrorResults.
func (t *ScheduledTask) Execute(ctx context.Context, now time.Time) Outcome {
	now = now.UTC()
	if !t.ScheduledToday(now) {
		t.lastRun = now
		t.advance(now)
		slog.Debug("Report not scheduled today; skipping",
			tag.Report(t.id), slog.String("weekday", now.In(t.loc).Weekday().String()))
		return Outcome{Status: StatusSkipped}
	}

	out := t.run(ctx, now)
	t.advance(now)
	return out
}

// RunNow runs the task regardless of its next run time.
func (t *ScheduledTask) RunNow(ctx context.Context, now time.Time) Outcome {
	now = now.UTC()
	out := t.run(ctx, now)
	t.advance(now)
	return out
}

func (t *ScheduledTask) run(ctx context.Context, now time.Time) Outcome {
	t.executions++
	t.lastRun = now

	start := time.Now()
	results, err := t.fetch(ctx)
	if err != nil {
		slog.Error("Data retrieval failed", tag.Report(t.id), tag.Error(err))
		if results == nil {
			results = ErrorResults(t.id, fmt.Sprintf("Error running report %s: %v", t.id, err))
		}
	}
	if results == nil {
		results = NewResults(t.id)
	}
	if results.ReportName == "" {
		results.ReportName = t.id
	}

	return Outcome{
		Status:   StatusRan,
		Report:   &Report{Results: results, Email: t.email, Hook: t.hook},
		Err:      err,
		Duration: time.Since(start),
	}
}

func (t *ScheduledTask) fetch(ctx context.Context) (results *Results, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("data source panic: %v", r)
		}
	}()
	return t.source.GetData(ctx)
}

func (t *ScheduledTask) advance(now time.Time) {
	if t.freq.Mode == TimeOfDay {
		t.nextRun = t.freq.At.DaysAfter(now.In(t.loc), 1).UTC()
		return
	}
	next := now.AddDate(0, 0, 1)
	if t.freq.Interval.Valid() {
		next = t.freq.Interval.AddTo(now)
	}
	if !next.After(now) {
		slog.Warn("Interval does not move the next run forward; defaulting to 1 day",
			tag.Report(t.id), slog.String("interval", t.freq.Interval.String()))
		next = now.AddDate(0, 0, 1)
	}
	t.nextRun = next
}

func (t *ScheduledTask) ID() string {
	return t.id
}

func (t *ScheduledTask) Frequency() Frequency {
	return t.freq
}

func (t *ScheduledTask) Source() DataSource {
	return t.source
}

func (t *ScheduledTask) Email() EmailSettings {
	return t.email
}

func (t *ScheduledTask) Hook() Hook {
	return t.hook
}

func (t *ScheduledTask) LastRun() time.Time {
	return t.lastRun
}

func (t *ScheduledTask) NextRun() time.Time {
	return t.nextRun
}

func (t *ScheduledTask) ExecutionCount() int {
	return t.executions
}

func (t *ScheduledTask) Location() *time.Location {
	return t.loc
}

// Describe returns the schedule in words, e.g. "every 12 hours".
func (t *ScheduledTask) Describe() string {
	return t.freq.String()
}

func (t *ScheduledTask) RuntimeInfo() RuntimeInfo {
	return RuntimeInfo{
		LastRun:          t.lastRun,
		NextRun:          t.nextRun,
		ExecutionCount:   t.executions,
		SourceType:       t.source.Type(),
		SourceDefinition: t.source.Definition(),
	}
}

func (t *ScheduledTask) Snapshot() Snapshot {
	s := Snapshot{
		ID:               t.id,
		Mode:             t.freq.Mode.String(),
		Schedule:         t.Describe(),
		NextRun:          t.nextRun,
		ExecutionCount:   t.executions,
		SourceType:       t.source.Type(),
		SourceDefinition: t.source.Definition(),
		Recipients:       append([]string(nil), t.email.Recipients...),
		Subject:          t.email.Subject,
	}
	if t.executions > 0 {
		last := t.lastRun
		s.LastRun = &last
	}
	return s
}
