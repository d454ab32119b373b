// Package scheduler drives the report loop: reload definitions when they
// change, execute due reports, deliver their results and persist runtime
// state.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/metrics"
	"github.com/nadmax/reportd/internal/registry"
	"github.com/nadmax/reportd/internal/repository"
	"github.com/nadmax/reportd/internal/task"
)

const (
	DefaultTickInterval    = time.Second
	DefaultSweepInterval   = 15 * time.Second
	DefaultPersistInterval = 15 * time.Minute

	// shutdownTimeout bounds the final save once the run context is gone.
	shutdownTimeout = 30 * time.Second
)

type Config struct {
	TickInterval    time.Duration
	SweepInterval   time.Duration
	PersistInterval time.Duration
	// MaxRuntime stops the loop after this long; zero runs until cancelled.
	MaxRuntime time.Duration
	// RunOnce runs every report scheduled for today once, then returns.
	RunOnce bool
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.PersistInterval <= 0 {
		c.PersistInterval = DefaultPersistInterval
	}
	return c
}

// Loader returns the current report definitions. firstLoad is true only for
// the load at startup.
type Loader func(ctx context.Context, firstLoad bool) ([]task.Definition, error)

type Notifier interface {
	Notify(ctx context.Context, report task.Report) error
}

// ChangeSignal reports, and clears, a pending definitions change.
type ChangeSignal interface {
	Changed() bool
}

// Status is the read-only view published for the status server.
type Status struct {
	StartedAt time.Time       `json:"started_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Reports   []task.Snapshot `json:"reports"`
	// Orphans are reports with saved state but no current definition.
	Orphans []string `json:"orphans"`
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.clock = now
	}
}

func WithChangeSignal(signal ChangeSignal) Option {
	return func(s *Scheduler) {
		s.changes = signal
	}
}

type Scheduler struct {
	cfg      Config
	registry *registry.Registry
	repo     repository.Repository
	load     Loader
	notifier Notifier
	changes  ChangeSignal
	clock    func() time.Time

	startedAt   time.Time
	lastSweep   time.Time
	lastPersist time.Time
	dirty       int

	status atomic.Pointer[Status]
}

func New(cfg Config, reg *registry.Registry, repo repository.Repository, load Loader, notifier Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:      cfg.withDefaults(),
		registry: reg,
		repo:     repo,
		load:     load,
		notifier: notifier,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads saved state and the definitions, then runs until ctx is done
// or MaxRuntime passes. In run-once mode it returns after a single pass.
// An error means the first definitions load failed or the loop hit a fatal
// error.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.init(ctx); err != nil {
		return err
	}
	if s.cfg.RunOnce {
		return s.guard(s.runOnce)(ctx)
	}
	return s.guard(s.loop)(ctx)
}

func (s *Scheduler) init(ctx context.Context) error {
	s.startedAt = s.clock()
	s.lastPersist = s.startedAt

	infos, err := s.repo.Load(ctx)
	if err != nil {
		slog.Warn("Unable to load saved report state; starting fresh", tag.Error(err))
	} else {
		s.registry.Seed(infos)
		slog.Debug("Loaded saved report state", tag.Count(len(infos)))
	}

	if err := s.reload(ctx, true); err != nil {
		return fmt.Errorf("failed to load report definitions: %w", err)
	}
	return nil
}

// guard turns a panic escaping fn into an error, after one best-effort save.
func (s *Scheduler) guard(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Fatal error in scheduler loop",
					slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
				_ = s.finalPersist(ctx, true)
				err = fmt.Errorf("scheduler stopped: %v", r)
			}
		}()
		return fn(ctx)
	}
}

func (s *Scheduler) loop(ctx context.Context) error {
	slog.Info("Scheduler started",
		tag.Count(s.registry.Len()),
		slog.Duration("sweep_interval", s.cfg.SweepInterval),
		slog.Duration("persist_interval", s.cfg.PersistInterval))

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		now := s.clock()
		if s.cfg.MaxRuntime > 0 && now.Sub(s.startedAt) >= s.cfg.MaxRuntime {
			slog.Info("Maximum runtime reached; exiting", slog.Duration("max_runtime", s.cfg.MaxRuntime))
			return s.finalPersist(ctx, false)
		}

		s.tick(ctx, now)

		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopping")
			return s.finalPersist(ctx, false)
		case <-ticker.C:
		}
	}
}

// tick is one pass of the loop: reload if the definitions changed, sweep
// when the sweep interval has passed, then save if anything changed or the
// persist interval has passed.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if s.changes != nil && s.changes.Changed() {
		slog.Info("Report definitions changed; reloading")
		_ = s.reload(ctx, false)
	}

	if s.lastSweep.IsZero() || now.Sub(s.lastSweep) >= s.cfg.SweepInterval {
		s.sweep(ctx, now)
		s.lastSweep = now
	}

	if s.dirty > 0 || now.Sub(s.lastPersist) >= s.cfg.PersistInterval {
		_ = s.persist(ctx, now)
	}
}

func (s *Scheduler) sweep(ctx context.Context, now time.Time) {
	for _, t := range s.registry.Tasks() {
		if !t.IsDue(now) {
			continue
		}
		out := t.Execute(ctx, now)
		s.dirty++
		s.handle(ctx, t, out, now)
	}
	s.publish(now)
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	now := s.clock()
	for _, t := range s.registry.Tasks() {
		if !t.ScheduledToday(now) {
			slog.Info("Report not scheduled today; skipping", tag.Report(t.ID()))
			continue
		}
		out := t.RunNow(ctx, now)
		s.dirty++
		s.handle(ctx, t, out, now)
	}
	s.publish(now)
	return s.finalPersist(ctx, true)
}

func (s *Scheduler) handle(ctx context.Context, t *task.ScheduledTask, out task.Outcome, now time.Time) {
	run := repository.RunRecord{
		ID:         uuid.NewString(),
		Report:     t.ID(),
		Outcome:    metrics.OutcomeSkipped,
		StartedAt:  now,
		DurationMs: out.Duration.Milliseconds(),
	}

	if out.Status == task.StatusSkipped {
		metrics.RecordReportSkipped(t.ID())
	} else {
		rows := out.Report.Results.RowCount()
		run.Outcome = metrics.OutcomeRan
		run.Rows = rows
		if out.Err != nil {
			run.Outcome = metrics.OutcomeError
			run.Error = out.Err.Error()
		}
		metrics.RecordReportRun(t.ID(), out.Err != nil, out.Duration, rows)
		slog.Info("Ran report", tag.Report(t.ID()), tag.Rows(rows), tag.Duration(out.Duration),
			tag.Time("next_run", t.NextRun()))

		if err := s.notifier.Notify(ctx, *out.Report); err != nil {
			run.Error = errors.Join(out.Err, err).Error()
		}
	}

	if err := s.repo.RecordRun(ctx, run); err != nil {
		slog.Warn("Unable to record report run", tag.Report(t.ID()), tag.Error(err))
	}
}

// reload replaces the task set. A load error keeps the current tasks.
func (s *Scheduler) reload(ctx context.Context, firstLoad bool) error {
	defs, err := s.load(ctx, firstLoad)
	if err != nil {
		metrics.RecordConfigReload(false)
		slog.Error("Unable to load report definitions; keeping the current reports", tag.Error(err))
		return err
	}

	result := s.registry.Reload(defs)
	for _, id := range result.Removed {
		metrics.ForgetReport(id)
	}
	metrics.RecordConfigReload(true)
	metrics.UpdateReportsRegistered(s.registry.Len())

	s.dirty++
	slog.Info("Loaded report definitions",
		tag.Count(s.registry.Len()),
		slog.Int("added", len(result.Added)),
		slog.Int("removed", len(result.Removed)))

	s.publish(s.clock())
	return nil
}

// persist saves the merged runtime state. The dirty count is cleared even
// when the save fails; the next interval retries.
func (s *Scheduler) persist(ctx context.Context, now time.Time) error {
	infos := s.registry.RuntimeInfos()
	err := s.repo.Save(ctx, infos)
	metrics.RecordStatePersist(err == nil)

	s.dirty = 0
	s.lastPersist = now

	if err != nil {
		slog.Warn("Unable to save report runtime state", tag.Error(err))
		return err
	}
	slog.Debug("Saved report runtime state", tag.Count(len(infos)))
	return nil
}

// finalPersist saves on the way out. It uses a fresh context because ctx
// may already be cancelled. Unless force is set it only saves when dirty.
// Save failures are logged by persist and do not fail the shutdown.
func (s *Scheduler) finalPersist(ctx context.Context, force bool) error {
	if !force && s.dirty == 0 {
		return nil
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	_ = s.persist(saveCtx, s.clock())
	return nil
}

func (s *Scheduler) publish(now time.Time) {
	s.status.Store(&Status{
		StartedAt: s.startedAt,
		UpdatedAt: now,
		Reports:   s.registry.Snapshots(),
		Orphans:   s.registry.Orphans(),
	})
}

// Status returns the last published view. Safe for concurrent use.
func (s *Scheduler) Status() *Status {
	if st := s.status.Load(); st != nil {
		return st
	}
	return &Status{Reports: []task.Snapshot{}, Orphans: []string{}}
}
