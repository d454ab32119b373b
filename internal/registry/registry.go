// Package registry owns the live report tasks and the runtime state carried
// across definition reloads.
package registry

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/task"
	"github.com/samber/lo"
)

// Registry is not safe for concurrent use; the scheduler loop owns it.
type Registry struct {
	tasks map[string]*task.ScheduledTask
	order []string

	// runtime holds the last known state of every report ever seen,
	// including ones no longer defined.
	runtime map[string]task.RuntimeInfo

	opts []task.Option
}

type ReloadResult struct {
	Added    []string
	Kept     []string
	Removed  []string
	Warnings []string
}

// New creates an empty registry. opts are applied to every task it builds.
func New(opts ...task.Option) *Registry {
	return &Registry{
		tasks:   make(map[string]*task.ScheduledTask),
		runtime: make(map[string]task.RuntimeInfo),
		opts:    opts,
	}
}

// Seed installs runtime state loaded from storage.
func (r *Registry) Seed(infos map[string]task.RuntimeInfo) {
	for id, info := range infos {
		r.runtime[id] = info
	}
}

// Reload rebuilds the live task set from defs. State is matched by report
// ID, so last run and execution count survive edits to a definition.
// Duplicate IDs keep the first definition.
func (r *Registry) Reload(defs []task.Definition) ReloadResult {
	previous := r.order
	for _, id := range previous {
		r.runtime[id] = r.tasks[id].RuntimeInfo()
	}

	r.tasks = make(map[string]*task.ScheduledTask, len(defs))
	r.order = make([]string, 0, len(defs))

	var res ReloadResult
	for _, def := range defs {
		if _, dup := r.tasks[def.ID]; dup {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("Duplicate report named '%s'; only using the first instance", def.ID))
			continue
		}

		prior, known := r.runtime[def.ID]
		t, err := task.New(def, prior.LastRun, prior.ExecutionCount, r.opts...)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Ignoring report definition '%s': %v", def.ID, err))
			continue
		}

		if known && prior.SourceType != "" &&
			(prior.SourceType != def.Source.Type() || prior.SourceDefinition != def.Source.Definition()) {
			slog.Info("Data source changed", tag.Report(def.ID),
				tag.Source(string(def.Source.Type()), def.Source.Definition()))
		}

		r.tasks[def.ID] = t
		r.order = append(r.order, def.ID)
		r.runtime[def.ID] = t.RuntimeInfo()

		if slices.Contains(previous, def.ID) {
			res.Kept = append(res.Kept, def.ID)
		} else {
			res.Added = append(res.Added, def.ID)
		}
		slog.Info(fmt.Sprintf("Added report '%s' running %s", def.ID, t.Describe()),
			tag.Report(def.ID), tag.Recipients(t.Email().RecipientList(",")))
		slog.Debug("Next run scheduled", tag.Report(def.ID), tag.Time("next_run", t.NextRun().In(t.Location())))
	}

	res.Removed = lo.Filter(previous, func(id string, _ int) bool {
		_, live := r.tasks[id]
		return !live
	})
	for _, id := range res.Removed {
		slog.Info(fmt.Sprintf("Removed report '%s'", id), tag.Report(id))
	}
	for _, w := range res.Warnings {
		slog.Warn(w)
	}

	return res
}

// Tasks returns the live tasks in definition order.
func (r *Registry) Tasks() []*task.ScheduledTask {
	out := make([]*task.ScheduledTask, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id])
	}
	return out
}

func (r *Registry) Get(id string) (*task.ScheduledTask, bool) {
	t, ok := r.tasks[id]
	return t, ok
}

func (r *Registry) Len() int {
	return len(r.tasks)
}

// RuntimeInfos merges live task state with the retained state of reports
// that are no longer defined.
func (r *Registry) RuntimeInfos() map[string]task.RuntimeInfo {
	merged := make(map[string]task.RuntimeInfo, len(r.runtime))
	for id, info := range r.runtime {
		merged[id] = info
	}
	for id, t := range r.tasks {
		merged[id] = t.RuntimeInfo()
	}
	return merged
}

// Orphans lists report IDs with retained state but no live task.
func (r *Registry) Orphans() []string {
	ids := lo.Filter(lo.Keys(r.runtime), func(id string, _ int) bool {
		_, live := r.tasks[id]
		return !live
	})
	slices.Sort(ids)
	return ids
}

func (r *Registry) Snapshots() []task.Snapshot {
	out := make([]task.Snapshot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id].Snapshot())
	}
	return out
}
