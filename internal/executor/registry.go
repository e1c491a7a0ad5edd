package executor

import (
	"fmt"
	"sync"

	"flowcore/internal/telemetry"
)

// Registry is the scheduler's directory of known executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]*Executor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]*Executor)}
}

// Register adds a newly-connected executor to the registry.
func (r *Registry) Register(e *Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.ID] = e
	telemetry.L().Sugar().Infow("executor registered", "executor", e.ID, "containerType", e.ContainerType, "capacity", e.Capacity)
}

// Get returns the executor with the given id, if known.
func (r *Registry) Get(id string) (*Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[id]
	return e, ok
}

// MarkScheduled records that taskGroupID has been placed on executorID.
func (r *Registry) MarkScheduled(executorID, taskGroupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executors[executorID]
	if !ok {
		return fmt.Errorf("flowcore: unknown executor %q", executorID)
	}
	e.running[taskGroupID] = struct{}{}
	return nil
}

// MarkTaskGroupComplete moves a task group from running to complete on
// its executor. This is task-group bookkeeping only; it never touches
// the executor's own State. See MarkComplete for the executor-level op.
func (r *Registry) MarkTaskGroupComplete(executorID, taskGroupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executors[executorID]
	if !ok {
		return fmt.Errorf("flowcore: unknown executor %q", executorID)
	}
	delete(e.running, taskGroupID)
	delete(e.small, taskGroupID)
	e.complete[taskGroupID] = struct{}{}
	return nil
}

// MarkTaskGroupFailed moves a task group from running to failed on its
// executor without failing the executor itself.
func (r *Registry) MarkTaskGroupFailed(executorID, taskGroupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executors[executorID]
	if !ok {
		return fmt.Errorf("flowcore: unknown executor %q", executorID)
	}
	delete(e.running, taskGroupID)
	delete(e.small, taskGroupID)
	e.failed[taskGroupID] = struct{}{}
	return nil
}

// MarkComplete declares the executor itself complete: spec.md §3's
// third terminal state, alongside failed. Used when the policy shuts
// an executor down, e.g. on Terminate. A completed executor is dropped
// from Running() but, unlike MarkFailed, is not treated as having
// orphaned task groups — it is expected to have none left running.
func (r *Registry) MarkComplete(executorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executors[executorID]
	if !ok {
		return
	}
	e.State = StateComplete
	telemetry.L().Sugar().Infow("executor completed", "executor", executorID)
}

// MarkSmall flags taskGroupID as a small hint on executorID, excluding
// it from that executor's capacity count. It is a no-op if either is
// unknown.
func (r *Registry) MarkSmall(executorID, taskGroupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executors[executorID]
	if !ok {
		return
	}
	e.MarkSmall(taskGroupID)
}

// MarkFailed transitions executorID's record to failed and snapshots
// its running task groups into its failed set, returning that snapshot
// so the caller can resubmit them. The record stays in the registry,
// queryable via FailedTaskGroups, per spec.md §3's "mutable set of
// failed task-group ids (populated when the executor is marked
// failed)" — mirrors setRepresenterAsFailed/getFailedExecutorRepresenter
// in RoundRobinSchedulingPolicy.java, which keep the representer
// around rather than discarding it.
func (r *Registry) MarkFailed(executorID string) map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executors[executorID]
	if !ok {
		return nil
	}
	e.State = StateFailed
	orphaned := e.running
	e.running = make(map[string]struct{})
	for id := range orphaned {
		e.failed[id] = struct{}{}
	}
	telemetry.L().Sugar().Warnw("executor failed", "executor", executorID, "orphanedTaskGroups", len(orphaned))
	return orphaned
}

// Running returns every Executor currently in StateRunning.
func (r *Registry) Running() []*Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Executor, 0, len(r.executors))
	for _, e := range r.executors {
		if e.State == StateRunning {
			out = append(out, e)
		}
	}
	return out
}

// RunningIDs returns the ids of every executor currently in
// StateRunning: spec.md §4.3's `runningIds()`.
func (r *Registry) RunningIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.executors))
	for id, e := range r.executors {
		if e.State == StateRunning {
			ids = append(ids, id)
		}
	}
	return ids
}

// RunningTaskGroups returns the task-group ids currently running on
// executorID, and whether executorID is known: spec.md §4.3's
// `running(id)`.
func (r *Registry) RunningTaskGroups(executorID string) (map[string]struct{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[executorID]
	if !ok {
		return nil, false
	}
	return copySet(e.running), true
}

// FailedTaskGroups returns the task-group ids failed on executorID
// (populated by MarkFailed or MarkTaskGroupFailed), and whether
// executorID is known: spec.md §4.3's `failed(id)`.
func (r *Registry) FailedTaskGroups(executorID string) (map[string]struct{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[executorID]
	if !ok {
		return nil, false
	}
	return copySet(e.failed), true
}

// Any reports whether executorID is known to the registry, failed or
// not: spec.md §4.3's `any(id)`.
func (r *Registry) Any(executorID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[executorID]
	return ok
}

// NonEmpty reports whether at least one executor, of any state, is
// known to the registry. Unlike Any, it takes no id: a convenience
// check the teacher's registry idiom exposes but spec.md does not name.
func (r *Registry) NonEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors) > 0
}

func copySet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}
