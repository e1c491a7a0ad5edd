package scheduler

import (
	"sync"
	"time"

	"flowcore/internal/executor"
	"flowcore/internal/model"
)

// MaxResubmissions bounds how many times a task group may transition
// back to TaskGroupReady after a recoverable failure before
// Runner.HandleTaskGroupFailure escalates it to TaskGroupFailedUnrecoverable.
// spec.md §7 leaves this bound implementation-defined; 4 matches the
// number of retries the teacher's worker heartbeat loop tolerates
// before declaring a worker dead.
const MaxResubmissions = 4

// DefaultScheduleTimeout is the initial value of
// RoundRobinPolicy.ScheduleTimeout, the notional time budget of one
// scheduling attempt. It is recorded on the policy only: no timer
// enforces it, and the Runner does not read it.
const DefaultScheduleTimeout = 2 * time.Second

// SchedulingPolicy decides which executor, if any, a task group should
// run on, and is told about executor and task-group lifecycle events so
// it can keep its own bookkeeping (round-robin cursors, skew bias)
// current without re-deriving it from the registry on every call.
type SchedulingPolicy interface {
	ScheduleTaskGroup(tg *model.TaskGroup) (*executor.Executor, bool)
	OnExecutorAdded(e *executor.Executor)
	OnExecutorRemoved(id string) map[string]struct{}
	OnTaskGroupComplete(executorID, taskGroupID string)
	OnTaskGroupFailed(executorID, taskGroupID string)
	Terminate()
}

type typeBucket struct {
	ids    []string
	cursor int
}

// RoundRobinPolicy schedules task groups round-robin within executors
// of a matching container type, with a skew bias: a "hot" task group
// (one whose input key range was flagged skewed, model.TaskGroup.IsHot)
// prefers an executor not already running another hot task group, so
// two skewed shuffles don't pile onto the same machine. Grounded on
// RoundRobinSchedulingPolicy.java, reworked from its index-into-list
// bookkeeping into the teacher's map+mutex registry idiom.
type RoundRobinPolicy struct {
	mu              sync.Mutex
	registry        *executor.Registry
	buckets         map[model.ContainerType]*typeBucket
	hotOwner        map[string]string // executorID -> the hot task group it is currently running
	terminated      bool
	ScheduleTimeout time.Duration
}

// NewRoundRobinPolicy returns a policy that schedules against registry.
func NewRoundRobinPolicy(registry *executor.Registry) *RoundRobinPolicy {
	return &RoundRobinPolicy{
		registry:        registry,
		buckets:         make(map[model.ContainerType]*typeBucket),
		hotOwner:        make(map[string]string),
		ScheduleTimeout: DefaultScheduleTimeout,
	}
}

func (p *RoundRobinPolicy) bucket(ct model.ContainerType) *typeBucket {
	b, ok := p.buckets[ct]
	if !ok {
		b = &typeBucket{}
		p.buckets[ct] = b
	}
	return b
}

// OnExecutorAdded registers e in the "any container type" bucket and,
// if it declares a specific container type, in that bucket too.
func (p *RoundRobinPolicy) OnExecutorAdded(e *executor.Executor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bucket(model.ContainerTypeNone).ids = append(p.bucket(model.ContainerTypeNone).ids, e.ID)
	if e.ContainerType != model.ContainerTypeNone {
		p.bucket(e.ContainerType).ids = append(p.bucket(e.ContainerType).ids, e.ID)
	}
}

// OnExecutorRemoved declares id failed in the registry, drops it from
// every bucket it appears in, and returns the set of task group ids
// that were running on it so the caller can resubmit them — mirroring
// RoundRobinSchedulingPolicy.onExecutorRemoved, which calls
// executorRegistry.setRepresenterAsFailed and returns
// executor.getFailedTaskGroups(). A bucket's round-robin cursor is
// adjusted for the shift the removal causes: decremented if the
// removed slot was before the cursor, reset to 0 if it was exactly at
// the cursor, and left unchanged otherwise — spec.md §4.5's three
// cases, matching the original's `executorAssignmentLocation <
// nextExecutorIndex` branch.
func (p *RoundRobinPolicy) OnExecutorRemoved(id string) map[string]struct{} {
	orphaned := p.registry.MarkFailed(id)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.buckets {
		for i, existing := range b.ids {
			if existing != id {
				continue
			}
			b.ids = append(b.ids[:i], b.ids[i+1:]...)
			switch {
			case i < b.cursor:
				b.cursor--
			case i == b.cursor:
				b.cursor = 0
			}
			break
		}
	}
	delete(p.hotOwner, id)
	return orphaned
}

// ScheduleTaskGroup returns an executor with a free slot whose
// container type matches tg's requirement (or any, if tg requires
// none), advancing that bucket's round-robin cursor past the chosen
// executor. Hot task groups are steered away from an executor already
// running another hot task group when a non-hot-owning alternative
// with a free slot exists.
func (p *RoundRobinPolicy) ScheduleTaskGroup(tg *model.TaskGroup) (*executor.Executor, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return nil, false
	}

	b := p.bucket(tg.ContainerType)
	n := len(b.ids)
	if n == 0 {
		return nil, false
	}
	hot := tg.IsHot()

	if hot {
		if e, ok := p.pick(b, n, true); ok {
			p.hotOwner[e.ID] = tg.ID
			return e, true
		}
	}
	// The pure round-robin fallback never records a hotMap entry, even
	// for a hot task group: spec.md §4.5 step 3 and the original's
	// selectExecutorByRR path both leave executorIdToHeavyTaskGroupMap
	// untouched here — only the light-candidate branch above does.
	return p.pick(b, n, false)
}

// pick scans the bucket starting at its cursor for an executor with a
// free slot, skipping hot-owning executors when avoidHotOwned is set.
func (p *RoundRobinPolicy) pick(b *typeBucket, n int, avoidHotOwned bool) (*executor.Executor, bool) {
	for i := 0; i < n; i++ {
		idx := (b.cursor + i) % n
		id := b.ids[idx]
		e, ok := p.registry.Get(id)
		if !ok || !e.HasFreeSlot() {
			continue
		}
		if avoidHotOwned {
			if _, busy := p.hotOwner[id]; busy {
				continue
			}
		}
		b.cursor = (idx + 1) % n
		return e, true
	}
	return nil, false
}

// OnTaskGroupComplete clears any hot-owner bookkeeping held against
// executorID for taskGroupID.
func (p *RoundRobinPolicy) OnTaskGroupComplete(executorID, taskGroupID string) {
	p.clearHotOwner(executorID, taskGroupID)
}

// OnTaskGroupFailed clears any hot-owner bookkeeping held against
// executorID for taskGroupID, same as a successful completion: a
// failed hot task group no longer occupies its executor's hot slot.
func (p *RoundRobinPolicy) OnTaskGroupFailed(executorID, taskGroupID string) {
	p.clearHotOwner(executorID, taskGroupID)
}

func (p *RoundRobinPolicy) clearHotOwner(executorID, taskGroupID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hotOwner[executorID] == taskGroupID {
		delete(p.hotOwner, executorID)
	}
}

// Terminate makes every subsequent ScheduleTaskGroup call return
// immediately with no candidate, and shuts down every executor still
// running, marking each complete in the registry — grounded on
// RoundRobinSchedulingPolicy.terminate(), which calls shutDown() and
// setRepresenterAsCompleted() on every running executor.
func (p *RoundRobinPolicy) Terminate() {
	p.mu.Lock()
	p.terminated = true
	p.mu.Unlock()

	for _, e := range p.registry.Running() {
		p.registry.MarkComplete(e.ID)
	}
}
