// Package executor tracks which Executors are known to the scheduler,
// which task groups each is running, and reacts when an executor fails.
// Grounded on the teacher's internal/master/registry.go WorkerRegistry:
// a single RWMutex guarding a map, with state mutation methods that
// also return what changed so the caller can react.
package executor

import (
	"github.com/google/uuid"

	"flowcore/internal/model"
)

// NewExecutorID generates an opaque, unique executor id.
func NewExecutorID() string {
	return "exec-" + uuid.New().String()
}

// State is an executor's lifecycle as seen by the scheduler.
type State int

const (
	StateRunning State = iota
	StateFailed
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateFailed:
		return "FAILED"
	case StateComplete:
		return "COMPLETE"
	default:
		return "RUNNING"
	}
}

// Executor is one compute slot the scheduler can place task groups on.
type Executor struct {
	ID            string
	ContainerType model.ContainerType
	Capacity      int
	State         State

	running  map[string]struct{}
	complete map[string]struct{}
	failed   map[string]struct{}

	// small holds the ids of running task groups flagged as a "small"
	// hint; they occupy a running slot but are excluded from the
	// capacity count HasFreeSlot enforces.
	small map[string]struct{}
}

// New returns a fresh, running Executor with the given capacity (the
// maximum number of task groups it may run concurrently).
func New(id string, containerType model.ContainerType, capacity int) *Executor {
	return &Executor{
		ID:            id,
		ContainerType: containerType,
		Capacity:      capacity,
		State:         StateRunning,
		running:       make(map[string]struct{}),
		complete:      make(map[string]struct{}),
		failed:        make(map[string]struct{}),
		small:         make(map[string]struct{}),
	}
}

// HasFreeSlot reports whether the executor can accept another task
// group. Small task groups are a hint category that run against a slot
// but do not count against capacity: runningCount - smallCount < capacity.
func (e *Executor) HasFreeSlot() bool {
	return e.State == StateRunning && len(e.running)-len(e.small) < e.Capacity
}

// MarkSmall flags a running task group as small, so it stops counting
// against this executor's capacity. It is a no-op if the task group is
// not currently running here.
func (e *Executor) MarkSmall(taskGroupID string) {
	if _, running := e.running[taskGroupID]; running {
		e.small[taskGroupID] = struct{}{}
	}
}

// RunningIDs returns the ids of task groups currently running on this executor.
func (e *Executor) RunningIDs() []string {
	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	return ids
}
