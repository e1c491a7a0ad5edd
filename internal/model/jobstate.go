package model

import (
	"fmt"
	"sync"
)

// JobState is the per-job state machine: pending -> executing ->
// {complete, failed}.
type JobState int

const (
	JobPending JobState = iota
	JobExecuting
	JobComplete
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "PENDING"
	case JobExecuting:
		return "EXECUTING"
	case JobComplete:
		return "COMPLETE"
	case JobFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// TaskGroupState is the per-task-group sub-state machine: ready ->
// executing -> {complete, failed-recoverable(cause), failed-unrecoverable,
// on-hold}.
type TaskGroupState int

const (
	TaskGroupReady TaskGroupState = iota
	TaskGroupExecuting
	TaskGroupComplete
	TaskGroupFailedRecoverable
	TaskGroupFailedUnrecoverable
	TaskGroupOnHold
)

func (s TaskGroupState) String() string {
	switch s {
	case TaskGroupReady:
		return "READY"
	case TaskGroupExecuting:
		return "EXECUTING"
	case TaskGroupComplete:
		return "COMPLETE"
	case TaskGroupFailedRecoverable:
		return "FAILED_RECOVERABLE"
	case TaskGroupFailedUnrecoverable:
		return "FAILED_UNRECOVERABLE"
	case TaskGroupOnHold:
		return "ON_HOLD"
	default:
		return "UNKNOWN"
	}
}

func (s TaskGroupState) terminal() bool {
	return s == TaskGroupComplete || s == TaskGroupFailedUnrecoverable
}

var legalJobTransitions = map[JobState]map[JobState]bool{
	JobPending:   {JobExecuting: true},
	JobExecuting: {JobComplete: true, JobFailed: true},
}

var legalTaskGroupTransitions = map[TaskGroupState]map[TaskGroupState]bool{
	TaskGroupReady:             {TaskGroupExecuting: true},
	TaskGroupExecuting:         {TaskGroupComplete: true, TaskGroupFailedRecoverable: true, TaskGroupFailedUnrecoverable: true, TaskGroupOnHold: true},
	TaskGroupFailedRecoverable: {TaskGroupReady: true, TaskGroupFailedUnrecoverable: true},
	TaskGroupOnHold:            {TaskGroupReady: true},
}

// FailCause is attached to a TaskGroupFailedRecoverable transition.
type FailCause int

const (
	NoCause FailCause = iota
	InputReadFailure
	OutputWriteFailure
	Unrecoverable
)

func (c FailCause) String() string {
	switch c {
	case InputReadFailure:
		return "INPUT_READ_FAILURE"
	case OutputWriteFailure:
		return "OUTPUT_WRITE_FAILURE"
	case Unrecoverable:
		return "UNRECOVERABLE"
	default:
		return "NONE"
	}
}

// JobStateManager tracks the state of one job and all of its task
// groups, enforcing the legal-transition tables above. The scheduler
// Runner tracks one per job and drives its task-group transitions.
type JobStateManager struct {
	mu         sync.Mutex
	jobID      string
	job        JobState
	taskGroups map[string]TaskGroupState
	causes     map[string]FailCause
	retries    map[string]int
}

// NewJobStateManager creates a manager for jobID in state JobPending.
func NewJobStateManager(jobID string) *JobStateManager {
	return &JobStateManager{
		jobID:      jobID,
		job:        JobPending,
		taskGroups: make(map[string]TaskGroupState),
		causes:     make(map[string]FailCause),
		retries:    make(map[string]int),
	}
}

// JobID returns the id of the job this manager tracks.
func (m *JobStateManager) JobID() string {
	return m.jobID
}

// JobState returns the job's current state.
func (m *JobStateManager) JobState() JobState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job
}

// TransitionJob attempts a job state transition, rejecting illegal ones.
func (m *JobStateManager) TransitionJob(to JobState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !legalJobTransitions[m.job][to] {
		return fmt.Errorf("flowcore: illegal job transition %s -> %s for job %s", m.job, to, m.jobID)
	}
	m.job = to
	return nil
}

// RegisterTaskGroup initializes a task group's state to TaskGroupReady.
func (m *JobStateManager) RegisterTaskGroup(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.taskGroups[id]; !ok {
		m.taskGroups[id] = TaskGroupReady
	}
}

// TaskGroupState returns the current state of task group id.
func (m *JobStateManager) TaskGroupState(id string) (TaskGroupState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.taskGroups[id]
	return s, ok
}

// TransitionTaskGroup attempts a task-group state transition. cause is
// only meaningful (and recorded) when to == TaskGroupFailedRecoverable.
func (m *JobStateManager) TransitionTaskGroup(id string, to TaskGroupState, cause FailCause) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, ok := m.taskGroups[id]
	if !ok {
		return fmt.Errorf("flowcore: unknown task group %s", id)
	}
	if !legalTaskGroupTransitions[from][to] {
		return fmt.Errorf("flowcore: illegal task group transition %s -> %s for %s", from, to, id)
	}
	m.taskGroups[id] = to
	if to == TaskGroupFailedRecoverable {
		m.causes[id] = cause
		m.retries[id]++
	}
	return nil
}

// RetryCount returns how many times task group id has failed-recoverable.
func (m *JobStateManager) RetryCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries[id]
}

// Cause returns the most recently recorded failure cause for id.
func (m *JobStateManager) Cause(id string) FailCause {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.causes[id]
}

// AllTerminal reports whether every registered task group has reached a
// terminal state (complete or failed-unrecoverable).
func (m *JobStateManager) AllTerminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.taskGroups {
		if !s.terminal() {
			return false
		}
	}
	return true
}

// AnyUnrecoverable reports whether any task group has failed-unrecoverable.
func (m *JobStateManager) AnyUnrecoverable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.taskGroups {
		if s == TaskGroupFailedUnrecoverable {
			return true
		}
	}
	return false
}
