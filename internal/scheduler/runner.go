package scheduler

import (
	"context"
	"sync"

	"flowcore/internal/executor"
	"flowcore/internal/model"
	"flowcore/internal/queue"
	"flowcore/internal/telemetry"
)

// Runner is the scheduler's single worker loop: it waits on a
// SignalQueuingCondition, then drains every task group it can
// currently place before going back to sleep. Grounded on the
// teacher's internal/master/scheduler.go Run loop, reworked from a
// fixed-interval ticker to the event-driven condition per spec.md §5
// so an idle scheduler performs zero work between pushes.
type Runner struct {
	pending  *queue.Pending
	policy   SchedulingPolicy
	registry *executor.Registry
	signal   *SignalQueuingCondition

	onScheduled func(tg *model.TaskGroup, e *executor.Executor)

	jobsMu sync.Mutex
	jobs   map[string]*model.JobStateManager

	// dispatched tracks task groups currently placed on an executor, by
	// id, so a later executor failure can resolve the orphaned ids the
	// registry and policy hand back into the *model.TaskGroup objects
	// needed to re-enqueue them.
	dispatchedMu sync.Mutex
	dispatched   map[string]*model.TaskGroup
}

// NewRunner returns a Runner that schedules task groups drawn from
// pending onto executors chosen by policy. onScheduled, if non-nil, is
// invoked synchronously every time a task group is placed (the caller
// is expected to use it to record the placement and dispatch the task
// group to the executor).
func NewRunner(pending *queue.Pending, policy SchedulingPolicy, registry *executor.Registry, onScheduled func(*model.TaskGroup, *executor.Executor)) *Runner {
	return &Runner{
		pending:     pending,
		policy:      policy,
		registry:    registry,
		signal:      NewSignalQueuingCondition(),
		onScheduled: onScheduled,
		jobs:        make(map[string]*model.JobStateManager),
		dispatched:  make(map[string]*model.TaskGroup),
	}
}

// TrackJob registers mgr so HandleTaskGroupFailure and
// HandleTaskGroupComplete can find it by job id.
func (r *Runner) TrackJob(mgr *model.JobStateManager) {
	r.jobsMu.Lock()
	defer r.jobsMu.Unlock()
	r.jobs[mgr.JobID()] = mgr
}

// HandleTaskGroupComplete records a successful completion against the
// job's state manager, clears any skew-bias bookkeeping the policy
// held for this task group, and frees the slot it occupied on
// executorID so the executor can accept another placement. This is
// the production path that keeps spec.md §8's Liveness property true:
// without it, HasFreeSlot on a full executor could never go true again.
func (r *Runner) HandleTaskGroupComplete(jobID, executorID, taskGroupID string) error {
	r.policy.OnTaskGroupComplete(executorID, taskGroupID)
	if err := r.registry.MarkTaskGroupComplete(executorID, taskGroupID); err != nil {
		telemetry.L().Sugar().Warnw("mark task group complete failed", "executor", executorID, "taskGroup", taskGroupID, "err", err)
	}
	r.clearDispatched(taskGroupID)

	mgr := r.job(jobID)
	if mgr == nil {
		return nil
	}
	return mgr.TransitionTaskGroup(taskGroupID, model.TaskGroupComplete, model.NoCause)
}

// HandleTaskGroupFailure records a recoverable failure against the
// job's state manager. If the task group's retry count, including this
// failure, is at most MaxResubmissions it is transitioned back to TaskGroupReady and
// re-enqueued; otherwise it is escalated to TaskGroupFailedUnrecoverable
// and the job itself is failed, per spec.md §7's bounded-retry contract.
func (r *Runner) HandleTaskGroupFailure(jobID, executorID, taskGroupID string, cause model.FailCause, tg *model.TaskGroup) error {
	r.policy.OnTaskGroupFailed(executorID, taskGroupID)
	if err := r.registry.MarkTaskGroupFailed(executorID, taskGroupID); err != nil {
		telemetry.L().Sugar().Warnw("mark task group failed failed", "executor", executorID, "taskGroup", taskGroupID, "err", err)
	}
	r.clearDispatched(taskGroupID)

	mgr := r.job(jobID)
	if mgr == nil {
		return nil
	}
	if err := mgr.TransitionTaskGroup(taskGroupID, model.TaskGroupFailedRecoverable, cause); err != nil {
		return err
	}
	if mgr.RetryCount(taskGroupID) <= MaxResubmissions {
		if err := mgr.TransitionTaskGroup(taskGroupID, model.TaskGroupReady, model.NoCause); err != nil {
			return err
		}
		r.pending.Enqueue(tg)
		r.OnATaskGroupAvailable()
		return nil
	}
	if err := mgr.TransitionTaskGroup(taskGroupID, model.TaskGroupFailedUnrecoverable, cause); err != nil {
		return err
	}
	return mgr.TransitionJob(model.JobFailed)
}

// HandleExecutorFailure declares executorID lost and resubmits every
// task group that was running on it: registry.MarkFailed runs inside
// policy.OnExecutorRemoved and returns the orphaned ids (spec.md §4.5),
// which are resolved back to their *model.TaskGroup objects via the
// dispatched table, re-enqueued, and the runner is signalled so it
// picks them up on its next drain.
func (r *Runner) HandleExecutorFailure(executorID string) {
	orphaned := r.policy.OnExecutorRemoved(executorID)
	if len(orphaned) == 0 {
		return
	}

	resubmitted := 0
	for taskGroupID := range orphaned {
		tg := r.clearDispatched(taskGroupID)
		if tg == nil {
			continue
		}
		r.pending.Enqueue(tg)
		resubmitted++
	}
	telemetry.L().Sugar().Warnw("executor removed, resubmitting its task groups", "executor", executorID, "resubmitted", resubmitted)
	if resubmitted > 0 {
		r.OnATaskGroupAvailable()
	}
}

func (r *Runner) job(jobID string) *model.JobStateManager {
	r.jobsMu.Lock()
	defer r.jobsMu.Unlock()
	return r.jobs[jobID]
}

// trackDispatched records that tg has been placed on an executor, so a
// later completion, failure, or executor removal can find it by id.
func (r *Runner) trackDispatched(tg *model.TaskGroup) {
	r.dispatchedMu.Lock()
	defer r.dispatchedMu.Unlock()
	r.dispatched[tg.ID] = tg
}

// clearDispatched removes and returns the task group tracked under
// taskGroupID, or nil if none is tracked.
func (r *Runner) clearDispatched(taskGroupID string) *model.TaskGroup {
	r.dispatchedMu.Lock()
	defer r.dispatchedMu.Unlock()
	tg := r.dispatched[taskGroupID]
	delete(r.dispatched, taskGroupID)
	return tg
}

// OnATaskGroupAvailable wakes the runner because a task group was
// enqueued (or re-enqueued after a failure).
func (r *Runner) OnATaskGroupAvailable() {
	r.signal.Signal()
}

// OnAnExecutorAvailable wakes the runner because an executor gained
// capacity (registered, or freed a slot by finishing a task group).
func (r *Runner) OnAnExecutorAvailable() {
	r.signal.Signal()
}

// Run blocks, servicing the pending queue, until ctx is cancelled or
// Terminate is called.
func (r *Runner) Run(ctx context.Context) {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			r.Terminate()
		case <-stop:
		}
	}()

	for r.signal.Await() {
		r.drain()
	}
	close(stop)
	<-done
}

// Terminate stops the runner's Await loop; any task groups still
// queued are left in the pending queue for a future runner.
func (r *Runner) Terminate() {
	r.policy.Terminate()
	r.signal.Close()
}

// drain repeatedly dequeues the front task group and attempts to place
// it; a task group that cannot currently be placed is put back on the
// queue and draining stops, since every later task group would see the
// same exhausted set of executors.
func (r *Runner) drain() {
	for {
		tg, ok := r.pending.Dequeue()
		if !ok {
			return
		}
		e, scheduled := r.policy.ScheduleTaskGroup(tg)
		if !scheduled {
			r.pending.Enqueue(tg)
			telemetry.L().Sugar().Debugw("no candidate executor for task group, pausing drain", "taskGroup", tg.ID)
			return
		}
		telemetry.L().Sugar().Infow("task group scheduled", "taskGroup", tg.ID, "executor", e.ID)
		r.trackDispatched(tg)
		if r.onScheduled != nil {
			r.onScheduled(tg, e)
		}
	}
}
