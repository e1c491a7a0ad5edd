package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"flowcore/internal/executor"
	"flowcore/internal/model"
	"flowcore/internal/queue"
)

func TestRunnerSchedulesQueuedTaskGroups(t *testing.T) {
	reg := executor.NewRegistry()
	e := executor.New("e1", model.ContainerTypeCompute, 2)
	reg.Register(e)

	policy := NewRoundRobinPolicy(reg)
	policy.OnExecutorAdded(e)

	pending := queue.NewPending()

	var mu sync.Mutex
	var scheduled []string
	done := make(chan struct{}, 2)
	runner := NewRunner(pending, policy, reg, func(tg *model.TaskGroup, e *executor.Executor) {
		_ = reg.MarkScheduled(e.ID, tg.ID)
		mu.Lock()
		scheduled = append(scheduled, tg.ID)
		mu.Unlock()
		done <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go runner.Run(ctx)

	pending.Enqueue(&model.TaskGroup{ID: "tg-1"})
	runner.OnATaskGroupAvailable()
	pending.Enqueue(&model.TaskGroup{ID: "tg-2"})
	runner.OnATaskGroupAvailable()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for task group to be scheduled")
		}
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(scheduled) != 2 {
		t.Fatalf("scheduled = %v, want 2 entries", scheduled)
	}
}

func TestRunnerRequeuesWhenNoExecutorAvailable(t *testing.T) {
	reg := executor.NewRegistry()
	policy := NewRoundRobinPolicy(reg)
	pending := queue.NewPending()

	var calls int
	runner := NewRunner(pending, policy, reg, func(tg *model.TaskGroup, e *executor.Executor) {
		calls++
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	pending.Enqueue(&model.TaskGroup{ID: "tg-1"})
	runner.OnATaskGroupAvailable()

	time.Sleep(50 * time.Millisecond)
	if calls != 0 {
		t.Errorf("expected no scheduling with no registered executors, got %d calls", calls)
	}
	if pending.Len() != 1 {
		t.Errorf("task group should remain queued, Len() = %d", pending.Len())
	}
}

// TestRunnerLivenessFreesCapacityOnRealCompletion drives more task
// groups than total executor capacity through the real Runner, with
// HandleTaskGroupComplete as the only thing that ever frees a slot
// (spec.md §8's Liveness property): every enqueued task group must
// eventually be scheduled once a slot frees up from an actual
// completion, not from a test poking the registry directly.
func TestRunnerLivenessFreesCapacityOnRealCompletion(t *testing.T) {
	reg := executor.NewRegistry()
	e := executor.New("e1", model.ContainerTypeCompute, 1)
	reg.Register(e)

	policy := NewRoundRobinPolicy(reg)
	policy.OnExecutorAdded(e)
	pending := queue.NewPending()

	var mu sync.Mutex
	var scheduled []string
	scheduledCh := make(chan string, 8)
	var runner *Runner
	runner = NewRunner(pending, policy, reg, func(tg *model.TaskGroup, e *executor.Executor) {
		_ = reg.MarkScheduled(e.ID, tg.ID)
		mu.Lock()
		scheduled = append(scheduled, tg.ID)
		mu.Unlock()
		scheduledCh <- tg.ID
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	const total = 3
	for i := 0; i < total; i++ {
		pending.Enqueue(&model.TaskGroup{ID: "tg-" + string(rune('1'+i))})
	}
	runner.OnATaskGroupAvailable()

	for i := 0; i < total; i++ {
		select {
		case tgID := <-scheduledCh:
			if err := runner.HandleTaskGroupComplete("no-such-job", "e1", tgID); err != nil {
				t.Fatalf("HandleTaskGroupComplete: %v", err)
			}
			runner.OnAnExecutorAvailable()
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for task group %d of %d to be scheduled", i+1, total)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(scheduled) != total {
		t.Fatalf("scheduled = %v, want %d task groups despite capacity 1", scheduled, total)
	}
	if e.HasFreeSlot() != true {
		t.Error("executor should have a free slot again after its last completion")
	}
}

// TestRunnerHandleExecutorFailureResubmitsOrphanedTaskGroups exercises
// the full requeue-on-executor-loss pipeline from spec.md §4.5/§8:
// registry.MarkFailed (via policy.OnExecutorRemoved) returns the
// orphaned task group ids, the runner resolves them back to
// *model.TaskGroup objects it tracked at dispatch time, and they
// reappear in the pending queue.
func TestRunnerHandleExecutorFailureResubmitsOrphanedTaskGroups(t *testing.T) {
	reg := executor.NewRegistry()
	e := executor.New("e1", model.ContainerTypeCompute, 2)
	reg.Register(e)

	policy := NewRoundRobinPolicy(reg)
	policy.OnExecutorAdded(e)
	pending := queue.NewPending()

	var runner *Runner
	runner = NewRunner(pending, policy, reg, func(tg *model.TaskGroup, e *executor.Executor) {
		_ = reg.MarkScheduled(e.ID, tg.ID)
	})

	tg1 := &model.TaskGroup{ID: "tg-1"}
	tg2 := &model.TaskGroup{ID: "tg-2"}
	pending.Enqueue(tg1)
	pending.Enqueue(tg2)
	runner.drain()

	if pending.Len() != 0 {
		t.Fatalf("both task groups should have been placed, Len() = %d", pending.Len())
	}

	runner.HandleExecutorFailure("e1")

	if pending.Len() != 2 {
		t.Fatalf("both orphaned task groups should be back in the pending queue, Len() = %d", pending.Len())
	}
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		tg, ok := pending.Dequeue()
		if !ok {
			t.Fatal("expected a task group in the queue")
		}
		seen[tg.ID] = true
	}
	if !seen["tg-1"] || !seen["tg-2"] {
		t.Errorf("seen = %v, want both tg-1 and tg-2", seen)
	}
	got, ok := reg.Get("e1")
	if !ok || got.State != executor.StateFailed {
		t.Errorf("Get(e1) = %v, %v; a failed executor stays in the registry as StateFailed", got, ok)
	}
}

func TestRunnerTerminateStopsRun(t *testing.T) {
	reg := executor.NewRegistry()
	policy := NewRoundRobinPolicy(reg)
	pending := queue.NewPending()
	runner := NewRunner(pending, policy, reg, nil)

	stopped := make(chan struct{})
	go func() {
		runner.Run(context.Background())
		close(stopped)
	}()

	runner.Terminate()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Terminate")
	}
}
