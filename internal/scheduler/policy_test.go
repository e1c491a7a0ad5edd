package scheduler

import (
	"testing"

	"flowcore/internal/executor"
	"flowcore/internal/model"
)

func hotTaskGroup(id string) *model.TaskGroup {
	edge := &model.StageEdge{Pattern: model.Shuffle}
	edge.SetDistribution(model.ShuffleDistribution{
		HashRange: 10,
		Ranges:    []model.KeyRange{{Begin: 0, End: 10, Hot: true}},
	})
	return &model.TaskGroup{ID: id, Index: 0, Incoming: []*model.StageEdge{edge}}
}

func coldTaskGroup(id string) *model.TaskGroup {
	return &model.TaskGroup{ID: id, Index: 0}
}

func setupPolicy(t *testing.T, n int) (*RoundRobinPolicy, *executor.Registry, []*executor.Executor) {
	t.Helper()
	reg := executor.NewRegistry()
	p := NewRoundRobinPolicy(reg)
	execs := make([]*executor.Executor, 0, n)
	for i := 0; i < n; i++ {
		e := executor.New(string(rune('a'+i)), model.ContainerTypeCompute, 1)
		reg.Register(e)
		p.OnExecutorAdded(e)
		execs = append(execs, e)
	}
	return p, reg, execs
}

func TestRoundRobinDistributesFairly(t *testing.T) {
	p, reg, execs := setupPolicy(t, 3)
	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		tg := coldTaskGroup(string(rune('0' + i)))
		e, ok := p.ScheduleTaskGroup(tg)
		if !ok {
			t.Fatalf("expected a candidate for task group %d", i)
		}
		seen[e.ID]++
		_ = reg.MarkScheduled(e.ID, tg.ID)
	}
	for _, e := range execs {
		if seen[e.ID] != 1 {
			t.Errorf("executor %s scheduled %d times, want exactly 1", e.ID, seen[e.ID])
		}
	}
}

func TestRoundRobinNoCandidateWhenAllFull(t *testing.T) {
	p, reg, execs := setupPolicy(t, 1)
	tg1 := coldTaskGroup("tg-1")
	e, ok := p.ScheduleTaskGroup(tg1)
	if !ok {
		t.Fatal("expected a candidate for the first task group")
	}
	_ = reg.MarkScheduled(e.ID, tg1.ID)

	if _, ok := p.ScheduleTaskGroup(coldTaskGroup("tg-2")); ok {
		t.Fatal("expected no candidate once the only executor is at capacity")
	}
	_ = execs
}

func TestRoundRobinSkewBiasAvoidsDoubleHotPlacement(t *testing.T) {
	p, reg, _ := setupPolicy(t, 2)
	// Give both executors capacity 2 so a free slot always exists, and
	// verify the skew bias, not capacity exhaustion, drives placement.
	for _, e := range reg.Running() {
		e.Capacity = 2
	}

	first, ok := p.ScheduleTaskGroup(hotTaskGroup("hot-1"))
	if !ok {
		t.Fatal("expected a candidate for the first hot task group")
	}
	_ = reg.MarkScheduled(first.ID, "hot-1")

	second, ok := p.ScheduleTaskGroup(hotTaskGroup("hot-2"))
	if !ok {
		t.Fatal("expected a candidate for the second hot task group")
	}
	if second.ID == first.ID {
		t.Errorf("second hot task group should avoid the executor already running a hot task group, both placed on %s", first.ID)
	}
}

func TestRoundRobinHotOwnerClearedOnCompletion(t *testing.T) {
	p, reg, _ := setupPolicy(t, 2)
	for _, e := range reg.Running() {
		e.Capacity = 2
	}

	first, _ := p.ScheduleTaskGroup(hotTaskGroup("hot-1"))
	_ = reg.MarkScheduled(first.ID, "hot-1")
	p.OnTaskGroupComplete(first.ID, "hot-1")

	// With the hot owner cleared, a second hot task group may now land
	// back on the same executor without the bias steering it away.
	p.mu.Lock()
	_, stillBusy := p.hotOwner[first.ID]
	p.mu.Unlock()
	if stillBusy {
		t.Error("hotOwner entry should be cleared after OnTaskGroupComplete")
	}
}

func TestRoundRobinExecutorRemovedResetsCursorOnExactMatch(t *testing.T) {
	p, reg, execs := setupPolicy(t, 3)
	// Advance the cursor to point at execs[1] by scheduling once.
	tg := coldTaskGroup("tg-1")
	e, _ := p.ScheduleTaskGroup(tg)
	_ = reg.MarkScheduled(e.ID, tg.ID)

	b := p.buckets[model.ContainerTypeNone]
	cursorBefore := b.cursor

	removedID := b.ids[cursorBefore]
	p.OnExecutorRemoved(removedID)

	if cursorBefore < len(b.ids)+1 && b.cursor != 0 {
		t.Errorf("cursor should reset to 0 after removing the executor it pointed at, got %d", b.cursor)
	}
	_ = execs
}

func TestRoundRobinTerminateStopsScheduling(t *testing.T) {
	p, _, _ := setupPolicy(t, 1)
	p.Terminate()
	if _, ok := p.ScheduleTaskGroup(coldTaskGroup("tg-1")); ok {
		t.Error("ScheduleTaskGroup should return no candidate after Terminate")
	}
}

func TestRoundRobinTerminateShutsDownRunningExecutors(t *testing.T) {
	p, reg, execs := setupPolicy(t, 2)
	p.Terminate()
	for _, e := range execs {
		if e.State != executor.StateComplete {
			t.Errorf("executor %s State = %v, want StateComplete after Terminate", e.ID, e.State)
		}
	}
	if running := reg.Running(); len(running) != 0 {
		t.Errorf("Running() = %v, want none after Terminate", running)
	}
}

func TestRoundRobinOnExecutorRemovedReturnsOrphanedTaskGroups(t *testing.T) {
	p, reg, _ := setupPolicy(t, 1)
	tg := coldTaskGroup("tg-1")
	e, ok := p.ScheduleTaskGroup(tg)
	if !ok {
		t.Fatal("expected a candidate for the task group")
	}
	_ = reg.MarkScheduled(e.ID, tg.ID)

	orphaned := p.OnExecutorRemoved(e.ID)
	if _, ok := orphaned["tg-1"]; !ok || len(orphaned) != 1 {
		t.Fatalf("orphaned = %v, want exactly {tg-1}", orphaned)
	}
	got, ok := reg.Get(e.ID)
	if !ok || got.State != executor.StateFailed {
		t.Fatalf("Get(e.ID) = %v, %v; a removed executor stays in the registry as StateFailed", got, ok)
	}
}

func TestRoundRobinExecutorRemovedDecrementsCursorWhenBeforeIt(t *testing.T) {
	p, reg, _ := setupPolicy(t, 3)
	// Advance the cursor to point at execs[1] by scheduling once.
	tg := coldTaskGroup("tg-1")
	e, _ := p.ScheduleTaskGroup(tg)
	_ = reg.MarkScheduled(e.ID, tg.ID)

	b := p.buckets[model.ContainerTypeNone]
	cursorBefore := b.cursor
	if cursorBefore == 0 {
		t.Fatal("expected the cursor to have advanced past 0 after scheduling once")
	}

	// Remove the executor at index 0, strictly before the cursor.
	removedID := b.ids[0]
	p.OnExecutorRemoved(removedID)

	if b.cursor != cursorBefore-1 {
		t.Errorf("cursor = %d, want %d after removing an executor before it", b.cursor, cursorBefore-1)
	}
}
