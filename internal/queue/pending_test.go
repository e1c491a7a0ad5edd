package queue

import (
	"testing"

	"flowcore/internal/model"
)

func tg(id string) *model.TaskGroup {
	return &model.TaskGroup{ID: id}
}

func TestPendingFIFOOrder(t *testing.T) {
	q := NewPending()
	q.Enqueue(tg("a"))
	q.Enqueue(tg("b"))
	q.Enqueue(tg("c"))

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue returned ok=false, want a task group")
		}
		if got.ID != want {
			t.Errorf("Dequeue() = %q, want %q", got.ID, want)
		}
	}
}

func TestPendingDequeueEmptyReturnsFalse(t *testing.T) {
	q := NewPending()
	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue on empty queue should return ok=false")
	}
}

func TestPendingLen(t *testing.T) {
	q := NewPending()
	q.Enqueue(tg("a"))
	q.Enqueue(tg("b"))
	if got := q.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	q.Dequeue()
	if got := q.Len(); got != 1 {
		t.Errorf("Len() after Dequeue = %d, want 1", got)
	}
}

func TestPendingRemove(t *testing.T) {
	q := NewPending()
	q.Enqueue(tg("a"))
	q.Enqueue(tg("b"))
	q.Enqueue(tg("a"))

	if !q.Remove("a") {
		t.Fatal("Remove(a) should report true")
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after removing both copies of a", q.Len())
	}
	got, _ := q.Dequeue()
	if got.ID != "b" {
		t.Errorf("remaining item = %q, want b", got.ID)
	}
}

func TestPendingRemoveMissingReturnsFalse(t *testing.T) {
	q := NewPending()
	q.Enqueue(tg("a"))
	if q.Remove("ghost") {
		t.Error("Remove of missing id should report false")
	}
}
