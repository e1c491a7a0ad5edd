// Package queue implements the scheduler's pending task-group queue: a
// plain FIFO with non-blocking enqueue and dequeue, grounded on the
// teacher's registry locking pattern (internal/master/registry.go) —
// one mutex, no per-entry locks, no blocking inside the critical section.
package queue

import (
	"sync"

	"flowcore/internal/model"
)

// Pending is a FIFO of ready task groups awaiting a scheduling attempt.
type Pending struct {
	mu    sync.Mutex
	items []*model.TaskGroup
}

// NewPending returns an empty pending queue.
func NewPending() *Pending {
	return &Pending{}
}

// Enqueue appends tg to the back of the queue.
func (q *Pending) Enqueue(tg *model.TaskGroup) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, tg)
}

// Dequeue removes and returns the task group at the front of the
// queue. The second return value is false if the queue was empty.
func (q *Pending) Dequeue() (*model.TaskGroup, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	tg := q.items[0]
	q.items = q.items[1:]
	return tg, true
}

// Len returns the number of task groups currently queued.
func (q *Pending) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Remove deletes every queued task group with the given id, reporting
// whether any were removed. Used when a task group is cancelled while
// still pending (e.g. its stage failed before it was ever scheduled).
func (q *Pending) Remove(taskGroupID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := false
	kept := q.items[:0]
	for _, tg := range q.items {
		if tg.ID == taskGroupID {
			removed = true
			continue
		}
		kept = append(kept, tg)
	}
	q.items = kept
	return removed
}
