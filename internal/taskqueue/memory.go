package taskqueue

import (
	"context"
	"fmt"
	"sync"
)

// MemQueue is the in-process Queue used by tests and single-process dev
// runs. When a Deliver func is set, enqueued invocations are handed to it
// synchronously; otherwise they accumulate for inspection.
type MemQueue struct {
	mu      sync.Mutex
	items   []Invocation
	Deliver func(inv Invocation)
	failErr error
}

func NewMemQueue() *MemQueue {
	return &MemQueue{}
}

func (q *MemQueue) Enqueue(ctx context.Context, inv Invocation) error {
	q.mu.Lock()
	if q.failErr != nil {
		err := q.failErr
		q.mu.Unlock()
		return err
	}
	q.items = append(q.items, inv)
	deliver := q.Deliver
	q.mu.Unlock()
	if deliver != nil {
		deliver(inv)
	}
	return nil
}

// Items returns a snapshot of every invocation enqueued so far.
func (q *MemQueue) Items() []Invocation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Invocation, len(q.items))
	copy(out, q.items)
	return out
}

// FailWith makes subsequent Enqueue calls return err (nil restores normal
// behavior).
func (q *MemQueue) FailWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failErr = err
}

// FailAlways is a convenience for tests simulating an unavailable queue.
func (q *MemQueue) FailAlways() {
	q.FailWith(fmt.Errorf("queue unavailable"))
}
