package concurrency

import (
	"fmt"
	"sync"
)

// MainThreadQueue is a multi-producer, single-consumer FIFO for work that
// must run on the thread owning the entity registry (spec.md §4.9, §5
// "main-thread-only": entity mutation, component reflection, ref binding).
//
// Grounded on _examples/original_source/src/MainThreadQueue.hpp.
type MainThreadQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	q        []func()
	draining bool
}

// NewMainThreadQueue returns an empty queue.
func NewMainThreadQueue() *MainThreadQueue {
	q := &MainThreadQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues fn without blocking; it runs on the next ExecuteAll.
func (q *MainThreadQueue) Push(fn func()) {
	q.mu.Lock()
	q.q = append(q.q, fn)
	q.mu.Unlock()
	q.cond.Signal()
}

// PushAndWait enqueues fn and blocks the caller until it has run on the
// main thread, returning its result. Calling PushAndWait from inside an
// ExecuteAll drain is a programming error (the original: "it is an error
// to push_and_wait from the main thread itself during a drain") and
// panics rather than deadlocking silently.
func PushAndWait[T any](q *MainThreadQueue, fn func() (T, error)) (T, error) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		panic("concurrency: PushAndWait called from the main thread during ExecuteAll")
	}
	q.mu.Unlock()

	done := make(chan struct{})
	var val T
	var err error
	q.Push(func() {
		defer close(done)
		val, err = fn()
	})
	<-done
	return val, err
}

// ExecuteAll drains and runs every queued task, in FIFO order. Called by
// the main thread once per frame. A panicking task is recovered and
// logged so it cannot abort the drain of tasks queued after it.
func (q *MainThreadQueue) ExecuteAll() {
	q.mu.Lock()
	local := q.q
	q.q = nil
	q.draining = true
	q.mu.Unlock()

	for _, fn := range local {
		runProtectedLogged(fn)
	}

	q.mu.Lock()
	q.draining = false
	q.mu.Unlock()
}

func runProtectedLogged(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("concurrency: panic in main-thread task: %v\n", r)
		}
	}()
	fn()
}

// WaitForWork blocks the caller until at least one task is queued. Rarely
// needed outside an event-loop-driven host; most callers simply call
// ExecuteAll once per frame.
func (q *MainThreadQueue) WaitForWork() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.q) == 0 {
		q.cond.Wait()
	}
}

// Empty reports whether the queue currently holds no work.
func (q *MainThreadQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.q) == 0
}
