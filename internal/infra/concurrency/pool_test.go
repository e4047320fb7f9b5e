package concurrency

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolSubmitReturnsResult(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	task := Submit(p, func() (int, error) {
		return 42, nil
	})
	v, err := task.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
}

func TestPoolRunsConcurrently(t *testing.T) {
	p := NewPool(8)
	defer p.Close()

	var inflight atomic.Int64
	var maxSeen atomic.Int64
	tasks := make([]*Task[struct{}], 0, 8)
	for i := 0; i < 8; i++ {
		tasks = append(tasks, Submit(p, func() (struct{}, error) {
			n := inflight.Add(1)
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inflight.Add(-1)
			return struct{}{}, nil
		}))
	}
	for _, task := range tasks {
		if _, err := task.Wait(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if maxSeen.Load() < 2 {
		t.Fatalf("expected concurrent execution, max in flight was %d", maxSeen.Load())
	}
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	p.Post(func() { panic("boom") })

	task := Submit(p, func() (int, error) { return 7, nil })
	v, err := task.Wait()
	if err != nil || v != 7 {
		t.Fatalf("pool did not survive a panicking task: v=%d err=%v", v, err)
	}
}

func TestPoolCloseDrainsQueuedWork(t *testing.T) {
	p := NewPool(1)

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		p.Post(func() { ran.Add(1) })
	}
	p.Close()

	if ran.Load() != 5 {
		t.Fatalf("expected all 5 queued tasks to run before close, got %d", ran.Load())
	}
}

func TestStrandRunsInSubmissionOrder(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()
	s := NewStrand(pool, "test-strand")
	defer s.Close()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		i := i
		last := i == 19
		SubmitStrand(s, func() (struct{}, error) {
			order = append(order, i)
			if last {
				close(done)
			}
			return struct{}{}, nil
		})
	}
	<-done

	for i, v := range order {
		if v != i {
			t.Fatalf("strand ran out of order: %v", order)
		}
	}
}

func TestMainThreadQueueExecuteAll(t *testing.T) {
	q := NewMainThreadQueue()
	var ran atomic.Int64
	for i := 0; i < 3; i++ {
		q.Push(func() { ran.Add(1) })
	}
	if q.Empty() {
		t.Fatalf("expected pending work before ExecuteAll")
	}
	q.ExecuteAll()
	if ran.Load() != 3 {
		t.Fatalf("got %d executed, want 3", ran.Load())
	}
	if !q.Empty() {
		t.Fatalf("expected queue empty after ExecuteAll")
	}
}

func TestMainThreadQueuePushAndWait(t *testing.T) {
	q := NewMainThreadQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.ExecuteAll()
	}()

	v, err := PushAndWait(q, func() (string, error) {
		return "done", nil
	})
	if err != nil || v != "done" {
		t.Fatalf("got (%q, %v), want (\"done\", nil)", v, err)
	}
}

func TestMainThreadQueuePushAndWaitDuringDrainPanics(t *testing.T) {
	q := NewMainThreadQueue()
	q.mu.Lock()
	q.draining = true
	q.mu.Unlock()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic calling PushAndWait during a drain")
		}
	}()

	_, _ = PushAndWait(q, func() (int, error) { return 1, nil })
}
