package concurrency

import "github.com/cjgribel/eeng-core/internal/infra/metrics"

// Strand is a serial executor built atop a shared Pool: tasks submitted to
// the same strand run one at a time in submission order, while a task body
// is free to submit parallel sub-work to the underlying pool and wait on
// it before returning (spec.md §4.9 "adapts a thread pool into a FIFO").
//
// Grounded on _examples/original_source/src/BatchRegistry.cpp's strand()
// accessor (a lazily-created SerialExecutor per registry) and
// util/ThreadPool.hpp. The C++ SerialExecutor chains std::future
// continuations on the pool itself; Go's channel-fed dedicated goroutine
// gives the same one-at-a-time guarantee with less machinery and still
// lets a strand body call concurrency.Submit against the shared pool for
// its own parallel sub-work.
type Strand struct {
	name  string
	pool  *Pool
	tasks chan func()
}

// NewStrand creates a serial executor that runs its own queue on a single
// dedicated goroutine, independent of pool's worker count, while tasks
// queued from within a strand body still execute on pool. name labels the
// strand in the eeng_strand_queue_depth gauge.
func NewStrand(pool *Pool, name string) *Strand {
	s := &Strand{
		name:  name,
		pool:  pool,
		tasks: make(chan func(), 64),
	}
	go s.run()
	return s
}

func (s *Strand) run() {
	for task := range s.tasks {
		runProtected(task)
	}
}

// StrandTask mirrors Task but for work submitted to a Strand.
type StrandTask[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the strand has run this task and returns its result.
func (t *StrandTask[T]) Wait() (T, error) {
	<-t.done
	return t.val, t.err
}

// SubmitStrand queues fn on s; fn runs after every task submitted to s
// earlier has completed, and before any submitted later.
func SubmitStrand[T any](s *Strand, fn func() (T, error)) *StrandTask[T] {
	t := &StrandTask[T]{done: make(chan struct{})}
	gauge := metrics.StrandQueueDepth.WithLabelValues(s.name)
	gauge.Inc()
	s.tasks <- func() {
		defer close(t.done)
		gauge.Dec()
		v, err := fn()
		t.val, t.err = v, err
	}
	return t
}

// Close stops the strand's goroutine once its queue drains. The strand
// does not own pool and never closes it.
func (s *Strand) Close() {
	close(s.tasks)
}
