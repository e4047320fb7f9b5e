// Package events is the engine-wide event queue (spec.md §5 "events on the
// global event queue are delivered in enqueue order"). Producers on any
// thread enqueue typed events; a dispatcher (typically the main thread)
// drains them and invokes the callbacks registered for each concrete type.
//
// Grounded on _examples/original_source/src/util/EventQueue.h. The
// original keys its callback map on std::type_index and type-erases events
// into std::any; Go's reflect.Type plays the same role here, with
// RegisterCallback/Enqueue as package-level generics (Go disallows generic
// methods) so each call site stays type-safe without the original's
// signature-deduction template trickery.
package events

import (
	"reflect"
	"sync"
)

type callback func(event any)

// Bus is the process-wide typed event queue. RegisterCallback must only be
// called during single-threaded setup; after that, Enqueue/Dispatch* are
// safe for concurrent use.
type Bus struct {
	mu        sync.Mutex
	callbacks map[reflect.Type][]callback
	events    []any
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{callbacks: make(map[reflect.Type][]callback)}
}

// RegisterCallback subscribes fn to every event of type E.
func RegisterCallback[E any](b *Bus, fn func(E)) {
	t := reflect.TypeOf((*E)(nil)).Elem()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks[t] = append(b.callbacks[t], func(event any) {
		fn(event.(E))
	})
}

// Enqueue appends an event for later dispatch; safe from any thread.
func Enqueue[E any](b *Bus, event E) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
}

// Dispatch invokes the registered callbacks for event immediately, without
// touching the queue.
func Dispatch[E any](b *Bus, event E) {
	b.dispatchOne(event)
}

func (b *Bus) dispatchOne(event any) {
	t := reflect.TypeOf(event)
	b.mu.Lock()
	cbs := b.callbacks[t]
	b.mu.Unlock()
	for _, cb := range cbs {
		cb(event)
	}
}

// DispatchType dispatches and removes only the queued events of type E,
// preserving the relative order of every other queued event (spec.md §5:
// "dispatch_event_type<E> preserve[s] the relative order of all non-E
// events"), mirroring the original's stable_partition.
func DispatchType[E any](b *Bus) {
	t := reflect.TypeOf((*E)(nil)).Elem()

	b.mu.Lock()
	var match, keep []any
	for _, e := range b.events {
		if reflect.TypeOf(e) == t {
			match = append(match, e)
		} else {
			keep = append(keep, e)
		}
	}
	b.events = keep
	b.mu.Unlock()

	for _, e := range match {
		b.dispatchOne(e)
	}
}

// DispatchAll drains and dispatches every queued event, in enqueue order.
func (b *Bus) DispatchAll() {
	b.mu.Lock()
	work := b.events
	b.events = nil
	b.mu.Unlock()

	for _, e := range work {
		b.dispatchOne(e)
	}
}

// HasPending reports whether any event is queued.
func (b *Bus) HasPending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events) > 0
}

// Clear discards every queued event without dispatching it.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}
