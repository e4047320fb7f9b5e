// Package storage implements the process-wide heterogeneous store of
// typed object pools (spec.md §4.2), keyed by domain.TypeId. Storage
// itself is type-erased; typed access goes through the package-level
// generic helpers (Add, Get, Retain, ...), and untyped access goes
// through the *Any methods, which is how the reflection layer
// (internal/infra/meta) dispatches "assure_storage", "load_asset", and
// friends without knowing T at compile time.
//
// Grounded on _examples/original_source/src/assets/Storage.hpp (the
// IPool virtual base + Storage::Pool<T> template) and the teacher's
// single-mutex, append-only map style (internal/infra/sqlite.DB, which
// guards its *sql.DB the same way).
package storage

import (
	"fmt"
	"sync"

	"github.com/cjgribel/eeng-core/internal/domain"
	"github.com/cjgribel/eeng-core/internal/infra/meta"
	"github.com/cjgribel/eeng-core/internal/infra/metrics"
	"github.com/cjgribel/eeng-core/internal/infra/pool"
)

// iPool is the type-erased interface every typedPool[T] satisfies, letting
// Storage dispatch untyped (reflection-driven) operations without a type
// parameter.
type iPool interface {
	AddAny(guid domain.GUID, value any) (domain.MetaHandle, error)
	GetAny(mh domain.MetaHandle) (any, error)
	TryGetAny(mh domain.MetaHandle) (any, bool)
	ModifyAny(mh domain.MetaHandle, fn func(any)) error
	RetainAny(mh domain.MetaHandle) (uint32, error)
	ReleaseAny(mh domain.MetaHandle) (uint32, error)
	RemoveNowAny(mh domain.MetaHandle) error
	HandleForGUIDAny(guid domain.GUID) (domain.MetaHandle, bool)
	GUIDForHandleAny(mh domain.MetaHandle) (domain.GUID, bool)
	CountFree() int
	Capacity() int
	ElementSize() int
	Clear()
	VisitAny(fn func(domain.MetaHandle, any))
	String() string
}

// Storage is the heterogeneous, append-only map from TypeId to Pool. Once
// a pool exists for a type it is never replaced or removed during the
// process lifetime (spec.md §3 Storage invariants), except by Drain, which
// moves every pool into a new Storage and leaves this one empty.
type Storage struct {
	mu    sync.RWMutex
	pools map[domain.TypeId]iPool
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{pools: make(map[domain.TypeId]iPool)}
}

// poolFor returns the iPool for id, or nil if no pool exists yet.
func (s *Storage) poolFor(id domain.TypeId) iPool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools[id]
}

// Has reports whether a pool already exists for id.
func (s *Storage) Has(id domain.TypeId) bool {
	return s.poolFor(id) != nil
}

// Clear empties every pool's contents but retains the pool instances
// themselves (spec.md §4.2).
func (s *Storage) Clear() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pools {
		p.Clear()
	}
}

// Drain transfers ownership of every pool out of s into a freshly returned
// Storage, leaving s empty. Go has no move-constructor, so this is the
// explicit analogue of the original's non-copyable, movable Storage
// (spec.md §4.2 "Move semantics", §8 Storage properties).
func (s *Storage) Drain() *Storage {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := &Storage{pools: s.pools}
	s.pools = make(map[domain.TypeId]iPool)
	return dst
}

// AddAny performs an untyped add: value's dynamic type (established by the
// caller, normally the reflection layer) selects the pool.
func (s *Storage) AddAny(id domain.TypeId, guid domain.GUID, value any) (domain.MetaHandle, error) {
	p := s.poolFor(id)
	if p == nil {
		return domain.MetaHandle{}, fmt.Errorf("storage add: %w", domain.ErrPoolNotFound)
	}
	return p.AddAny(guid, value)
}

// GetAny fetches the value for mh through its type's pool.
func (s *Storage) GetAny(mh domain.MetaHandle) (any, error) {
	p := s.poolFor(mh.Type)
	if p == nil {
		return nil, fmt.Errorf("storage get: %w", domain.ErrPoolNotFound)
	}
	return p.GetAny(mh)
}

// TryGetAny is the non-failing form of GetAny.
func (s *Storage) TryGetAny(mh domain.MetaHandle) (any, bool) {
	p := s.poolFor(mh.Type)
	if p == nil {
		return nil, false
	}
	return p.TryGetAny(mh)
}

// ModifyAny runs fn against the value for mh under its pool's lock.
func (s *Storage) ModifyAny(mh domain.MetaHandle, fn func(any)) error {
	p := s.poolFor(mh.Type)
	if p == nil {
		return fmt.Errorf("storage modify: %w", domain.ErrPoolNotFound)
	}
	return p.ModifyAny(mh, fn)
}

// RetainAny increments the refcount for mh.
func (s *Storage) RetainAny(mh domain.MetaHandle) (uint32, error) {
	p := s.poolFor(mh.Type)
	if p == nil {
		return 0, fmt.Errorf("storage retain: %w", domain.ErrPoolNotFound)
	}
	return p.RetainAny(mh)
}

// ReleaseAny decrements the refcount for mh, destroying at zero.
func (s *Storage) ReleaseAny(mh domain.MetaHandle) (uint32, error) {
	p := s.poolFor(mh.Type)
	if p == nil {
		return 0, fmt.Errorf("storage release: %w", domain.ErrPoolNotFound)
	}
	return p.ReleaseAny(mh)
}

// RemoveNowAny force-destroys mh regardless of refcount.
func (s *Storage) RemoveNowAny(mh domain.MetaHandle) error {
	p := s.poolFor(mh.Type)
	if p == nil {
		return fmt.Errorf("storage remove_now: %w", domain.ErrPoolNotFound)
	}
	return p.RemoveNowAny(mh)
}

// HandleForGUIDAny searches the pool identified by id for guid.
func (s *Storage) HandleForGUIDAny(id domain.TypeId, guid domain.GUID) (domain.MetaHandle, bool) {
	p := s.poolFor(id)
	if p == nil {
		return domain.MetaHandle{}, false
	}
	return p.HandleForGUIDAny(guid)
}

// GUIDForHandleAny looks up the guid bound to mh.
func (s *Storage) GUIDForHandleAny(mh domain.MetaHandle) (domain.GUID, bool) {
	p := s.poolFor(mh.Type)
	if p == nil {
		return domain.InvalidGUID, false
	}
	return p.GUIDForHandleAny(mh)
}

// VisitAny walks every live object in the pool for id.
func (s *Storage) VisitAny(id domain.TypeId, fn func(domain.MetaHandle, any)) {
	p := s.poolFor(id)
	if p == nil {
		return
	}
	p.VisitAny(fn)
}

// Stats describes one pool's occupancy, for the inspection API and CLI.
type Stats struct {
	TypeId    domain.TypeId
	Capacity  int
	CountFree int
}

// AllStats returns occupancy for every registered pool.
func (s *Storage) AllStats() []Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Stats, 0, len(s.pools))
	for id, p := range s.pools {
		out = append(out, Stats{TypeId: id, Capacity: p.Capacity(), CountFree: p.CountFree()})
	}
	return out
}

// RefreshMetrics sets eeng_pool_occupancy/eeng_pool_capacity for every
// registered pool, labeled by reg's type names, from a fresh AllStats
// snapshot. The inspection API calls it before serving each /metrics
// request.
func (s *Storage) RefreshMetrics(reg *meta.Registry) {
	for _, st := range s.AllStats() {
		label := fmt.Sprintf("type-%d", st.TypeId)
		if info, ok := reg.TypeOf(st.TypeId); ok {
			label = info.IDString
		}
		metrics.PoolOccupancy.WithLabelValues(label).Set(float64(st.Capacity - st.CountFree))
		metrics.PoolCapacity.WithLabelValues(label).Set(float64(st.Capacity))
	}
}

// typedPoolImpl wraps a *pool.Pool[T] to satisfy iPool. id is the TypeId
// it was created with, so MetaHandles it mints stamp the right type.
type typedPoolImpl[T any] struct {
	id domain.TypeId
	p  *pool.Pool[T]
}

func newTypedPool[T any](id domain.TypeId, alignment uintptr) (*typedPoolImpl[T], error) {
	p, err := pool.New[T](alignment)
	if err != nil {
		return nil, err
	}
	return &typedPoolImpl[T]{id: id, p: p}, nil
}

func (tp *typedPoolImpl[T]) AddAny(guid domain.GUID, value any) (domain.MetaHandle, error) {
	v, ok := value.(T)
	if !ok {
		return domain.MetaHandle{}, fmt.Errorf("storage add: value has wrong dynamic type for pool")
	}
	h, err := tp.p.Add(v, guid)
	if err != nil {
		return domain.MetaHandle{}, err
	}
	return domain.ToMeta(h, tp.id), nil
}

func (tp *typedPoolImpl[T]) castHandle(mh domain.MetaHandle) (domain.Handle[T], bool) {
	return domain.CastHandle[T](mh, tp.id)
}

func (tp *typedPoolImpl[T]) GetAny(mh domain.MetaHandle) (any, error) {
	h, ok := tp.castHandle(mh)
	if !ok {
		return nil, domain.ErrInvalidHandle
	}
	v, err := tp.p.Get(h)
	if err != nil {
		return nil, err
	}
	return *v, nil
}

func (tp *typedPoolImpl[T]) TryGetAny(mh domain.MetaHandle) (any, bool) {
	h, ok := tp.castHandle(mh)
	if !ok {
		return nil, false
	}
	v, ok := tp.p.TryGet(h)
	if !ok {
		return nil, false
	}
	return *v, true
}

// ModifyAny invokes fn with a pointer to the stored value boxed as any, so
// callers that only hold a reflect.Value or runtime TypeId (the edit
// pipeline's asset field assignment) can still mutate storage in place through reflect.ValueOf(v).Elem().
// Boxing the value itself instead would hand fn an unaddressable copy and
// silently discard every write.
func (tp *typedPoolImpl[T]) ModifyAny(mh domain.MetaHandle, fn func(any)) error {
	h, ok := tp.castHandle(mh)
	if !ok {
		return domain.ErrInvalidHandle
	}
	return tp.p.Modify(h, func(v *T) { fn(v) })
}

func (tp *typedPoolImpl[T]) RetainAny(mh domain.MetaHandle) (uint32, error) {
	h, ok := tp.castHandle(mh)
	if !ok {
		return 0, domain.ErrInvalidHandle
	}
	return tp.p.Retain(h)
}

func (tp *typedPoolImpl[T]) ReleaseAny(mh domain.MetaHandle) (uint32, error) {
	h, ok := tp.castHandle(mh)
	if !ok {
		return 0, domain.ErrInvalidHandle
	}
	return tp.p.Release(h)
}

func (tp *typedPoolImpl[T]) RemoveNowAny(mh domain.MetaHandle) error {
	h, ok := tp.castHandle(mh)
	if !ok {
		return domain.ErrInvalidHandle
	}
	return tp.p.RemoveNow(h)
}

func (tp *typedPoolImpl[T]) HandleForGUIDAny(guid domain.GUID) (domain.MetaHandle, bool) {
	h, ok := tp.p.HandleForGUID(guid)
	if !ok {
		return domain.MetaHandle{}, false
	}
	return domain.ToMeta(h, tp.id), true
}

func (tp *typedPoolImpl[T]) GUIDForHandleAny(mh domain.MetaHandle) (domain.GUID, bool) {
	h, ok := tp.castHandle(mh)
	if !ok {
		return domain.InvalidGUID, false
	}
	return tp.p.GUIDForHandle(h)
}

func (tp *typedPoolImpl[T]) CountFree() int    { return tp.p.CountFree() }
func (tp *typedPoolImpl[T]) Capacity() int     { return tp.p.Capacity() }
func (tp *typedPoolImpl[T]) ElementSize() int  { return tp.p.ElementSize() }
func (tp *typedPoolImpl[T]) Clear()            { tp.p.Clear() }
func (tp *typedPoolImpl[T]) String() string    { return tp.p.String() }

func (tp *typedPoolImpl[T]) VisitAny(fn func(domain.MetaHandle, any)) {
	tp.p.Visit(func(h domain.Handle[T], v *T) {
		fn(domain.ToMeta(h, tp.id), *v)
	})
}
