package storage

import (
	"fmt"

	"github.com/cjgribel/eeng-core/internal/domain"
)

// Assure ensures a pool for T exists under id, idempotently. Storage has
// no untyped way to create a pool — Go generics cannot be instantiated
// purely from a runtime TypeId — so typed code must call Assure[T] for a
// type before the untyped *Any methods can reach its pool.
//
// alignment is forwarded to pool.New (0 accepts T's natural alignment;
// see meta.TypeInfo.Alignment and pool.New's doc for the forced case).
func Assure[T any](s *Storage, id domain.TypeId, alignment uintptr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[id]; ok {
		return nil
	}
	tp, err := newTypedPool[T](id, alignment)
	if err != nil {
		return fmt.Errorf("storage: assure type %d: %w", id, err)
	}
	s.pools[id] = tp
	return nil
}

func typedPoolFor[T any](s *Storage, id domain.TypeId) (*typedPoolImpl[T], error) {
	s.mu.RLock()
	p, ok := s.pools[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: %w", domain.ErrPoolNotFound)
	}
	tp, ok := p.(*typedPoolImpl[T])
	if !ok {
		return nil, fmt.Errorf("storage: pool for type %d is not of the requested Go type", id)
	}
	return tp, nil
}

// Add performs a statically typed add.
func Add[T any](s *Storage, id domain.TypeId, value T, guid domain.GUID) (domain.Handle[T], error) {
	tp, err := typedPoolFor[T](s, id)
	if err != nil {
		return domain.Handle[T]{}, err
	}
	return tp.p.Add(value, guid)
}

// Get returns a pointer to the value for h.
func Get[T any](s *Storage, id domain.TypeId, h domain.Handle[T]) (*T, error) {
	tp, err := typedPoolFor[T](s, id)
	if err != nil {
		return nil, err
	}
	return tp.p.Get(h)
}

// TryGet is the non-failing form of Get.
func TryGet[T any](s *Storage, id domain.TypeId, h domain.Handle[T]) (*T, bool) {
	tp, err := typedPoolFor[T](s, id)
	if err != nil {
		return nil, false
	}
	return tp.p.TryGet(h)
}

// Modify runs fn against the value for h under the pool lock.
func Modify[T any](s *Storage, id domain.TypeId, h domain.Handle[T], fn func(*T)) error {
	tp, err := typedPoolFor[T](s, id)
	if err != nil {
		return err
	}
	return tp.p.Modify(h, fn)
}

// Retain increments the refcount for h.
func Retain[T any](s *Storage, id domain.TypeId, h domain.Handle[T]) (uint32, error) {
	tp, err := typedPoolFor[T](s, id)
	if err != nil {
		return 0, err
	}
	return tp.p.Retain(h)
}

// Release decrements the refcount for h, destroying at zero.
func Release[T any](s *Storage, id domain.TypeId, h domain.Handle[T]) (uint32, error) {
	tp, err := typedPoolFor[T](s, id)
	if err != nil {
		return 0, err
	}
	return tp.p.Release(h)
}

// RemoveNow force-destroys h regardless of refcount.
func RemoveNow[T any](s *Storage, id domain.TypeId, h domain.Handle[T]) error {
	tp, err := typedPoolFor[T](s, id)
	if err != nil {
		return err
	}
	return tp.p.RemoveNow(h)
}

// HandleForGUID looks up guid's handle in the pool for T.
func HandleForGUID[T any](s *Storage, id domain.TypeId, guid domain.GUID) (domain.Handle[T], bool) {
	tp, err := typedPoolFor[T](s, id)
	if err != nil {
		return domain.Handle[T]{}, false
	}
	return tp.p.HandleForGUID(guid)
}

// GUIDForHandle looks up the guid bound to h.
func GUIDForHandle[T any](s *Storage, id domain.TypeId, h domain.Handle[T]) (domain.GUID, bool) {
	tp, err := typedPoolFor[T](s, id)
	if err != nil {
		return domain.InvalidGUID, false
	}
	return tp.p.GUIDForHandle(h)
}

// Visit walks every live object of T's pool, typed.
func Visit[T any](s *Storage, id domain.TypeId, fn func(domain.Handle[T], *T)) error {
	tp, err := typedPoolFor[T](s, id)
	if err != nil {
		return err
	}
	tp.p.Visit(fn)
	return nil
}
