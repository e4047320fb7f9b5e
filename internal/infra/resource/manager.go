// Package resource implements the Resource Manager (spec.md §4.6, C6): the
// asynchronous, batch-scoped load/unload/bind lifecycle for asset GUIDs,
// with cross-batch reference counting and soft-reference validation.
//
// Grounded on _examples/original_source/src/BatchRegistry.cpp (the
// load_and_bind_async / unbind_and_unload_async dispatch pattern that
// calls into per-type reflected functions) and the teacher's
// internal/infra/engine/pool.go (hash-map + refcount + mutex texture for a
// loaded-resource cache, adapted here from LRU model eviction to
// GUID/batch lease accounting).
package resource

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cjgribel/eeng-core/internal/domain"
	"github.com/cjgribel/eeng-core/internal/infra/concurrency"
	"github.com/cjgribel/eeng-core/internal/infra/meta"
	"github.com/cjgribel/eeng-core/internal/infra/metrics"
)

// typeLabel resolves typeID to its id-string for use as a metric label,
// falling back to "unknown" for a type that somehow isn't registered.
func typeLabel(reg *meta.Registry, typeID domain.TypeId) string {
	if info, ok := reg.TypeOf(typeID); ok {
		return info.IDString
	}
	return "unknown"
}

// LoadState is a GUID's lifecycle stage (spec.md §4.6 "State per GUID").
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
	Unloading
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Unloading:
		return "unloading"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type assetState struct {
	typeID       domain.TypeId
	name         string
	handle       domain.MetaHandle
	loadState    LoadState
	errorMessage string
	leases       map[domain.GUID]int // batchID -> lease count
}

func (a *assetState) totalLeases() int {
	total := 0
	for _, n := range a.leases {
		total += n
	}
	return total
}

// Manager is the process-wide resource manager. One Manager is shared
// across every BatchRegistry in the process.
type Manager struct {
	mu       sync.Mutex
	assets   map[domain.GUID]*assetState
	reg      *meta.Registry
	pool     *concurrency.Pool
	bindCtx  *meta.BindContext
	inflight sync.WaitGroup
	queued   atomic.Int64
}

// NewManager returns a resource manager dispatching loads/unloads against
// reg's reflected types on pool.
func NewManager(reg *meta.Registry, pool *concurrency.Pool, bindCtx *meta.BindContext) *Manager {
	return &Manager{
		assets:  make(map[domain.GUID]*assetState),
		reg:     reg,
		pool:    pool,
		bindCtx: bindCtx,
	}
}

// Index registers guid as a known asset of typeID with a display name, for
// FindGUIDsByName and status queries. Normally populated by ScanAssetsAsync
// (an out-of-core-scope filesystem-scanning collaborator, spec.md §4.6).
func (m *Manager) Index(guid domain.GUID, typeID domain.TypeId, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[guid]; ok {
		return
	}
	m.assets[guid] = &assetState{typeID: typeID, name: name, handle: domain.NullMetaHandle(), leases: make(map[domain.GUID]int)}
}

func (m *Manager) stateFor(guid domain.GUID) *assetState {
	a, ok := m.assets[guid]
	if !ok {
		a = &assetState{typeID: domain.InvalidTypeId, handle: domain.NullMetaHandle(), leases: make(map[domain.GUID]int)}
		m.assets[guid] = a
	}
	return a
}

// LoadAndBindAsync increments the lease of every GUID in guids for batchID,
// dispatching load_asset on a global 0→1 lease transition and always
// invoking bind_asset afterward. Duplicate GUIDs in the input collapse to a
// single lease increment (spec.md §4.6, §5 idempotence).
func (m *Manager) LoadAndBindAsync(ctx context.Context, guids []domain.GUID, batchID domain.GUID) *concurrency.Task[domain.TaskResult] {
	unique := dedupe(guids)
	m.queued.Add(1)
	m.inflight.Add(1)
	return concurrency.Submit(m.pool, func() (domain.TaskResult, error) {
		defer func() { m.queued.Add(-1); m.inflight.Done() }()
		result := domain.NewTaskResult()
		for _, guid := range unique {
			if err := m.loadAndBindOne(ctx, guid, batchID); err != nil {
				result.Fail(guid, err)
			}
		}
		return result, nil
	})
}

func (m *Manager) loadAndBindOne(ctx context.Context, guid domain.GUID, batchID domain.GUID) error {
	m.mu.Lock()
	a := m.stateFor(guid)
	wasZero := a.totalLeases() == 0
	a.leases[batchID]++
	typeID := a.typeID
	m.mu.Unlock()

	if wasZero {
		if err := m.dispatchLoad(ctx, typeID, guid); err != nil {
			m.mu.Lock()
			a.errorMessage = err.Error()
			a.loadState = Failed
			a.leases[batchID]--
			if a.leases[batchID] <= 0 {
				delete(a.leases, batchID)
			}
			m.mu.Unlock()
			metrics.ResourceLoads.WithLabelValues("failure").Inc()
			return err
		}
		m.mu.Lock()
		a.loadState = Loaded
		a.errorMessage = ""
		m.mu.Unlock()
		metrics.ResourceLoads.WithLabelValues("success").Inc()
	}
	metrics.ResourceLeases.WithLabelValues(typeLabel(m.reg, typeID)).Inc()

	return m.dispatchBind(guid, typeID)
}

func (m *Manager) dispatchLoad(ctx context.Context, typeID domain.TypeId, guid domain.GUID) error {
	info, ok := m.reg.TypeOf(typeID)
	if !ok || info.Funcs.LoadAsset == nil {
		return nil
	}
	return info.Funcs.LoadAsset(ctx, guid)
}

func (m *Manager) dispatchUnload(ctx context.Context, typeID domain.TypeId, guid domain.GUID) error {
	info, ok := m.reg.TypeOf(typeID)
	if !ok || info.Funcs.UnloadAsset == nil {
		return nil
	}
	return info.Funcs.UnloadAsset(ctx, guid)
}

func (m *Manager) dispatchBind(guid domain.GUID, typeID domain.TypeId) error {
	info, ok := m.reg.TypeOf(typeID)
	if !ok || info.Funcs.BindAsset == nil {
		return nil
	}
	return info.Funcs.BindAsset(guid)
}

func (m *Manager) dispatchUnbind(guid domain.GUID, typeID domain.TypeId) error {
	info, ok := m.reg.TypeOf(typeID)
	if !ok || info.Funcs.UnbindAsset == nil {
		return nil
	}
	return info.Funcs.UnbindAsset(guid)
}

// UnbindAndUnloadAsync is the inverse of LoadAndBindAsync: it decrements
// each GUID's lease for batchID and, on a 1→0 global transition, dispatches
// unload_asset. If the reflected unload refuses, the lease decrement is
// rolled back and the operation fails for that GUID — assets stay resident
// rather than dropping a still-referenced resource (spec.md §4.6).
func (m *Manager) UnbindAndUnloadAsync(ctx context.Context, guids []domain.GUID, batchID domain.GUID) *concurrency.Task[domain.TaskResult] {
	unique := dedupe(guids)
	m.queued.Add(1)
	m.inflight.Add(1)
	return concurrency.Submit(m.pool, func() (domain.TaskResult, error) {
		defer func() { m.queued.Add(-1); m.inflight.Done() }()
		result := domain.NewTaskResult()
		for _, guid := range unique {
			if err := m.unbindAndUnloadOne(ctx, guid, batchID); err != nil {
				result.Fail(guid, err)
			}
		}
		return result, nil
	})
}

func (m *Manager) unbindAndUnloadOne(ctx context.Context, guid domain.GUID, batchID domain.GUID) error {
	m.mu.Lock()
	a, ok := m.assets[guid]
	if !ok || a.leases[batchID] <= 0 {
		m.mu.Unlock()
		return nil
	}
	a.leases[batchID]--
	if a.leases[batchID] == 0 {
		delete(a.leases, batchID)
	}
	willUnload := a.totalLeases() == 0
	typeID := a.typeID
	m.mu.Unlock()

	if err := m.dispatchUnbind(guid, typeID); err != nil {
		m.rollbackDecrement(guid, batchID)
		return fmt.Errorf("unbind asset %s: %w", guid, err)
	}
	metrics.ResourceLeases.WithLabelValues(typeLabel(m.reg, typeID)).Dec()

	if !willUnload {
		return nil
	}

	m.mu.Lock()
	a.loadState = Unloading
	m.mu.Unlock()

	if err := m.dispatchUnload(ctx, typeID, guid); err != nil {
		m.mu.Lock()
		a.loadState = Failed
		a.errorMessage = err.Error()
		m.mu.Unlock()
		m.rollbackDecrement(guid, batchID)
		return fmt.Errorf("%w: %s: %v", domain.ErrUnloadRefused, guid, err)
	}

	m.mu.Lock()
	a.loadState = Unloaded
	a.handle = domain.NullMetaHandle()
	a.errorMessage = ""
	m.mu.Unlock()
	return nil
}

func (m *Manager) rollbackDecrement(guid, batchID domain.GUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[guid]
	if !ok {
		return
	}
	a.leases[batchID]++
}

// ReloadAndRebindAsync unloads and reloads each GUID's underlying resource
// without touching lease counts, preserving the calling batch's (and every
// other batch's) existing lease ownership.
func (m *Manager) ReloadAndRebindAsync(ctx context.Context, guids []domain.GUID) *concurrency.Task[domain.TaskResult] {
	unique := dedupe(guids)
	m.queued.Add(1)
	m.inflight.Add(1)
	return concurrency.Submit(m.pool, func() (domain.TaskResult, error) {
		defer func() { m.queued.Add(-1); m.inflight.Done() }()
		result := domain.NewTaskResult()
		for _, guid := range unique {
			if err := m.reloadOne(ctx, guid); err != nil {
				result.Fail(guid, err)
			}
		}
		return result, nil
	})
}

func (m *Manager) reloadOne(ctx context.Context, guid domain.GUID) error {
	m.mu.Lock()
	a, ok := m.assets[guid]
	if !ok {
		m.mu.Unlock()
		return domain.ErrAssetNotFound
	}
	typeID := a.typeID
	m.mu.Unlock()

	if err := m.dispatchUnload(ctx, typeID, guid); err != nil {
		return fmt.Errorf("reload: unload %s: %w", guid, err)
	}
	if err := m.dispatchLoad(ctx, typeID, guid); err != nil {
		m.mu.Lock()
		a.loadState = Failed
		a.errorMessage = err.Error()
		m.mu.Unlock()
		return fmt.Errorf("reload: load %s: %w", guid, err)
	}
	if err := m.dispatchBind(guid, typeID); err != nil {
		return fmt.Errorf("reload: bind %s: %w", guid, err)
	}

	m.mu.Lock()
	a.loadState = Loaded
	a.errorMessage = ""
	m.mu.Unlock()
	return nil
}

// ValidateAsset checks that guid names a currently loaded, valid slot.
func (m *Manager) ValidateAsset(guid domain.GUID) error {
	m.mu.Lock()
	a, ok := m.assets[guid]
	m.mu.Unlock()
	if !ok {
		return domain.ErrAssetNotFound
	}

	info, hasType := m.reg.TypeOf(a.typeID)
	if hasType && info.Funcs.ValidateAsset != nil {
		return info.Funcs.ValidateAsset(guid)
	}
	if a.loadState != Loaded {
		return fmt.Errorf("%w: %s is %s", domain.ErrLoadFailed, guid, a.loadState)
	}
	return nil
}

// ValidateAssetRecursive validates guid and, transitively, every asset it
// references via the type's collect_asset_guids function.
func (m *Manager) ValidateAssetRecursive(guid domain.GUID) error {
	return m.validateRecursive(guid, make(map[domain.GUID]bool))
}

func (m *Manager) validateRecursive(guid domain.GUID, visited map[domain.GUID]bool) error {
	if visited[guid] {
		return nil
	}
	visited[guid] = true

	if err := m.ValidateAsset(guid); err != nil {
		return err
	}

	m.mu.Lock()
	a, ok := m.assets[guid]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	info, ok := m.reg.TypeOf(a.typeID)
	if ok && info.Funcs.ValidateAssetRecursive != nil {
		return info.Funcs.ValidateAssetRecursive(guid)
	}
	if !ok || info.Funcs.CollectAssetGUIDs == nil {
		return nil
	}
	for _, ref := range info.Funcs.CollectAssetGUIDs(a.handle) {
		if err := m.validateRecursive(ref, visited); err != nil {
			return err
		}
	}
	return nil
}

// GetStatus returns guid's current load state and, if set, its last error.
func (m *Manager) GetStatus(guid domain.GUID) (LoadState, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[guid]
	if !ok {
		return Unloaded, "", false
	}
	return a.loadState, a.errorMessage, true
}

// TotalLeases returns the sum of guid's per-batch lease counts.
func (m *Manager) TotalLeases(guid domain.GUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[guid]
	if !ok {
		return 0
	}
	return a.totalLeases()
}

// FindGUIDsByName returns every indexed GUID whose name matches exactly.
func (m *Manager) FindGUIDsByName(name string) []domain.GUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GUID
	for guid, a := range m.assets {
		if a.name == name {
			out = append(out, guid)
		}
	}
	return out
}

// IsBusy reports whether any load/unload/reload task is currently queued
// or executing.
func (m *Manager) IsBusy() bool {
	return m.queued.Load() > 0
}

// QueuedTasks returns the number of in-flight resource-manager tasks.
func (m *Manager) QueuedTasks() int {
	return int(m.queued.Load())
}

// WaitUntilIdle blocks until every in-flight task has completed.
func (m *Manager) WaitUntilIdle() {
	m.inflight.Wait()
}

// HandleForGUID returns the cached handle for a loaded asset, if any.
func (m *Manager) HandleForGUID(guid domain.GUID) (domain.MetaHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[guid]
	if !ok || a.loadState != Loaded || a.handle.IsNull() {
		return domain.NullMetaHandle(), false
	}
	return a.handle, true
}

// SetHandle records the pool slot backing guid, as later returned by
// HandleForGUID and passed to CollectAssetGUIDs during recursive
// validation.
func (m *Manager) SetHandle(guid domain.GUID, handle domain.MetaHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.stateFor(guid)
	a.handle = handle
}

func dedupe(guids []domain.GUID) []domain.GUID {
	seen := make(map[domain.GUID]bool, len(guids))
	out := make([]domain.GUID, 0, len(guids))
	for _, g := range guids {
		if seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}
