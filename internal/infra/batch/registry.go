package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjgribel/eeng-core/internal/domain"
	"github.com/cjgribel/eeng-core/internal/infra/concurrency"
	"github.com/cjgribel/eeng-core/internal/infra/meta"
	"github.com/cjgribel/eeng-core/internal/infra/metrics"
	"github.com/cjgribel/eeng-core/internal/infra/resource"
)

// Registry owns every known Batch and the per-batch strands that
// serialize state-changing operations against it (spec.md §4.7).
type Registry struct {
	mu      sync.Mutex
	batches map[domain.GUID]*Batch
	strands map[domain.GUID]*concurrency.Strand

	dir string

	reg  *meta.Registry
	rm   *resource.Manager
	ents domain.EntityRegistry
	pool *concurrency.Pool
	mtq  *concurrency.MainThreadQueue
}

// NewRegistry returns an empty batch registry. dir is stored on the
// registry; batch files are read and written at each Batch's Filename as
// given, not resolved against dir. ents is the external, main-thread-only
// entity store.
func NewRegistry(dir string, reg *meta.Registry, rm *resource.Manager, ents domain.EntityRegistry, pool *concurrency.Pool, mtq *concurrency.MainThreadQueue) *Registry {
	return &Registry{
		batches: make(map[domain.GUID]*Batch),
		strands: make(map[domain.GUID]*concurrency.Strand),
		dir:     dir,
		reg:     reg,
		rm:      rm,
		ents:    ents,
		pool:    pool,
		mtq:     mtq,
	}
}

// strandFor lazily creates the serial executor for a batch, mirroring
// BatchRegistry::strand(ctx)'s lazy std::optional<SerialExecutor>.
func (r *Registry) strandFor(batchID domain.GUID) *concurrency.Strand {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.strands[batchID]
	if !ok {
		s = concurrency.NewStrand(r.pool, batchID.String())
		r.strands[batchID] = s
	}
	return s
}

// CreateBatch registers a new, unloaded batch under id/name, backed by the
// file at filename (used as given).
func (r *Registry) CreateBatch(id domain.GUID, name, filename string) *Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &Batch{ID: id, Name: name, Filename: filename, State: Unloaded}
	r.batches[id] = b
	return b
}

// Get returns the batch for id, if known.
func (r *Registry) Get(id domain.GUID) (*Batch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, false
	}
	cp := b.snapshot()
	return &cp, true
}

// List returns a snapshot of every known batch, refreshing the
// batches-by-state gauge as a side effect so /metrics always reflects the
// most recent List/ps call.
func (r *Registry) List() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Batch, 0, len(r.batches))
	counts := map[State]int{}
	for _, b := range r.batches {
		out = append(out, b.snapshot())
		counts[b.State]++
	}
	for _, s := range []State{Unloaded, Queued, Loading, Loaded, Unloading, Error} {
		metrics.BatchesByState.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
	return out
}

func (r *Registry) bindContext() *meta.BindContext {
	return &meta.BindContext{
		ResolveAssetHandle: func(typeID domain.TypeId, guid domain.GUID) (domain.MetaHandle, bool) {
			h, ok := r.rm.HandleForGUID(guid)
			if !ok || h.Type != typeID {
				return domain.MetaHandle{}, false
			}
			return h, true
		},
		ResolveEntity: r.ents.EntityByGUID,
	}
}

// QueueLoad reads the batch file, loads its asset closure, spawns its
// entities on the main thread, and binds their refs (spec.md §4.7
// queue_load). A missing batch file is treated as an empty batch
// (spec.md §8 scenario 8): success, empty closure, empty live set.
func (r *Registry) QueueLoad(ctx context.Context, batchID domain.GUID) *concurrency.StrandTask[domain.TaskResult] {
	strand := r.strandFor(batchID)
	return concurrency.SubmitStrand(strand, func() (domain.TaskResult, error) {
		return r.doQueueLoad(ctx, batchID)
	})
}

func (r *Registry) doQueueLoad(ctx context.Context, batchID domain.GUID) (domain.TaskResult, error) {
	start := time.Now()
	defer func() { metrics.BatchTaskDuration.WithLabelValues("load").Observe(time.Since(start).Seconds()) }()

	r.mu.Lock()
	b, ok := r.batches[batchID]
	if !ok {
		r.mu.Unlock()
		return domain.TaskResult{}, domain.ErrBatchNotFound
	}
	b.State = Queued
	filename := b.Filename
	r.mu.Unlock()

	file, err := readBatchFile(filename)
	if err != nil {
		return r.failBatch("load", b, err)
	}

	r.mu.Lock()
	b.State = Loading
	r.mu.Unlock()

	result := domain.NewTaskResult()
	if len(file.Header.AssetClosure) > 0 {
		loaded, err := r.rm.LoadAndBindAsync(ctx, file.Header.AssetClosure, batchID).Wait()
		if err != nil {
			return r.failBatch("load", b, err)
		}
		result.Merge(loaded)
		if !loaded.Success {
			return r.failBatch("load", b, domain.ErrLoadFailed)
		}
	}

	liveIDs, err := concurrency.PushAndWait(r.mtq, func() ([]domain.EntityId, error) {
		return r.spawnEntities(file.Entities)
	})
	if err != nil {
		return r.failBatch("load", b, err)
	}

	r.mu.Lock()
	b.Live = liveIDs
	b.AssetClosure = file.Header.AssetClosure
	b.Name = file.Header.Name
	b.State = Loaded
	b.ErrorMessage = ""
	r.mu.Unlock()

	metrics.BatchTasksCompleted.WithLabelValues("load", "done").Inc()
	return result, nil
}

// failBatch marks b as Error and records task outcome under metric label
// task (spec.md §4.7 error-state transition).
func (r *Registry) failBatch(task string, b *Batch, err error) (domain.TaskResult, error) {
	r.mu.Lock()
	b.State = Error
	b.ErrorMessage = err.Error()
	r.mu.Unlock()
	metrics.BatchTasksCompleted.WithLabelValues(task, "error").Inc()
	res := domain.NewTaskResult()
	res.Fail(b.ID, err)
	return res, nil
}

// spawnEntities creates every descriptor's entity (parents before
// children, by persisted order) and deserializes its components,
// returning the live entity ids. Must run on the main thread.
func (r *Registry) spawnEntities(descs []EntityDescriptor) ([]domain.EntityId, error) {
	guidToID := make(map[domain.GUID]domain.EntityId, len(descs))
	ids := make([]domain.EntityId, 0, len(descs))

	for _, d := range descs {
		parent := domain.InvalidEntityId
		if d.ParentGUID.Valid() {
			if pid, ok := guidToID[d.ParentGUID]; ok {
				parent = pid
			} else if pid, ok := r.ents.EntityByGUID(d.ParentGUID); ok {
				parent = pid
			}
		}
		id, _ := r.ents.CreateEntity(parent, d.Name)
		guidToID[d.GUID] = id
		ids = append(ids, id)

		for typeName, raw := range d.Components {
			info, ok := r.reg.TypeOfName(typeName)
			if !ok {
				continue
			}
			val := info.New()
			if err := meta.Deserialize(r.reg, raw, val, r.bindContext()); err != nil {
				return nil, fmt.Errorf("deserialize component %s on entity %s: %w", typeName, d.GUID, err)
			}
			r.ents.AddComponent(id, info.TypeId, val.Interface())
			if info.Funcs.BindAssetRefs != nil {
				info.Funcs.BindAssetRefs(val.Interface(), r.bindContext())
			}
			if info.Funcs.BindEntityRefs != nil {
				info.Funcs.BindEntityRefs(val.Interface(), r.bindContext())
			}
		}
	}
	return ids, nil
}

// QueueUnload unbinds and destroys the batch's live entities on the main
// thread, then releases its asset closure's leases (spec.md §4.7
// queue_unload). If the resource manager refuses to unload, the batch
// stays in Error with its closure intact.
func (r *Registry) QueueUnload(ctx context.Context, batchID domain.GUID) *concurrency.StrandTask[domain.TaskResult] {
	strand := r.strandFor(batchID)
	return concurrency.SubmitStrand(strand, func() (domain.TaskResult, error) {
		return r.doQueueUnload(ctx, batchID)
	})
}

func (r *Registry) doQueueUnload(ctx context.Context, batchID domain.GUID) (domain.TaskResult, error) {
	start := time.Now()
	defer func() { metrics.BatchTaskDuration.WithLabelValues("unload").Observe(time.Since(start).Seconds()) }()

	r.mu.Lock()
	b, ok := r.batches[batchID]
	if !ok {
		r.mu.Unlock()
		return domain.TaskResult{}, domain.ErrBatchNotFound
	}
	b.State = Unloading
	live := append([]domain.EntityId(nil), b.Live...)
	closure := append([]domain.GUID(nil), b.AssetClosure...)
	r.mu.Unlock()

	_, err := concurrency.PushAndWait(r.mtq, func() (struct{}, error) {
		for _, id := range live {
			r.ents.DestroyEntity(id)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return r.failBatch("unload", b, err)
	}

	r.mu.Lock()
	b.Live = nil
	r.mu.Unlock()

	result := domain.NewTaskResult()
	if len(closure) > 0 {
		unloaded, err := r.rm.UnbindAndUnloadAsync(ctx, closure, batchID).Wait()
		if err != nil || !unloaded.Success {
			return r.failBatch("unload", b, fmt.Errorf("%w", domain.ErrUnloadRefused))
		}
		result.Merge(unloaded)
	}

	r.mu.Lock()
	b.State = Unloaded
	b.ErrorMessage = ""
	r.mu.Unlock()
	metrics.BatchTasksCompleted.WithLabelValues("unload", "done").Inc()
	return result, nil
}

// QueueSaveBatch serializes every live entity with purpose=file and writes
// the batch file. Requires state == Loaded (spec.md §4.7).
func (r *Registry) QueueSaveBatch(batchID domain.GUID) *concurrency.StrandTask[domain.TaskResult] {
	strand := r.strandFor(batchID)
	return concurrency.SubmitStrand(strand, func() (domain.TaskResult, error) {
		return r.doQueueSaveBatch(batchID)
	})
}

func (r *Registry) doQueueSaveBatch(batchID domain.GUID) (domain.TaskResult, error) {
	start := time.Now()
	defer func() { metrics.BatchTaskDuration.WithLabelValues("save").Observe(time.Since(start).Seconds()) }()

	r.mu.Lock()
	b, ok := r.batches[batchID]
	if !ok {
		r.mu.Unlock()
		return domain.TaskResult{}, domain.ErrBatchNotFound
	}
	if b.State != Loaded {
		r.mu.Unlock()
		metrics.BatchTasksCompleted.WithLabelValues("save", "error").Inc()
		res := domain.NewTaskResult()
		res.Fail(batchID, domain.ErrBatchStateViolation)
		return res, nil
	}
	snapshot := b.snapshot()
	r.mu.Unlock()

	descs, err := concurrency.PushAndWait(r.mtq, func() ([]EntityDescriptor, error) {
		return r.describeEntities(snapshot.Live)
	})
	if err != nil {
		return r.failBatch("save", b, err)
	}

	file := BatchFile{
		Header: BatchHeader{
			ID:           snapshot.ID,
			Name:         snapshot.Name,
			AssetClosure: snapshot.AssetClosure,
		},
		Entities: descs,
	}
	if err := writeBatchFile(snapshot.Filename, file); err != nil {
		return r.failBatch("save", b, err)
	}
	metrics.BatchTasksCompleted.WithLabelValues("save", "done").Inc()
	return domain.NewTaskResult(), nil
}

func (r *Registry) describeEntities(ids []domain.EntityId) ([]EntityDescriptor, error) {
	out := make([]EntityDescriptor, 0, len(ids))
	for _, id := range ids {
		guid, _ := r.ents.GUIDOf(id)
		parentGUID := domain.InvalidGUID
		if pid, ok := r.ents.Parent(id); ok {
			parentGUID, _ = r.ents.GUIDOf(pid)
		}
		name := ""
		comps := make(map[string]any)
		for typeID, value := range r.ents.Components(id) {
			info, ok := r.reg.TypeOf(typeID)
			if !ok {
				continue
			}
			serialized, err := meta.Serialize(r.reg, value, meta.PurposeFile)
			if err != nil {
				return nil, fmt.Errorf("serialize component %s on entity %s: %w", info.IDString, guid, err)
			}
			comps[info.IDString] = serialized
		}
		out = append(out, EntityDescriptor{
			GUID:       guid,
			Name:       name,
			ParentGUID: parentGUID,
			Components: comps,
		})
	}
	return out, nil
}

// QueueCreateEntity creates a bare entity under parentGUID (main thread)
// with no components and therefore no closure contribution.
func (r *Registry) QueueCreateEntity(batchID, parentGUID domain.GUID, name string) *concurrency.StrandTask[domain.EntityRef] {
	strand := r.strandFor(batchID)
	return concurrency.SubmitStrand(strand, func() (domain.EntityRef, error) {
		return concurrency.PushAndWait(r.mtq, func() (domain.EntityRef, error) {
			parent := domain.InvalidEntityId
			if parentGUID.Valid() {
				parent, _ = r.ents.EntityByGUID(parentGUID)
			}
			id, guid := r.ents.CreateEntity(parent, name)

			r.mu.Lock()
			if b, ok := r.batches[batchID]; ok {
				b.Live = append(b.Live, id)
			}
			r.mu.Unlock()

			return domain.EntityRef{GUID: guid, ID: id}, nil
		})
	})
}

// QueueDestroyEntity destroys entityGUID's entity on the main thread and
// drops it from the batch's live set.
func (r *Registry) QueueDestroyEntity(batchID, entityGUID domain.GUID) *concurrency.StrandTask[bool] {
	strand := r.strandFor(batchID)
	return concurrency.SubmitStrand(strand, func() (bool, error) {
		return concurrency.PushAndWait(r.mtq, func() (bool, error) {
			id, ok := r.ents.EntityByGUID(entityGUID)
			if !ok {
				return false, nil
			}
			r.ents.DestroyEntity(id)

			r.mu.Lock()
			if b, ok := r.batches[batchID]; ok {
				b.Live = removeEntityID(b.Live, id)
			}
			r.mu.Unlock()
			return true, nil
		})
	})
}

func removeEntityID(ids []domain.EntityId, target domain.EntityId) []domain.EntityId {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// QueueAttachEntity adds an existing live entity's direct asset refs into
// the batch's closure and leases them, after attaching it to the batch's
// live set (spec.md §4.7).
func (r *Registry) QueueAttachEntity(ctx context.Context, batchID, entityGUID domain.GUID) *concurrency.StrandTask[bool] {
	strand := r.strandFor(batchID)
	return concurrency.SubmitStrand(strand, func() (bool, error) {
		id, ok := r.ents.EntityByGUID(entityGUID)
		if !ok {
			return false, domain.ErrAssetNotFound
		}
		direct := r.directAssetGUIDs(id)

		r.mu.Lock()
		b, ok := r.batches[batchID]
		if !ok {
			r.mu.Unlock()
			return false, domain.ErrBatchNotFound
		}
		b.Live = append(b.Live, id)
		added := appendNew(&b.AssetClosure, direct)
		r.mu.Unlock()

		if len(added) > 0 {
			if _, err := r.rm.LoadAndBindAsync(ctx, added, batchID).Wait(); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// QueueDetachEntity removes an entity from the batch's live set without
// destroying it (its leases are left to the next rebuild_closure pass).
func (r *Registry) QueueDetachEntity(batchID, entityGUID domain.GUID) *concurrency.StrandTask[bool] {
	strand := r.strandFor(batchID)
	return concurrency.SubmitStrand(strand, func() (bool, error) {
		id, ok := r.ents.EntityByGUID(entityGUID)
		if !ok {
			return false, nil
		}
		r.mu.Lock()
		if b, ok := r.batches[batchID]; ok {
			b.Live = removeEntityID(b.Live, id)
		}
		r.mu.Unlock()
		return true, nil
	})
}

// QueueSpawnEntity creates an entity from a descriptor, binds it, and
// folds its direct asset refs into the batch closure.
func (r *Registry) QueueSpawnEntity(ctx context.Context, batchID domain.GUID, desc EntityDescriptor) *concurrency.StrandTask[domain.EntityRef] {
	strand := r.strandFor(batchID)
	return concurrency.SubmitStrand(strand, func() (domain.EntityRef, error) {
		ref, err := concurrency.PushAndWait(r.mtq, func() (domain.EntityRef, error) {
			ids, err := r.spawnEntities([]EntityDescriptor{desc})
			if err != nil || len(ids) == 0 {
				return domain.EntityRef{}, err
			}
			id := ids[0]
			guid, _ := r.ents.GUIDOf(id)

			r.mu.Lock()
			if b, ok := r.batches[batchID]; ok {
				b.Live = append(b.Live, id)
			}
			r.mu.Unlock()
			return domain.EntityRef{GUID: guid, ID: id}, nil
		})
		if err != nil {
			return domain.EntityRef{}, err
		}

		direct := r.directAssetGUIDs(ref.ID)
		r.mu.Lock()
		b, ok := r.batches[batchID]
		var added []domain.GUID
		if ok {
			added = appendNew(&b.AssetClosure, direct)
		}
		r.mu.Unlock()
		if len(added) > 0 {
			if _, err := r.rm.LoadAndBindAsync(ctx, added, batchID).Wait(); err != nil {
				return ref, err
			}
		}
		return ref, nil
	})
}

func (r *Registry) directAssetGUIDs(id domain.EntityId) []domain.GUID {
	var out []domain.GUID
	for typeID, value := range r.ents.Components(id) {
		info, ok := r.reg.TypeOf(typeID)
		if !ok || info.Funcs.CollectAssetGUIDs == nil {
			continue
		}
		out = append(out, info.Funcs.CollectAssetGUIDs(value)...)
	}
	return out
}

func appendNew(closure *[]domain.GUID, candidates []domain.GUID) []domain.GUID {
	existing := make(map[domain.GUID]bool, len(*closure))
	for _, g := range *closure {
		existing[g] = true
	}
	var added []domain.GUID
	for _, g := range candidates {
		if !g.Valid() || existing[g] {
			continue
		}
		existing[g] = true
		*closure = append(*closure, g)
		added = append(added, g)
	}
	*closure = domain.SortGUIDs(*closure)
	return added
}

// QueueRebuildClosure recomputes the batch's asset closure from its live
// entities' direct refs, unbinding anything no longer reachable and
// binding anything newly reachable (spec.md §4.7 "Closure construction").
func (r *Registry) QueueRebuildClosure(ctx context.Context, batchID domain.GUID) *concurrency.StrandTask[domain.BatchTaskCompletedEvent] {
	strand := r.strandFor(batchID)
	return concurrency.SubmitStrand(strand, func() (domain.BatchTaskCompletedEvent, error) {
		r.mu.Lock()
		b, ok := r.batches[batchID]
		if !ok {
			r.mu.Unlock()
			return domain.BatchTaskCompletedEvent{}, domain.ErrBatchNotFound
		}
		live := append([]domain.EntityId(nil), b.Live...)
		oldClosure := append([]domain.GUID(nil), b.AssetClosure...)
		r.mu.Unlock()

		var roots []domain.GUID
		for _, id := range live {
			roots = append(roots, r.directAssetGUIDs(id)...)
		}

		built := buildAssetClosureBFS(ctx, r.rm, r.reg, roots, oldClosure, batchID)
		if !built.result.Success {
			rollbackClosure(ctx, r.rm, batchID, built.loadedNow)
			return r.rebuildFailed(b, oldClosure)
		}

		added, removed := diffClosures(oldClosure, built.closure)
		if len(removed) > 0 {
			r.rm.UnbindAndUnloadAsync(ctx, removed, batchID)
		}

		r.mu.Lock()
		b.AssetClosure = built.closure
		r.mu.Unlock()

		return domain.BatchTaskCompletedEvent{
			Type:             "rebuild_closure",
			BatchId:          batchID,
			BatchName:        b.Name,
			Success:          true,
			LiveEntities:     len(live),
			AssetClosureSize: len(built.closure),
			HasClosureDelta:  len(added) > 0 || len(removed) > 0,
			ClosureOld:       oldClosure,
			ClosureNew:       built.closure,
			ClosureAdded:     added,
			ClosureRemoved:   removed,
		}, nil
	})
}

func (r *Registry) rebuildFailed(b *Batch, oldClosure []domain.GUID) (domain.BatchTaskCompletedEvent, error) {
	return domain.BatchTaskCompletedEvent{
		Type:         "rebuild_closure",
		BatchId:      b.ID,
		BatchName:    b.Name,
		Success:      false,
		ClosureOld:   oldClosure,
		ClosureNew:   oldClosure,
	}, domain.ErrLoadFailed
}

func diffClosures(old, next []domain.GUID) (added, removed []domain.GUID) {
	oldSet := make(map[domain.GUID]bool, len(old))
	for _, g := range old {
		oldSet[g] = true
	}
	nextSet := make(map[domain.GUID]bool, len(next))
	for _, g := range next {
		nextSet[g] = true
	}
	for _, g := range next {
		if !oldSet[g] {
			added = append(added, g)
		}
	}
	for _, g := range old {
		if !nextSet[g] {
			removed = append(removed, g)
		}
	}
	return added, removed
}

// QueueLoadAllAsync fans QueueLoad out to every known batch in parallel,
// aggregating success by AND.
func (r *Registry) QueueLoadAllAsync(ctx context.Context) *concurrency.Task[domain.TaskResult] {
	ids := r.batchIDs()
	return concurrency.Submit(r.pool, func() (domain.TaskResult, error) {
		return r.fanOut(ids, func(id domain.GUID) (domain.TaskResult, error) {
			return r.QueueLoad(ctx, id).Wait()
		})
	})
}

// QueueUnloadAllAsync fans QueueUnload out to every known batch.
func (r *Registry) QueueUnloadAllAsync(ctx context.Context) *concurrency.Task[domain.TaskResult] {
	ids := r.batchIDs()
	return concurrency.Submit(r.pool, func() (domain.TaskResult, error) {
		return r.fanOut(ids, func(id domain.GUID) (domain.TaskResult, error) {
			return r.QueueUnload(ctx, id).Wait()
		})
	})
}

// QueueSaveAllAsync fans QueueSaveBatch out to every Loaded batch.
func (r *Registry) QueueSaveAllAsync() *concurrency.Task[domain.TaskResult] {
	ids := r.batchIDs()
	return concurrency.Submit(r.pool, func() (domain.TaskResult, error) {
		return r.fanOut(ids, func(id domain.GUID) (domain.TaskResult, error) {
			return r.QueueSaveBatch(id).Wait()
		})
	})
}

func (r *Registry) batchIDs() []domain.GUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.GUID, 0, len(r.batches))
	for id := range r.batches {
		out = append(out, id)
	}
	return out
}

func (r *Registry) fanOut(ids []domain.GUID, op func(domain.GUID) (domain.TaskResult, error)) (domain.TaskResult, error) {
	type outcome struct {
		result domain.TaskResult
		err    error
	}
	outcomes := make([]outcome, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id domain.GUID) {
			defer wg.Done()
			res, err := op(id)
			outcomes[i] = outcome{res, err}
		}(i, id)
	}
	wg.Wait()

	agg := domain.NewTaskResult()
	for i, o := range outcomes {
		if o.err != nil {
			agg.Fail(ids[i], o.err)
			continue
		}
		agg.Merge(o.result)
	}
	return agg, nil
}
