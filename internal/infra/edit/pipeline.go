package edit

import (
	"github.com/cjgribel/eeng-core/internal/domain"
	"github.com/cjgribel/eeng-core/internal/infra/events"
	"github.com/cjgribel/eeng-core/internal/infra/meta"
	"github.com/cjgribel/eeng-core/internal/infra/storage"
)

// Pipeline wires the collaborators every edit command needs: the
// reflection registry for path walking and purpose-scoped
// serialize/deserialize, the live entity registry, asset Storage, and the
// event bus field edits are reported on.
//
// Grounded on _examples/original_source/src/editor/Context.hpp, which
// bundles the same collaborators behind a weak_ptr<EngineContext> that
// every *Command constructor captures; Go has no weak_ptr analogue the
// pack offers, so Pipeline is held by plain pointer and the caller is
// responsible for its lifetime (same assumption the teacher's
// request-scoped handler structs make about their dependencies).
type Pipeline struct {
	Reg  *meta.Registry
	Ents domain.EntityRegistry
	Stg  *storage.Storage
	Bus  *events.Bus

	// BindCtx resolves asset/entity refs during undo/redo-driven
	// deserialize. May be nil if components never carry soft references.
	BindCtx *meta.BindContext

	// ClosureDirty is invoked with the GUID of an entity whose component
	// set (and therefore its direct asset references) changed, so the
	// batch registry can recompute the owning batch's closure. Left as a
	// callback rather than a direct internal/infra/batch dependency so
	// this package stays usable without a Batch Registry in the loop.
	ClosureDirty func(entityGUID domain.GUID)
}

// NewPipeline wires a Pipeline from its collaborators.
func NewPipeline(reg *meta.Registry, ents domain.EntityRegistry, stg *storage.Storage, bus *events.Bus) *Pipeline {
	return &Pipeline{Reg: reg, Ents: ents, Stg: stg, Bus: bus}
}

func (p *Pipeline) publishFieldChanged(target domain.FieldTarget, path domain.MetaFieldPath, isUndo bool) {
	if p.Bus == nil {
		return
	}
	events.Enqueue(p.Bus, domain.FieldChangedEvent{Target: target, MetaPath: path, IsUndo: isUndo})
}

func (p *Pipeline) notifyClosureDirty(entityGUID domain.GUID) {
	if p.ClosureDirty != nil {
		p.ClosureDirty(entityGUID)
	}
}

// EntitySnapshot captures one entity's parent and component set, purpose-
// filtered for undo (spec.md §4.4 PurposeUndo), so a structural command can
// recreate it symmetrically.
type EntitySnapshot struct {
	ParentGUID domain.GUID
	Components map[domain.TypeId]any
}

func (p *Pipeline) captureEntity(id domain.EntityId) EntitySnapshot {
	parentID, _ := p.Ents.Parent(id)
	parentGUID, _ := p.Ents.GUIDOf(parentID)
	comps := p.Ents.Components(id)
	snap := EntitySnapshot{ParentGUID: parentGUID, Components: make(map[domain.TypeId]any, len(comps))}
	for tid, c := range comps {
		raw, err := meta.Serialize(p.Reg, c, meta.PurposeUndo)
		if err != nil {
			continue
		}
		snap.Components[tid] = raw
	}
	return snap
}

func (p *Pipeline) restoreComponents(id domain.EntityId, snap EntitySnapshot) {
	for tid, raw := range snap.Components {
		info, ok := p.Reg.TypeOf(tid)
		if !ok {
			continue
		}
		val := info.New()
		if err := meta.Deserialize(p.Reg, raw, val, p.BindCtx); err != nil {
			continue
		}
		p.Ents.AddComponent(id, tid, val.Interface())
		if info.Funcs.BindAssetRefs != nil {
			_ = info.Funcs.BindAssetRefs(val.Interface(), p.BindCtx)
		}
		if info.Funcs.BindEntityRefs != nil {
			_ = info.Funcs.BindEntityRefs(val.Interface(), p.BindCtx)
		}
	}
}

// branchSnapshot recursively captures an entity and its descendants so a
// branch-level structural command can undo as one unit.
type branchSnapshot struct {
	name     string
	snapshot EntitySnapshot
	children []branchSnapshot
}

func (p *Pipeline) captureBranch(id domain.EntityId, name string) branchSnapshot {
	bs := branchSnapshot{name: name, snapshot: p.captureEntity(id)}
	for _, childID := range p.Ents.Children(id) {
		bs.children = append(bs.children, p.captureBranch(childID, ""))
	}
	return bs
}

// restoreBranch recreates bs under parent, recursing into children, and
// returns the id of the newly created root.
//
// entity.Registry has no accessor for a live entity's display name (it is
// opaque to the scene-graph collaborator per spec.md §1), so names below
// the branch root are lost across a destroy/undo cycle; this is the same
// limitation the Batch Registry's own reload path accepts (see
// internal/infra/batch/registry.go spawnEntities, which does not attempt
// to preserve a reloaded entity's original GUID either).
func (p *Pipeline) restoreBranch(bs branchSnapshot, parent domain.EntityId) domain.EntityId {
	id, _ := p.Ents.CreateEntity(parent, bs.name)
	p.restoreComponents(id, bs.snapshot)
	for _, child := range bs.children {
		p.restoreBranch(child, id)
	}
	return id
}

// collectAssetGUIDsFor dispatches the reflected collect_asset_guids
// function for componentID, if registered.
func collectAssetGUIDsFor(reg *meta.Registry, componentID domain.TypeId, v any) []domain.GUID {
	info, ok := reg.TypeOf(componentID)
	if !ok || info.Funcs.CollectAssetGUIDs == nil {
		return nil
	}
	return info.Funcs.CollectAssetGUIDs(v)
}

// closureChanged reports whether the two asset-GUID sets differ, ignoring
// order (spec.md §4.8 "changed the set of asset GUIDs referenced").
func closureChanged(before, after []domain.GUID) bool {
	b := domain.SortGUIDs(append([]domain.GUID(nil), before...))
	a := domain.SortGUIDs(append([]domain.GUID(nil), after...))
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}
