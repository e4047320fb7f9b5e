// Package entity is a minimal in-memory implementation of
// domain.EntityRegistry, standing in for the editor's scene-graph
// collaborator (spec.md §1 places the scene-graph itself out of scope).
// It exists so the Edit Command Pipeline and Batch Registry can be
// exercised end to end without a real editor host.
//
// Grounded on _examples/original_source/src/ecs/Entity.hpp (parent-child
// forest of opaque entity ids) — Go's plain maps replace the original's
// sparse-set ECS storage since this package only needs to stand in as a
// test/reference collaborator, not a production scene graph.
package entity

import (
	"sync"

	"github.com/cjgribel/eeng-core/internal/domain"
)

type node struct {
	id       domain.EntityId
	guid     domain.GUID
	parent   domain.EntityId
	children []domain.EntityId
}

// Registry is an in-memory entity/component store. Every method takes the
// registry's mutex, so calls from any goroutine are serialized.
type Registry struct {
	mu         sync.Mutex
	nextID     domain.EntityId
	nodes      map[domain.EntityId]*node
	byGUID     map[domain.GUID]domain.EntityId
	components map[domain.EntityId]map[domain.TypeId]any
}

// NewRegistry returns an empty entity registry.
func NewRegistry() *Registry {
	return &Registry{
		nextID:     1,
		nodes:      make(map[domain.EntityId]*node),
		byGUID:     make(map[domain.GUID]domain.EntityId),
		components: make(map[domain.EntityId]map[domain.TypeId]any),
	}
}

func (r *Registry) CreateEntity(parent domain.EntityId, name string) (domain.EntityId, domain.GUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	guid := domain.NewGUID()

	r.nodes[id] = &node{id: id, guid: guid, parent: parent}
	r.byGUID[guid] = id
	r.components[id] = make(map[domain.TypeId]any)

	if parent != domain.InvalidEntityId {
		if p, ok := r.nodes[parent]; ok {
			p.children = append(p.children, id)
		}
	}
	return id, guid
}

func (r *Registry) DestroyEntity(id domain.EntityId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyLocked(id)
}

func (r *Registry) destroyLocked(id domain.EntityId) {
	n, ok := r.nodes[id]
	if !ok {
		return
	}
	for _, child := range append([]domain.EntityId(nil), n.children...) {
		r.destroyLocked(child)
	}
	if p, ok := r.nodes[n.parent]; ok {
		p.children = removeID(p.children, id)
	}
	delete(r.byGUID, n.guid)
	delete(r.components, id)
	delete(r.nodes, id)
}

func removeID(ids []domain.EntityId, target domain.EntityId) []domain.EntityId {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) EntityByGUID(guid domain.GUID) (domain.EntityId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byGUID[guid]
	return id, ok
}

func (r *Registry) LiveEntities() []domain.EntityId {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EntityId, 0, len(r.nodes))
	for id := range r.nodes {
		out = append(out, id)
	}
	return out
}

func (r *Registry) GUIDOf(id domain.EntityId) (domain.GUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return domain.InvalidGUID, false
	}
	return n.guid, true
}

func (r *Registry) Children(parent domain.EntityId) []domain.EntityId {
	r.mu.Lock()
	defer r.mu.Unlock()
	if parent == domain.InvalidEntityId {
		var roots []domain.EntityId
		for id, n := range r.nodes {
			if n.parent == domain.InvalidEntityId {
				roots = append(roots, id)
			}
		}
		return roots
	}
	n, ok := r.nodes[parent]
	if !ok {
		return nil
	}
	return append([]domain.EntityId(nil), n.children...)
}

func (r *Registry) SetParent(id domain.EntityId, parent domain.EntityId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return
	}
	if old, ok := r.nodes[n.parent]; ok {
		old.children = removeID(old.children, id)
	}
	n.parent = parent
	if p, ok := r.nodes[parent]; ok {
		p.children = append(p.children, id)
	}
}

func (r *Registry) Parent(id domain.EntityId) (domain.EntityId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok || n.parent == domain.InvalidEntityId {
		return domain.InvalidEntityId, false
	}
	return n.parent, true
}

func (r *Registry) Component(id domain.EntityId, componentType domain.TypeId) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	comps, ok := r.components[id]
	if !ok {
		return nil, false
	}
	v, ok := comps[componentType]
	return v, ok
}

func (r *Registry) Components(id domain.EntityId) map[domain.TypeId]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	comps, ok := r.components[id]
	if !ok {
		return nil
	}
	out := make(map[domain.TypeId]any, len(comps))
	for k, v := range comps {
		out[k] = v
	}
	return out
}

func (r *Registry) SetComponent(id domain.EntityId, componentType domain.TypeId, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	comps, ok := r.components[id]
	if !ok {
		return
	}
	comps[componentType] = value
}

func (r *Registry) AddComponent(id domain.EntityId, componentType domain.TypeId, value any) {
	r.SetComponent(id, componentType, value)
}

func (r *Registry) RemoveComponent(id domain.EntityId, componentType domain.TypeId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	comps, ok := r.components[id]
	if !ok {
		return
	}
	delete(comps, componentType)
}
