package domain

// EntityRegistry is the external, main-thread-only entity/component store
// that the editor's scene-graph owns. spec.md §1 places the scene-graph
// tree container out of scope ("a generic ordered forest consumed by
// name"); this interface is the contract the Edit Command Pipeline and
// Batch Registry consume from it, not an implementation of it.
//
// Grounded on _examples/original_source/src/ecs/Entity.hpp (entity handles
// distinct from component storage) and engineapi/EngineContext.h (the
// context struct other subsystems reach into for the live registry).
type EntityRegistry interface {
	// CreateEntity allocates a new entity under parent (InvalidEntityId for
	// a root) and returns its id and freshly minted GUID.
	CreateEntity(parent EntityId, name string) (EntityId, GUID)

	// DestroyEntity removes an entity and its components immediately.
	DestroyEntity(id EntityId)

	// EntityByGUID resolves a GUID to a live EntityId.
	EntityByGUID(guid GUID) (EntityId, bool)

	// LiveEntities returns every entity currently registered.
	LiveEntities() []EntityId

	// GUIDOf returns the GUID of a live entity.
	GUIDOf(id EntityId) (GUID, bool)

	// Children returns the direct children of an entity (or of the forest
	// roots when parent is InvalidEntityId).
	Children(parent EntityId) []EntityId

	// SetParent reparents an entity.
	SetParent(id EntityId, parent EntityId)

	// Parent returns an entity's current parent, if any.
	Parent(id EntityId) (EntityId, bool)

	// Component fetches a component value by type.
	Component(id EntityId, componentType TypeId) (any, bool)

	// Components returns every component attached to an entity, keyed by
	// type id, for serialization.
	Components(id EntityId) map[TypeId]any

	// SetComponent overwrites a component's value in place.
	SetComponent(id EntityId, componentType TypeId, value any)

	// AddComponent attaches a new component.
	AddComponent(id EntityId, componentType TypeId, value any)

	// RemoveComponent detaches a component.
	RemoveComponent(id EntityId, componentType TypeId)
}
