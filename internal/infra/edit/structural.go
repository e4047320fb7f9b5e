package edit

import (
	"github.com/cjgribel/eeng-core/internal/domain"
	"github.com/cjgribel/eeng-core/internal/infra/meta"
)

// CreateEntityCommand creates a bare entity under a parent. Redo (a second
// Execute after Undo) mints a fresh GUID/EntityId, the same limitation
// accepted by the Batch Registry's reload path.
type CreateEntityCommand struct {
	pipeline    *Pipeline
	parentGUID  domain.GUID
	name        string
	displayName string

	createdID   domain.EntityId
	createdGUID domain.GUID
	live        bool
}

func NewCreateEntityCommand(p *Pipeline, parentGUID domain.GUID, name string) *CreateEntityCommand {
	return &CreateEntityCommand{pipeline: p, parentGUID: parentGUID, name: name, displayName: "create entity " + name}
}

func (c *CreateEntityCommand) Execute() domain.CommandStatus {
	parent := domain.InvalidEntityId
	if c.parentGUID.Valid() {
		id, ok := c.pipeline.Ents.EntityByGUID(c.parentGUID)
		if !ok {
			return domain.CommandFailed
		}
		parent = id
	}
	id, guid := c.pipeline.Ents.CreateEntity(parent, c.name)
	c.createdID, c.createdGUID, c.live = id, guid, true
	c.pipeline.notifyClosureDirty(guid)
	return domain.CommandDone
}

func (c *CreateEntityCommand) Undo() domain.CommandStatus {
	if !c.live {
		return domain.CommandSkipped
	}
	c.pipeline.Ents.DestroyEntity(c.createdID)
	c.pipeline.notifyClosureDirty(c.createdGUID)
	c.live = false
	return domain.CommandDone
}

func (c *CreateEntityCommand) Name() string { return c.displayName }

// DestroyEntityCommand destroys a single entity, capturing its parent and
// component set (via PurposeUndo serialization) so Undo can recreate it.
type DestroyEntityCommand struct {
	pipeline    *Pipeline
	name        string
	displayName string

	currentGUID domain.GUID
	snapshot    EntitySnapshot
	captured    bool
}

func NewDestroyEntityCommand(p *Pipeline, entityGUID domain.GUID, name string) *DestroyEntityCommand {
	return &DestroyEntityCommand{pipeline: p, currentGUID: entityGUID, name: name, displayName: "destroy entity " + name}
}

func (c *DestroyEntityCommand) Execute() domain.CommandStatus {
	id, ok := c.pipeline.Ents.EntityByGUID(c.currentGUID)
	if !ok {
		return domain.CommandFailed
	}
	c.snapshot = c.pipeline.captureEntity(id)
	c.captured = true
	c.pipeline.Ents.DestroyEntity(id)
	c.pipeline.notifyClosureDirty(c.currentGUID)
	return domain.CommandDone
}

func (c *DestroyEntityCommand) Undo() domain.CommandStatus {
	if !c.captured {
		return domain.CommandSkipped
	}
	parent := domain.InvalidEntityId
	if c.snapshot.ParentGUID.Valid() {
		parent, _ = c.pipeline.Ents.EntityByGUID(c.snapshot.ParentGUID)
	}
	id, guid := c.pipeline.Ents.CreateEntity(parent, c.name)
	c.pipeline.restoreComponents(id, c.snapshot)
	c.currentGUID = guid
	c.pipeline.notifyClosureDirty(guid)
	return domain.CommandDone
}

func (c *DestroyEntityCommand) Name() string { return c.displayName }

// DestroyEntityBranchCommand destroys an entity and its full descendant
// subtree as one undoable unit.
type DestroyEntityBranchCommand struct {
	pipeline    *Pipeline
	name        string
	displayName string

	rootGUID   domain.GUID
	parentGUID domain.GUID
	branch     branchSnapshot
	captured   bool
}

func NewDestroyEntityBranchCommand(p *Pipeline, rootGUID domain.GUID, name string) *DestroyEntityBranchCommand {
	return &DestroyEntityBranchCommand{pipeline: p, rootGUID: rootGUID, name: name, displayName: "destroy branch " + name}
}

func (c *DestroyEntityBranchCommand) Execute() domain.CommandStatus {
	id, ok := c.pipeline.Ents.EntityByGUID(c.rootGUID)
	if !ok {
		return domain.CommandFailed
	}
	parentID, _ := c.pipeline.Ents.Parent(id)
	c.parentGUID, _ = c.pipeline.Ents.GUIDOf(parentID)
	c.branch = c.pipeline.captureBranch(id, c.name)
	c.captured = true
	c.pipeline.Ents.DestroyEntity(id)
	c.pipeline.notifyClosureDirty(c.rootGUID)
	return domain.CommandDone
}

func (c *DestroyEntityBranchCommand) Undo() domain.CommandStatus {
	if !c.captured {
		return domain.CommandSkipped
	}
	parent := domain.InvalidEntityId
	if c.parentGUID.Valid() {
		parent, _ = c.pipeline.Ents.EntityByGUID(c.parentGUID)
	}
	rootID := c.pipeline.restoreBranch(c.branch, parent)
	c.rootGUID, _ = c.pipeline.Ents.GUIDOf(rootID)
	c.pipeline.notifyClosureDirty(c.rootGUID)
	return domain.CommandDone
}

func (c *DestroyEntityBranchCommand) Name() string { return c.displayName }

// CopyEntityBranchCommand duplicates a live branch under a (possibly
// different) parent. Undo destroys the copy; redo re-derives a fresh copy
// from the still-live source, matching a "copy" rather than a "move".
type CopyEntityBranchCommand struct {
	pipeline       *Pipeline
	sourceGUID     domain.GUID
	destParentGUID domain.GUID
	name           string
	displayName    string

	copiedID   domain.EntityId
	copiedGUID domain.GUID
	live       bool
}

func NewCopyEntityBranchCommand(p *Pipeline, sourceGUID, destParentGUID domain.GUID, name string) *CopyEntityBranchCommand {
	return &CopyEntityBranchCommand{pipeline: p, sourceGUID: sourceGUID, destParentGUID: destParentGUID, name: name, displayName: "copy branch " + name}
}

func (c *CopyEntityBranchCommand) Execute() domain.CommandStatus {
	srcID, ok := c.pipeline.Ents.EntityByGUID(c.sourceGUID)
	if !ok {
		return domain.CommandFailed
	}
	branch := c.pipeline.captureBranch(srcID, c.name)

	parent := domain.InvalidEntityId
	if c.destParentGUID.Valid() {
		parent, ok = c.pipeline.Ents.EntityByGUID(c.destParentGUID)
		if !ok {
			return domain.CommandFailed
		}
	}
	id := c.pipeline.restoreBranch(branch, parent)
	c.copiedID = id
	c.copiedGUID, _ = c.pipeline.Ents.GUIDOf(id)
	c.live = true
	c.pipeline.notifyClosureDirty(c.copiedGUID)
	return domain.CommandDone
}

func (c *CopyEntityBranchCommand) Undo() domain.CommandStatus {
	if !c.live {
		return domain.CommandSkipped
	}
	c.pipeline.Ents.DestroyEntity(c.copiedID)
	c.pipeline.notifyClosureDirty(c.copiedGUID)
	c.live = false
	return domain.CommandDone
}

func (c *CopyEntityBranchCommand) Name() string { return c.displayName }

// ReparentEntityBranchCommand moves an entity (and, transitively, its
// children) under a new parent.
type ReparentEntityBranchCommand struct {
	pipeline      *Pipeline
	entityGUID    domain.GUID
	newParentGUID domain.GUID
	displayName   string

	prevParentGUID domain.GUID
	applied        bool
}

func NewReparentEntityBranchCommand(p *Pipeline, entityGUID, newParentGUID domain.GUID) *ReparentEntityBranchCommand {
	return &ReparentEntityBranchCommand{pipeline: p, entityGUID: entityGUID, newParentGUID: newParentGUID, displayName: "reparent entity"}
}

func (c *ReparentEntityBranchCommand) Execute() domain.CommandStatus {
	id, ok := c.pipeline.Ents.EntityByGUID(c.entityGUID)
	if !ok {
		return domain.CommandFailed
	}
	prevParent, _ := c.pipeline.Ents.Parent(id)
	c.prevParentGUID, _ = c.pipeline.Ents.GUIDOf(prevParent)

	newParent := domain.InvalidEntityId
	if c.newParentGUID.Valid() {
		newParent, ok = c.pipeline.Ents.EntityByGUID(c.newParentGUID)
		if !ok {
			return domain.CommandFailed
		}
	}
	c.pipeline.Ents.SetParent(id, newParent)
	c.applied = true
	c.pipeline.notifyClosureDirty(c.entityGUID)
	return domain.CommandDone
}

func (c *ReparentEntityBranchCommand) Undo() domain.CommandStatus {
	if !c.applied {
		return domain.CommandSkipped
	}
	id, ok := c.pipeline.Ents.EntityByGUID(c.entityGUID)
	if !ok {
		return domain.CommandFailed
	}
	prevParent := domain.InvalidEntityId
	if c.prevParentGUID.Valid() {
		prevParent, _ = c.pipeline.Ents.EntityByGUID(c.prevParentGUID)
	}
	c.pipeline.Ents.SetParent(id, prevParent)
	c.applied = false
	c.pipeline.notifyClosureDirty(c.entityGUID)
	return domain.CommandDone
}

func (c *ReparentEntityBranchCommand) Name() string { return c.displayName }

// AddComponentCommand attaches a new component to a live entity.
type AddComponentCommand struct {
	pipeline    *Pipeline
	entityGUID  domain.GUID
	componentID domain.TypeId
	initial     any
	displayName string

	added bool
}

func NewAddComponentCommand(p *Pipeline, entityGUID domain.GUID, componentID domain.TypeId, initial any) *AddComponentCommand {
	return &AddComponentCommand{pipeline: p, entityGUID: entityGUID, componentID: componentID, initial: initial, displayName: "add component"}
}

func (c *AddComponentCommand) Execute() domain.CommandStatus {
	id, ok := c.pipeline.Ents.EntityByGUID(c.entityGUID)
	if !ok {
		return domain.CommandFailed
	}
	if _, exists := c.pipeline.Ents.Component(id, c.componentID); exists {
		return domain.CommandFailed
	}
	c.pipeline.Ents.AddComponent(id, c.componentID, c.initial)
	c.added = true
	c.pipeline.notifyClosureDirty(c.entityGUID)
	return domain.CommandDone
}

func (c *AddComponentCommand) Undo() domain.CommandStatus {
	if !c.added {
		return domain.CommandSkipped
	}
	id, ok := c.pipeline.Ents.EntityByGUID(c.entityGUID)
	if !ok {
		return domain.CommandFailed
	}
	c.pipeline.Ents.RemoveComponent(id, c.componentID)
	c.added = false
	c.pipeline.notifyClosureDirty(c.entityGUID)
	return domain.CommandDone
}

func (c *AddComponentCommand) Name() string { return c.displayName }

// RemoveComponentCommand detaches a component, capturing its PurposeUndo
// serialization so Undo can recreate it.
type RemoveComponentCommand struct {
	pipeline    *Pipeline
	entityGUID  domain.GUID
	componentID domain.TypeId
	displayName string

	savedRaw any
	removed  bool
}

func NewRemoveComponentCommand(p *Pipeline, entityGUID domain.GUID, componentID domain.TypeId) *RemoveComponentCommand {
	return &RemoveComponentCommand{pipeline: p, entityGUID: entityGUID, componentID: componentID, displayName: "remove component"}
}

func (c *RemoveComponentCommand) Execute() domain.CommandStatus {
	id, ok := c.pipeline.Ents.EntityByGUID(c.entityGUID)
	if !ok {
		return domain.CommandFailed
	}
	comp, ok := c.pipeline.Ents.Component(id, c.componentID)
	if !ok {
		return domain.CommandFailed
	}
	raw, err := meta.Serialize(c.pipeline.Reg, comp, meta.PurposeUndo)
	if err != nil {
		return domain.CommandFailed
	}
	c.savedRaw = raw
	c.pipeline.Ents.RemoveComponent(id, c.componentID)
	c.removed = true
	c.pipeline.notifyClosureDirty(c.entityGUID)
	return domain.CommandDone
}

func (c *RemoveComponentCommand) Undo() domain.CommandStatus {
	if !c.removed {
		return domain.CommandSkipped
	}
	id, ok := c.pipeline.Ents.EntityByGUID(c.entityGUID)
	if !ok {
		return domain.CommandFailed
	}
	info, ok := c.pipeline.Reg.TypeOf(c.componentID)
	if !ok {
		return domain.CommandFailed
	}
	val := info.New()
	if err := meta.Deserialize(c.pipeline.Reg, c.savedRaw, val, c.pipeline.BindCtx); err != nil {
		return domain.CommandFailed
	}
	c.pipeline.Ents.AddComponent(id, c.componentID, val.Interface())
	c.removed = false
	c.pipeline.notifyClosureDirty(c.entityGUID)
	return domain.CommandDone
}

func (c *RemoveComponentCommand) Name() string { return c.displayName }
