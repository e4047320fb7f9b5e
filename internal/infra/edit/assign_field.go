package edit

import (
	"reflect"

	"github.com/cjgribel/eeng-core/internal/domain"
)

// AssignFieldCommand sets a single path-addressed field to new_value on
// execute and back to prev_value on undo (spec.md §4.8 "AssignFieldCommand").
type AssignFieldCommand struct {
	pipeline    *Pipeline
	target      domain.FieldTarget
	path        domain.MetaFieldPath
	prevValue   any
	newValue    any
	displayName string
}

// NewAssignFieldCommand builds a field-assignment command. path must pass
// domain.MetaFieldPath.Validate (first entry Data) or the command will
// always fail.
func NewAssignFieldCommand(p *Pipeline, target domain.FieldTarget, path domain.MetaFieldPath, prevValue, newValue any, displayName string) *AssignFieldCommand {
	return &AssignFieldCommand{
		pipeline:    p,
		target:      target,
		path:        path,
		prevValue:   prevValue,
		newValue:    newValue,
		displayName: displayName,
	}
}

func (c *AssignFieldCommand) Execute() domain.CommandStatus {
	return c.assign(c.newValue, false)
}

func (c *AssignFieldCommand) Undo() domain.CommandStatus {
	return c.assign(c.prevValue, true)
}

func (c *AssignFieldCommand) Name() string { return c.displayName }

func (c *AssignFieldCommand) assign(value any, isUndo bool) domain.CommandStatus {
	if err := c.path.Validate(); err != nil {
		return domain.CommandFailed
	}
	switch {
	case c.target.Component != nil:
		return c.assignComponent(value, isUndo)
	case c.target.Asset != nil:
		return c.assignAsset(value, isUndo)
	default:
		return domain.CommandFailed
	}
}

// assignComponent resolves target to the owning entity's component, value-
// copies it, walks the path, writes the component back whole, then runs
// post_assign and the field-changed/closure-dirty notifications (spec.md
// §4.8 "on success, invoke the component type's post_assign hook... and
// publish a field-changed event").
func (c *AssignFieldCommand) assignComponent(value any, isUndo bool) domain.CommandStatus {
	t := c.target.Component
	entID, ok := c.pipeline.Ents.EntityByGUID(t.EntityGUID)
	if !ok {
		return domain.CommandFailed
	}
	comp, ok := c.pipeline.Ents.Component(entID, t.ComponentID)
	if !ok {
		return domain.CommandFailed
	}
	before := collectAssetGUIDsFor(c.pipeline.Reg, t.ComponentID, comp)

	root := reflect.New(reflect.TypeOf(comp)).Elem()
	root.Set(reflect.ValueOf(comp))
	if err := AssignField(c.pipeline.Reg, root, c.path, 0, value); err != nil {
		return domain.CommandFailed
	}
	updated := root.Interface()
	c.pipeline.Ents.SetComponent(entID, t.ComponentID, updated)

	if info, ok := c.pipeline.Reg.TypeOf(t.ComponentID); ok && info.Funcs.PostAssign != nil {
		_ = info.Funcs.PostAssign(updated, c.path)
	}

	c.pipeline.publishFieldChanged(c.target, c.path, isUndo)

	after := collectAssetGUIDsFor(c.pipeline.Reg, t.ComponentID, updated)
	if closureChanged(before, after) {
		c.pipeline.notifyClosureDirty(t.EntityGUID)
	}
	return domain.CommandDone
}

// assignAsset resolves target directly through Storage via ModifyAny
// (spec.md §4.8 "the asset in Storage via modify"). Asset-direct field
// edits never dirty a batch closure: closures are entity-driven (spec.md
// §4.7), not asset-internal.
func (c *AssignFieldCommand) assignAsset(value any, isUndo bool) domain.CommandStatus {
	t := c.target.Asset
	typeID, ok := c.pipeline.Reg.Resolve(t.AssetTypeName)
	if !ok {
		return domain.CommandFailed
	}
	mh, ok := c.pipeline.Stg.HandleForGUIDAny(typeID, t.AssetGUID)
	if !ok {
		return domain.CommandFailed
	}

	var assignErr error
	err := c.pipeline.Stg.ModifyAny(mh, func(v any) {
		root := reflect.ValueOf(v).Elem()
		assignErr = AssignField(c.pipeline.Reg, root, c.path, 0, value)
	})
	if err != nil || assignErr != nil {
		return domain.CommandFailed
	}

	c.pipeline.publishFieldChanged(c.target, c.path, isUndo)
	return domain.CommandDone
}
