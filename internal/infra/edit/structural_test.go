package edit

import (
	"reflect"
	"testing"

	"github.com/cjgribel/eeng-core/internal/domain"
	"github.com/cjgribel/eeng-core/internal/infra/entity"
	"github.com/cjgribel/eeng-core/internal/infra/events"
	"github.com/cjgribel/eeng-core/internal/infra/meta"
	"github.com/cjgribel/eeng-core/internal/infra/storage"
)

type tagComponent struct{ Tag string }

func newStructuralPipeline(t *testing.T) (*Pipeline, domain.TypeId) {
	t.Helper()
	reg := meta.NewRegistry()
	typeID, err := reg.RegisterType(meta.TypeInfo{IDString: "tag", GoType: reflect.TypeOf(tagComponent{}), Fields: []meta.FieldInfo{{ID: "Tag"}}})
	if err != nil {
		t.Fatalf("register tag: %v", err)
	}
	p := NewPipeline(reg, entity.NewRegistry(), storage.New(), events.NewBus())
	return p, typeID
}

func TestCreateDestroyEntitySymmetry(t *testing.T) {
	p, _ := newStructuralPipeline(t)
	q := NewQueue()

	cmd := NewCreateEntityCommand(p, domain.InvalidGUID, "rock")
	if status := q.Add(cmd); status != domain.CommandDone {
		t.Fatalf("add: %v", status)
	}
	if len(p.Ents.LiveEntities()) != 1 {
		t.Fatalf("expected 1 live entity")
	}
	if status := q.Undo(); status != domain.CommandDone {
		t.Fatalf("undo: %v", status)
	}
	if len(p.Ents.LiveEntities()) != 0 {
		t.Fatalf("expected 0 live entities after undo")
	}
}

func TestDestroyEntityRestoresComponents(t *testing.T) {
	p, typeID := newStructuralPipeline(t)
	id, guid := p.Ents.CreateEntity(domain.InvalidEntityId, "rock")
	p.Ents.AddComponent(id, typeID, tagComponent{Tag: "boulder"})

	cmd := NewDestroyEntityCommand(p, guid, "rock")
	if status := cmd.Execute(); status != domain.CommandDone {
		t.Fatalf("execute: %v", status)
	}
	if _, ok := p.Ents.EntityByGUID(guid); ok {
		t.Fatalf("expected entity gone after destroy")
	}

	if status := cmd.Undo(); status != domain.CommandDone {
		t.Fatalf("undo: %v", status)
	}
	newID, ok := p.Ents.EntityByGUID(cmd.currentGUID)
	if !ok {
		t.Fatalf("expected entity restored")
	}
	comp, ok := p.Ents.Component(newID, typeID)
	if !ok || comp.(tagComponent).Tag != "boulder" {
		t.Fatalf("expected component restored, got %+v ok=%v", comp, ok)
	}
}

func TestDestroyEntityBranchRestoresChildren(t *testing.T) {
	p, typeID := newStructuralPipeline(t)
	rootID, rootGUID := p.Ents.CreateEntity(domain.InvalidEntityId, "root")
	p.Ents.AddComponent(rootID, typeID, tagComponent{Tag: "root-tag"})
	childID, _ := p.Ents.CreateEntity(rootID, "child")
	p.Ents.AddComponent(childID, typeID, tagComponent{Tag: "child-tag"})

	cmd := NewDestroyEntityBranchCommand(p, rootGUID, "root")
	if status := cmd.Execute(); status != domain.CommandDone {
		t.Fatalf("execute: %v", status)
	}
	if len(p.Ents.LiveEntities()) != 0 {
		t.Fatalf("expected branch fully destroyed")
	}

	if status := cmd.Undo(); status != domain.CommandDone {
		t.Fatalf("undo: %v", status)
	}
	if len(p.Ents.LiveEntities()) != 2 {
		t.Fatalf("expected 2 restored entities, got %d", len(p.Ents.LiveEntities()))
	}
	newRootID, ok := p.Ents.EntityByGUID(cmd.rootGUID)
	if !ok {
		t.Fatalf("expected root restored")
	}
	children := p.Ents.Children(newRootID)
	if len(children) != 1 {
		t.Fatalf("expected 1 restored child, got %d", len(children))
	}
	comp, _ := p.Ents.Component(children[0], typeID)
	if comp.(tagComponent).Tag != "child-tag" {
		t.Fatalf("unexpected child component: %+v", comp)
	}
}

func TestCopyEntityBranchCommandUndo(t *testing.T) {
	p, typeID := newStructuralPipeline(t)
	srcID, srcGUID := p.Ents.CreateEntity(domain.InvalidEntityId, "src")
	p.Ents.AddComponent(srcID, typeID, tagComponent{Tag: "copy-me"})

	cmd := NewCopyEntityBranchCommand(p, srcGUID, domain.InvalidGUID, "src-copy")
	if status := cmd.Execute(); status != domain.CommandDone {
		t.Fatalf("execute: %v", status)
	}
	if len(p.Ents.LiveEntities()) != 2 {
		t.Fatalf("expected source + copy live, got %d", len(p.Ents.LiveEntities()))
	}
	copyID, ok := p.Ents.EntityByGUID(cmd.copiedGUID)
	if !ok {
		t.Fatalf("expected copy live")
	}
	comp, ok := p.Ents.Component(copyID, typeID)
	if !ok || comp.(tagComponent).Tag != "copy-me" {
		t.Fatalf("expected copied component, got %+v ok=%v", comp, ok)
	}

	if status := cmd.Undo(); status != domain.CommandDone {
		t.Fatalf("undo: %v", status)
	}
	if len(p.Ents.LiveEntities()) != 1 {
		t.Fatalf("expected copy removed, source remains, got %d", len(p.Ents.LiveEntities()))
	}
	if _, ok := p.Ents.EntityByGUID(srcGUID); !ok {
		t.Fatalf("expected source entity to survive copy undo")
	}
}

func TestReparentEntityBranchUndo(t *testing.T) {
	p, _ := newStructuralPipeline(t)
	parentAID, parentAGUID := p.Ents.CreateEntity(domain.InvalidEntityId, "a")
	_, parentBGUID := p.Ents.CreateEntity(domain.InvalidEntityId, "b")
	childID, childGUID := p.Ents.CreateEntity(parentAID, "child")

	cmd := NewReparentEntityBranchCommand(p, childGUID, parentBGUID)
	if status := cmd.Execute(); status != domain.CommandDone {
		t.Fatalf("execute: %v", status)
	}
	parent, _ := p.Ents.Parent(childID)
	parentGUID, _ := p.Ents.GUIDOf(parent)
	if parentGUID != parentBGUID {
		t.Fatalf("expected reparented under b")
	}

	if status := cmd.Undo(); status != domain.CommandDone {
		t.Fatalf("undo: %v", status)
	}
	parent, _ = p.Ents.Parent(childID)
	parentGUID, _ = p.Ents.GUIDOf(parent)
	if parentGUID != parentAGUID {
		t.Fatalf("expected reparented back under a")
	}
}

func TestAddRemoveComponentSymmetry(t *testing.T) {
	p, typeID := newStructuralPipeline(t)
	id, guid := p.Ents.CreateEntity(domain.InvalidEntityId, "thing")

	add := NewAddComponentCommand(p, guid, typeID, tagComponent{Tag: "x"})
	if status := add.Execute(); status != domain.CommandDone {
		t.Fatalf("add execute: %v", status)
	}
	if _, ok := p.Ents.Component(id, typeID); !ok {
		t.Fatalf("expected component present")
	}

	remove := NewRemoveComponentCommand(p, guid, typeID)
	if status := remove.Execute(); status != domain.CommandDone {
		t.Fatalf("remove execute: %v", status)
	}
	if _, ok := p.Ents.Component(id, typeID); ok {
		t.Fatalf("expected component removed")
	}

	if status := remove.Undo(); status != domain.CommandDone {
		t.Fatalf("remove undo: %v", status)
	}
	comp, ok := p.Ents.Component(id, typeID)
	if !ok || comp.(tagComponent).Tag != "x" {
		t.Fatalf("expected component restored, got %+v ok=%v", comp, ok)
	}
}

func TestAddComponentRejectsDuplicate(t *testing.T) {
	p, typeID := newStructuralPipeline(t)
	_, guid := p.Ents.CreateEntity(domain.InvalidEntityId, "thing")

	first := NewAddComponentCommand(p, guid, typeID, tagComponent{Tag: "x"})
	if status := first.Execute(); status != domain.CommandDone {
		t.Fatalf("first add: %v", status)
	}
	second := NewAddComponentCommand(p, guid, typeID, tagComponent{Tag: "y"})
	if status := second.Execute(); status != domain.CommandFailed {
		t.Fatalf("expected CommandFailed for duplicate component, got %v", status)
	}
}
