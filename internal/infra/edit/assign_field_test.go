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

type posComponent struct{ X int }

func setupAssignTest(t *testing.T) (*Pipeline, domain.GUID, domain.TypeId) {
	t.Helper()
	reg := meta.NewRegistry()
	typeID, err := reg.RegisterType(meta.TypeInfo{
		IDString: "pos",
		GoType:   reflect.TypeOf(posComponent{}),
		Fields:   []meta.FieldInfo{{ID: "X"}},
	})
	if err != nil {
		t.Fatalf("register pos: %v", err)
	}
	ents := entity.NewRegistry()
	id, guid := ents.CreateEntity(domain.InvalidEntityId, "thing")
	ents.AddComponent(id, typeID, posComponent{X: 1})

	p := NewPipeline(reg, ents, storage.New(), events.NewBus())
	return p, guid, typeID
}

// Mirrors spec.md §8 scenario: assign a field 1 -> 2, undo restores 1, redo
// restores 2, field-changed events fire is_undo=false, true, false in order.
func TestAssignFieldCommandUndoRedoSymmetry(t *testing.T) {
	p, entGUID, typeID := setupAssignTest(t)

	var fired []domain.FieldChangedEvent
	events.RegisterCallback(p.Bus, func(e domain.FieldChangedEvent) {
		fired = append(fired, e)
	})

	target := domain.FieldTarget{Component: &domain.ComponentTarget{EntityGUID: entGUID, ComponentID: typeID}}
	path := domain.MetaFieldPath{Entries: []domain.MetaFieldPathEntry{{Kind: domain.PathData, FieldID: "X"}}}
	cmd := NewAssignFieldCommand(p, target, path, 1, 2, "assign x")
	q := NewQueue()

	if status := q.Add(cmd); status != domain.CommandDone {
		t.Fatalf("add: %v", status)
	}
	p.Bus.DispatchAll()

	id, _ := p.Ents.EntityByGUID(entGUID)
	comp, _ := p.Ents.Component(id, typeID)
	if comp.(posComponent).X != 2 {
		t.Fatalf("expected X=2 after execute, got %+v", comp)
	}

	if status := q.Undo(); status != domain.CommandDone {
		t.Fatalf("undo: %v", status)
	}
	p.Bus.DispatchAll()
	comp, _ = p.Ents.Component(id, typeID)
	if comp.(posComponent).X != 1 {
		t.Fatalf("expected X=1 after undo, got %+v", comp)
	}

	if status := q.Redo(); status != domain.CommandDone {
		t.Fatalf("redo: %v", status)
	}
	p.Bus.DispatchAll()
	comp, _ = p.Ents.Component(id, typeID)
	if comp.(posComponent).X != 2 {
		t.Fatalf("expected X=2 after redo, got %+v", comp)
	}

	if len(fired) != 3 {
		t.Fatalf("expected 3 field-changed events, got %d", len(fired))
	}
	if fired[0].IsUndo {
		t.Fatalf("expected first event is_undo=false")
	}
	if !fired[1].IsUndo {
		t.Fatalf("expected second event (undo) is_undo=true")
	}
	if fired[2].IsUndo {
		t.Fatalf("expected third event (redo) is_undo=false")
	}
}

func TestAssignFieldCommandUnknownEntityFails(t *testing.T) {
	p, _, typeID := setupAssignTest(t)
	target := domain.FieldTarget{Component: &domain.ComponentTarget{EntityGUID: domain.NewGUID(), ComponentID: typeID}}
	path := domain.MetaFieldPath{Entries: []domain.MetaFieldPathEntry{{Kind: domain.PathData, FieldID: "X"}}}
	cmd := NewAssignFieldCommand(p, target, path, 1, 2, "assign x")
	if status := cmd.Execute(); status != domain.CommandFailed {
		t.Fatalf("expected CommandFailed for unknown entity, got %v", status)
	}
}

type matComponent struct{ Color string }

func TestAssignFieldCommandOnAsset(t *testing.T) {
	reg := meta.NewRegistry()
	typeID, err := reg.RegisterType(meta.TypeInfo{
		IDString: "material",
		GoType:   reflect.TypeOf(matComponent{}),
		Fields:   []meta.FieldInfo{{ID: "Color"}},
	})
	if err != nil {
		t.Fatalf("register material: %v", err)
	}
	stg := storage.New()
	if err := storage.Assure[matComponent](stg, typeID, 0); err != nil {
		t.Fatalf("assure material: %v", err)
	}
	guid := domain.NewGUID()
	if _, err := storage.Add(stg, typeID, matComponent{Color: "red"}, guid); err != nil {
		t.Fatalf("add: %v", err)
	}

	p := NewPipeline(reg, entity.NewRegistry(), stg, events.NewBus())
	target := domain.FieldTarget{Asset: &domain.AssetTarget{AssetGUID: guid, AssetTypeName: "material"}}
	path := domain.MetaFieldPath{Entries: []domain.MetaFieldPathEntry{{Kind: domain.PathData, FieldID: "Color"}}}
	cmd := NewAssignFieldCommand(p, target, path, "red", "blue", "recolor")

	if status := cmd.Execute(); status != domain.CommandDone {
		t.Fatalf("execute: %v", status)
	}
	mh, ok := stg.HandleForGUIDAny(typeID, guid)
	if !ok {
		t.Fatalf("expected handle for guid")
	}
	v, err := stg.GetAny(mh)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.(matComponent).Color != "blue" {
		t.Fatalf("expected blue, got %+v", v)
	}

	if status := cmd.Undo(); status != domain.CommandDone {
		t.Fatalf("undo: %v", status)
	}
	v, err = stg.GetAny(mh)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.(matComponent).Color != "red" {
		t.Fatalf("expected red after undo, got %+v", v)
	}
}
