package batchdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cjgribel/eeng-core/internal/domain"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpenCreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer c.Close()

	if _, err := os.Stat(filepath.Join(dir, "batches.db")); os.IsNotExist(err) {
		t.Error("batches.db should exist")
	}
}

func TestUpsertInsertThenGet(t *testing.T) {
	c := newTestCatalog(t)
	id := domain.NewGUID()
	entry := Entry{ID: id, Name: "level1", Filename: "level1.batch", State: "loaded", MTime: time.Now()}

	if err := c.Upsert(entry); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	got, ok, err := c.Get(id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok {
		t.Fatalf("expected entry found")
	}
	if got.Name != "level1" || got.Filename != "level1.batch" || got.State != "loaded" {
		t.Errorf("got %+v, want name=level1 filename=level1.batch state=loaded", got)
	}
}

func TestUpsertUpdatesExistingRow(t *testing.T) {
	c := newTestCatalog(t)
	id := domain.NewGUID()
	c.Upsert(Entry{ID: id, Name: "level1", State: "unloaded", MTime: time.Now()})
	c.Upsert(Entry{ID: id, Name: "level1", State: "loaded", LastResult: "ok", MTime: time.Now()})

	got, ok, err := c.Get(id)
	if err != nil || !ok {
		t.Fatalf("Get() error=%v ok=%v", err, ok)
	}
	if got.State != "loaded" || got.LastResult != "ok" {
		t.Errorf("got %+v, want state=loaded last_result=ok", got)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	c := newTestCatalog(t)
	_, ok, err := c.Get(domain.NewGUID())
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok {
		t.Fatalf("expected not found")
	}
}

func TestListOrdersByMTimeDescending(t *testing.T) {
	c := newTestCatalog(t)
	older := domain.NewGUID()
	newer := domain.NewGUID()
	c.Upsert(Entry{ID: older, Name: "older", State: "loaded", MTime: time.Unix(1000, 0)})
	c.Upsert(Entry{ID: newer, Name: "newer", State: "loaded", MTime: time.Unix(2000, 0)})

	entries, err := c.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name != "newer" || entries[1].Name != "older" {
		t.Fatalf("expected newer before older, got %+v", entries)
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	c := newTestCatalog(t)
	id := domain.NewGUID()
	c.Upsert(Entry{ID: id, Name: "level1", State: "loaded", MTime: time.Now()})

	if err := c.Delete(id); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	_, ok, err := c.Get(id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok {
		t.Fatalf("expected entry gone after delete")
	}
}

func TestDeleteMissingIsNoOp(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.Delete(domain.NewGUID()); err != nil {
		t.Fatalf("Delete() on missing id returned error: %v", err)
	}
}
