package resource

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cjgribel/eeng-core/internal/domain"
	"github.com/cjgribel/eeng-core/internal/infra/concurrency"
	"github.com/cjgribel/eeng-core/internal/infra/meta"
)

func newTestManager(t *testing.T) (*Manager, *meta.Registry, *concurrency.Pool, domain.TypeId, *int32, *int32, *int32) {
	t.Helper()
	reg := meta.NewRegistry()

	var loadCount, unloadCount, bindCount int32
	id, err := reg.RegisterType(meta.TypeInfo{
		IDString: "texture",
		Funcs: meta.Funcs{
			LoadAsset: func(ctx context.Context, guid domain.GUID) error {
				atomic.AddInt32(&loadCount, 1)
				return nil
			},
			UnloadAsset: func(ctx context.Context, guid domain.GUID) error {
				atomic.AddInt32(&unloadCount, 1)
				return nil
			},
			BindAsset: func(guid domain.GUID) error {
				atomic.AddInt32(&bindCount, 1)
				return nil
			},
		},
	})
	if err != nil {
		t.Fatalf("register type: %v", err)
	}

	pool := concurrency.NewPool(4)
	t.Cleanup(pool.Close)
	m := NewManager(reg, pool, nil)
	return m, reg, pool, id, &loadCount, &unloadCount, &bindCount
}

func TestLoadAndBindAsyncDispatchesLoadOnlyOnce(t *testing.T) {
	m, _, _, typeID, loadCount, _, bindCount := newTestManager(t)
	guid := domain.NewGUID()
	batch := domain.NewGUID()
	m.Index(guid, typeID, "tree.tex")

	task := m.LoadAndBindAsync(context.Background(), []domain.GUID{guid, guid}, batch)
	result, err := task.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if atomic.LoadInt32(loadCount) != 1 {
		t.Fatalf("duplicate guids in one call should load once, got %d loads", atomic.LoadInt32(loadCount))
	}
	if atomic.LoadInt32(bindCount) != 1 {
		t.Fatalf("expected 1 bind, got %d", atomic.LoadInt32(bindCount))
	}
	if m.TotalLeases(guid) != 1 {
		t.Fatalf("expected lease 1 after deduped call, got %d", m.TotalLeases(guid))
	}
}

// TestLoadUnloadIdempotence is spec.md §8's concrete resource-manager
// scenario: load-bind twice then unbind-unload once leaves the asset
// Loaded with lease 1.
func TestLoadUnloadIdempotence(t *testing.T) {
	m, _, _, typeID, loadCount, unloadCount, _ := newTestManager(t)
	guid := domain.NewGUID()
	batch := domain.NewGUID()
	m.Index(guid, typeID, "tree.tex")

	if _, err := m.LoadAndBindAsync(context.Background(), []domain.GUID{guid}, batch).Wait(); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if _, err := m.LoadAndBindAsync(context.Background(), []domain.GUID{guid}, batch).Wait(); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if _, err := m.UnbindAndUnloadAsync(context.Background(), []domain.GUID{guid}, batch).Wait(); err != nil {
		t.Fatalf("unload: %v", err)
	}

	if atomic.LoadInt32(loadCount) != 1 {
		t.Fatalf("expected exactly 1 underlying load, got %d", atomic.LoadInt32(loadCount))
	}
	if atomic.LoadInt32(unloadCount) != 0 {
		t.Fatalf("expected 0 underlying unloads (lease still 1), got %d", atomic.LoadInt32(unloadCount))
	}
	state, _, ok := m.GetStatus(guid)
	if !ok || state != Loaded {
		t.Fatalf("expected state Loaded, got %v (found=%v)", state, ok)
	}
	if m.TotalLeases(guid) != 1 {
		t.Fatalf("expected lease 1, got %d", m.TotalLeases(guid))
	}
}

func TestMatchedUnloadClearsHandle(t *testing.T) {
	m, _, _, typeID, _, unloadCount, _ := newTestManager(t)
	guid := domain.NewGUID()
	batch := domain.NewGUID()
	m.Index(guid, typeID, "tree.tex")
	m.SetHandle(guid, domain.MetaHandle{Slot: 3, Version: 1, Type: typeID})

	if _, err := m.LoadAndBindAsync(context.Background(), []domain.GUID{guid}, batch).Wait(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := m.UnbindAndUnloadAsync(context.Background(), []domain.GUID{guid}, batch).Wait(); err != nil {
		t.Fatalf("unload: %v", err)
	}

	if atomic.LoadInt32(unloadCount) != 1 {
		t.Fatalf("expected 1 underlying unload, got %d", atomic.LoadInt32(unloadCount))
	}
	if _, ok := m.HandleForGUID(guid); ok {
		t.Fatalf("handle_for_guid should be None after matched unload")
	}
}

func TestUnloadAcrossTwoBatchesKeepsSecondLease(t *testing.T) {
	m, _, _, typeID, loadCount, unloadCount, _ := newTestManager(t)
	guid := domain.NewGUID()
	batchA := domain.NewGUID()
	batchB := domain.NewGUID()
	m.Index(guid, typeID, "shared.tex")

	if _, err := m.LoadAndBindAsync(context.Background(), []domain.GUID{guid}, batchA).Wait(); err != nil {
		t.Fatalf("load A: %v", err)
	}
	if _, err := m.LoadAndBindAsync(context.Background(), []domain.GUID{guid}, batchB).Wait(); err != nil {
		t.Fatalf("load B: %v", err)
	}
	if atomic.LoadInt32(loadCount) != 1 {
		t.Fatalf("expected single shared load, got %d", atomic.LoadInt32(loadCount))
	}

	if _, err := m.UnbindAndUnloadAsync(context.Background(), []domain.GUID{guid}, batchA).Wait(); err != nil {
		t.Fatalf("unload A: %v", err)
	}
	if atomic.LoadInt32(unloadCount) != 0 {
		t.Fatalf("asset still leased by batch B, should not have unloaded yet")
	}
	if m.TotalLeases(guid) != 1 {
		t.Fatalf("expected lease 1 remaining for batch B, got %d", m.TotalLeases(guid))
	}

	if _, err := m.UnbindAndUnloadAsync(context.Background(), []domain.GUID{guid}, batchB).Wait(); err != nil {
		t.Fatalf("unload B: %v", err)
	}
	if atomic.LoadInt32(unloadCount) != 1 {
		t.Fatalf("expected underlying unload once both batches released, got %d", atomic.LoadInt32(unloadCount))
	}
}

func TestWaitUntilIdle(t *testing.T) {
	m, _, _, typeID, _, _, _ := newTestManager(t)
	guid := domain.NewGUID()
	m.Index(guid, typeID, "x")

	m.LoadAndBindAsync(context.Background(), []domain.GUID{guid}, domain.NewGUID())
	m.WaitUntilIdle()

	if m.IsBusy() {
		t.Fatalf("expected idle after WaitUntilIdle")
	}
}
