package cli

import (
	"time"

	"github.com/cjgribel/eeng-core/internal/domain"
	"github.com/cjgribel/eeng-core/internal/infra/batch"
	"github.com/cjgribel/eeng-core/internal/infra/batchdb"
	"github.com/cjgribel/eeng-core/internal/infra/concurrency"
	"github.com/cjgribel/eeng-core/internal/infra/config"
	"github.com/cjgribel/eeng-core/internal/infra/entity"
	"github.com/cjgribel/eeng-core/internal/infra/meta"
	"github.com/cjgribel/eeng-core/internal/infra/resource"
	"github.com/cjgribel/eeng-core/internal/infra/storage"
)

// engineHandle bundles the collaborators every CLI subcommand needs to
// drive a local engine instance — eengctl runs in-process against the
// batch directory rather than against a separate daemon, mirroring how
// original_source/src/BatchRegistry.cpp is driven directly by editor
// tooling rather than over a wire protocol.
type engineHandle struct {
	cfg     config.Config
	reg     *meta.Registry
	ents    *entity.Registry
	storage *storage.Storage
	pool    *concurrency.Pool
	mtq     *concurrency.MainThreadQueue
	rm      *resource.Manager
	batches *batch.Registry
	catalog *batchdb.Catalog
}

func newEngineHandle() (*engineHandle, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	reg := meta.NewRegistry()
	ents := entity.NewRegistry()
	stg := storage.New()
	pool := concurrency.NewPool(cfg.Engine.ThreadPoolWorkers)
	mtq := concurrency.NewMainThreadQueue()
	rm := resource.NewManager(reg, pool, &meta.BindContext{
		ResolveEntity: ents.EntityByGUID,
	})
	batches := batch.NewRegistry(cfg.Batch.Dir, reg, rm, ents, pool, mtq)
	catalog, err := batchdb.Open(cfg.Batch.Dir)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &engineHandle{
		cfg: cfg, reg: reg, ents: ents, storage: stg,
		pool: pool, mtq: mtq, rm: rm, batches: batches, catalog: catalog,
	}, nil
}

// touch persists batch id's latest name/state/outcome to the on-disk
// catalog so a later eengctl invocation (a fresh process, with an empty
// in-memory Registry) can still discover and re-load it.
func (e *engineHandle) touch(id domain.GUID, name, filename, state, lastResult string) error {
	return e.catalog.Upsert(batchdb.Entry{
		ID: id, Name: name, Filename: filename, State: state, LastResult: lastResult, MTime: time.Now(),
	})
}

func (e *engineHandle) Close() {
	e.catalog.Close()
	e.pool.Close()
}
