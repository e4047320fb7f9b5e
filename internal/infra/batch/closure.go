package batch

import (
	"context"

	"github.com/cjgribel/eeng-core/internal/domain"
	"github.com/cjgribel/eeng-core/internal/infra/meta"
	"github.com/cjgribel/eeng-core/internal/infra/resource"
)

// closureResult is the outcome of a BFS closure build: the fully expanded,
// sorted, deduplicated closure, plus the set of GUIDs newly loaded during
// this run (for rollback on failure).
type closureResult struct {
	result    domain.TaskResult
	closure   []domain.GUID
	loadedNow []domain.GUID
}

// buildAssetClosureBFS BFS-expands roots into a transitive asset closure,
// loading each frontier as it goes (so later steps can follow newly loaded
// references) and skipping GUIDs already present in alreadyInClosure.
// Grounded on _examples/original_source/src/BatchRegistry.cpp
// build_asset_closure_recursive.
func buildAssetClosureBFS(
	ctx context.Context,
	rm *resource.Manager,
	reg *meta.Registry,
	roots []domain.GUID,
	alreadyInClosure []domain.GUID,
	batchID domain.GUID,
) closureResult {
	out := closureResult{result: domain.NewTaskResult()}

	seen := make(map[domain.GUID]bool, len(roots)*2)
	already := make(map[domain.GUID]bool, len(alreadyInClosure)*2)
	for _, g := range alreadyInClosure {
		already[g] = true
	}

	var frontier []domain.GUID
	for _, g := range roots {
		if !g.Valid() || seen[g] {
			continue
		}
		seen[g] = true
		out.closure = append(out.closure, g)
		frontier = append(frontier, g)
	}

	for len(frontier) > 0 && out.result.Success {
		var toLoad []domain.GUID
		for _, g := range frontier {
			if !already[g] {
				toLoad = append(toLoad, g)
			}
		}

		if len(toLoad) > 0 {
			r, err := rm.LoadAndBindAsync(ctx, toLoad, batchID).Wait()
			if err != nil {
				out.result.Success = false
			} else {
				out.result.Success = out.result.Success && r.Success
				out.result.Merge(r)
			}
			out.loadedNow = append(out.loadedNow, toLoad...)
			if !out.result.Success {
				break
			}
			for _, g := range toLoad {
				already[g] = true
			}
		}

		var next []domain.GUID
		for _, g := range frontier {
			for _, child := range collectAssetGUIDs(rm, reg, g) {
				if !child.Valid() || seen[child] {
					continue
				}
				seen[child] = true
				out.closure = append(out.closure, child)
				next = append(next, child)
			}
		}
		frontier = next
	}

	out.closure = domain.SortGUIDs(out.closure)
	return out
}

// collectAssetGUIDs dispatches the reflected collect_asset_guids function
// for guid's asset type against its currently bound handle.
func collectAssetGUIDs(rm *resource.Manager, reg *meta.Registry, guid domain.GUID) []domain.GUID {
	handle, ok := rm.HandleForGUID(guid)
	if !ok {
		return nil
	}
	info, ok := reg.TypeOf(handle.Type)
	if !ok || info.Funcs.CollectAssetGUIDs == nil {
		return nil
	}
	return info.Funcs.CollectAssetGUIDs(handle)
}

// rollbackClosure unbinds and unloads every GUID loaded during a failed
// closure build, scoped to batchID.
func rollbackClosure(ctx context.Context, rm *resource.Manager, batchID domain.GUID, loadedNow []domain.GUID) {
	if len(loadedNow) == 0 {
		return
	}
	rm.UnbindAndUnloadAsync(ctx, loadedNow, batchID)
}
