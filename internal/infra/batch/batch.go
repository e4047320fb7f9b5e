// Package batch implements the Batch Registry (spec.md §4.7, C7): a set of
// named, persistable asset/entity batches, each owning a live entity set
// and a transitive asset closure, with state-changing operations
// serialized through a per-batch strand.
//
// Grounded on _examples/original_source/src/BatchRegistry.cpp (state
// machine, strand dispatch, build_asset_closure_recursive) and the
// teacher's internal/infra/registry/manager.go (JSON-manifest-on-disk
// persistence idiom, adapted here from content-addressed model blobs to
// batch index/entity files).
package batch

import (
	"github.com/cjgribel/eeng-core/internal/domain"
)

// State is a batch's lifecycle stage (spec.md §4.7 state machine).
type State int

const (
	Unloaded State = iota
	Queued
	Loading
	Loaded
	Unloading
	Error
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Queued:
		return "queued"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Unloading:
		return "unloading"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Batch is one named unit of work: a live entity set plus the transitive
// closure of asset GUIDs those entities (and their referenced assets)
// require.
type Batch struct {
	ID           domain.GUID
	Name         string
	Filename     string
	State        State
	ErrorMessage string
	Live         []domain.EntityId
	AssetClosure []domain.GUID
}

func (b *Batch) snapshot() Batch {
	cp := *b
	cp.Live = append([]domain.EntityId(nil), b.Live...)
	cp.AssetClosure = append([]domain.GUID(nil), b.AssetClosure...)
	return cp
}

// EntityDescriptor is the persisted shape of one entity within a batch
// file: its identity, parent, and the serialized form of each component it
// carries, keyed by the component type's id-string.
type EntityDescriptor struct {
	GUID       domain.GUID    `json:"guid"`
	Name       string         `json:"name"`
	ParentGUID domain.GUID    `json:"parent_guid"`
	Components map[string]any `json:"components"`
}

// BatchHeader is the common header shared by the index entry and the
// batch file itself (spec.md §4.7 "Persistence formats").
type BatchHeader struct {
	ID           domain.GUID   `json:"id"`
	Name         string        `json:"name"`
	AssetClosure []domain.GUID `json:"asset_closure"`
}

// BatchFile is the on-disk shape of one batch (spec.md §4.7 "Batch file").
type BatchFile struct {
	Header   BatchHeader        `json:"header"`
	Entities []EntityDescriptor `json:"entities"`
}

// IndexEntry is one row of the batch index file.
type IndexEntry struct {
	ID              domain.GUID   `json:"id"`
	Name            string        `json:"name"`
	AssetClosureHdr []domain.GUID `json:"asset_closure_hdr"`
	Filename        string        `json:"filename"`
}

// IndexFile is the on-disk shape of the batch index (spec.md §4.7 "Index
// file").
type IndexFile struct {
	Batches []IndexEntry `json:"batches"`
}
