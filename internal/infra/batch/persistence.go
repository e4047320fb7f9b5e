package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cjgribel/eeng-core/internal/domain"
)

// readBatchFile reads and parses a batch file. A missing file is not an
// error: it is treated as an empty batch (spec.md §8 scenario 8).
func readBatchFile(path string) (BatchFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return BatchFile{}, nil
	}
	if err != nil {
		return BatchFile{}, fmt.Errorf("read batch file %s: %w", path, err)
	}
	var file BatchFile
	if err := json.Unmarshal(data, &file); err != nil {
		return BatchFile{}, fmt.Errorf("%w: %s: %v", domain.ErrBatchFileInvalid, path, err)
	}
	return file, nil
}

// writeBatchFile serializes file as indented JSON to path, creating parent
// directories as needed.
func writeBatchFile(path string, file BatchFile) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create batch dir %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal batch file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write batch file %s: %w", path, err)
	}
	return nil
}

// ReadIndex reads the batch index file. A missing file is treated as an
// empty index, created on first save (spec.md §4.7).
func ReadIndex(path string) (IndexFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return IndexFile{}, nil
	}
	if err != nil {
		return IndexFile{}, fmt.Errorf("read index %s: %w", path, err)
	}
	var idx IndexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return IndexFile{}, fmt.Errorf("%w: %s: %v", domain.ErrBatchFileInvalid, path, err)
	}
	return idx, nil
}

// WriteIndex serializes idx as indented JSON to path.
func WriteIndex(path string, idx IndexFile) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create index dir %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write index %s: %w", path, err)
	}
	return nil
}

// IndexFromRegistry builds an IndexFile snapshot of every batch r knows
// about, for persisting alongside the batch files themselves.
func IndexFromRegistry(r *Registry) IndexFile {
	batches := r.List()
	idx := IndexFile{Batches: make([]IndexEntry, 0, len(batches))}
	for _, b := range batches {
		idx.Batches = append(idx.Batches, IndexEntry{
			ID:              b.ID,
			Name:            b.Name,
			AssetClosureHdr: b.AssetClosure,
			Filename:        b.Filename,
		})
	}
	return idx
}
