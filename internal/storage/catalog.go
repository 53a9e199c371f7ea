package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/cragrank/internal/model"
)

// StorageError wraps a failure to read or write the catalog file
type StorageError struct {
	Path string
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s catalog %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SaveCatalog writes catalog to path. The file is written next to path and
// renamed over it, so readers see either the old or the new catalog in full.
func SaveCatalog(path string, catalog model.Catalog) error {
	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return &StorageError{Path: path, Op: "encode", Err: err}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &StorageError{Path: path, Op: "write", Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return &StorageError{Path: path, Op: "write", Err: err}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	// CreateTemp makes the file owner-only
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return &StorageError{Path: path, Op: "write", Err: err}
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return &StorageError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Path: path, Op: "write", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &StorageError{Path: path, Op: "write", Err: err}
	}
	return nil
}

// LoadCatalog reads the catalog at path. A missing file is an error that
// matches os.ErrNotExist.
func LoadCatalog(path string) (model.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "read", Err: err}
	}

	var catalog model.Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, &StorageError{Path: path, Op: "decode", Err: err}
	}
	if catalog == nil {
		catalog = make(model.Catalog)
	}
	return catalog, nil
}
