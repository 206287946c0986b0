package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// catalogDocument is the on-disk layout of the metadata file.
type catalogDocument struct {
	Fingerprint string                `json:"fingerprint"`
	Domains     []domain.CatalogEntry `json:"domains"`
}

// CatalogFile is a JSON-backed CatalogStore and CatalogWriter.
// Rows are kept in index order; row id i lives at slice position i-1.
type CatalogFile struct {
	path string

	mu  sync.RWMutex
	doc catalogDocument
}

var (
	_ out.CatalogStore  = (*CatalogFile)(nil)
	_ out.CatalogWriter = (*CatalogFile)(nil)
)

// OpenCatalogFile loads an existing metadata file. A missing file is a
// configuration error naming the path.
func OpenCatalogFile(path string) (*CatalogFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.ConfigError(fmt.Sprintf("catalog metadata missing at %s; run smartmail build-index", path))
	}
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("cannot read catalog metadata %s", path)).WithError(err)
	}

	f := &CatalogFile{path: path}
	if err := json.Unmarshal(data, &f.doc); err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("corrupt catalog metadata %s", path)).WithError(err)
	}
	for i := range f.doc.Domains {
		f.doc.Domains[i].RowID = int64(i + 1)
	}
	return f, nil
}

// NewCatalogFile returns an empty store that writes to path on Replace.
func NewCatalogFile(path string) *CatalogFile {
	return &CatalogFile{path: path}
}

// Count implements out.CatalogStore.
func (f *CatalogFile) Count(_ context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.doc.Domains), nil
}

// Get implements out.CatalogStore.
func (f *CatalogFile) Get(_ context.Context, rowID int64) (*domain.CatalogEntry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if rowID < 1 || rowID > int64(len(f.doc.Domains)) {
		return nil, apperr.NotFound(fmt.Sprintf("domain row %d", rowID))
	}
	entry := f.doc.Domains[rowID-1]
	return &entry, nil
}

// Fingerprint implements out.CatalogStore.
func (f *CatalogFile) Fingerprint(_ context.Context) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.doc.Fingerprint, nil
}

// Replace implements out.CatalogWriter and persists the file.
func (f *CatalogFile) Replace(ctx context.Context, entries []domain.CatalogEntry, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := catalogDocument{
		Fingerprint: fingerprint,
		Domains:     make([]domain.CatalogEntry, len(entries)),
	}
	for i, e := range entries {
		doc.Domains[i] = domain.CatalogEntry{RowID: int64(i + 1), Name: e.Name, Description: e.Description}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}
	if err := writeAtomic(f.path, data); err != nil {
		return fmt.Errorf("write catalog metadata: %w", err)
	}

	f.mu.Lock()
	f.doc = doc
	f.mu.Unlock()
	return nil
}
