package rag

import (
	"context"
	"fmt"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// Catalog pairs the vector index with its row metadata. It is opened once at
// startup and shared read-only by every worker.
type Catalog struct {
	index out.VectorIndex
	store out.CatalogStore
}

// OpenCatalog validates that index and store describe the same catalog.
// Both must be present, hold the same number of rows and, when the store
// recorded one at build time, agree on the index fingerprint.
func OpenCatalog(ctx context.Context, index out.VectorIndex, store out.CatalogStore) (*Catalog, error) {
	if index == nil {
		return nil, apperr.ConfigError("vector index not loaded")
	}
	if store == nil {
		return nil, apperr.ConfigError("catalog metadata store not available")
	}

	count, err := store.Count(ctx)
	if err != nil {
		return nil, apperr.ConfigError("cannot read catalog metadata").WithError(err)
	}
	if count != index.Len() {
		return nil, apperr.ConfigError(fmt.Sprintf(
			"catalog out of sync: index has %d rows, metadata has %d; rebuild with smartmail build-index",
			index.Len(), count,
		))
	}

	if fp, ok := index.(interface{ Fingerprint() string }); ok {
		stored, err := store.Fingerprint(ctx)
		if err != nil {
			return nil, apperr.ConfigError("cannot read catalog fingerprint").WithError(err)
		}
		if stored != "" && fp.Fingerprint() != "" && stored != fp.Fingerprint() {
			return nil, apperr.ConfigError(
				"catalog out of sync: index file does not match the metadata it was built with; rebuild with smartmail build-index",
			).WithDetail("index_fingerprint", fp.Fingerprint()).WithDetail("stored_fingerprint", stored)
		}
	}

	return &Catalog{index: index, store: store}, nil
}

// Dim is the embedding dimensionality the catalog was built with.
func (c *Catalog) Dim() int { return c.index.Dim() }

// Len is the number of catalog entries.
func (c *Catalog) Len() int { return c.index.Len() }

// Search runs an inner-product search on the index.
func (c *Catalog) Search(vec []float32, k int) ([]out.Neighbor, error) {
	return c.index.Search(vec, k)
}

// Entry resolves an index position to its metadata row (rowid = position+1).
// found is false when the row is missing.
func (c *Catalog) Entry(ctx context.Context, position int) (*domain.CatalogEntry, bool, error) {
	entry, err := c.store.Get(ctx, int64(position)+1)
	if err != nil {
		if apperr.AsAppError(err).Code == apperr.CodeNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}
	return entry, true, nil
}
