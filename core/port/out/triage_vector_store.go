package out

import (
	"context"

	"github.com/Tanay2104/Smart-Email/core/domain"
)

// =============================================================================
// VectorIndex + CatalogStore (flat index file / JSON meta / Postgres meta)
// =============================================================================

// NoMatch is the neighbor position an index returns once it is exhausted.
const NoMatch = -1

// Neighbor is one search hit: the 0-based index position and its inner product.
type Neighbor struct {
	Position int
	Score    float64
}

// VectorIndex is a read-only nearest-neighbor index over the catalog embeddings.
type VectorIndex interface {
	Dim() int
	Len() int
	// Search returns k neighbors by descending inner product; slots past the
	// end of the index carry Position == NoMatch.
	Search(vec []float32, k int) ([]Neighbor, error)
}

// CatalogStore holds the catalog metadata keyed by 1-based row id.
type CatalogStore interface {
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, rowID int64) (*domain.CatalogEntry, error)
	// Fingerprint returns the index fingerprint recorded at build time ("" if none).
	Fingerprint(ctx context.Context) (string, error)
}

// CatalogWriter replaces the stored catalog in index order.
type CatalogWriter interface {
	Replace(ctx context.Context, entries []domain.CatalogEntry, fingerprint string) error
}
