package classification

import (
	"context"

	"github.com/Tanay2104/Smart-Email/core/agent/rag"
	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// =============================================================================
// Domain Classifier
// =============================================================================

// DefaultCandidateCount is the number of domain candidates kept per message.
const DefaultCandidateCount = 3

// DomainClassifier maps an embedding to the nearest catalog domains.
type DomainClassifier struct {
	catalog *rag.Catalog
}

func NewDomainClassifier(catalog *rag.Catalog) *DomainClassifier {
	return &DomainClassifier{catalog: catalog}
}

// Classify returns up to k candidates ordered by inner product. Positions the
// index reports as no-match and rows missing from the store are skipped.
func (c *DomainClassifier) Classify(ctx context.Context, vec []float32, k int) ([]domain.DomainCandidate, error) {
	if k <= 0 {
		k = DefaultCandidateCount
	}
	if len(vec) != c.catalog.Dim() {
		return nil, apperr.DimensionMismatch(c.catalog.Dim(), len(vec))
	}

	hits, err := c.catalog.Search(vec, k)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.DomainCandidate, 0, len(hits))
	for _, hit := range hits {
		if hit.Position == out.NoMatch {
			continue
		}
		entry, found, err := c.catalog.Entry(ctx, hit.Position)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		candidates = append(candidates, domain.DomainCandidate{
			Name:        entry.Name,
			Description: entry.Description,
			Score:       hit.Score,
		})
	}
	return candidates, nil
}

// TopDomain returns the best candidate's name, or "unknown".
func TopDomain(candidates []domain.DomainCandidate) string {
	if len(candidates) == 0 {
		return domain.UnknownDomain
	}
	return candidates[0].Name
}
