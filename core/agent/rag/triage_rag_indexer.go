package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// IndexerService builds the domain catalog: one embedding per entry, written
// to the flat index and the metadata store in the same order.
type IndexerService struct {
	embedder out.Embedder
	writer   out.CatalogWriter
	log      zerolog.Logger
}

func NewIndexerService(embedder out.Embedder, writer out.CatalogWriter, log zerolog.Logger) *IndexerService {
	return &IndexerService{
		embedder: embedder,
		writer:   writer,
		log:      log.With().Str("component", "indexer").Logger(),
	}
}

// BuildCatalog embeds every entry (description, or name when the description
// is empty), saves the index at indexPath and replaces the stored metadata.
func (s *IndexerService) BuildCatalog(ctx context.Context, entries []domain.CatalogEntry, indexPath string) (*FlatIndex, error) {
	if len(entries) == 0 {
		return nil, apperr.ConfigError("domain catalog is empty; add a domains: list to the heuristics file")
	}

	var index *FlatIndex
	rows := make([]domain.CatalogEntry, len(entries))
	for i, entry := range entries {
		if strings.TrimSpace(entry.Name) == "" {
			return nil, apperr.InvalidInput("domains", fmt.Sprintf("entry %d has no name", i+1))
		}

		text := entry.Description
		if strings.TrimSpace(text) == "" {
			text = entry.Name
		}

		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return nil, apperr.ExternalError("embedding", err).WithDetail("domain", entry.Name)
		}
		vec = Normalize(vec)

		if index == nil {
			index = NewFlatIndex(len(vec))
		}
		if err := index.Add(vec); err != nil {
			return nil, err
		}

		entry.RowID = int64(i + 1)
		entry.Embedding = vec
		rows[i] = entry
		s.log.Debug().Str("domain", entry.Name).Int64("rowid", entry.RowID).Msg("embedded catalog entry")
	}

	if err := index.Save(indexPath); err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("cannot write vector index %s", indexPath)).WithError(err)
	}
	if err := s.writer.Replace(ctx, rows, index.Fingerprint()); err != nil {
		return nil, err
	}

	s.log.Info().
		Int("entries", index.Len()).
		Int("dim", index.Dim()).
		Str("path", indexPath).
		Msg("domain catalog built")
	return index, nil
}
