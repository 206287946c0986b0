// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// =============================================================================
// Catalog Adapter (domain catalog metadata, rowid-aligned with the index)
// =============================================================================

const catalogSchema = `
CREATE TABLE IF NOT EXISTS domains (
	rowid       BIGINT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS catalog_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const fingerprintKey = "index_fingerprint"

// CatalogAdapter implements out.CatalogStore and out.CatalogWriter on Postgres.
type CatalogAdapter struct {
	pool *pgxpool.Pool
}

var (
	_ out.CatalogStore  = (*CatalogAdapter)(nil)
	_ out.CatalogWriter = (*CatalogAdapter)(nil)
)

// NewCatalogAdapter creates a new CatalogAdapter.
func NewCatalogAdapter(pool *pgxpool.Pool) *CatalogAdapter {
	return &CatalogAdapter{pool: pool}
}

// EnsureSchema creates the catalog tables when missing.
func (a *CatalogAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, catalogSchema); err != nil {
		return apperr.DatabaseError("create catalog schema", err)
	}
	return nil
}

// Count returns the number of catalog rows.
func (a *CatalogAdapter) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.pool.QueryRow(ctx, `SELECT COUNT(*) FROM domains`).Scan(&n); err != nil {
		return 0, apperr.DatabaseError("count domains", err)
	}
	return n, nil
}

// Get returns the row with the given 1-based rowid.
func (a *CatalogAdapter) Get(ctx context.Context, rowID int64) (*domain.CatalogEntry, error) {
	entry := &domain.CatalogEntry{RowID: rowID}
	err := a.pool.QueryRow(ctx,
		`SELECT name, description FROM domains WHERE rowid = $1`, rowID,
	).Scan(&entry.Name, &entry.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("domain row %d", rowID))
	}
	if err != nil {
		return nil, apperr.DatabaseError("get domain", err)
	}
	return entry, nil
}

// Fingerprint returns the index fingerprint stored at build time.
func (a *CatalogAdapter) Fingerprint(ctx context.Context) (string, error) {
	var fp string
	err := a.pool.QueryRow(ctx, `SELECT value FROM catalog_meta WHERE key = $1`, fingerprintKey).Scan(&fp)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperr.DatabaseError("get catalog fingerprint", err)
	}
	return fp, nil
}

// Replace swaps the whole catalog in one transaction.
func (a *CatalogAdapter) Replace(ctx context.Context, entries []domain.CatalogEntry, fingerprint string) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return apperr.DatabaseError("begin catalog replace", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM domains`); err != nil {
		return apperr.DatabaseError("clear domains", err)
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO domains (rowid, name, description) VALUES ($1, $2, $3)`,
			e.RowID, e.Name, e.Description)
	}
	batch.Queue(`INSERT INTO catalog_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, fingerprintKey, fingerprint)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return apperr.DatabaseError("insert domains", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.DatabaseError("commit catalog replace", err)
	}
	return nil
}
