package rag

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tanay2104/Smart-Email/core/domain"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

type memStore struct {
	rows        []domain.CatalogEntry
	fingerprint string
}

func (m *memStore) Count(ctx context.Context) (int, error) { return len(m.rows), nil }

func (m *memStore) Get(ctx context.Context, rowID int64) (*domain.CatalogEntry, error) {
	if rowID < 1 || int(rowID) > len(m.rows) {
		return nil, apperr.NotFound("catalog row")
	}
	e := m.rows[rowID-1]
	return &e, nil
}

func (m *memStore) Fingerprint(ctx context.Context) (string, error) { return m.fingerprint, nil }

func (m *memStore) Replace(ctx context.Context, entries []domain.CatalogEntry, fingerprint string) error {
	m.rows = append([]domain.CatalogEntry(nil), entries...)
	m.fingerprint = fingerprint
	return nil
}

func basisIndex(t *testing.T, dim, n int) *FlatIndex {
	t.Helper()
	ix := NewFlatIndex(dim)
	for i := 0; i < n; i++ {
		vec := make([]float32, dim)
		vec[i] = 1
		require.NoError(t, ix.Add(vec))
	}
	return ix
}

func TestFlatIndexSearchOrdersByInnerProduct(t *testing.T) {
	ix := NewFlatIndex(2)
	require.NoError(t, ix.Add([]float32{1, 0}))
	require.NoError(t, ix.Add([]float32{0.6, 0.8}))
	require.NoError(t, ix.Add([]float32{0, 1}))

	hits, err := ix.Search([]float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 2, hits[0].Position)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, 1, hits[1].Position)
	assert.InDelta(t, 0.8, hits[1].Score, 1e-6)
}

func TestFlatIndexSearchPadsWithNoMatch(t *testing.T) {
	ix := basisIndex(t, 3, 2)

	hits, err := ix.Search([]float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, 0, hits[0].Position)
	assert.Equal(t, out.NoMatch, hits[2].Position)
}

func TestFlatIndexRejectsWrongDimension(t *testing.T) {
	ix := basisIndex(t, 3, 1)

	_, err := ix.Search([]float32{1, 0}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDimensionMismatch))

	err = ix.Add([]float32{1})
	assert.True(t, errors.Is(err, apperr.ErrDimensionMismatch))
}

func TestFlatIndexSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "domains.index")
	ix := NewFlatIndex(2)
	require.NoError(t, ix.Add([]float32{0.25, -1.5}))
	require.NoError(t, ix.Add([]float32{3, 4}))
	require.NoError(t, ix.Save(path))
	require.NotEmpty(t, ix.Fingerprint())

	loaded, err := LoadFlatIndex(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Dim())
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, ix.Fingerprint(), loaded.Fingerprint())
	assert.Equal(t, ix.rows, loaded.rows)
}

func TestLoadFlatIndexErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFlatIndex(filepath.Join(dir, "missing.index"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConfig))
	assert.Contains(t, err.Error(), "missing.index")

	corrupt := filepath.Join(dir, "corrupt.index")
	require.NoError(t, os.WriteFile(corrupt, []byte("NOPE"), 0o644))
	_, err = LoadFlatIndex(corrupt)
	assert.True(t, errors.Is(err, apperr.ErrConfig))

	header := func(dim, count uint32, rows int) []byte {
		var buf bytes.Buffer
		buf.WriteString(indexMagic)
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint32{indexVersion, dim, count}))
		buf.Write(make([]byte, rows*int(dim)*4))
		return buf.Bytes()
	}
	cases := map[string][]byte{
		"huge count":    header(4, 0xFFFFFFF0, 1),
		"truncated row": header(4, 2, 2)[:indexHeaderSize+20],
		"trailing data": append(header(4, 1, 1), 0, 0, 0, 0),
		"zero dim":      header(0, 3, 0),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "bad.index")
			require.NoError(t, os.WriteFile(path, data, 0o644))
			_, err := LoadFlatIndex(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrConfig))
			assert.Contains(t, err.Error(), "corrupt vector index")
		})
	}
}

func TestNormalize(t *testing.T) {
	vec := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestOpenCatalog(t *testing.T) {
	ctx := context.Background()
	ix := basisIndex(t, 3, 2)
	store := &memStore{rows: []domain.CatalogEntry{{RowID: 1, Name: "a"}, {RowID: 2, Name: "b"}}}

	t.Run("nil index", func(t *testing.T) {
		_, err := OpenCatalog(ctx, nil, store)
		assert.True(t, errors.Is(err, apperr.ErrConfig))
	})

	t.Run("nil store", func(t *testing.T) {
		_, err := OpenCatalog(ctx, ix, nil)
		assert.True(t, errors.Is(err, apperr.ErrConfig))
	})

	t.Run("count mismatch", func(t *testing.T) {
		short := &memStore{rows: store.rows[:1]}
		_, err := OpenCatalog(ctx, ix, short)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrConfig))
		assert.Contains(t, err.Error(), "out of sync")
	})

	t.Run("fingerprint mismatch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "d.index")
		require.NoError(t, ix.Save(path))
		stale := &memStore{rows: store.rows, fingerprint: "deadbeef"}
		_, err := OpenCatalog(ctx, ix, stale)
		assert.True(t, errors.Is(err, apperr.ErrConfig))
	})

	t.Run("ok", func(t *testing.T) {
		cat, err := OpenCatalog(ctx, ix, store)
		require.NoError(t, err)
		assert.Equal(t, 3, cat.Dim())
		assert.Equal(t, 2, cat.Len())

		entry, found, err := cat.Entry(ctx, 1)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "b", entry.Name)

		_, found, err = cat.Entry(ctx, 5)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestBuildCatalog(t *testing.T) {
	ctx := context.Background()
	vectors := map[string][]float32{
		"coursework and exams": {2, 0, 0},
		"jobs":                 {0, 0, 5},
	}
	var seen []string
	embedder := out.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		seen = append(seen, text)
		return append([]float32(nil), vectors[text]...), nil
	})

	store := &memStore{}
	indexer := NewIndexerService(embedder, store, zerolog.Nop())
	path := filepath.Join(t.TempDir(), "domains.index")

	ix, err := indexer.BuildCatalog(ctx, []domain.CatalogEntry{
		{Name: "academics", Description: "coursework and exams"},
		{Name: "jobs"},
	}, path)
	require.NoError(t, err)

	assert.Equal(t, []string{"coursework and exams", "jobs"}, seen)
	assert.Equal(t, 3, ix.Dim())
	require.Len(t, store.rows, 2)
	assert.Equal(t, int64(1), store.rows[0].RowID)
	assert.Equal(t, "jobs", store.rows[1].Name)
	assert.Equal(t, []float32{0, 0, 1}, store.rows[1].Embedding)
	assert.Equal(t, ix.Fingerprint(), store.fingerprint)

	loaded, err := LoadFlatIndex(path)
	require.NoError(t, err)
	cat, err := OpenCatalog(ctx, loaded, store)
	require.NoError(t, err)

	hits, err := cat.Search([]float32{0, 0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, hits[0].Position)
}

func TestBuildCatalogRejectsEmpty(t *testing.T) {
	indexer := NewIndexerService(out.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1}, nil
	}), &memStore{}, zerolog.Nop())

	_, err := indexer.BuildCatalog(context.Background(), nil, filepath.Join(t.TempDir(), "x.index"))
	assert.True(t, errors.Is(err, apperr.ErrConfig))
}

type mapCache struct {
	data map[string][]float32
}

func (m *mapCache) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) SetEmbedding(ctx context.Context, key string, vec []float32) error {
	m.data[key] = vec
	return nil
}

func TestEmbedderCachesAndBoundsCalls(t *testing.T) {
	calls := 0
	inner := out.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		calls++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return []float32{1, 2}, nil
	})

	cache := &mapCache{data: map[string][]float32{}}
	e := NewEmbedder(inner, time.Second, zerolog.Nop()).
		WithCache(cache, "bge", func(parts ...string) string { return parts[0] + "|" + parts[1] })

	for i := 0; i < 3; i++ {
		vec, err := e.Embed(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2}, vec)
	}
	assert.Equal(t, 1, calls)
	assert.Contains(t, cache.data, "bge|hello")
}
