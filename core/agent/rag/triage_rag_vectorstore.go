package rag

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/pkg/apperr"
)

// Index file layout (little endian):
//
//	magic "SMIX" | version uint32 | dim uint32 | count uint32 | count*dim float32
const (
	indexMagic   = "SMIX"
	indexVersion = uint32(1)
)

// FlatIndex is an exact inner-product index over a handful of row vectors.
// Rows are never removed, so position i always denotes the i-th added vector.
type FlatIndex struct {
	dim         int
	rows        [][]float32
	fingerprint string
}

// NewFlatIndex creates an empty index of the given dimensionality.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

// Dim returns the configured vector dimensionality.
func (ix *FlatIndex) Dim() int { return ix.dim }

// Len returns the number of stored vectors.
func (ix *FlatIndex) Len() int { return len(ix.rows) }

// Fingerprint is the SHA-256 of the serialized index, set by Save and LoadFlatIndex.
func (ix *FlatIndex) Fingerprint() string { return ix.fingerprint }

// Add appends a vector; its position is the previous Len().
func (ix *FlatIndex) Add(vec []float32) error {
	if len(vec) != ix.dim {
		return apperr.DimensionMismatch(ix.dim, len(vec))
	}
	row := make([]float32, ix.dim)
	copy(row, vec)
	ix.rows = append(ix.rows, row)
	ix.fingerprint = ""
	return nil
}

// Search returns k neighbors by descending inner product. When k exceeds the
// number of rows the remaining slots carry out.NoMatch, like faiss does.
func (ix *FlatIndex) Search(vec []float32, k int) ([]out.Neighbor, error) {
	if len(vec) != ix.dim {
		return nil, apperr.DimensionMismatch(ix.dim, len(vec))
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]out.Neighbor, len(ix.rows))
	for i, row := range ix.rows {
		hits[i] = out.Neighbor{Position: i, Score: dot(row, vec)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})

	result := make([]out.Neighbor, k)
	for i := range result {
		if i < len(hits) {
			result[i] = hits[i]
			continue
		}
		result[i] = out.Neighbor{Position: out.NoMatch, Score: math.Inf(-1)}
	}
	return result, nil
}

// Save writes the index to path and records its fingerprint.
func (ix *FlatIndex) Save(path string) error {
	var buf bytes.Buffer
	if err := ix.encode(&buf); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create index dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write index %s: %w", path, err)
	}
	ix.fingerprint = fingerprint(buf.Bytes())
	return nil
}

// LoadFlatIndex reads an index written by Save. A missing file is a
// configuration error naming the path.
func LoadFlatIndex(path string) (*FlatIndex, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.ConfigError(fmt.Sprintf("vector index missing at %s; run smartmail build-index", path))
	}
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("cannot read vector index %s", path)).WithError(err)
	}

	ix, err := decodeFlatIndex(data)
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("corrupt vector index %s", path)).WithError(err)
	}
	ix.fingerprint = fingerprint(data)
	return ix, nil
}

func (ix *FlatIndex) encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(indexMagic); err != nil {
		return err
	}
	header := []uint32{indexVersion, uint32(ix.dim), uint32(len(ix.rows))}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}
	for _, row := range ix.rows {
		if err := binary.Write(bw, binary.LittleEndian, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// indexHeaderSize is the magic plus version, dim and count.
const indexHeaderSize = len(indexMagic) + 3*4

// decodeFlatIndex checks the declared shape against the data length before
// allocating rows.
func decodeFlatIndex(data []byte) (*FlatIndex, error) {
	r := bytes.NewReader(data)
	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != indexMagic {
		return nil, fmt.Errorf("bad magic %q", magic)
	}

	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != indexVersion {
		return nil, fmt.Errorf("unsupported index version %d", header[0])
	}

	dim, count := uint64(header[1]), uint64(header[2])
	if dim == 0 {
		return nil, fmt.Errorf("index dimension is zero")
	}
	if want := uint64(indexHeaderSize) + count*dim*4; want != uint64(len(data)) {
		return nil, fmt.Errorf("index declares %d rows of dimension %d (%d bytes) but file has %d bytes",
			count, dim, want, len(data))
	}

	ix := NewFlatIndex(int(dim))
	ix.rows = make([][]float32, 0, count)
	for i := uint64(0); i < count; i++ {
		row := make([]float32, ix.dim)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("read row %d: %w", i, err)
		}
		ix.rows = append(ix.rows, row)
	}
	return ix, nil
}

// Normalize scales vec to unit L2 norm in place; zero vectors are left alone.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
