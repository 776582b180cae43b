package store

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"ragvault/internal/domain"
)

const (
	indexMagic   = "RVIX"
	indexVersion = uint32(1)
)

// FlatIndex is an append-only, id-mapped set of vectors searched exhaustively
// by inner product.
type FlatIndex struct {
	dim  int
	ids  []int64
	vecs [][]float32
}

// Hit is a raw index match.
type Hit struct {
	ID    int64
	Score float64
}

func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

func (i *FlatIndex) Dimension() int { return i.dim }

func (i *FlatIndex) Count() int { return len(i.ids) }

// Add appends vectors under the given ids. Either all vectors are added or none.
func (i *FlatIndex) Add(ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d ids, %d vectors", domain.ErrArityMismatch, len(ids), len(vectors))
	}
	for j, v := range vectors {
		if len(v) != i.dim {
			return fmt.Errorf("%w: vector %d has width %d, index expects %d", domain.ErrDimensionMismatch, j, len(v), i.dim)
		}
	}
	for j, v := range vectors {
		i.ids = append(i.ids, ids[j])
		i.vecs = append(i.vecs, append([]float32(nil), v...))
	}
	return nil
}

// Search returns at most k hits ordered by descending inner product. Ties are
// broken by ascending id so results are reproducible.
func (i *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != i.dim {
		return nil, fmt.Errorf("%w: query width %d, index expects %d", domain.ErrDimensionMismatch, len(query), i.dim)
	}
	if k <= 0 || len(i.ids) == 0 {
		return nil, nil
	}

	hits := make([]Hit, len(i.ids))
	for j, v := range i.vecs {
		hits[j] = Hit{ID: i.ids[j], Score: dot(query, v)}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// IDs returns the ids in insertion order.
func (i *FlatIndex) IDs() []int64 {
	return append([]int64(nil), i.ids...)
}

// WriteTo stores: magic, version(uint32), dim(uint32), n(uint64), then for
// each record id(int64) and vec(float32[dim]), all little-endian.
func (i *FlatIndex) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}

	header := struct {
		Version uint32
		Dim     uint32
		Count   uint64
	}{indexVersion, uint32(i.dim), uint64(len(i.ids))}

	if _, err := cw.Write([]byte(indexMagic)); err != nil {
		return cw.n, err
	}
	if err := binary.Write(cw, binary.LittleEndian, header); err != nil {
		return cw.n, err
	}
	for j, id := range i.ids {
		if err := binary.Write(cw, binary.LittleEndian, id); err != nil {
			return cw.n, err
		}
		if err := binary.Write(cw, binary.LittleEndian, i.vecs[j]); err != nil {
			return cw.n, err
		}
	}
	return cw.n, bw.Flush()
}

// ReadFlatIndex restores an index written by WriteTo.
func ReadFlatIndex(r io.Reader) (*FlatIndex, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("%w: index header: %v", domain.ErrCorruptStore, err)
	}
	if string(magic) != indexMagic {
		return nil, fmt.Errorf("%w: index has bad magic %q", domain.ErrCorruptStore, magic)
	}

	var header struct {
		Version uint32
		Dim     uint32
		Count   uint64
	}
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: index header: %v", domain.ErrCorruptStore, err)
	}
	if header.Version != indexVersion {
		return nil, fmt.Errorf("%w: unsupported index format version %d", domain.ErrCorruptStore, header.Version)
	}
	if header.Dim == 0 {
		return nil, fmt.Errorf("%w: index dimension is zero", domain.ErrCorruptStore)
	}

	idx := NewFlatIndex(int(header.Dim))
	for n := uint64(0); n < header.Count; n++ {
		var id int64
		if err := binary.Read(br, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("%w: truncated index at record %d: %v", domain.ErrCorruptStore, n, err)
		}
		vec := make([]float32, header.Dim)
		if err := binary.Read(br, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("%w: truncated index at record %d: %v", domain.ErrCorruptStore, n, err)
		}
		idx.ids = append(idx.ids, id)
		idx.vecs = append(idx.vecs, vec)
	}

	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing bytes after %d records", domain.ErrCorruptStore, header.Count)
	}
	return idx, nil
}

func (i *FlatIndex) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := i.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (i *FlatIndex) UnmarshalBinary(data []byte) error {
	idx, err := ReadFlatIndex(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*i = *idx
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
