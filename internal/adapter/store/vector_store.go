package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"ragvault/internal/domain"
	"ragvault/internal/logging"
)

const (
	indexExt    = ".index"
	metadataExt = ".metadata"
	tmpExt      = ".tmp"
)

// VectorStore owns the vector index and its metadata as one unit. Writers
// (AddVectors, Reload) take the write lock; Search takes the read lock.
// Save holds saveMu for the whole write so checkpoints and snapshots never
// interleave on disk.
type VectorStore struct {
	path   string
	dim    int
	logger *slog.Logger

	mu         sync.RWMutex
	index      *FlatIndex
	meta       *MetadataStore
	generation uint64

	saveMu sync.Mutex
}

// NewVectorStore returns an empty store persisted under path.
func NewVectorStore(path string, dim int, logger *slog.Logger) (*VectorStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	return &VectorStore{
		path:   path,
		dim:    dim,
		logger: logging.OrDefault(logger),
		index:  NewFlatIndex(dim),
		meta:   NewMetadataStore(),
	}, nil
}

// OpenVectorStore loads the store persisted under path. When neither artifact
// exists an empty store is returned; when only one exists the store is corrupt.
func OpenVectorStore(path string, dim int, logger *slog.Logger) (*VectorStore, error) {
	s, err := NewVectorStore(path, dim, logger)
	if err != nil {
		return nil, err
	}

	index, meta, err := recoverArtifacts(s.IndexPath(), s.MetadataPath(), s.logger)
	if err != nil {
		return nil, err
	}
	if index == nil {
		s.logger.Info("no persisted store found, starting empty", "path", path)
		return s, nil
	}
	if index.Dimension() != dim {
		return nil, fmt.Errorf("%w: persisted store has width %d, configured %d", domain.ErrDimensionMismatch, index.Dimension(), dim)
	}

	s.index = index
	s.meta = meta
	s.logger.Info("loaded vector store", "path", path, "count", index.Count())
	return s, nil
}

// ValidateArtifacts loads a pair of artifacts without touching any store and
// returns the number of vectors they hold.
func ValidateArtifacts(indexPath, metadataPath string) (int, error) {
	index, _, err := loadArtifacts(indexPath, metadataPath)
	if err != nil {
		return 0, err
	}
	if index == nil {
		return 0, fmt.Errorf("%w: no artifacts at %s", domain.ErrCorruptStore, indexPath)
	}
	return index.Count(), nil
}

func (s *VectorStore) IndexPath() string    { return s.path + indexExt }
func (s *VectorStore) MetadataPath() string { return s.path + metadataExt }
func (s *VectorStore) Dimension() int       { return s.dim }

func (s *VectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Count()
}

// Generation changes whenever the searchable contents change.
func (s *VectorStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// AddVectors appends vectors with their metadata and returns the assigned ids,
// which run from the current count upwards.
func (s *VectorStore) AddVectors(vectors [][]float32, metadata []domain.ChunkMetadata) ([]int64, error) {
	if len(vectors) != len(metadata) {
		return nil, fmt.Errorf("%w: %d vectors, %d metadata entries", domain.ErrArityMismatch, len(vectors), len(metadata))
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := int64(s.index.Count())
	ids := make([]int64, len(vectors))
	for i := range ids {
		ids[i] = next + int64(i)
	}
	if err := s.index.Add(ids, vectors); err != nil {
		return nil, err
	}
	for i, id := range ids {
		s.meta.Put(id, metadata[i])
	}
	s.generation++
	return ids, nil
}

// Search returns up to k results by descending inner product.
func (s *VectorStore) Search(query []float32, k int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.index.Search(query, k)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		md, ok := s.meta.Get(h.ID)
		if !ok {
			return nil, fmt.Errorf("%w: id %d has no metadata", domain.ErrCorruptStore, h.ID)
		}
		results = append(results, domain.SearchResult{ID: h.ID, Score: h.Score, Metadata: md})
	}
	return results, nil
}

// Documents summarises indexed documents in order of first appearance.
func (s *VectorStore) Documents() []domain.DocumentSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.DocumentSummary
	pos := make(map[string]int)
	for _, id := range s.index.ids {
		md, ok := s.meta.Get(id)
		if !ok {
			continue
		}
		i, seen := pos[md.DocumentHash]
		if !seen {
			pos[md.DocumentHash] = len(out)
			out = append(out, domain.DocumentSummary{Hash: md.DocumentHash, Title: md.DocumentTitle})
			i = len(out) - 1
		}
		out[i].ChunkCount++
	}
	return out
}

func (s *VectorStore) HasDocument(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, md := range s.meta.entries {
		if md.DocumentHash == hash {
			return true
		}
	}
	return false
}

// Save replaces both persisted artifacts with the current in-memory state.
func (s *VectorStore) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.saveLocked()
}

// Reload replaces the in-memory state with the persisted artifacts.
func (s *VectorStore) Reload() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.reloadLocked()
}

// WithSaved saves the store and runs fn while no other save can start, so fn
// sees a consistent pair at IndexPath and MetadataPath.
func (s *VectorStore) WithSaved(fn func(indexPath, metadataPath string) error) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := s.saveLocked(); err != nil {
		return err
	}
	return fn(s.IndexPath(), s.MetadataPath())
}

// Replace runs fn, which is expected to overwrite the persisted artifacts,
// then reloads from them. No save can start in between.
func (s *VectorStore) Replace(fn func(indexPath, metadataPath string) error) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := fn(s.IndexPath(), s.MetadataPath()); err != nil {
		return err
	}
	return s.reloadLocked()
}

func (s *VectorStore) saveLocked() error {
	s.mu.RLock()
	data, err := s.index.MarshalBinary()
	ids := s.index.IDs()
	entries := s.meta.snapshot()
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to serialize index: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	indexTmp := s.IndexPath() + tmpExt
	metaTmp := s.MetadataPath() + tmpExt
	cleanup := func() {
		os.Remove(indexTmp)
		os.Remove(metaTmp)
	}

	if err := writeFileSync(indexTmp, data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := writeMetadataFile(metaTmp, entries, ids, s.dim); err != nil {
		cleanup()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(indexTmp, s.IndexPath()); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace index: %w", err)
	}
	// From here the new index is live; metaTmp stays so recoverArtifacts can
	// finish the commit if the rename below does not happen.
	if err := os.Rename(metaTmp, s.MetadataPath()); err != nil {
		return fmt.Errorf("failed to replace metadata: %w", err)
	}

	s.logger.Debug("saved vector store", "path", s.path, "count", len(ids))
	return nil
}

func (s *VectorStore) reloadLocked() error {
	index, meta, err := recoverArtifacts(s.IndexPath(), s.MetadataPath(), s.logger)
	if err != nil {
		return err
	}
	if index == nil {
		index, meta = NewFlatIndex(s.dim), NewMetadataStore()
	}
	if index.Dimension() != s.dim {
		return fmt.Errorf("%w: persisted store has width %d, configured %d", domain.ErrDimensionMismatch, index.Dimension(), s.dim)
	}

	s.mu.Lock()
	s.index = index
	s.meta = meta
	s.generation++
	s.mu.Unlock()

	s.logger.Info("reloaded vector store", "path", s.path, "count", index.Count())
	return nil
}

// recoverArtifacts loads the live pair. A save interrupted between its two
// renames leaves a new index next to old metadata; the pending temp artifact
// that completes a consistent pair is then renamed into place. Temp files next
// to a consistent pair are left alone, the next save overwrites them.
func recoverArtifacts(indexPath, metadataPath string, logger *slog.Logger) (*FlatIndex, *MetadataStore, error) {
	indexTmp, metaTmp := indexPath+tmpExt, metadataPath+tmpExt

	index, meta, loadErr := loadArtifacts(indexPath, metadataPath)
	if loadErr == nil {
		return index, meta, nil
	}
	if !errors.Is(loadErr, domain.ErrCorruptStore) {
		return nil, nil, loadErr
	}

	candidates := []struct {
		idx, md string
	}{
		{indexPath, metaTmp},
		{indexTmp, metadataPath},
		{indexTmp, metaTmp},
	}
	for _, c := range candidates {
		if c.idx == indexPath && c.md == metadataPath {
			continue
		}
		if ok, _ := exists(c.idx); !ok {
			continue
		}
		if ok, _ := exists(c.md); !ok {
			continue
		}
		if _, _, err := loadArtifacts(c.idx, c.md); err != nil {
			continue
		}
		if c.idx != indexPath {
			if err := os.Rename(c.idx, indexPath); err != nil {
				return nil, nil, fmt.Errorf("failed to complete interrupted save: %w", err)
			}
		}
		if c.md != metadataPath {
			if err := os.Rename(c.md, metadataPath); err != nil {
				return nil, nil, fmt.Errorf("failed to complete interrupted save: %w", err)
			}
		}
		os.Remove(indexTmp)
		os.Remove(metaTmp)
		logger.Warn("completed interrupted save", "index", indexPath, "metadata", metadataPath)
		return loadArtifacts(indexPath, metadataPath)
	}
	return nil, nil, loadErr
}

// loadArtifacts returns nil, nil, nil when neither file exists.
func loadArtifacts(indexPath, metadataPath string) (*FlatIndex, *MetadataStore, error) {
	indexExists, err := exists(indexPath)
	if err != nil {
		return nil, nil, err
	}
	metaExists, err := exists(metadataPath)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case !indexExists && !metaExists:
		return nil, nil, nil
	case !indexExists:
		return nil, nil, fmt.Errorf("%w: %s exists without %s", domain.ErrCorruptStore, metadataPath, indexPath)
	case !metaExists:
		return nil, nil, fmt.Errorf("%w: %s exists without %s", domain.ErrCorruptStore, indexPath, metadataPath)
	}

	f, err := os.Open(indexPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}
	index, err := ReadFlatIndex(f)
	f.Close()
	if err != nil {
		return nil, nil, err
	}

	meta, info, err := readMetadataFile(metadataPath)
	if err != nil {
		return nil, nil, err
	}

	if index.Count() != meta.Len() {
		return nil, nil, fmt.Errorf("%w: index holds %d vectors, metadata %d entries", domain.ErrCorruptStore, index.Count(), meta.Len())
	}
	if info.Dimension != index.Dimension() {
		return nil, nil, fmt.Errorf("%w: index width %d, metadata records width %d", domain.ErrCorruptStore, index.Dimension(), info.Dimension)
	}
	for _, id := range index.ids {
		if _, ok := meta.Get(id); !ok {
			return nil, nil, fmt.Errorf("%w: id %d has no metadata", domain.ErrCorruptStore, id)
		}
	}
	return index, meta, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
