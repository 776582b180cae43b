package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"
	"ragvault/internal/domain"
)

var (
	bucketMeta   = []byte("meta")
	bucketChunks = []byte("chunks")
)

// MetadataStore maps vector ids to their provenance records.
type MetadataStore struct {
	entries map[int64]domain.ChunkMetadata
}

func NewMetadataStore() *MetadataStore {
	return &MetadataStore{entries: make(map[int64]domain.ChunkMetadata)}
}

func (m *MetadataStore) Put(id int64, md domain.ChunkMetadata) {
	m.entries[id] = md
}

func (m *MetadataStore) Get(id int64) (domain.ChunkMetadata, bool) {
	md, ok := m.entries[id]
	return md, ok
}

func (m *MetadataStore) Len() int { return len(m.entries) }

// snapshot returns a copy of the mapping safe to use after the caller's lock is released.
func (m *MetadataStore) snapshot() map[int64]domain.ChunkMetadata {
	out := make(map[int64]domain.ChunkMetadata, len(m.entries))
	for id, md := range m.entries {
		out[id] = md
	}
	return out
}

// writeMetadataFile writes entries to a fresh bbolt file at path.
func writeMetadataFile(path string, entries map[int64]domain.ChunkMetadata, ids []int64, dimension int) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear stale metadata file: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open metadata db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucket(bucketMeta)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketMeta, err)
		}
		chunks, err := tx.CreateBucket(bucketChunks)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketChunks, err)
		}
		// Keys are written in ascending order.
		chunks.FillPercent = 1.0

		for _, id := range ids {
			md, ok := entries[id]
			if !ok {
				return fmt.Errorf("id %d has no metadata entry", id)
			}
			data, err := json.Marshal(md)
			if err != nil {
				return err
			}
			if err := chunks.Put(itob(id), data); err != nil {
				return err
			}
		}

		return putSchemaInfo(meta, SchemaInfo{
			Version:   CurrentSchemaVersion,
			Count:     len(ids),
			Dimension: dimension,
		})
	})
	if err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

// readMetadataFile loads a metadata artifact into memory.
func readMetadataFile(path string) (*MetadataStore, SchemaInfo, error) {
	var info SchemaInfo

	db, err := bbolt.Open(path, 0600, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, info, fmt.Errorf("%w: open metadata %s: %v", domain.ErrCorruptStore, path, err)
	}
	defer db.Close()

	store := NewMetadataStore()
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		chunks := tx.Bucket(bucketChunks)
		if meta == nil || chunks == nil {
			return fmt.Errorf("%w: metadata file is missing buckets", domain.ErrCorruptStore)
		}

		info, err = getSchemaInfo(meta)
		if err != nil {
			return err
		}
		if err := checkSchema(info); err != nil {
			return err
		}

		return chunks.ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return fmt.Errorf("%w: malformed metadata key %x", domain.ErrCorruptStore, k)
			}
			var md domain.ChunkMetadata
			if err := json.Unmarshal(v, &md); err != nil {
				return fmt.Errorf("%w: metadata record %d: %v", domain.ErrCorruptStore, btoi(k), err)
			}
			store.entries[btoi(k)] = md
			return nil
		})
	})
	if err != nil {
		return nil, info, err
	}

	if store.Len() != info.Count {
		return nil, info, fmt.Errorf("%w: metadata header counts %d records, found %d", domain.ErrCorruptStore, info.Count, store.Len())
	}
	return store, info, nil
}

func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
