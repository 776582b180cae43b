package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"ragvault/internal/domain"
)

// CurrentSchemaVersion is the metadata artifact format version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyCount         = []byte("count")
	keyDimension     = []byte("dimension")
)

// SchemaInfo is the header of a metadata artifact.
type SchemaInfo struct {
	Version   int `json:"version"`
	Count     int `json:"count"`
	Dimension int `json:"dimension"`
}

func putSchemaInfo(b *bbolt.Bucket, info SchemaInfo) error {
	for key, v := range map[string]int{
		string(keySchemaVersion): info.Version,
		string(keyCount):         info.Count,
		string(keyDimension):     info.Dimension,
	} {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(key), data); err != nil {
			return err
		}
	}
	return nil
}

func getSchemaInfo(b *bbolt.Bucket) (SchemaInfo, error) {
	var info SchemaInfo
	fields := []struct {
		key []byte
		dst *int
	}{
		{keySchemaVersion, &info.Version},
		{keyCount, &info.Count},
		{keyDimension, &info.Dimension},
	}
	for _, f := range fields {
		data := b.Get(f.key)
		if data == nil {
			return info, fmt.Errorf("%w: metadata header missing %s", domain.ErrCorruptStore, f.key)
		}
		if err := json.Unmarshal(data, f.dst); err != nil {
			return info, fmt.Errorf("%w: metadata header %s: %v", domain.ErrCorruptStore, f.key, err)
		}
	}
	return info, nil
}

// checkSchema rejects artifacts this build cannot read.
func checkSchema(info SchemaInfo) error {
	switch {
	case info.Version <= 0:
		return fmt.Errorf("%w: invalid schema version %d", domain.ErrCorruptStore, info.Version)
	case info.Version > CurrentSchemaVersion:
		return fmt.Errorf("%w: metadata created by newer version (v%d > v%d)", domain.ErrCorruptStore, info.Version, CurrentSchemaVersion)
	}
	return nil
}
