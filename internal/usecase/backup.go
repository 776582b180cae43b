package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"ragvault/internal/adapter/fs"
	"ragvault/internal/adapter/store"
	"ragvault/internal/domain"
	"ragvault/internal/logging"
)

const (
	backupPrefix = "vector_db_backup_"
	stampLayout  = "20060102_150405"
	restoreExt   = ".restore"
)

// BackupManager snapshots the persisted store into timestamped pairs and
// restores from them.
type BackupManager struct {
	store  *store.VectorStore
	dir    string
	logger *slog.Logger
	now    func() time.Time
	rename func(oldpath, newpath string) error
}

func NewBackupManager(st *store.VectorStore, dir string, logger *slog.Logger) *BackupManager {
	return &BackupManager{
		store:  st,
		dir:    dir,
		logger: logging.OrDefault(logger),
		now:    time.Now,
		rename: os.Rename,
	}
}

func (m *BackupManager) Dir() string { return m.dir }

func (m *BackupManager) pairPaths(stamp string) (string, string) {
	base := filepath.Join(m.dir, backupPrefix+stamp)
	return base + ".index", base + ".metadata"
}

// Snapshot saves the store and copies both artifacts into a new backup pair.
func (m *BackupManager) Snapshot() (domain.BackupEntry, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return domain.BackupEntry{}, fmt.Errorf("%w: create backup dir: %v", domain.ErrIOFailure, err)
	}

	var stamp string
	err := m.store.WithSaved(func(indexPath, metadataPath string) error {
		var err error
		stamp, err = m.freeStamp()
		if err != nil {
			return err
		}
		dstIndex, dstMeta := m.pairPaths(stamp)

		if err := fs.CopyFile(indexPath, dstIndex); err != nil {
			return fmt.Errorf("%w: copy index: %v", domain.ErrIOFailure, err)
		}
		if err := fs.CopyFile(metadataPath, dstMeta); err != nil {
			os.Remove(dstIndex)
			return fmt.Errorf("%w: copy metadata: %v", domain.ErrIOFailure, err)
		}
		return nil
	})
	if err != nil {
		m.logger.Error("snapshot failed", "error", err)
		return domain.BackupEntry{}, err
	}

	entry, err := m.entry(stamp)
	if err != nil {
		return domain.BackupEntry{}, err
	}
	m.logger.Info("snapshot created", "timestamp", entry.Timestamp, "bytes", entry.SizeBytes)
	return entry, nil
}

// freeStamp returns the current stamp, moving forward a second at a time
// past stamps already taken.
func (m *BackupManager) freeStamp() (string, error) {
	t := m.now().UTC()
	for i := 0; i < 3600; i++ {
		stamp := t.Format(stampLayout)
		idx, meta := m.pairPaths(stamp)
		idxTaken, err := pathExists(idx)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
		}
		metaTaken, err := pathExists(meta)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
		}
		if !idxTaken && !metaTaken {
			return stamp, nil
		}
		t = t.Add(time.Second)
	}
	return "", fmt.Errorf("%w: no free backup name near %s", domain.ErrIOFailure, m.now().UTC().Format(stampLayout))
}

// ListBackups returns complete backup pairs, newest first.
func (m *BackupManager) ListBackups() ([]domain.BackupEntry, error) {
	if ok, err := pathExists(m.dir); err != nil {
		return nil, err
	} else if !ok {
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(m.dir), backupPrefix+"*.index")
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	entries := make([]domain.BackupEntry, 0, len(matches))
	for _, match := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(match, backupPrefix), ".index")
		entry, err := m.entry(stamp)
		if err != nil {
			m.logger.Warn("ignoring incomplete backup", "timestamp", stamp, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Timestamp > entries[j].Timestamp
	})
	return entries, nil
}

func (m *BackupManager) entry(stamp string) (domain.BackupEntry, error) {
	idx, meta := m.pairPaths(stamp)
	idxInfo, err := os.Stat(idx)
	if err != nil {
		return domain.BackupEntry{}, err
	}
	metaInfo, err := os.Stat(meta)
	if err != nil {
		return domain.BackupEntry{}, err
	}

	created, err := time.Parse(stampLayout, stamp)
	if err != nil {
		created = idxInfo.ModTime().UTC()
	}
	return domain.BackupEntry{
		Timestamp: stamp,
		SizeBytes: idxInfo.Size() + metaInfo.Size(),
		CreatedAt: created,
	}, nil
}

// RetentionSweep deletes backups created more than keepDays ago. A failed
// deletion is logged and the sweep moves on; the failures are returned together.
func (m *BackupManager) RetentionSweep(keepDays int) (int, error) {
	if keepDays < 1 {
		return 0, fmt.Errorf("%w: keep_days must be at least 1, got %d", domain.ErrInvalidArgument, keepDays)
	}

	entries, err := m.ListBackups()
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-time.Duration(keepDays) * 24 * time.Hour)
	var (
		removed int
		errs    []error
	)
	for _, e := range entries {
		if !e.CreatedAt.Before(cutoff) {
			continue
		}
		idx, meta := m.pairPaths(e.Timestamp)
		var failed bool
		for _, path := range []string{idx, meta} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				m.logger.Warn("failed to delete backup file", "path", path, "error", err)
				errs = append(errs, err)
				failed = true
			}
		}
		if !failed {
			removed++
			m.logger.Info("deleted expired backup", "timestamp", e.Timestamp)
		}
	}

	orphans, err := m.sweepOrphans(cutoff)
	removed += orphans
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return removed, fmt.Errorf("%w: %v", domain.ErrIOFailure, errors.Join(errs...))
	}
	return removed, nil
}

// sweepOrphans deletes backup files whose other half is missing and whose
// modification time is before cutoff.
func (m *BackupManager) sweepOrphans(cutoff time.Time) (int, error) {
	if ok, err := pathExists(m.dir); err != nil || !ok {
		return 0, err
	}
	matches, err := doublestar.Glob(os.DirFS(m.dir), backupPrefix+"*.{index,metadata}")
	if err != nil {
		return 0, fmt.Errorf("failed to list backups: %w", err)
	}

	var (
		removed int
		errs    []error
	)
	for _, match := range matches {
		stamp := strings.TrimPrefix(match, backupPrefix)
		stamp = strings.TrimSuffix(strings.TrimSuffix(stamp, ".index"), ".metadata")
		idx, meta := m.pairPaths(stamp)
		idxOK, _ := pathExists(idx)
		metaOK, _ := pathExists(meta)
		if idxOK && metaOK {
			continue
		}

		path := filepath.Join(m.dir, match)
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to delete orphaned backup file", "path", path, "error", err)
			errs = append(errs, err)
			continue
		}
		removed++
		m.logger.Info("deleted orphaned backup file", "path", path)
	}
	return removed, errors.Join(errs...)
}

// Restore replaces the live store with the backup taken at stamp. The current
// state is snapshotted first. The copied files are checksummed against the
// backup before and after they replace the live pair.
func (m *BackupManager) Restore(stamp string) error {
	if _, err := time.Parse(stampLayout, stamp); err != nil {
		return fmt.Errorf("%w: %q", domain.ErrBackupNotFound, stamp)
	}
	srcIndex, srcMeta := m.pairPaths(stamp)
	for _, p := range []string{srcIndex, srcMeta} {
		ok, err := pathExists(p)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrBackupNotFound, stamp)
		}
	}
	if _, err := store.ValidateArtifacts(srcIndex, srcMeta); err != nil {
		return fmt.Errorf("backup %s is unusable: %w", stamp, err)
	}

	safety, err := m.Snapshot()
	if err != nil {
		return fmt.Errorf("safety snapshot: %w", err)
	}
	m.logger.Info("took safety snapshot before restore", "timestamp", safety.Timestamp)

	wantIndex, err := fs.FileChecksum(srcIndex)
	if err != nil {
		return fmt.Errorf("%w: checksum backup index: %v", domain.ErrIOFailure, err)
	}
	wantMeta, err := fs.FileChecksum(srcMeta)
	if err != nil {
		return fmt.Errorf("%w: checksum backup metadata: %v", domain.ErrIOFailure, err)
	}

	err = m.store.Replace(func(liveIndex, liveMeta string) error {
		tmpIndex, tmpMeta := liveIndex+restoreExt, liveMeta+restoreExt
		defer os.Remove(tmpIndex)
		defer os.Remove(tmpMeta)

		if err := fs.CopyFile(srcIndex, tmpIndex); err != nil {
			return fmt.Errorf("%w: copy index: %v", domain.ErrIOFailure, err)
		}
		if err := fs.CopyFile(srcMeta, tmpMeta); err != nil {
			return fmt.Errorf("%w: copy metadata: %v", domain.ErrIOFailure, err)
		}
		if err := verifyChecksum(tmpIndex, wantIndex); err != nil {
			return err
		}
		if err := verifyChecksum(tmpMeta, wantMeta); err != nil {
			return err
		}
		if _, err := store.ValidateArtifacts(tmpIndex, tmpMeta); err != nil {
			return err
		}

		if err := m.rename(tmpIndex, liveIndex); err != nil {
			return fmt.Errorf("%w: replace index: %v", domain.ErrIOFailure, err)
		}
		// The live index is now the backup's; any failure below must put the
		// safety snapshot back so the pair on disk stays loadable.
		if err := m.rename(tmpMeta, liveMeta); err != nil {
			return m.rollback(safety.Timestamp, liveIndex, liveMeta,
				fmt.Errorf("%w: replace metadata: %v", domain.ErrIOFailure, err))
		}
		if err := verifyChecksum(liveIndex, wantIndex); err != nil {
			return m.rollback(safety.Timestamp, liveIndex, liveMeta, err)
		}
		if err := verifyChecksum(liveMeta, wantMeta); err != nil {
			return m.rollback(safety.Timestamp, liveIndex, liveMeta, err)
		}
		return nil
	})
	if err != nil {
		m.logger.Error("restore failed", "timestamp", stamp, "safety_snapshot", safety.Timestamp, "error", err)
		return err
	}

	m.logger.Info("restored backup", "timestamp", stamp, "count", m.store.Count())
	return nil
}

// rollback reinstalls the backup taken at stamp as the live pair and returns
// cause, joined with the rollback error if that fails too. The in-memory store
// still holds the state the snapshot was taken from.
func (m *BackupManager) rollback(stamp, liveIndex, liveMeta string, cause error) error {
	srcIndex, srcMeta := m.pairPaths(stamp)
	tmpIndex, tmpMeta := liveIndex+restoreExt, liveMeta+restoreExt

	err := fs.CopyFile(srcIndex, tmpIndex)
	if err == nil {
		err = fs.CopyFile(srcMeta, tmpMeta)
	}
	if err == nil {
		err = m.rename(tmpIndex, liveIndex)
	}
	if err == nil {
		err = m.rename(tmpMeta, liveMeta)
	}
	if err != nil {
		m.logger.Error("rollback after failed restore failed", "safety_snapshot", stamp, "error", err)
		return errors.Join(cause, fmt.Errorf("%w: roll back to %s: %v", domain.ErrIOFailure, stamp, err))
	}

	m.logger.Warn("restore failed, live store rolled back", "safety_snapshot", stamp, "error", cause)
	return cause
}

func verifyChecksum(path, want string) error {
	got, err := fs.FileChecksum(path)
	if err != nil {
		return fmt.Errorf("%w: checksum %s: %v", domain.ErrIOFailure, filepath.Base(path), err)
	}
	if got != want {
		return fmt.Errorf("%w: checksum mismatch for %s", domain.ErrIOFailure, filepath.Base(path))
	}
	return nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
