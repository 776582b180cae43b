package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Walker expands ingest arguments into the files to ingest. Directories are
// walked and filtered by include/exclude patterns relative to the directory;
// files named explicitly are always taken.
type Walker struct {
	includes []string
	excludes []string
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

type FileInfo struct {
	Path    string
	Name    string
	ModTime int64
	Size    int64
}

// Walk returns the matching files under every root, deduplicated and sorted by path.
func (w *Walker) Walk(roots ...string) ([]FileInfo, error) {
	seen := make(map[string]bool)
	var files []FileInfo

	add := func(path string, info fs.FileInfo) {
		if seen[path] {
			return
		}
		seen[path] = true
		files = append(files, FileInfo{
			Path:    path,
			Name:    info.Name(),
			ModTime: info.ModTime().Unix(),
			Size:    info.Size(),
		})
	}

	for _, root := range roots {
		root, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(root, info)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			relPath, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			relPath = filepath.ToSlash(relPath)

			if d.IsDir() {
				if relPath != "." && MatchAny(w.excludes, relPath+"/") {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if MatchAny(w.includes, relPath) && !MatchAny(w.excludes, relPath) {
				info, err := d.Info()
				if err != nil {
					return err
				}
				add(path, info)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// MatchAny reports whether name matches one of the doublestar patterns.
// Malformed patterns never match.
func MatchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, name)
		if err == nil && matched {
			return true
		}
	}
	return false
}
