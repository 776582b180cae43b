package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkIncludesAndExcludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "notes", "b.md"), "b")
	writeFile(t, filepath.Join(dir, "notes", "c.go"), "c")
	writeFile(t, filepath.Join(dir, "drafts", "d.txt"), "d")

	w := NewWalker([]string{"**/*.txt", "**/*.md"}, []string{"drafts/**"})
	files, err := w.Walk(dir)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "b.md" {
		t.Errorf("unexpected files %v", names)
	}
}

func TestWalkExplicitFileBypassesPatterns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.log")
	writeFile(t, path, "x")

	w := NewWalker([]string{"**/*.txt"}, nil)
	files, err := w.Walk(path, path)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name != "report.log" {
		t.Errorf("unexpected files %+v", files)
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"*.pdf", "*.txt"}
	if !MatchAny(patterns, "paper.pdf") {
		t.Error("expected paper.pdf to match")
	}
	if MatchAny(patterns, "image.png") {
		t.Error("image.png should not match")
	}
	if MatchAny([]string{"[bad"}, "bad") {
		t.Error("malformed pattern matched")
	}
}

func TestCopyFilePreservesContentAndModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeFile(t, src, "payload")
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}

	a, _ := FileChecksum(src)
	b, err := FileChecksum(dst)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("checksums differ after copy")
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime not preserved: %v", info.ModTime())
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("temporary files left behind: %d entries", len(entries))
	}
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFile(filepath.Join(dir, "nope"), filepath.Join(dir, "dst")); err == nil {
		t.Error("expected error for missing source")
	}
}
