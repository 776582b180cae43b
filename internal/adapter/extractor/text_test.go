package extractor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ragvault/internal/domain"
)

func TestExtractPagesAndHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	content := "# Operator Guide\n\nfirst page\fsecond page"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := NewTextExtractor().Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Operator Guide" {
		t.Errorf("expected heading title, got %q", doc.Title)
	}
	if doc.PageCount != 2 || len(doc.Pages) != 2 || doc.Pages[1] != "second page" {
		t.Errorf("unexpected pages %q", doc.Pages)
	}
	if len(doc.ContentHash) != 64 {
		t.Errorf("expected hex sha256, got %q", doc.ContentHash)
	}

	again, err := NewTextExtractor().Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.ContentHash != doc.ContentHash {
		t.Error("content hash is not stable")
	}
}

func TestExtractTitleFallsBackToFileName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "release-notes.txt")
	if err := os.WriteFile(path, []byte("plain text body"), 0644); err != nil {
		t.Fatal(err)
	}
	doc, err := NewTextExtractor().Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "release-notes" {
		t.Errorf("unexpected title %q", doc.Title)
	}
}

func TestExtractRejectsUnsupported(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "scan.pdf")
	if err := os.WriteFile(bin, []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewTextExtractor().Extract(bin); !errors.Is(err, domain.ErrUnsupportedFile) {
		t.Errorf("expected ErrUnsupportedFile, got %v", err)
	}

	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(bad, []byte{0xff, 0xfe, 0x00}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewTextExtractor().Extract(bad); !errors.Is(err, domain.ErrUnsupportedFile) {
		t.Errorf("expected ErrUnsupportedFile for invalid utf-8, got %v", err)
	}
}
