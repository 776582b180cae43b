package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"ragvault/internal/domain"
)

// pageBreak separates pages in plain-text exports.
const pageBreak = "\f"

var textExts = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
}

// TextExtractor reads UTF-8 text and markdown files. Form feeds split pages;
// a file without form feeds is a single page.
type TextExtractor struct {
	now func() time.Time
}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{now: time.Now}
}

func (e *TextExtractor) Supports(name string) bool {
	return textExts[strings.ToLower(filepath.Ext(name))]
}

func (e *TextExtractor) Extract(path string) (domain.ExtractedDocument, error) {
	var doc domain.ExtractedDocument

	if !e.Supports(path) {
		return doc, fmt.Errorf("%w: %s", domain.ErrUnsupportedFile, filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return doc, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrUnsupportedFile, filepath.Base(path))
	}

	sum := sha256.Sum256(data)
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	pages := strings.Split(text, pageBreak)

	doc.ContentHash = hex.EncodeToString(sum[:])
	doc.Title = title(text, path)
	doc.PageCount = len(pages)
	doc.ProcessedAt = e.now().UTC()
	doc.Pages = pages
	return doc, nil
}

// title is the first markdown heading, or the file name without extension.
func title(text, path string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
		break
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
