package extractor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"ragvault/internal/domain"
)

// PDFExtractor returns the plain text of every page of a PDF. The title comes
// from the document information dictionary when it has one.
type PDFExtractor struct {
	now func() time.Time
}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{now: time.Now}
}

func (e *PDFExtractor) Supports(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

func (e *PDFExtractor) Extract(path string) (domain.ExtractedDocument, error) {
	var doc domain.ExtractedDocument

	if !e.Supports(path) {
		return doc, fmt.Errorf("%w: %s", domain.ErrUnsupportedFile, filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("failed to read %s: %w", path, err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return doc, fmt.Errorf("%w: %s: %v", domain.ErrUnsupportedFile, filepath.Base(path), err)
	}

	n := r.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return doc, fmt.Errorf("%w: page %d of %s: %v", domain.ErrUnsupportedFile, i, filepath.Base(path), err)
		}
		pages = append(pages, text)
	}

	sum := sha256.Sum256(data)
	doc.ContentHash = hex.EncodeToString(sum[:])
	doc.Title = pdfTitle(r, path)
	doc.PageCount = n
	doc.ProcessedAt = e.now().UTC()
	doc.Pages = pages
	return doc, nil
}

func pdfTitle(r *pdf.Reader, path string) string {
	if t := strings.TrimSpace(r.Trailer().Key("Info").Key("Title").Text()); t != "" {
		return t
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
