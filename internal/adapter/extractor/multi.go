package extractor

import (
	"fmt"
	"path/filepath"

	"ragvault/internal/domain"
	"ragvault/internal/port"
)

// MultiExtractor hands each file to the first extractor that supports it.
type MultiExtractor struct {
	extractors []port.Extractor
}

func NewMultiExtractor(extractors ...port.Extractor) *MultiExtractor {
	return &MultiExtractor{extractors: extractors}
}

// NewDefault reads PDF, text and markdown files.
func NewDefault() *MultiExtractor {
	return NewMultiExtractor(NewPDFExtractor(), NewTextExtractor())
}

func (m *MultiExtractor) Supports(name string) bool {
	return m.pick(name) != nil
}

func (m *MultiExtractor) Extract(path string) (domain.ExtractedDocument, error) {
	e := m.pick(path)
	if e == nil {
		return domain.ExtractedDocument{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFile, filepath.Base(path))
	}
	return e.Extract(path)
}

func (m *MultiExtractor) pick(name string) port.Extractor {
	for _, e := range m.extractors {
		if e.Supports(name) {
			return e
		}
	}
	return nil
}
