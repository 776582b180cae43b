package port

import "ragvault/internal/domain"

// Extractor turns a staged file into page-level text plus its content hash.
type Extractor interface {
	Extract(path string) (domain.ExtractedDocument, error)

	// Supports reports whether the extractor can read the named file.
	Supports(name string) bool
}
