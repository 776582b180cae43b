package domain

import "time"

// Document is a content-addressed upload. It is immutable once created.
type Document struct {
	ContentHash string    `json:"content_hash"`
	Title       string    `json:"title"`
	PageCount   int       `json:"page_count"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ExtractedDocument is what an extractor hands to the ingestion pipeline.
type ExtractedDocument struct {
	Document
	Pages []string
}

// Chunk only exists between the chunker and the index; it is never stored on its own.
type Chunk struct {
	SourceDocument string
	Index          int
	Text           string
}

// Metadata is the provenance record stored next to the chunk's vector.
func (c Chunk) Metadata(title string) ChunkMetadata {
	return ChunkMetadata{
		ChunkIndex:    c.Index,
		DocumentHash:  c.SourceDocument,
		DocumentTitle: title,
		Text:          c.Text,
	}
}

// ChunkMetadata is the provenance record kept next to every vector.
type ChunkMetadata struct {
	ChunkIndex    int    `json:"chunk_index"`
	DocumentHash  string `json:"document_hash"`
	DocumentTitle string `json:"document_title"`
	Text          string `json:"text"`
}

// SearchResult is one hit of a nearest-neighbour query. Higher scores are more similar.
type SearchResult struct {
	ID       int64         `json:"id"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

// DocumentSummary aggregates the chunks of one document present in the index.
type DocumentSummary struct {
	Hash       string `json:"hash"`
	Title      string `json:"title"`
	ChunkCount int    `json:"chunk_count"`
}

// BackupEntry describes one backup pair on disk.
type BackupEntry struct {
	Timestamp string    `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type IngestState string

const (
	IngestReceived  IngestState = "received"
	IngestChunking  IngestState = "chunking"
	IngestEmbedding IngestState = "embedding"
	IngestCompleted IngestState = "completed"
	// IngestPartial means the document finished but some chunks were skipped.
	IngestPartial IngestState = "partial"
	IngestFailed  IngestState = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s IngestState) Terminal() bool {
	return s == IngestCompleted || s == IngestPartial || s == IngestFailed
}

// IngestStatus is the externally visible progress of one ingestion job.
type IngestStatus struct {
	JobID        string      `json:"job_id"`
	FileName     string      `json:"file_name"`
	DocumentHash string      `json:"document_hash,omitempty"`
	Title        string      `json:"title,omitempty"`
	State        IngestState `json:"state"`
	TotalChunks  int         `json:"total_chunks"`
	Indexed      int         `json:"indexed"`
	Skipped      int         `json:"skipped"`
	Checkpoints  int         `json:"checkpoints"`
	Error        string      `json:"error,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Answer is the result of a question answered over retrieved context.
type Answer struct {
	Answer  string         `json:"answer"`
	Context []SearchResult `json:"context"`
}
