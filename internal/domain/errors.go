package domain

import "errors"

var (
	// ErrModelUnavailable means the embedding function was never initialised.
	ErrModelUnavailable = errors.New("embedding model unavailable")
	// ErrEmbedding is a single failed embedding call.
	ErrEmbedding = errors.New("embedding failed")
	// ErrArityMismatch is returned when vectors and metadata differ in length.
	ErrArityMismatch = errors.New("vectors and metadata length mismatch")
	// ErrDimensionMismatch is returned for vectors of the wrong width.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrCorruptStore means the persisted artifacts cannot be loaded as a consistent pair.
	ErrCorruptStore = errors.New("corrupt vector store")
	// ErrIOFailure wraps file copy and delete failures in backup and restore.
	ErrIOFailure = errors.New("backup i/o failure")

	ErrBackupNotFound  = errors.New("backup not found")
	ErrQueueFull       = errors.New("ingestion queue full")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrJobNotFound     = errors.New("ingestion job not found")
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrGeneratorUnavailable means no answer model is configured.
	ErrGeneratorUnavailable = errors.New("answer generator unavailable")
)
