package port

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// Releaser is implemented by embedders that hold transient buffers between
// calls. The embedding gateway calls Release after every request.
type Releaser interface {
	Release()
}
