package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"ragvault/internal/domain"
	"ragvault/internal/logging"
	"ragvault/internal/port"
)

// Gateway serializes every call to the embedding model. Concurrent calls
// into an accelerator-backed model exhaust its memory, so at most one
// request is in flight per gateway regardless of how many callers wait.
type Gateway struct {
	embedder  port.Embedder
	dimension int
	slot      chan struct{}
	logger    *slog.Logger
}

// NewGateway wraps embedder. A nil embedder is allowed: every Embed call then
// fails with domain.ErrModelUnavailable.
func NewGateway(embedder port.Embedder, dimension int, logger *slog.Logger) *Gateway {
	return &Gateway{
		embedder:  embedder,
		dimension: dimension,
		slot:      make(chan struct{}, 1),
		logger:    logging.OrDefault(logger),
	}
}

// Available reports whether an embedding model is configured.
func (g *Gateway) Available() bool {
	return g.embedder != nil
}

// ModelName returns the underlying model name, or "" when unavailable.
func (g *Gateway) ModelName() string {
	if g.embedder == nil {
		return ""
	}
	return g.embedder.ModelName()
}

// Embed returns the embedding of a single text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.embedder == nil {
		return nil, domain.ErrModelUnavailable
	}

	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-g.slot }()

	vectors, err := g.embedder.EmbedBatch(ctx, []string{text})
	if r, ok := g.embedder.(port.Releaser); ok {
		r.Release()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: model returned %d vectors for 1 text", domain.ErrEmbedding, len(vectors))
	}
	if len(vectors[0]) != g.dimension {
		return nil, fmt.Errorf("%w: model returned width %d, store expects %d", domain.ErrEmbedding, len(vectors[0]), g.dimension)
	}

	g.logger.Debug("embedded text", "model", g.embedder.ModelName(), "chars", len(text))
	return vectors[0], nil
}
