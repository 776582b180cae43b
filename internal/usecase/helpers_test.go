package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ragvault/config"
	"ragvault/internal/adapter/chunker"
	"ragvault/internal/adapter/embedding"
	"ragvault/internal/adapter/extractor"
	"ragvault/internal/adapter/store"
)

const testDim = 64

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyEmbedder fails for any text containing "FAIL".
type flakyEmbedder struct {
	inner *embedding.HashEmbedder
}

func (e flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.Contains(t, "FAIL") {
			return nil, errors.New("tensor allocation failed")
		}
	}
	return e.inner.EmbedBatch(ctx, texts)
}

func (e flakyEmbedder) Dimension() int    { return e.inner.Dimension() }
func (e flakyEmbedder) ModelName() string { return "flaky" }

type fixture struct {
	dir      string
	store    *store.VectorStore
	gateway  *embedding.Gateway
	pipeline *IngestPipeline
	cfg      config.IngestConfig
}

func newFixture(t *testing.T, window, overlap int) *fixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewVectorStore(filepath.Join(dir, "data", "vector_db"), testDim, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	ch, err := chunker.NewWordChunker(window, overlap)
	if err != nil {
		t.Fatal(err)
	}
	gw := embedding.NewGateway(flakyEmbedder{inner: embedding.NewHashEmbedder(testDim)}, testDim, quietLogger())

	cfg := config.IngestConfig{
		UploadDir:          filepath.Join(dir, "uploads"),
		CheckpointInterval: 10,
		QueueSize:          4,
		MaxFileSize:        1024,
		Accept:             []string{"*.txt", "*.md"},
	}
	p := NewIngestPipeline(st, gw, ch, extractor.NewTextExtractor(), cfg, quietLogger())

	return &fixture{dir: dir, store: st, gateway: gw, pipeline: p, cfg: cfg}
}

func writeDoc(t *testing.T, dir, name string, pages ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(pages, "\f")), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
