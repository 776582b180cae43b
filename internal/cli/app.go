package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"ragvault/config"
	"ragvault/internal/adapter/cache"
	"ragvault/internal/adapter/chunker"
	"ragvault/internal/adapter/embedding"
	"ragvault/internal/adapter/extractor"
	"ragvault/internal/adapter/llm"
	"ragvault/internal/adapter/store"
	"ragvault/internal/port"
	"ragvault/internal/usecase"
)

// app is the wired set of components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.VectorStore
	gateway  *embedding.Gateway
	pipeline *usecase.IngestPipeline
	search   *usecase.SearchUseCase
	backups  *usecase.BackupManager
}

// openApp loads the store and builds every component around it. A missing
// embedding model or generator is logged and leaves the app usable for the
// operations that do not need them.
func openApp(c *config.Config, log *slog.Logger) (*app, error) {
	storePath := resolvePath(c.Store.Path)
	st, err := store.OpenVectorStore(storePath, c.Store.Dimension, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", storePath, err)
	}

	var embedder port.Embedder
	if e, err := embedding.New(c.Embedding, c.Store.Dimension); err != nil {
		log.Warn("embedding model unavailable", "provider", c.Embedding.Provider, "error", err)
	} else {
		embedder = e
	}
	gateway := embedding.NewGateway(embedder, c.Store.Dimension, log)

	ch, err := chunker.NewWordChunker(c.Ingest.ChunkWords, c.Ingest.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	ingestCfg := c.Ingest
	ingestCfg.UploadDir = resolvePath(ingestCfg.UploadDir)
	pipeline := usecase.NewIngestPipeline(st, gateway, ch, extractor.NewDefault(), ingestCfg, log)

	var queryCache *cache.QueryCache
	if c.Retrieve.CacheSize > 0 {
		queryCache = cache.NewQueryCache(c.Retrieve.CacheSize, c.Retrieve.CacheTTL)
	}

	var generator port.Generator
	if g, err := llm.NewOpenAIGenerator(c.Generation); err != nil {
		log.Warn("answer generator unavailable", "model", c.Generation.Model, "error", err)
	} else {
		generator = g
	}
	search := usecase.NewSearchUseCase(st, gateway, queryCache, generator, c.Retrieve, log)

	return &app{
		cfg:      c,
		logger:   log,
		store:    st,
		gateway:  gateway,
		pipeline: pipeline,
		search:   search,
		backups:  usecase.NewBackupManager(st, resolvePath(c.Backup.Dir), log),
	}, nil
}

// resolvePath makes relative config paths relative to the root directory.
func resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GetRootDir(), p)
}
