package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"ragvault/config"
	"ragvault/internal/adapter/embedding"
	"ragvault/internal/adapter/fs"
	"ragvault/internal/adapter/store"
	"ragvault/internal/domain"
	"ragvault/internal/logging"
	"ragvault/internal/port"
)

// ProgressFunc observes an ingestion after every chunk.
type ProgressFunc func(domain.IngestStatus)

type ingestJob struct {
	id   string
	dir  string
	path string
	name string
}

// IngestPipeline turns documents into indexed chunks. Uploads are staged on
// disk and processed one at a time by a single worker, so embedding calls
// from different documents never overlap.
type IngestPipeline struct {
	store     *store.VectorStore
	gateway   *embedding.Gateway
	chunker   port.Chunker
	extractor port.Extractor
	cfg       config.IngestConfig
	logger    *slog.Logger
	now       func() time.Time

	queue chan ingestJob
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	jobs    map[string]*domain.IngestStatus
	byHash  map[string]string
}

func NewIngestPipeline(
	st *store.VectorStore,
	gateway *embedding.Gateway,
	chunker port.Chunker,
	extractor port.Extractor,
	cfg config.IngestConfig,
	logger *slog.Logger,
) *IngestPipeline {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 10
	}
	return &IngestPipeline{
		store:     st,
		gateway:   gateway,
		chunker:   chunker,
		extractor: extractor,
		cfg:       cfg,
		logger:    logging.OrDefault(logger),
		now:       time.Now,
		queue:     make(chan ingestJob, queueSize),
		jobs:      make(map[string]*domain.IngestStatus),
		byHash:    make(map[string]string),
	}
}

// Submit stages data and queues it for ingestion. It returns the job id
// without waiting for the document to be processed.
func (p *IngestPipeline) Submit(data []byte, fileName string) (string, error) {
	name := filepath.Base(fileName)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", fmt.Errorf("%w: missing file name", domain.ErrUnsupportedFile)
	}
	if p.cfg.MaxFileSize > 0 && int64(len(data)) > p.cfg.MaxFileSize {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", domain.ErrFileTooLarge, len(data), p.cfg.MaxFileSize)
	}
	if !fs.MatchAny(p.cfg.Accept, name) || !p.extractor.Supports(name) {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFile, name)
	}

	// Each upload gets its own directory so the original file name survives.
	id := uuid.NewString()
	job := ingestJob{id: id, dir: filepath.Join(p.cfg.UploadDir, id), name: name}
	job.path = filepath.Join(job.dir, name)

	if err := os.MkdirAll(job.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.WriteFile(job.path, data, 0644); err != nil {
		p.removeStaged(job)
		return "", fmt.Errorf("failed to stage upload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.removeStaged(job)
		return "", errors.New("ingestion pipeline is closed")
	}

	select {
	case p.queue <- job:
	default:
		p.removeStaged(job)
		return "", domain.ErrQueueFull
	}

	p.jobs[id] = &domain.IngestStatus{
		JobID:     id,
		FileName:  name,
		State:     domain.IngestReceived,
		UpdatedAt: p.now(),
	}
	p.logger.Info("queued upload", "job", id, "file", name, "bytes", len(data))
	return id, nil
}

// Start launches the worker. Jobs still queued when ctx is cancelled are
// dropped by Close.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-p.queue:
				if !ok {
					return
				}
				p.runJob(ctx, job)
			}
		}
	}()
}

// Close stops accepting uploads, waits for the worker and discards the
// staged files of jobs that never ran.
func (p *IngestPipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()

	for job := range p.queue {
		p.removeStaged(job)
		p.update(job.id, func(s *domain.IngestStatus) {
			s.State = domain.IngestFailed
			s.Error = "pipeline shut down before the document was processed"
		})
	}
}

// Status looks a job up by job id or by document hash.
func (p *IngestPipeline) Status(key string) (domain.IngestStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.jobs[key]; ok {
		return *s, nil
	}
	if id, ok := p.byHash[key]; ok {
		if s, ok := p.jobs[id]; ok {
			return *s, nil
		}
	}
	return domain.IngestStatus{}, domain.ErrJobNotFound
}

// Supports reports whether the extractor can read files named name.
func (p *IngestPipeline) Supports(name string) bool {
	return p.extractor.Supports(name)
}

// IngestFile ingests the file at path synchronously. The file is left in place.
func (p *IngestPipeline) IngestFile(ctx context.Context, path, name string, onProgress ProgressFunc) (domain.IngestStatus, error) {
	if name == "" {
		name = filepath.Base(path)
	}
	id := uuid.NewString()

	p.mu.Lock()
	p.jobs[id] = &domain.IngestStatus{
		JobID:     id,
		FileName:  name,
		State:     domain.IngestReceived,
		UpdatedAt: p.now(),
	}
	p.mu.Unlock()

	return p.ingest(ctx, id, path, onProgress)
}

func (p *IngestPipeline) runJob(ctx context.Context, job ingestJob) {
	defer p.removeStaged(job)

	status, err := p.ingest(ctx, job.id, job.path, nil)
	if err != nil {
		p.logger.Error("ingestion failed", "job", job.id, "file", job.name, "error", err)
		return
	}
	p.logger.Info("ingestion finished",
		"job", job.id,
		"file", job.name,
		"state", status.State,
		"indexed", status.Indexed,
		"skipped", status.Skipped,
	)
}

func (p *IngestPipeline) removeStaged(job ingestJob) {
	if err := os.RemoveAll(job.dir); err != nil {
		p.logger.Warn("failed to remove staged upload", "path", job.path, "error", err)
	}
}

// ingest runs one document through extraction, chunking, per-chunk embedding
// and indexing. A chunk whose embedding fails is skipped; a missing model,
// cancellation or a store error stops the document. Whatever was indexed is
// saved before returning.
func (p *IngestPipeline) ingest(ctx context.Context, id, path string, onProgress ProgressFunc) (domain.IngestStatus, error) {
	fail := func(err error) (domain.IngestStatus, error) {
		s := p.update(id, func(s *domain.IngestStatus) {
			s.State = domain.IngestFailed
			s.Error = err.Error()
		})
		return s, err
	}

	p.update(id, func(s *domain.IngestStatus) { s.State = domain.IngestChunking })

	doc, err := p.extractor.Extract(path)
	if err != nil {
		return fail(fmt.Errorf("extract: %w", err))
	}

	if p.store.HasDocument(doc.ContentHash) {
		p.logger.Warn("document already indexed, ingesting again", "hash", doc.ContentHash, "title", doc.Title)
	}

	texts, err := p.chunker.Chunk(doc.Pages)
	if err != nil {
		return fail(fmt.Errorf("chunk: %w", err))
	}
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{SourceDocument: doc.ContentHash, Index: i, Text: text}
	}

	p.mu.Lock()
	p.byHash[doc.ContentHash] = id
	p.mu.Unlock()

	status := p.update(id, func(s *domain.IngestStatus) {
		s.DocumentHash = doc.ContentHash
		s.Title = doc.Title
		s.TotalChunks = len(chunks)
		s.State = domain.IngestEmbedding
	})
	p.logger.Info("ingesting document", "job", id, "title", doc.Title, "pages", doc.PageCount, "chunks", len(chunks))

	var (
		abort           error
		sinceCheckpoint int
	)
	for _, c := range chunks {
		vec, err := p.gateway.Embed(ctx, c.Text)
		if err != nil {
			if !errors.Is(err, domain.ErrEmbedding) {
				abort = err
				break
			}
			p.logger.Warn("skipping chunk", "job", id, "chunk", c.Index, "error", err)
			status = p.update(id, func(s *domain.IngestStatus) { s.Skipped++ })
			p.notify(onProgress, status)
			continue
		}

		md := c.Metadata(doc.Title)
		if _, err := p.store.AddVectors([][]float32{vec}, []domain.ChunkMetadata{md}); err != nil {
			abort = fmt.Errorf("index chunk %d: %w", c.Index, err)
			break
		}
		status = p.update(id, func(s *domain.IngestStatus) { s.Indexed++ })

		sinceCheckpoint++
		if sinceCheckpoint >= p.cfg.CheckpointInterval {
			if err := p.store.Save(); err != nil {
				abort = fmt.Errorf("checkpoint: %w", err)
				break
			}
			sinceCheckpoint = 0
			status = p.update(id, func(s *domain.IngestStatus) { s.Checkpoints++ })
			p.logger.Debug("checkpoint saved", "job", id, "indexed", status.Indexed)
		}
		p.notify(onProgress, status)
	}

	if err := p.store.Save(); err != nil {
		p.logger.Error("final save failed", "job", id, "error", err)
		if abort == nil {
			abort = fmt.Errorf("final save: %w", err)
		}
	} else {
		p.update(id, func(s *domain.IngestStatus) { s.Checkpoints++ })
	}

	if abort != nil {
		return fail(abort)
	}

	status = p.update(id, func(s *domain.IngestStatus) {
		if s.Skipped > 0 {
			s.State = domain.IngestPartial
		} else {
			s.State = domain.IngestCompleted
		}
	})
	p.notify(onProgress, status)
	return status, nil
}

func (p *IngestPipeline) notify(fn ProgressFunc, s domain.IngestStatus) {
	if fn != nil {
		fn(s)
	}
}

// update applies fn to the job's status and returns a copy of the result.
func (p *IngestPipeline) update(id string, fn func(*domain.IngestStatus)) domain.IngestStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.jobs[id]
	if !ok {
		s = &domain.IngestStatus{JobID: id}
		p.jobs[id] = s
	}
	fn(s)
	s.UpdatedAt = p.now()
	return *s
}
