package usecase

import (
	"context"
	"errors"
	"os"
	"sort"
	"testing"
	"time"

	"ragvault/config"
	"ragvault/internal/adapter/chunker"
	"ragvault/internal/adapter/embedding"
	"ragvault/internal/adapter/extractor"
	"ragvault/internal/adapter/store"
	"ragvault/internal/domain"
)

func TestIngestFileSkipsFailedChunks(t *testing.T) {
	f := newFixture(t, 1000, 200)
	path := writeDoc(t, f.dir, "contract.txt", "alpha beta", "FAIL here", "gamma delta")

	status, err := f.pipeline.IngestFile(context.Background(), path, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if status.State != domain.IngestPartial {
		t.Errorf("expected partial, got %s", status.State)
	}
	if status.TotalChunks != 3 || status.Indexed != 2 || status.Skipped != 1 {
		t.Errorf("unexpected counters %+v", status)
	}
	if f.store.Count() != 2 {
		t.Fatalf("expected 2 vectors, got %d", f.store.Count())
	}

	q, err := f.gateway.Embed(context.Background(), "alpha")
	if err != nil {
		t.Fatal(err)
	}
	results, err := f.store.Search(q, 10)
	if err != nil {
		t.Fatal(err)
	}
	var indexes []int
	for _, r := range results {
		if r.Metadata.DocumentHash != status.DocumentHash {
			t.Errorf("result has hash %q, want %q", r.Metadata.DocumentHash, status.DocumentHash)
		}
		indexes = append(indexes, r.Metadata.ChunkIndex)
	}
	sort.Ints(indexes)
	if len(indexes) != 2 || indexes[0] != 0 || indexes[1] != 2 {
		t.Errorf("unexpected chunk indexes %v", indexes)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("synchronous ingest must not delete its input: %v", err)
	}
}

func TestIngestFileCompletes(t *testing.T) {
	f := newFixture(t, 1000, 200)
	path := writeDoc(t, f.dir, "notes.md", "# Notes\n\nsome words here")

	var calls int
	status, err := f.pipeline.IngestFile(context.Background(), path, "notes.md", func(domain.IngestStatus) { calls++ })
	if err != nil {
		t.Fatal(err)
	}
	if status.State != domain.IngestCompleted {
		t.Errorf("expected completed, got %s", status.State)
	}
	if status.Title != "Notes" {
		t.Errorf("unexpected title %q", status.Title)
	}
	if calls == 0 {
		t.Error("progress callback never called")
	}

	byHash, err := f.pipeline.Status(status.DocumentHash)
	if err != nil {
		t.Fatal(err)
	}
	if byHash.JobID != status.JobID {
		t.Errorf("status by hash returned job %s, want %s", byHash.JobID, status.JobID)
	}
}

func TestIngestCheckpointsEveryInterval(t *testing.T) {
	f := newFixture(t, 1000, 200)
	f.pipeline.cfg.CheckpointInterval = 2
	path := writeDoc(t, f.dir, "long.txt", "one", "two", "three", "four", "five")

	status, err := f.pipeline.IngestFile(context.Background(), path, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	// two periodic checkpoints plus the final save
	if status.Checkpoints != 3 {
		t.Errorf("expected 3 checkpoints, got %d", status.Checkpoints)
	}

	n, err := store.ValidateArtifacts(f.store.IndexPath(), f.store.MetadataPath())
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("persisted count %d, want 5", n)
	}
}

func TestIngestModelUnavailableFailsDocument(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewVectorStore(dir+"/vector_db", testDim, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	ch, _ := chunker.NewWordChunker(10, 2)
	p := NewIngestPipeline(st, embedding.NewGateway(nil, testDim, nil), ch, extractor.NewTextExtractor(),
		config.IngestConfig{UploadDir: dir, CheckpointInterval: 10, QueueSize: 1}, quietLogger())

	path := writeDoc(t, dir, "doc.txt", "a b c")
	status, err := p.IngestFile(context.Background(), path, "", nil)
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if status.State != domain.IngestFailed || status.Error == "" {
		t.Errorf("unexpected status %+v", status)
	}
	if st.Count() != 0 {
		t.Errorf("expected empty store, got %d", st.Count())
	}
}

func TestSubmitProcessesAndRemovesStagedFile(t *testing.T) {
	f := newFixture(t, 1000, 200)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.pipeline.Start(ctx)
	defer f.pipeline.Close()

	id, err := f.pipeline.Submit([]byte("hello uploaded world"), "upload.txt")
	if err != nil {
		t.Fatal(err)
	}

	status := waitTerminal(t, f.pipeline, id)
	if status.State != domain.IngestCompleted {
		t.Fatalf("expected completed, got %+v", status)
	}
	if f.store.Count() != 1 {
		t.Errorf("expected 1 vector, got %d", f.store.Count())
	}

	waitNoStaged(t, f.cfg.UploadDir)
}

func TestSubmitRemovesStagedFileOnFailure(t *testing.T) {
	f := newFixture(t, 1000, 200)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.pipeline.Start(ctx)
	defer f.pipeline.Close()

	// invalid UTF-8 fails extraction
	id, err := f.pipeline.Submit([]byte{0xff, 0xfe}, "broken.txt")
	if err != nil {
		t.Fatal(err)
	}
	status := waitTerminal(t, f.pipeline, id)
	if status.State != domain.IngestFailed {
		t.Fatalf("expected failed, got %+v", status)
	}
	waitNoStaged(t, f.cfg.UploadDir)
}

func TestSubmitRejects(t *testing.T) {
	f := newFixture(t, 1000, 200)

	if _, err := f.pipeline.Submit(make([]byte, 2048), "big.txt"); !errors.Is(err, domain.ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
	if _, err := f.pipeline.Submit([]byte("x"), "image.png"); !errors.Is(err, domain.ErrUnsupportedFile) {
		t.Errorf("expected ErrUnsupportedFile, got %v", err)
	}
	if _, err := f.pipeline.Status("missing"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	f := newFixture(t, 1000, 200)
	f.pipeline = NewIngestPipeline(f.store, f.gateway, f.pipeline.chunker, f.pipeline.extractor,
		config.IngestConfig{UploadDir: f.cfg.UploadDir, QueueSize: 1, Accept: []string{"*.txt"}}, quietLogger())

	// no worker is running, so the second upload cannot be queued
	first, err := f.pipeline.Submit([]byte("one"), "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.pipeline.Submit([]byte("two"), "b.txt"); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	entries, _ := os.ReadDir(f.cfg.UploadDir)
	if len(entries) != 1 {
		t.Errorf("expected 1 staged file, got %d", len(entries))
	}

	f.pipeline.Close()
	status, err := f.pipeline.Status(first)
	if err != nil {
		t.Fatal(err)
	}
	if status.State != domain.IngestFailed {
		t.Errorf("unprocessed job should be failed after close, got %s", status.State)
	}
	entries, _ = os.ReadDir(f.cfg.UploadDir)
	if len(entries) != 0 {
		t.Errorf("close left %d staged files", len(entries))
	}
	if _, err := f.pipeline.Submit([]byte("three"), "c.txt"); err == nil {
		t.Error("submit after close should fail")
	}
}

func waitTerminal(t *testing.T, p *IngestPipeline, id string) domain.IngestStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s, err := p.Status(id)
		if err != nil {
			t.Fatal(err)
		}
		if s.State.Terminal() {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return domain.IngestStatus{}
}

// waitNoStaged waits for the worker to remove staged uploads, which happens
// just after the job reaches its final state.
func waitNoStaged(t *testing.T, dir string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("staged uploads left in %s", dir)
}
