package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ragvault/config"
	"ragvault/internal/adapter/chunker"
	"ragvault/internal/adapter/embedding"
	"ragvault/internal/adapter/extractor"
	"ragvault/internal/adapter/store"
	"ragvault/internal/domain"
	"ragvault/internal/usecase"
)

const dim = 32

func setupServer(t *testing.T) (http.Handler, *store.VectorStore) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewVectorStore(filepath.Join(dir, "vector_db"), dim, logger)
	if err != nil {
		t.Fatal(err)
	}
	gw := embedding.NewGateway(embedding.NewHashEmbedder(dim), dim, logger)
	ch, err := chunker.NewWordChunker(50, 10)
	if err != nil {
		t.Fatal(err)
	}

	ingestCfg := config.IngestConfig{
		UploadDir:          filepath.Join(dir, "uploads"),
		CheckpointInterval: 10,
		QueueSize:          4,
		MaxFileSize:        1024,
		Accept:             []string{"*.txt", "*.md"},
	}
	pipeline := usecase.NewIngestPipeline(st, gw, ch, extractor.NewTextExtractor(), ingestCfg, logger)
	ctx, cancel := context.WithCancel(context.Background())
	pipeline.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pipeline.Close()
	})

	srv := New(config.ServerConfig{Addr: ":0", AllowedOrigins: []string{"*"}}, Deps{
		Store:         st,
		Gateway:       gw,
		Pipeline:      pipeline,
		Search:        usecase.NewSearchUseCase(st, gw, nil, nil, config.RetrieveConfig{TopK: 5}, logger),
		Backups:       usecase.NewBackupManager(st, filepath.Join(dir, "backups"), logger),
		MaxUploadSize: ingestCfg.MaxFileSize,
		KeepDays:      30,
	}, logger)
	return srv.Handler(), st
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	h, _ := setupServer(t)
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["model_available"] != true || got["model"] != "hash" {
		t.Errorf("unexpected health %v", got)
	}
}

func TestUploadStatusListSearch(t *testing.T) {
	h, st := setupServer(t)

	rec := do(t, h, uploadRequest(t, "handbook.txt", []byte("vacation days accrue monthly")))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	var accepted map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	jobID := accepted["job_id"]
	if jobID == "" {
		t.Fatal("missing job_id")
	}

	var status domain.IngestStatus
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec = do(t, h, httptest.NewRequest(http.MethodGet, "/documents/status/"+jobID, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status code = %d", rec.Code)
		}
		if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if status.State.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if status.State != domain.IngestCompleted {
		t.Fatalf("job did not complete: %+v", status)
	}
	if st.Count() != 1 {
		t.Errorf("expected 1 vector, got %d", st.Count())
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/documents/list", nil))
	var docs []domain.DocumentSummary
	if err := json.NewDecoder(rec.Body).Decode(&docs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(docs) != 1 || docs[0].Title != "handbook" || docs[0].ChunkCount != 1 {
		t.Errorf("unexpected documents %+v", docs)
	}

	req := httptest.NewRequest(http.MethodPost, "/documents/search", strings.NewReader(`{"query":"vacation days","limit":3}`))
	req.Header.Set("Content-Type", "application/json")
	rec = do(t, h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, body %s", rec.Code, rec.Body.String())
	}
	var hits []searchHit
	if err := json.NewDecoder(rec.Body).Decode(&hits); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hits) != 1 || hits[0].Content != "vacation days accrue monthly" {
		t.Errorf("unexpected hits %+v", hits)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/documents/search?query=monthly&limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("query-string search status = %d", rec.Code)
	}
}

func TestUploadRejections(t *testing.T) {
	h, _ := setupServer(t)

	rec := do(t, h, uploadRequest(t, "photo.png", []byte("x")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported file: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = do(t, h, uploadRequest(t, "big.txt", bytes.Repeat([]byte("a"), 2048)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("large file: status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/documents/upload", strings.NewReader("")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing file: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStatusNotFound(t *testing.T) {
	h, _ := setupServer(t)
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/documents/status/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAskEmptyStore(t *testing.T) {
	h, _ := setupServer(t)
	req := httptest.NewRequest(http.MethodPost, "/qa/ask", strings.NewReader(`{"question":"what is covered?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := do(t, h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var answer domain.Answer
	if err := json.NewDecoder(rec.Body).Decode(&answer); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if answer.Answer != usecase.NoContextAnswer {
		t.Errorf("unexpected answer %q", answer.Answer)
	}

	req = httptest.NewRequest(http.MethodPost, "/qa/ask", strings.NewReader(`{"question":"what is covered?","context_size":11}`))
	rec = do(t, h, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("context_size 11: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	req = httptest.NewRequest(http.MethodPost, "/qa/ask", strings.NewReader(`{"question":"why?"}`))
	rec = do(t, h, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short question: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestBackupRoutes(t *testing.T) {
	h, _ := setupServer(t)

	rec := do(t, h, httptest.NewRequest(http.MethodPost, "/backups", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("snapshot status = %d, body %s", rec.Code, rec.Body.String())
	}
	var entry domain.BackupEntry
	if err := json.NewDecoder(rec.Body).Decode(&entry); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/backups", nil))
	var list []domain.BackupEntry
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].Timestamp != entry.Timestamp {
		t.Errorf("unexpected backups %+v", list)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/backups/20000101_000000/restore", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("restore missing: status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/backups/"+entry.Timestamp+"/restore", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("restore: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/backups/sweep?keep_days=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad keep_days: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/backups/sweep", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("sweep: status = %d, body %s", rec.Code, rec.Body.String())
	}
}
