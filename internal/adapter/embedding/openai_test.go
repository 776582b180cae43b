package embedding

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ragvault/internal/port"
)

func TestOpenAIEmbedderReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		resp := embeddingResponse{}
		// Respond out of order to exercise index mapping.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{Index: i, Embedding: []float32{float32(i), 1}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	t.Setenv("TEST_EMBED_KEY", "test-key")
	emb, err := NewOpenAICompatibleEmbedder("TEST_EMBED_KEY", "test-model", srv.URL, 2, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	vecs, err := emb.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
}

func TestOpenAIEmbedderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder("nomic-embed-text", srv.URL, 0, 5*time.Second)
	if emb.Dimension() != 768 {
		t.Errorf("expected default width 768, got %d", emb.Dimension())
	}
	if _, err := emb.EmbedBatch(context.Background(), []string{"a"}); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestOpenAIEmbedderMissingKey(t *testing.T) {
	t.Setenv("TEST_EMBED_MISSING", "")
	if _, err := NewOpenAIEmbedder("TEST_EMBED_MISSING", "text-embedding-3-small", 0, time.Second); err == nil {
		t.Error("expected error when API key is missing")
	}
}

func TestGatewayReleasesEmbedderConnections(t *testing.T) {
	var closed atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{Data: []embeddingData{{Index: 0, Embedding: []float32{1, 0}}}})
	}))
	srv.Config.ConnState = func(c net.Conn, s http.ConnState) {
		if s == http.StateClosed {
			closed.Add(1)
		}
	}
	srv.Start()
	defer srv.Close()

	emb := NewOllamaEmbedder("local", srv.URL, 2, 5*time.Second)
	var _ port.Releaser = emb

	gw := NewGateway(emb, 2, nil)
	if _, err := gw.Embed(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for closed.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if closed.Load() == 0 {
		t.Error("connection still open after the gateway released the embedder")
	}
}
