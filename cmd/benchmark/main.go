package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ragvault/config"
	"ragvault/internal/adapter/embedding"
	"ragvault/internal/adapter/store"
)

func main() {
	dir := flag.String("dir", ".", "Directory holding ragvault.yaml")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	runs := flag.Int("runs", 20, "Timed search repetitions")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir . -q \"query\"")
		fmt.Println("\nTests:")
		fmt.Println("  1. Embedding infrastructure (model connection, persisted store)")
		fmt.Println("  2. Semantic similarity (query vs results)")
		fmt.Println("  3. Exact search latency over the whole index")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	storePath := cfg.Store.Path
	if !filepath.IsAbs(storePath) {
		storePath = filepath.Join(*dir, storePath)
	}
	st, err := store.OpenVectorStore(storePath, cfg.Store.Dimension, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	if st.Count() == 0 {
		fmt.Fprintln(os.Stderr, "No vectors - run 'ragvault ingest' first")
		os.Exit(1)
	}

	embedder, err := embedding.New(cfg.Embedding, cfg.Store.Dimension)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder init failed: %v\n", err)
		os.Exit(1)
	}
	gateway := embedding.NewGateway(embedder, cfg.Store.Dimension, nil)

	fmt.Println("SEMANTIC SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Vectors indexed: %d\n", st.Count())
	fmt.Printf("Model: %s (%s)\n", gateway.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", st.Dimension())
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	embedStart := time.Now()
	queryVec, err := gateway.Embed(context.Background(), *query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Query embedded: %d dimensions in %s\n\n", len(queryVec), time.Since(embedStart).Round(time.Millisecond))

	results, err := st.Search(queryVec, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Top %d semantic matches:\n\n", len(results))

	totalScore := 0.0
	for i, r := range results {
		preview := r.Metadata.Text
		if len(preview) > 150 {
			preview = preview[:150] + "..."
		}
		preview = strings.ReplaceAll(preview, "\n", " ")

		similarity := r.Score
		totalScore += similarity

		rating := "LOW"
		if similarity > 0.7 {
			rating = "HIGH"
		} else if similarity > 0.5 {
			rating = "GOOD"
		} else if similarity > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %s #%d\n", i+1, rating, similarity, r.Metadata.DocumentTitle, r.Metadata.ChunkIndex)
		fmt.Printf("   %s\n\n", preview)
	}

	var total time.Duration
	for i := 0; i < *runs; i++ {
		start := time.Now()
		if _, err := st.Search(queryVec, *topK); err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		total += time.Since(start)
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	if len(results) > 0 {
		avgScore := totalScore / float64(len(results))
		fmt.Printf("  Average similarity: %.3f\n", avgScore)
		fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].Score)

		if avgScore > 0.5 {
			fmt.Println("  Status: GOOD - semantic search working well")
		} else if avgScore > 0.3 {
			fmt.Println("  Status: OK - results are somewhat related")
		} else {
			fmt.Println("  Status: POOR - may need better embeddings or re-ingestion")
		}
	}
	if *runs > 0 {
		fmt.Printf("  Search latency:     %s avg over %d runs\n", (total / time.Duration(*runs)).Round(time.Microsecond), *runs)
	}
}
