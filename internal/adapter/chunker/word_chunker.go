package chunker

import (
	"fmt"
	"strings"
)

// WordChunker splits each page into overlapping windows of whitespace
// delimited words. Windows never cross a page boundary.
type WordChunker struct {
	window  int
	overlap int
}

func NewWordChunker(window, overlap int) (*WordChunker, error) {
	if window <= 0 {
		return nil, fmt.Errorf("chunk window must be positive, got %d", window)
	}
	if overlap < 0 || overlap >= window {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", window, overlap)
	}
	return &WordChunker{window: window, overlap: overlap}, nil
}

func (c *WordChunker) Chunk(pages []string) ([]string, error) {
	var chunks []string
	for _, page := range pages {
		chunks = append(chunks, c.chunkPage(page)...)
	}
	return chunks, nil
}

func (c *WordChunker) chunkPage(page string) []string {
	words := strings.Fields(page)
	if len(words) == 0 {
		return nil
	}

	step := c.window - c.overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + c.window
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))

		// The window already covers the tail of the page.
		if end == len(words) {
			break
		}
	}
	return chunks
}
