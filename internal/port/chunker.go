package port

// Chunker splits the ordered page texts of one document into ordered chunk texts.
type Chunker interface {
	Chunk(pages []string) ([]string, error)
}
