package librarian

import "context"

// SearchMode selects the retrieval strategy.
type SearchMode string

// Search modes.
const (
	ModeWord   SearchMode = "word"
	ModeVector SearchMode = "vector"
	ModeHybrid SearchMode = "hybrid"
)

// SearchItem is one formatted search result.
type SearchItem struct {
	ChunkID     int64   `json:"chunkId"`
	DocumentID  int64   `json:"documentId"`
	Title       string  `json:"title"`
	Path        string  `json:"path"`
	URI         string  `json:"uri"`
	SourceName  string  `json:"sourceName"`
	ContextPath string  `json:"contextPath,omitempty"`
	Slice       string  `json:"slice,omitempty"`
	Preview     string  `json:"preview"`
	TokenCount  int     `json:"tokenCount"`
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
}

// Embedder produces embedding vectors for texts. Query embeddings are
// task-prefixed by the caller where the model requires it.
type Embedder interface {
	// Embed returns one vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelURI identifies the model, used to key stored embeddings.
	ModelURI() string
}

// Expander generates alternative phrasings of a search query.
// Implementations back onto a small local or remote model; without a
// model hybrid search runs with no query expansion.
type Expander interface {
	// Expand returns up to n alternative queries for q.
	Expand(ctx context.Context, q string, n int) ([]string, error)
}
