package librarian

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ChunkType classifies a chunk's origin.
type ChunkType string

// Chunk types.
const (
	ChunkCode      ChunkType = "code"
	ChunkDoc       ChunkType = "doc"
	ChunkDocInline ChunkType = "doc-inline"
)

// Chunk is a retrievable unit belonging to one document. Chunks are
// dropped and rebuilt atomically whenever their document changes.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"documentId"`
	Position   int       `json:"position"`
	Type       ChunkType `json:"chunkType"`
	Language   string    `json:"language,omitempty"`

	// Symbol metadata, set for code chunks extracted from a named
	// symbol. Part index and count are set when a symbol was split.
	SymbolName  string `json:"symbolName,omitempty"`
	SymbolType  string `json:"symbolType,omitempty"`
	SymbolID    string `json:"symbolId,omitempty"`
	SymbolPart  int    `json:"symbolPartIndex,omitempty"`
	SymbolParts int    `json:"symbolPartCount,omitempty"`

	StartLine  int    `json:"lineStart,omitempty"`
	EndLine    int    `json:"lineEnd,omitempty"`
	StartChar  int    `json:"charStart,omitempty"`
	EndChar    int    `json:"charEnd,omitempty"`
	TokenCount int    `json:"tokenCount"`
	SHA        string `json:"chunkSha"`
	Content    string `json:"content"`

	// Denormalized document fields for display and keyword boosting.
	DocPath     string `json:"docPath"`
	DocURI      string `json:"docUri"`
	DocTitle    string `json:"docTitle"`
	ContextPath string `json:"contextPath,omitempty"`
}

// ComputeSHA returns the stable chunk hash over content, position and
// document id.
func (c *Chunk) ComputeSHA() string {
	h := xxhash.New()
	_, _ = h.WriteString(c.Content)
	_, _ = fmt.Fprintf(h, "\x00%d\x00%d", c.Position, c.DocumentID)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Preview returns the first ~220 characters of content with
// whitespace collapsed.
func (c *Chunk) Preview() string {
	return PreviewText(c.Content, 220)
}

// Slice renders the chunk's line range as an "a:b" slice string.
func (c *Chunk) Slice() string {
	if c.StartLine == 0 && c.EndLine == 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", c.StartLine, c.EndLine)
}

// PreviewText collapses whitespace and truncates to max characters.
func PreviewText(s string, max int) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	if len(collapsed) <= max {
		return collapsed
	}
	cut := collapsed[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > max/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}

// ChunkDraft is the chunker's output unit before persistence.
type ChunkDraft struct {
	Type        ChunkType
	Language    string
	SymbolName  string
	SymbolType  string
	SymbolID    string
	SymbolPart  int
	SymbolParts int
	StartLine   int
	EndLine     int
	StartChar   int
	EndChar     int
	TokenCount  int
	Content     string
	ContextPath string
}

// WordHit is one full-text search result. Score is normalized so
// larger is better.
type WordHit struct {
	Chunk *Chunk
	Score float64
}

// VectorHit is one vector search result carrying the raw distance.
type VectorHit struct {
	ChunkID  int64
	Distance float64
}

// ChunkService manages chunks inside one library database.
type ChunkService interface {
	// ReplaceChunks deletes all chunks of the document and inserts the
	// drafts in one transaction. Positions are assigned in order.
	ReplaceChunks(ctx context.Context, doc *Document, drafts []ChunkDraft) ([]*Chunk, error)

	// FindChunkByID retrieves a chunk by ID.
	// Returns ENOTFOUND if the chunk does not exist.
	FindChunkByID(ctx context.Context, id int64) (*Chunk, error)

	// CountChunks returns the number of chunks in the library.
	CountChunks(ctx context.Context) (int64, error)

	// SearchWords runs the full-text index over chunk content, title,
	// path, context and uri. A verbatim query that the text engine
	// rejects is retried in a normalized form.
	SearchWords(ctx context.Context, query string, limit int, versionLabel string) ([]WordHit, error)
}

// VectorService manages chunk embeddings inside one library database.
// Vector dimensionality is fixed by the first embedding seen; a
// dimension change drops and rebuilds the vector table.
type VectorService interface {
	// UpsertEmbedding stores the vector for (chunk, model).
	UpsertEmbedding(ctx context.Context, chunkID int64, modelURI string, vector []float32) error

	// ClearEmbeddings removes all embeddings and the vector table.
	ClearEmbeddings(ctx context.Context) error

	// MissingEmbeddings returns chunk IDs with no embedding for the
	// model, up to limit (0 = all).
	MissingEmbeddings(ctx context.Context, modelURI string, limit int) ([]*Chunk, error)

	// CountEmbeddings returns the number of stored embeddings.
	CountEmbeddings(ctx context.Context) (int64, error)

	// SearchVectors returns the nearest chunks by cosine distance.
	SearchVectors(ctx context.Context, vector []float32, limit int, versionLabel string) ([]VectorHit, error)
}
