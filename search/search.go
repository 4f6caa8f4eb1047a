// Package search implements the three retrieval modes over a library
// database: word (full-text), vector (embeddings) and hybrid, which
// fuses both with reciprocal-rank fusion, query expansion and keyword
// boosts.
package search

import (
	"context"
	"log/slog"
	"math"

	"github.com/iannuttall/librarian"
)

// Tuning defaults.
const (
	// DefaultLimit caps returned items.
	DefaultLimit = 8

	// DefaultStrongScore and DefaultStrongGap gate query expansion:
	// a confident text result skips the expensive paths.
	DefaultStrongScore = 0.85
	DefaultStrongGap   = 0.15

	// MaxExpansions bounds generated alternative queries.
	MaxExpansions = 2

	// queryTaskPrefix marks query-side texts for asymmetric embedding
	// models.
	queryTaskPrefix = "search_query: "
)

// Service runs searches over one library. Embedder and Expander are
// optional: without them hybrid downgrades to text-only retrieval and
// vector mode reports not ready.
type Service struct {
	Chunks   librarian.ChunkService
	Vectors  librarian.VectorService
	Embedder librarian.Embedder
	Expander librarian.Expander
	Logger   *slog.Logger

	// SourceName is stamped on result items.
	SourceName string

	StrongScore float64
	StrongGap   float64
}

// Search dispatches on mode and returns formatted items.
func (s *Service) Search(ctx context.Context, query string, mode librarian.SearchMode, versionLabel string) ([]librarian.SearchItem, error) {
	switch mode {
	case librarian.ModeWord, "":
		return s.searchWord(ctx, query, versionLabel)
	case librarian.ModeVector:
		return s.searchVector(ctx, query, versionLabel)
	case librarian.ModeHybrid:
		return s.searchHybrid(ctx, query, versionLabel)
	default:
		return nil, librarian.Errorf(librarian.EINVALID, "unknown search mode %q", mode)
	}
}

// searchWord runs the sanitized query against the text index.
func (s *Service) searchWord(ctx context.Context, query, versionLabel string) ([]librarian.SearchItem, error) {
	hits, err := s.Chunks.SearchWords(ctx, SanitizeQuery(query), DefaultLimit, versionLabel)
	if err != nil {
		return nil, err
	}

	items := make([]librarian.SearchItem, 0, len(hits))
	var top float64
	for i, h := range hits {
		if i == 0 {
			top = h.Score
		}
		items = append(items, s.item(h.Chunk, h.Score, top))
	}
	return items, nil
}

// searchVector embeds the query and ranks by cosine similarity.
func (s *Service) searchVector(ctx context.Context, query, versionLabel string) ([]librarian.SearchItem, error) {
	if s.Embedder == nil {
		return nil, librarian.Errorf(librarian.EUNAVAILABLE, "vector search not ready: no embedding model")
	}
	vectors, err := s.Embedder.Embed(ctx, []string{queryTaskPrefix + query})
	if err != nil || len(vectors) == 0 {
		return nil, librarian.Errorf(librarian.EUNAVAILABLE, "vector search not ready: %s", librarian.ErrorMessage(err))
	}

	hits, err := s.Vectors.SearchVectors(ctx, vectors[0], DefaultLimit, versionLabel)
	if err != nil {
		return nil, err
	}

	items := make([]librarian.SearchItem, 0, len(hits))
	var top float64
	for i, h := range hits {
		chunk, err := s.Chunks.FindChunkByID(ctx, h.ChunkID)
		if err != nil {
			continue
		}
		score := 1 / (1 + h.Distance)
		if i == 0 {
			top = score
		}
		items = append(items, s.item(chunk, score, top))
	}
	return items, nil
}

// item formats one result row. Confidence is the score relative to
// the top score, clamped to [0, 1].
func (s *Service) item(chunk *librarian.Chunk, score, top float64) librarian.SearchItem {
	confidence := 1.0
	if top > 0 {
		confidence = math.Min(1, math.Max(0, score/top))
	}
	return librarian.SearchItem{
		ChunkID:     chunk.ID,
		DocumentID:  chunk.DocumentID,
		Title:       chunk.DocTitle,
		Path:        chunk.DocPath,
		URI:         chunk.DocURI,
		SourceName:  s.SourceName,
		ContextPath: chunk.ContextPath,
		Slice:       chunk.Slice(),
		Preview:     chunk.Preview(),
		TokenCount:  chunk.TokenCount,
		Score:       score,
		Confidence:  confidence,
	}
}
