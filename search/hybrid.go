package search

import (
	"context"
	"sort"
	"strings"

	"github.com/iannuttall/librarian"
)

// Reciprocal-rank fusion parameters.
const (
	rrfK          = 60.0
	rrfFirstBonus = 0.02
	rrfTopBonus   = 0.01
	rrfTopRank    = 3

	// List weights.
	weightOriginal         = 2.0
	weightOriginalRelaxed  = 1.2
	weightAlternate        = 1.0
	weightAlternateRelaxed = 0.7

	// Keyword boost cap and per-field weights.
	maxKeywordBoost = 0.08
	boostPath       = 0.03
	boostTitle      = 0.025
	boostContext    = 0.015
	boostPreview    = 0.01
)

// rankedList is one retrieval list entering the fusion.
type rankedList struct {
	weight float64
	ids    []int64
}

// searchHybrid runs the full pipeline: text retrieval with a relaxed
// fallback, a strong-signal gate, optional query expansion, parallel
// text+vector lists, reciprocal-rank fusion and keyword boosts.
func (s *Service) searchHybrid(ctx context.Context, query, versionLabel string) ([]librarian.SearchItem, error) {
	chunks := make(map[int64]*librarian.Chunk)

	textHits, relaxed, err := s.textWithRelax(ctx, query, versionLabel, chunks)
	if err != nil {
		return nil, err
	}

	strongScore := s.StrongScore
	if strongScore == 0 {
		strongScore = DefaultStrongScore
	}
	strongGap := s.StrongGap
	if strongGap == 0 {
		strongGap = DefaultStrongGap
	}

	strong := false
	if !relaxed && len(textHits) > 0 && textHits[0].Score >= strongScore {
		gap := textHits[0].Score
		if len(textHits) > 1 {
			gap = textHits[0].Score - textHits[1].Score
		}
		strong = gap >= strongGap
	}

	var alternates []string
	if !strong && s.Expander != nil {
		if alts, err := s.Expander.Expand(ctx, query, MaxExpansions); err == nil {
			alternates = alts
			if len(alternates) > MaxExpansions {
				alternates = alternates[:MaxExpansions]
			}
		} else if s.Logger != nil {
			s.Logger.Debug("query expansion unavailable", "error", err)
		}
	}

	originalWeight := weightOriginal
	altWeight := weightAlternate
	if relaxed {
		originalWeight = weightOriginalRelaxed
		altWeight = weightAlternateRelaxed
	}

	lists := []rankedList{{weight: originalWeight, ids: hitIDs(textHits)}}

	embeddings := s.embedQueries(ctx, append([]string{query}, alternates...))
	if vec, ok := embeddings[query]; ok {
		if ids := s.vectorIDs(ctx, vec, versionLabel, chunks); len(ids) > 0 {
			lists = append(lists, rankedList{weight: weightOriginal, ids: ids})
		}
	}

	for _, alt := range alternates {
		if hits, err := s.Chunks.SearchWords(ctx, SanitizeQuery(alt), DefaultLimit, versionLabel); err == nil {
			for _, h := range hits {
				chunks[h.Chunk.ID] = h.Chunk
			}
			if len(hits) > 0 {
				lists = append(lists, rankedList{weight: altWeight, ids: hitIDs(hits)})
			}
		}
		if vec, ok := embeddings[alt]; ok {
			if ids := s.vectorIDs(ctx, vec, versionLabel, chunks); len(ids) > 0 {
				lists = append(lists, rankedList{weight: altWeight, ids: ids})
			}
		}
	}

	scores := fuse(lists)
	boostKeywords(scores, chunks, query)

	type scored struct {
		id    int64
		score float64
	}
	ranked := make([]scored, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, scored{id, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > DefaultLimit {
		ranked = ranked[:DefaultLimit]
	}

	items := make([]librarian.SearchItem, 0, len(ranked))
	var top float64
	for i, r := range ranked {
		chunk := chunks[r.id]
		if chunk == nil {
			continue
		}
		if i == 0 {
			top = r.score
		}
		items = append(items, s.item(chunk, r.score, top))
	}
	return items, nil
}

// textWithRelax tries the sanitized query, falling back to per-token
// prefix matching when it returns nothing.
func (s *Service) textWithRelax(ctx context.Context, query, versionLabel string, chunks map[int64]*librarian.Chunk) ([]librarian.WordHit, bool, error) {
	hits, err := s.Chunks.SearchWords(ctx, SanitizeQuery(query), DefaultLimit, versionLabel)
	if err != nil {
		return nil, false, err
	}
	relaxed := false
	if len(hits) == 0 {
		if relaxedHits, err := s.Chunks.SearchWords(ctx, RelaxQuery(query), DefaultLimit, versionLabel); err == nil && len(relaxedHits) > 0 {
			hits = relaxedHits
			relaxed = true
		}
	}
	for _, h := range hits {
		chunks[h.Chunk.ID] = h.Chunk
	}
	return hits, relaxed, nil
}

// embedQueries embeds each distinct text once; failures disable the
// vector lists silently (hybrid downgrades to text-only).
func (s *Service) embedQueries(ctx context.Context, texts []string) map[string][]float32 {
	out := make(map[string][]float32)
	if s.Embedder == nil {
		return out
	}

	var distinct []string
	for _, t := range texts {
		if _, ok := out[t]; !ok && t != "" {
			out[t] = nil
			distinct = append(distinct, t)
		}
	}
	prefixed := make([]string, len(distinct))
	for i, t := range distinct {
		prefixed[i] = queryTaskPrefix + t
	}

	vectors, err := s.Embedder.Embed(ctx, prefixed)
	if err != nil || len(vectors) != len(distinct) {
		if s.Logger != nil {
			s.Logger.Debug("query embedding unavailable", "error", err)
		}
		return map[string][]float32{}
	}
	for i, t := range distinct {
		out[t] = vectors[i]
	}
	return out
}

// vectorIDs runs one vector search and registers result chunks.
func (s *Service) vectorIDs(ctx context.Context, vector []float32, versionLabel string, chunks map[int64]*librarian.Chunk) []int64 {
	hits, err := s.Vectors.SearchVectors(ctx, vector, DefaultLimit, versionLabel)
	if err != nil {
		return nil
	}
	var ids []int64
	for _, h := range hits {
		if chunks[h.ChunkID] == nil {
			chunk, err := s.Chunks.FindChunkByID(ctx, h.ChunkID)
			if err != nil {
				continue
			}
			chunks[h.ChunkID] = chunk
		}
		ids = append(ids, h.ChunkID)
	}
	return ids
}

// fuse applies reciprocal-rank fusion with k=60: each hit at rank r
// contributes weight/(k+r), plus small bonuses for first and top-3
// placements. Fusing identical lists in the same order returns the
// same ranking.
func fuse(lists []rankedList) map[int64]float64 {
	scores := make(map[int64]float64)
	for _, list := range lists {
		for i, id := range list.ids {
			rank := float64(i + 1)
			scores[id] += list.weight / (rrfK + rank)
			if i == 0 {
				scores[id] += rrfFirstBonus
			}
			if i < rrfTopRank {
				scores[id] += rrfTopBonus
			}
		}
	}
	return scores
}

// boostKeywords adds up to maxKeywordBoost per chunk for exact
// substring occurrences of query terms, weighted path > title >
// context > preview.
func boostKeywords(scores map[int64]float64, chunks map[int64]*librarian.Chunk, query string) {
	terms := BoostTerms(query)
	if len(terms) == 0 {
		return
	}
	for id := range scores {
		chunk := chunks[id]
		if chunk == nil {
			continue
		}
		path := strings.ToLower(chunk.DocPath)
		title := strings.ToLower(chunk.DocTitle)
		contextPath := strings.ToLower(chunk.ContextPath)
		preview := strings.ToLower(chunk.Preview())

		var boost float64
		for _, term := range terms {
			if strings.Contains(path, term) {
				boost += boostPath
			}
			if strings.Contains(title, term) {
				boost += boostTitle
			}
			if strings.Contains(contextPath, term) {
				boost += boostContext
			}
			if strings.Contains(preview, term) {
				boost += boostPreview
			}
		}
		if boost > maxKeywordBoost {
			boost = maxKeywordBoost
		}
		scores[id] += boost
	}
}

// hitIDs projects word hits onto their chunk IDs.
func hitIDs(hits []librarian.WordHit) []int64 {
	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.Chunk.ID)
	}
	return ids
}
