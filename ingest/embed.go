package ingest

import (
	"context"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/sqlite"
)

// embedBatchSize bounds texts per embedding call.
const embedBatchSize = 32

// documentTaskPrefix marks document-side texts for asymmetric
// embedding models.
const documentTaskPrefix = "search_document: "

// EmbedMissing embeds every chunk lacking a vector for the model,
// in batches. Limit bounds the number of chunks (0 = all). Returns
// how many chunks were embedded.
func EmbedMissing(ctx context.Context, lib *sqlite.Library, embedder librarian.Embedder, limit int) (int, error) {
	missing, err := lib.Vectors.MissingEmbeddings(ctx, embedder.ModelURI(), limit)
	if err != nil {
		return 0, err
	}

	embedded := 0
	for start := 0; start < len(missing); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = documentTaskPrefix + c.Content
		}
		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return embedded, err
		}
		if len(vectors) != len(batch) {
			return embedded, librarian.Errorf(librarian.EINTERNAL,
				"embedder returned %d vectors for %d texts", len(vectors), len(batch))
		}

		for i, c := range batch {
			if err := lib.Vectors.UpsertEmbedding(ctx, c.ID, embedder.ModelURI(), vectors[i]); err != nil {
				return embedded, err
			}
			embedded++
		}
	}
	return embedded, nil
}
