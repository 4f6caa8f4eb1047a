package gemini

import (
	"context"

	"github.com/iannuttall/librarian"
	"google.golang.org/genai"
)

const defaultEmbeddingModel = "gemini-embedding-001"

// Ensure Embedder implements librarian.Embedder at compile time.
var _ librarian.Embedder = (*Embedder)(nil)

// Embedder produces embedding vectors with a Gemini embedding model.
type Embedder struct {
	client *genai.Client
	model  string
}

// NewEmbedder creates a new Embedder. An empty model uses the
// default embedding model.
func NewEmbedder(client *genai.Client, model string) *Embedder {
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &Embedder{client: client, model: model}
}

// ModelURI identifies the model for stored embeddings.
func (e *Embedder) ModelURI() string {
	return "gemini://" + e.model
}

// Embed returns one vector per input text.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, "user")
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, librarian.Errorf(librarian.EINTERNAL, "gemini returned nil result")
	}
	if len(result.Embeddings) != len(texts) {
		return nil, librarian.Errorf(librarian.EINTERNAL,
			"gemini returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}
