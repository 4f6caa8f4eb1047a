// Package openai produces embeddings through any OpenAI-compatible
// endpoint, including locally hosted model servers.
package openai

import (
	"context"

	"github.com/iannuttall/librarian"
	openai "github.com/sashabaranov/go-openai"
)

const defaultEmbeddingModel = "text-embedding-3-small"

// Ensure Embedder implements librarian.Embedder at compile time.
var _ librarian.Embedder = (*Embedder)(nil)

// Embedder produces embedding vectors via the OpenAI embeddings API.
type Embedder struct {
	client *openai.Client
	model  string
}

// NewEmbedder creates an Embedder for the given API key and model.
// A non-empty baseURL points at an alternative (e.g. local) server.
func NewEmbedder(apiKey, baseURL, model string) *Embedder {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &Embedder{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// ModelURI identifies the model for stored embeddings.
func (e *Embedder) ModelURI() string {
	return "openai://" + e.model
}

// Embed returns one vector per input text.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, librarian.Errorf(librarian.EINTERNAL,
			"embeddings endpoint returned %d vectors for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
