package embeddings

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// maxEmbedBatch caps the inputs sent per embeddings request. Ingesting a
// course embeds its title plus every chunk in one call, which for a long
// transcript far exceeds what the API accepts in a single request.
const maxEmbedBatch = 100

type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(opts Options) Embedder {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		dimension: opts.Dimension,
	}
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := start + maxEmbedBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: batch,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(batch))
		}

		for _, datum := range resp.Data {
			if e.dimension > 0 && len(datum.Embedding) != e.dimension {
				return nil, fmt.Errorf("openai embedding dimension mismatch: expected %d, got %d", e.dimension, len(datum.Embedding))
			}
			results = append(results, datum.Embedding)
		}
	}

	return results, nil
}
