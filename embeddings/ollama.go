package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ollamaEmbedder struct {
	host      string
	model     string
	dimension int
	client    *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error"`
}

func NewOllamaEmbedder(opts Options) Embedder {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	return &ollamaEmbedder{
		host:      host,
		model:     opts.Model,
		dimension: opts.Dimension,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (e *ollamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))

	url := e.host + "/api/embeddings"

	for _, text := range texts {
		body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
		if err != nil {
			return nil, fmt.Errorf("marshal ollama embed request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create ollama embed request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("call ollama embeddings API: %w", err)
		}

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("ollama embeddings API returned %s: %s", resp.Status, string(data))
		}

		var payload ollamaEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decode ollama embed response: %w", err)
		}
		resp.Body.Close()

		if payload.Error != "" {
			return nil, fmt.Errorf("ollama embeddings error: %s", payload.Error)
		}

		vec := make([]float32, len(payload.Embedding))
		for i, value := range payload.Embedding {
			vec[i] = float32(value)
		}

		if e.dimension > 0 && len(vec) != e.dimension {
			return nil, fmt.Errorf("ollama embedding dimension mismatch: expected %d, got %d", e.dimension, len(vec))
		}

		results = append(results, vec)
	}

	return results, nil
}
