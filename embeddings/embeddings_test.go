package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fabfab/course-rag/config"
)

func TestOllamaEmbedderRoundTrip(t *testing.T) {
	var gotPrompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotPrompts = append(gotPrompts, req.Prompt)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: srv.URL, Model: "nomic-embed-text", Dimension: 3})

	vecs, err := embedder.Embed(context.Background(), []string{"first text", "second text"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("vectors = %d, want 2", len(vecs))
	}
	if len(vecs[0]) != 3 || vecs[0][1] != 0.2 {
		t.Errorf("first vector = %v", vecs[0])
	}
	if len(gotPrompts) != 2 || gotPrompts[0] != "first text" {
		t.Errorf("server saw prompts %v", gotPrompts)
	}
}

func TestOllamaEmbedderDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0.1, 0.2}})
	}))
	defer srv.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: srv.URL, Dimension: 768})

	_, err := embedder.Embed(context.Background(), []string{"text"})
	if err == nil || !strings.Contains(err.Error(), "dimension mismatch") {
		t.Fatalf("expected dimension mismatch error, got %v", err)
	}
}

func TestOllamaEmbedderServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
	}))
	defer srv.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: srv.URL})

	if _, err := embedder.Embed(context.Background(), []string{"text"}); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestOpenAIEmbedderBatchesLargeCourses(t *testing.T) {
	var batchSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		batchSizes = append(batchSizes, len(req.Input))

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{0.1, 0.2}}
		}
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "test-model"})
	}))
	defer srv.Close()

	embedder := NewOpenAIEmbedder(Options{
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: srv.URL,
		Model:         "test-model",
		Dimension:     2,
	})

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}

	vecs, err := embedder.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 150 {
		t.Fatalf("vectors = %d, want 150", len(vecs))
	}
	if len(batchSizes) != 2 || batchSizes[0] != 100 || batchSizes[1] != 50 {
		t.Errorf("batch sizes = %v, want [100 50]", batchSizes)
	}
}

func TestNewEmbedderProviderSwitch(t *testing.T) {
	cfg := config.Config{Embeddings: config.EmbeddingsConfig{Provider: "sparkles"}}
	if _, err := NewEmbedder(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	cfg.Embeddings.Provider = config.ProviderOpenAI
	if _, err := NewEmbedder(cfg); err == nil {
		t.Fatal("expected error when openai is selected without an API key")
	}

	cfg.Embeddings.Provider = config.ProviderOllama
	if _, err := NewEmbedder(cfg); err != nil {
		t.Fatalf("ollama provider should need no credentials, got %v", err)
	}
}
