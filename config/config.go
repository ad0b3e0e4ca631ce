// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type LLMConfig struct {
	Provider string
	Model    string
}

type EmbeddingsConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type StoreConfig struct {
	Provider    string
	PostgresDSN string
}

type Config struct {
	DocsDir    string
	ListenAddr string

	LLM        LLMConfig
	Embeddings EmbeddingsConfig
	Store      StoreConfig

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	ChunkSize    int
	ChunkOverlap int

	MaxResults       int
	MaxHistory       int
	MaxToolRounds    int
	ResolveThreshold float64

	RequestTimeout time.Duration
	LLMRetries     int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DocsDir:    getEnv("DOCS_DIR", "./docs"),
		ListenAddr: getEnv("LISTEN_ADDR", ":8000"),
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOllama),
			Model:    getEnv("LLM_MODEL", "llama3.1"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", ProviderOllama),
			Model:     getEnv("EMBEDDINGS_MODEL", "nomic-embed-text"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 768),
		},
		Store: StoreConfig{
			Provider:    getEnv("STORE_PROVIDER", StoreMemory),
			PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/course-rag?sslmode=disable"),
		},
		OllamaHost:       getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		ChunkSize:        getEnvInt("CHUNK_SIZE", 800),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 100),
		MaxResults:       getEnvInt("MAX_RESULTS", 5),
		MaxHistory:       getEnvInt("MAX_HISTORY", 2),
		MaxToolRounds:    getEnvInt("MAX_TOOL_ROUNDS", 2),
		ResolveThreshold: getEnvFloat("RESOLVE_THRESHOLD", 0.4),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 2*time.Minute),
		LLMRetries:       getEnvInt("LLM_RETRIES", 3),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with. These errors
// are fatal at startup.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap cannot be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("max tool rounds must be at least 1, got %d", c.MaxToolRounds)
	}
	if c.ResolveThreshold < 0 || c.ResolveThreshold > 1 {
		return fmt.Errorf("resolve threshold must be within [0, 1], got %g", c.ResolveThreshold)
	}
	switch c.Store.Provider {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown store provider: %s", c.Store.Provider)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
