// Package llm is the client contract for the language-model service. A
// response is either final text or a set of tool-call requests the caller is
// expected to execute and feed back as tool turns.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fabfab/course-rag/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation turn. ToolCalls is set on assistant turns that
// request tool execution; ToolCallID is set on tool-result turns.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a structured request from the model naming a registered tool
// and a JSON argument object matching the tool's declared schema.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolDefinition describes a tool to the model. Parameters is a JSON-schema
// shaped object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float32
	MaxTokens   int
}

type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the model asked for tool execution instead of
// returning a final answer.
func (r Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

type Options struct {
	Provider string
	Model    string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NewClient selects the LLM provider from configuration and wraps it with
// the configured retry policy.
func NewClient(cfg config.Config) (Client, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	var client Client
	switch opts.Provider {
	case config.ProviderOllama:
		client = NewOllamaClient(opts)
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		client = NewOpenAIClient(opts)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}

	return WithRetry(client, cfg.LLMRetries, 0), nil
}
