package llm

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

type ollamaClient struct {
	host   string
	model  string
	client *http.Client
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Tools    []ollamaTool        `json:"tools,omitempty"`
	Options  ollamaOptions       `json:"options"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaToolCall struct {
	Function ollamaToolCallFunction `json:"function"`
}

type ollamaToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error"`
}

func NewOllamaClient(opts Options) Client {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	return &ollamaClient{
		host:  host,
		model: opts.Model,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *ollamaClient) Generate(ctx context.Context, req Request) (Response, error) {
	payload := ollamaChatRequest{
		Model:  c.model,
		Stream: false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}

	if req.System != "" {
		payload.Messages = append(payload.Messages, ollamaChatMessage{Role: RoleSystem, Content: req.System})
	}
	for _, msg := range req.Messages {
		payload.Messages = append(payload.Messages, toOllamaMessage(msg))
	}

	for _, def := range req.Tools {
		payload.Tools = append(payload.Tools, ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("call ollama chat API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return Response{}, fmt.Errorf("read ollama chat error body: %w", readErr)
		}
		if len(data) > 0 {
			return Response{}, fmt.Errorf("ollama chat API error: %s", string(data))
		}
		return Response{}, fmt.Errorf("ollama chat API returned status %s", resp.Status)
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, fmt.Errorf("decode ollama response: %w", err)
	}

	if parsed.Error != "" {
		return Response{}, fmt.Errorf("ollama chat error: %s", parsed.Error)
	}

	out := Response{Content: parsed.Message.Content}
	for i, tc := range parsed.Message.ToolCalls {
		// ollama tool calls carry no id; synthesize stable ones so the
		// orchestration loop can pair results with requests.
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return out, nil
}

func toOllamaMessage(msg Message) ollamaChatMessage {
	converted := ollamaChatMessage{
		Role:    msg.Role,
		Content: msg.Content,
	}
	for _, tc := range msg.ToolCalls {
		converted.ToolCalls = append(converted.ToolCalls, ollamaToolCall{
			Function: ollamaToolCallFunction{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return converted
}
