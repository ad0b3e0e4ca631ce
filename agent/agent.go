// Package agent runs the bounded tool-calling loop between the language
// model and the retrieval tools.
package agent

import (
	"context"
	"fmt"
	"log"

	"github.com/fabfab/course-rag/course"
	"github.com/fabfab/course-rag/llm"
	"github.com/fabfab/course-rag/tools"
)

const systemPrompt = `You are an AI assistant specialized in course materials and educational content. You have tools to search course content and fetch course outlines.

Tool usage:
- Use search_course_content for questions about specific course content or detailed educational materials.
- Use get_course_outline for questions about a course's structure, its lesson list, or its link.
- Synthesize tool results into accurate, fact-based answers.
- If a tool yields no results, state that clearly without offering alternatives.

Responses:
- Answer general knowledge questions directly without using tools.
- Be brief, concise and focused. Do not mention the tools, the search process, or your reasoning.`

const (
	defaultMaxRounds   = 2
	defaultTemperature = 0
	defaultMaxTokens   = 800
)

// Answer is the final model output for one question, paired with every
// citation the tool calls along the way produced.
type Answer struct {
	Text    string
	Sources []course.Source
}

// Generator drives the conversation with the model: it exposes the tool
// schemas, executes requested calls, feeds results back, and stops after a
// fixed number of tool rounds.
type Generator struct {
	client      llm.Client
	registry    *tools.Registry
	logger      *log.Logger
	maxRounds   int
	temperature float32
	maxTokens   int
}

// Option configures a Generator.
type Option func(*Generator)

func WithMaxRounds(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxRounds = n
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

func NewGenerator(client llm.Client, registry *tools.Registry, logger *log.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = log.Default()
	}
	g := &Generator{
		client:      client,
		registry:    registry,
		logger:      logger,
		maxRounds:   defaultMaxRounds,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate answers one question. History carries prior exchanges for the
// session; it is read, never mutated. After maxRounds tool rounds, a final
// request is issued without tools so the model must answer in text.
func (g *Generator) Generate(ctx context.Context, question string, history []llm.Message) (Answer, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	var sources []course.Source

	for round := 0; round < g.maxRounds; round++ {
		resp, err := g.client.Generate(ctx, llm.Request{
			System:      systemPrompt,
			Messages:    messages,
			Tools:       g.registry.Definitions(),
			Temperature: g.temperature,
			MaxTokens:   g.maxTokens,
		})
		if err != nil {
			return Answer{}, fmt.Errorf("generating response: %w", err)
		}
		if !resp.HasToolCalls() {
			return Answer{Text: resp.Content, Sources: sources}, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			g.logger.Printf("tool call round=%d name=%s", round+1, call.Name)
			result := g.registry.Execute(ctx, call.Name, call.Arguments)
			sources = append(sources, result.Sources...)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result.Text,
				ToolCallID: call.ID,
			})
		}
	}

	// Round budget exhausted: ask for the final answer without tools so the
	// model cannot request another call.
	resp, err := g.client.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generating final response: %w", err)
	}
	return Answer{Text: resp.Content, Sources: sources}, nil
}
