// Package tools defines the retrieval operations the language model may
// invoke, and the registry the orchestration loop dispatches through.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/fabfab/course-rag/course"
	"github.com/fabfab/course-rag/llm"
)

// Result is what a tool execution yields: text for the model plus the
// citations backing it. Sources travel as an explicit return value, never
// as state on the tool, so concurrent sessions cannot leak citations into
// each other.
type Result struct {
	Text    string
	Sources []course.Source
}

// Tool is a capability the model can request by name with JSON arguments
// matching the declared schema.
type Tool interface {
	Name() string
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, args json.RawMessage) (Result, error)
}

// Registry holds the registered tools and guards dispatch: unknown names and
// tool failures become tool-result text the model can react to, never a
// protocol-level error.
type Registry struct {
	tools  map[string]Tool
	order  []string
	logger *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Definitions lists tool schemas in registration order for the model request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute runs the named tool. Failures are downgraded to result text.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) Result {
	t, ok := r.tools[name]
	if !ok {
		return Result{Text: fmt.Sprintf("Tool '%s' not found", name)}
	}

	result, err := t.Execute(ctx, args)
	if err != nil {
		r.logger.Printf("tool %s failed: %v", name, err)
		return Result{Text: fmt.Sprintf("Tool execution failed: %v", err)}
	}
	return result
}
