package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fabfab/course-rag/course"
	"github.com/fabfab/course-rag/index"
	"github.com/fabfab/course-rag/llm"
)

// OutlineTool returns the structure of a course: its title, link, and the
// full ordered lesson list. It never fetches chunk content.
type OutlineTool struct {
	store index.Store
}

var _ Tool = (*OutlineTool)(nil)

func NewOutlineTool(store index.Store) *OutlineTool {
	return &OutlineTool{store: store}
}

func (t *OutlineTool) Name() string { return "get_course_outline" }

func (t *OutlineTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.Name(),
		Description: "Get the outline of a course: its title, link, and complete lesson list",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"course_title": map[string]any{
					"type":        "string",
					"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
			},
			"required": []string{"course_title"},
		},
	}
}

type outlineArgs struct {
	CourseTitle string `json:"course_title"`
}

func (t *OutlineTool) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	var params outlineArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return Result{}, fmt.Errorf("decoding outline arguments: %w", err)
	}
	if strings.TrimSpace(params.CourseTitle) == "" {
		return Result{Text: "Course title is required."}, nil
	}

	title, err := t.store.ResolveCourseName(ctx, params.CourseTitle)
	if errors.Is(err, index.ErrCourseNotFound) {
		return Result{Text: fmt.Sprintf("No course found matching '%s'", params.CourseTitle)}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("resolving course name: %w", err)
	}

	outline, err := t.store.GetOutline(ctx, title)
	if err != nil {
		return Result{}, fmt.Errorf("fetching course outline: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", outline.Title)
	if outline.Link != "" {
		fmt.Fprintf(&b, "Course Link: %s\n", outline.Link)
	}
	fmt.Fprintf(&b, "Lessons (%d total):", len(outline.Lessons))
	for _, lesson := range outline.Lessons {
		fmt.Fprintf(&b, "\n%d. %s", lesson.Number, lesson.Title)
	}

	return Result{
		Text: b.String(),
		Sources: []course.Source{{
			Course: outline.Title,
			Link:   outline.Link,
		}},
	}, nil
}
