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

// SearchTool answers content questions by semantic search over the chunk
// index, with fuzzy course-name resolution and optional lesson filtering.
type SearchTool struct {
	store      index.Store
	maxResults int
}

var _ Tool = (*SearchTool)(nil)

func NewSearchTool(store index.Store, maxResults int) *SearchTool {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &SearchTool{store: store, maxResults: maxResults}
}

func (t *SearchTool) Name() string { return "search_course_content" }

func (t *SearchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.Name(),
		Description: "Search course materials with smart course name matching and lesson filtering",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to search for in the course content",
				},
				"course_name": map[string]any{
					"type":        "string",
					"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
				"lesson_number": map[string]any{
					"type":        "integer",
					"description": "Specific lesson number to search within (e.g. 1, 2, 3)",
				},
			},
			"required": []string{"query"},
		},
	}
}

type searchArgs struct {
	Query        string `json:"query"`
	CourseName   string `json:"course_name"`
	LessonNumber *int   `json:"lesson_number"`
}

func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	var params searchArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return Result{}, fmt.Errorf("decoding search arguments: %w", err)
	}
	if strings.TrimSpace(params.Query) == "" {
		return Result{Text: "Search query is required."}, nil
	}

	resolvedTitle := ""
	if params.CourseName != "" {
		title, err := t.store.ResolveCourseName(ctx, params.CourseName)
		if errors.Is(err, index.ErrCourseNotFound) {
			return Result{Text: fmt.Sprintf("No course found matching '%s'", params.CourseName)}, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("resolving course name: %w", err)
		}
		resolvedTitle = title
	}

	hits, err := t.store.Search(ctx, params.Query, index.SearchOptions{
		CourseTitle:  resolvedTitle,
		LessonNumber: params.LessonNumber,
		Limit:        t.maxResults,
	})
	if err != nil {
		return Result{}, fmt.Errorf("searching course content: %w", err)
	}
	if len(hits) == 0 {
		return Result{Text: t.emptyMessage(resolvedTitle, params.LessonNumber)}, nil
	}

	blocks := make([]string, 0, len(hits))
	sources := make([]course.Source, 0, len(hits))
	for _, hit := range hits {
		header := fmt.Sprintf("[%s - Lesson %d]", hit.CourseTitle, hit.LessonNumber)
		blocks = append(blocks, header+"\n"+hit.Content)

		lesson := hit.LessonNumber
		link, linkErr := t.store.GetLessonLink(ctx, hit.CourseTitle, hit.LessonNumber)
		if linkErr != nil {
			link = ""
		}
		sources = append(sources, course.Source{
			Course: hit.CourseTitle,
			Lesson: &lesson,
			Link:   link,
		})
	}

	return Result{
		Text:    strings.Join(blocks, "\n\n"),
		Sources: sources,
	}, nil
}

func (t *SearchTool) emptyMessage(courseTitle string, lesson *int) string {
	var b strings.Builder
	b.WriteString("No relevant content found")
	if courseTitle != "" {
		fmt.Fprintf(&b, " in course '%s'", courseTitle)
	}
	if lesson != nil {
		fmt.Fprintf(&b, " in lesson %d", *lesson)
	}
	b.WriteString(".")
	return b.String()
}
