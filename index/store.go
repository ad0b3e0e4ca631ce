// Package index stores chunk embeddings and course catalog metadata. Content
// search and course-name resolution are kept as two separately indexed
// collections so title matching never dilutes content relevance.
package index

import (
	"context"
	"errors"

	"github.com/fabfab/course-rag/course"
)

// ErrCourseNotFound is returned when a course reference cannot be resolved
// against the catalog. Callers surface it conversationally, not as a
// protocol failure.
var ErrCourseNotFound = errors.New("course not found")

// Hit is one content-search result with its similarity score in [0, 1].
type Hit struct {
	Content      string
	CourseTitle  string
	LessonNumber int
	ChunkIndex   int
	Similarity   float64
}

// SearchOptions narrows a content search. CourseTitle must already be an
// exact catalog title (resolve fuzzy names first). A nil LessonNumber means
// no lesson filter. Limit <= 0 falls back to the store default.
type SearchOptions struct {
	CourseTitle  string
	LessonNumber *int
	Limit        int
}

// Store is the vector index contract shared by the in-process and Postgres
// implementations.
//
// AddCourse is an idempotent upsert: any prior chunks and catalog entry for
// the same title are replaced atomically, so concurrent searches observe
// either the old or the fully-new course, never a partial mix. Search on an
// empty or fully filtered-out corpus returns an empty slice, not an error.
type Store interface {
	AddCourse(ctx context.Context, c course.Course, chunks []course.Chunk) error
	Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error)
	ResolveCourseName(ctx context.Context, name string) (string, error)
	GetOutline(ctx context.Context, title string) (course.Outline, error)
	GetCourseLink(ctx context.Context, title string) (string, error)
	GetLessonLink(ctx context.Context, title string, lesson int) (string, error)
	ListCourseTitles(ctx context.Context) ([]string, error)
	CourseCount(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

const defaultSearchLimit = 5
