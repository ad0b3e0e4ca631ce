// Package course defines the domain types shared across the ingestion,
// indexing, and retrieval layers.
package course

// Lesson is a single numbered lesson inside a course. Lesson numbers are
// unique within their course, not globally.
type Lesson struct {
	Number int
	Title  string
	Link   string
	Body   string
}

// Course is one ingested course document. The title is the unique key used
// for all downstream lookups.
type Course struct {
	Title      string
	Link       string
	Instructor string
	Lessons    []Lesson
}

// Chunk is a bounded text span derived from a lesson body, prepared for
// embedding. Chunks are regenerated wholesale whenever their course is
// reloaded.
type Chunk struct {
	Content      string
	CourseTitle  string
	LessonNumber int
	Index        int
}

// Source is a citation attached to an answer, derived from tool results.
// Lesson is nil for course-level citations such as outlines.
type Source struct {
	Course string `json:"course"`
	Lesson *int   `json:"lesson,omitempty"`
	Link   string `json:"link,omitempty"`
}

// OutlineLesson is one entry of a course outline, ordered by lesson number.
type OutlineLesson struct {
	Number int
	Title  string
	Link   string
}

// Outline is the metadata-only view of a course used by the outline tool.
type Outline struct {
	Title   string
	Link    string
	Lessons []OutlineLesson
}

// Stats summarises the catalog for the web layer.
type Stats struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}
