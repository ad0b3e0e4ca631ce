// Package ingestion parses course transcripts, splits lesson bodies into
// overlapping chunks, and loads them into the vector index.
package ingestion

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fabfab/course-rag/course"
)

// ErrMissingTitle marks a document without the required course title header.
var ErrMissingTitle = errors.New("missing course title header")

var lessonMarker = regexp.MustCompile(`^Lesson\s+(\d+):\s*(.*)$`)

const (
	titlePrefix      = "Course Title:"
	linkPrefix       = "Course Link:"
	instructorPrefix = "Course Instructor:"
	lessonLinkPrefix = "Lesson Link:"
)

// ParseCourseDocument parses the fixed course transcript shape:
//
//	Course Title: <t>
//	Course Link: <url>        (optional)
//	Course Instructor: <name> (optional)
//	Lesson N: <title>
//	Lesson Link: <url>        (optional)
//	<body until next lesson marker or EOF>
//
// The parse is pure; persisting the result is the caller's job.
func ParseCourseDocument(content string) (course.Course, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")

	var c course.Course
	seen := make(map[int]bool)

	idx := 0
	for ; idx < len(lines); idx++ {
		line := strings.TrimSpace(lines[idx])
		if line == "" {
			continue
		}
		if lessonMarker.MatchString(line) {
			break
		}
		switch {
		case strings.HasPrefix(line, titlePrefix):
			c.Title = strings.TrimSpace(strings.TrimPrefix(line, titlePrefix))
		case strings.HasPrefix(line, linkPrefix):
			c.Link = strings.TrimSpace(strings.TrimPrefix(line, linkPrefix))
		case strings.HasPrefix(line, instructorPrefix):
			c.Instructor = strings.TrimSpace(strings.TrimPrefix(line, instructorPrefix))
		}
	}

	if c.Title == "" {
		return course.Course{}, ErrMissingTitle
	}

	var current *course.Lesson
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		c.Lessons = append(c.Lessons, *current)
		current = nil
		body = nil
	}

	for ; idx < len(lines); idx++ {
		line := lines[idx]
		trimmed := strings.TrimSpace(line)

		if m := lessonMarker.FindStringSubmatch(trimmed); m != nil {
			flush()
			number, _ := strconv.Atoi(m[1])
			if seen[number] {
				return course.Course{}, fmt.Errorf("duplicate lesson number %d", number)
			}
			seen[number] = true
			current = &course.Lesson{Number: number, Title: strings.TrimSpace(m[2])}
			continue
		}

		if current != nil && len(body) == 0 && strings.HasPrefix(trimmed, lessonLinkPrefix) && current.Link == "" {
			current.Link = strings.TrimSpace(strings.TrimPrefix(trimmed, lessonLinkPrefix))
			continue
		}

		if current != nil {
			if len(body) == 0 && trimmed == "" {
				continue
			}
			body = append(body, line)
		}
	}
	flush()

	return c, nil
}
