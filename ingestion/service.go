package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/fabfab/course-rag/course"
	"github.com/fabfab/course-rag/index"
)

// Service loads course transcripts from disk into the vector index.
type Service struct {
	store   index.Store
	chunker *Chunker
	logger  *log.Logger
}

func NewService(store index.Store, chunker *Chunker, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: store, chunker: chunker, logger: logger}
}

// LoadDirectory ingests every supported course file in dir. Courses already
// present in the catalog are skipped so repeated startup loads stay cheap.
// Malformed files are logged and skipped; they never abort the whole load.
// Returns the number of courses and chunks added.
func (s *Service) LoadDirectory(ctx context.Context, dir string) (int, int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, 0, fmt.Errorf("docs directory: %w", err)
	}

	var paths []string
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".txt", ".pdf":
			paths = append(paths, path)
		}
		return nil
	}); err != nil {
		return 0, 0, fmt.Errorf("walk docs directory: %w", err)
	}
	sort.Strings(paths)

	existing, err := s.store.ListCourseTitles(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list existing courses: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, title := range existing {
		known[title] = true
	}

	coursesAdded, chunksAdded := 0, 0
	for _, path := range paths {
		c, count, err := s.loadFile(ctx, path, known)
		if err != nil {
			s.logger.Printf("skipping %s: %v", path, err)
			continue
		}
		if c.Title == "" {
			continue // already indexed
		}
		known[c.Title] = true
		coursesAdded++
		chunksAdded += count
		s.logger.Printf("indexed course %q (%d chunks)", c.Title, count)
	}

	return coursesAdded, chunksAdded, nil
}

// LoadFile ingests a single course file, replacing any previously indexed
// course with the same title.
func (s *Service) LoadFile(ctx context.Context, path string) (course.Course, int, error) {
	return s.loadFile(ctx, path, nil)
}

func (s *Service) loadFile(ctx context.Context, path string, known map[string]bool) (course.Course, int, error) {
	content, err := readDocument(path)
	if err != nil {
		return course.Course{}, 0, err
	}

	c, err := ParseCourseDocument(content)
	if err != nil {
		return course.Course{}, 0, fmt.Errorf("parse course document: %w", err)
	}

	if known != nil && known[c.Title] {
		return course.Course{}, 0, nil
	}

	chunks := s.BuildChunks(c)
	if err := s.store.AddCourse(ctx, c, chunks); err != nil {
		return course.Course{}, 0, fmt.Errorf("index course %q: %w", c.Title, err)
	}
	return c, len(chunks), nil
}

// BuildChunks splits each lesson body and prefixes each chunk with its course
// and lesson so embeddings keep locality even out of order. Chunk indexes
// run across the whole course.
func (s *Service) BuildChunks(c course.Course) []course.Chunk {
	var chunks []course.Chunk
	idx := 0
	for _, lesson := range c.Lessons {
		for _, span := range s.chunker.Split(lesson.Body) {
			chunks = append(chunks, course.Chunk{
				Content:      fmt.Sprintf("Course %s Lesson %d content: %s", c.Title, lesson.Number, span),
				CourseTitle:  c.Title,
				LessonNumber: lesson.Number,
				Index:        idx,
			})
			idx++
		}
	}
	return chunks
}

func readDocument(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDFText(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return string(data), nil
	}
}

func extractPDFText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
