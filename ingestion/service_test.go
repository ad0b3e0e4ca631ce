package ingestion

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fabfab/course-rag/course"
	"github.com/fabfab/course-rag/index"
)

type stubStore struct {
	courses map[string][]course.Chunk
	addErr  error
}

func newStubStore() *stubStore {
	return &stubStore{courses: make(map[string][]course.Chunk)}
}

func (s *stubStore) AddCourse(ctx context.Context, c course.Course, chunks []course.Chunk) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.courses[c.Title] = chunks
	return nil
}

func (s *stubStore) Search(ctx context.Context, query string, opts index.SearchOptions) ([]index.Hit, error) {
	return nil, nil
}

func (s *stubStore) ResolveCourseName(ctx context.Context, name string) (string, error) {
	if _, ok := s.courses[name]; ok {
		return name, nil
	}
	return "", index.ErrCourseNotFound
}

func (s *stubStore) GetOutline(ctx context.Context, title string) (course.Outline, error) {
	return course.Outline{}, index.ErrCourseNotFound
}

func (s *stubStore) GetCourseLink(ctx context.Context, title string) (string, error) {
	return "", nil
}

func (s *stubStore) GetLessonLink(ctx context.Context, title string, lesson int) (string, error) {
	return "", nil
}

func (s *stubStore) ListCourseTitles(ctx context.Context) ([]string, error) {
	titles := make([]string, 0, len(s.courses))
	for title := range s.courses {
		titles = append(titles, title)
	}
	return titles, nil
}

func (s *stubStore) CourseCount(ctx context.Context) (int, error) {
	return len(s.courses), nil
}

func (s *stubStore) Clear(ctx context.Context) error {
	s.courses = make(map[string][]course.Chunk)
	return nil
}

var _ index.Store = (*stubStore)(nil)

func testService(t *testing.T, store index.Store) *Service {
	t.Helper()
	chunker, err := NewChunker(200, 40)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	return NewService(store, chunker, log.New(io.Discard, "", 0))
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "course1.txt", courseFixture)
	writeDoc(t, dir, "course2.txt", "Course Title: Second Course\nLesson 1: Only Lesson\nShort body text for the lesson.\n")
	writeDoc(t, dir, "notes.md", "# ignored, wrong extension")
	writeDoc(t, dir, "broken.txt", "no headers at all\njust text\n")

	store := newStubStore()
	svc := testService(t, store)

	courses, chunks, err := svc.LoadDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("load directory: %v", err)
	}
	if courses != 2 {
		t.Fatalf("expected 2 courses, got %d", courses)
	}
	if chunks == 0 {
		t.Fatal("expected chunks to be indexed")
	}
	if _, ok := store.courses["Test Programming Course"]; !ok {
		t.Fatal("missing first course")
	}
	if _, ok := store.courses["Second Course"]; !ok {
		t.Fatal("missing second course")
	}
}

func TestLoadDirectorySkipsExistingCourses(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "course1.txt", courseFixture)

	store := newStubStore()
	svc := testService(t, store)

	ctx := context.Background()
	if _, _, err := svc.LoadDirectory(ctx, dir); err != nil {
		t.Fatalf("first load: %v", err)
	}

	courses, chunks, err := svc.LoadDirectory(ctx, dir)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if courses != 0 || chunks != 0 {
		t.Fatalf("expected second load to skip everything, got %d courses %d chunks", courses, chunks)
	}
}

func TestLoadDirectoryMissingDir(t *testing.T) {
	svc := testService(t, newStubStore())
	if _, _, err := svc.LoadDirectory(context.Background(), "/does/not/exist"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestLoadFileReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "course1.txt", courseFixture)

	store := newStubStore()
	svc := testService(t, store)

	ctx := context.Background()
	c, count, err := svc.LoadFile(ctx, filepath.Join(dir, "course1.txt"))
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if c.Title != "Test Programming Course" || count == 0 {
		t.Fatalf("unexpected load result: %q, %d", c.Title, count)
	}

	// LoadFile bypasses the skip list and re-indexes.
	if _, _, err := svc.LoadFile(ctx, filepath.Join(dir, "course1.txt")); err != nil {
		t.Fatalf("reload file: %v", err)
	}
}

func TestBuildChunksPrefixesMetadata(t *testing.T) {
	svc := testService(t, newStubStore())

	c, err := ParseCourseDocument(courseFixture)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	chunks := svc.BuildChunks(c)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}

	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Fatalf("chunk index %d out of order (want %d)", chunk.Index, i)
		}
		if chunk.CourseTitle != c.Title {
			t.Fatalf("chunk missing course back-reference: %+v", chunk)
		}
		if chunk.LessonNumber != 1 && chunk.LessonNumber != 2 {
			t.Fatalf("chunk references unknown lesson %d", chunk.LessonNumber)
		}
		want := "Course Test Programming Course Lesson "
		if !strings.HasPrefix(chunk.Content, want) {
			t.Fatalf("chunk missing context prefix: %q", chunk.Content)
		}
	}
}
