package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/fabfab/course-rag/course"
	"github.com/fabfab/course-rag/embeddings"
)

const (
	contentCollection = "course_content"
	catalogCollection = "course_catalog"
)

type catalogEntry struct {
	link        string
	instructor  string
	lessons     []course.OutlineLesson
	lessonLinks map[int]string
	chunkCount  int
}

// MemoryStore is the in-process vector index backed by chromem-go. Reads run
// under a shared lock; course replacement takes the write lock so in-flight
// searches never observe a half-replaced course.
type MemoryStore struct {
	mu        sync.RWMutex
	db        *chromem.DB
	content   *chromem.Collection
	titles    *chromem.Collection
	catalog   map[string]catalogEntry
	embedder  embeddings.Embedder
	embedFn   chromem.EmbeddingFunc
	threshold float64
}

// NewMemoryStore builds an empty in-memory index. threshold is the minimum
// cosine similarity for fuzzy course-name resolution.
func NewMemoryStore(embedder embeddings.Embedder, threshold float64) (*MemoryStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	embedFn := embeddingFunc(embedder)
	db := chromem.NewDB()

	content, err := db.CreateCollection(contentCollection, nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("create content collection: %w", err)
	}
	titles, err := db.CreateCollection(catalogCollection, nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("create catalog collection: %w", err)
	}

	return &MemoryStore{
		db:        db,
		content:   content,
		titles:    titles,
		catalog:   make(map[string]catalogEntry),
		embedder:  embedder,
		embedFn:   embedFn,
		threshold: threshold,
	}, nil
}

// embeddingFunc adapts our Embedder to chromem's per-text callback. Vectors
// are normalized because chromem's cosine similarity expects unit length.
func embeddingFunc(embedder embeddings.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("embedder returned no vectors")
		}
		return normalize(vecs[0]), nil
	}
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func (s *MemoryStore) AddCourse(ctx context.Context, c course.Course, chunks []course.Chunk) error {
	if c.Title == "" {
		return fmt.Errorf("course title is required")
	}
	for _, chunk := range chunks {
		if chunk.Content == "" {
			return fmt.Errorf("chunk %d of %q has no content", chunk.Index, c.Title)
		}
	}

	// Embed everything before touching the collections. Embedding is the
	// only failure-prone step of a replace; staging it up front keeps the
	// old course intact when the embedding service is down.
	texts := make([]string, 0, len(chunks)+1)
	texts = append(texts, c.Title)
	for _, chunk := range chunks {
		texts = append(texts, chunk.Content)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed course %q: %w", c.Title, err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedding count mismatch: have %d texts, %d vectors", len(texts), len(vectors))
	}

	titleDoc := chromem.Document{
		ID:        c.Title,
		Content:   c.Title,
		Embedding: normalize(vectors[0]),
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, chromem.Document{
			// Deterministic ids keep reloads idempotent.
			ID:        fmt.Sprintf("%s::%d", chunk.CourseTitle, chunk.Index),
			Content:   chunk.Content,
			Embedding: normalize(vectors[i+1]),
			Metadata: map[string]string{
				"course_title":  chunk.CourseTitle,
				"lesson_number": strconv.Itoa(chunk.LessonNumber),
				"chunk_index":   strconv.Itoa(chunk.Index),
			},
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.catalog[c.Title]; exists {
		if err := s.deleteCourseLocked(ctx, c.Title); err != nil {
			return fmt.Errorf("replace course %q: %w", c.Title, err)
		}
	}

	if err := s.titles.AddDocument(ctx, titleDoc); err != nil {
		return fmt.Errorf("index course title: %w", err)
	}
	for i, doc := range docs {
		if err := s.content.AddDocument(ctx, doc); err != nil {
			// Roll the partially added course back so readers never see it.
			_ = s.deleteCourseLocked(ctx, c.Title)
			return fmt.Errorf("index chunk %d of %q: %w", chunks[i].Index, c.Title, err)
		}
	}

	entry := catalogEntry{
		link:        c.Link,
		instructor:  c.Instructor,
		lessonLinks: make(map[int]string, len(c.Lessons)),
		chunkCount:  len(chunks),
	}
	for _, lesson := range c.Lessons {
		entry.lessons = append(entry.lessons, course.OutlineLesson{
			Number: lesson.Number,
			Title:  lesson.Title,
			Link:   lesson.Link,
		})
		entry.lessonLinks[lesson.Number] = lesson.Link
	}
	sort.Slice(entry.lessons, func(i, j int) bool {
		return entry.lessons[i].Number < entry.lessons[j].Number
	})
	s.catalog[c.Title] = entry

	return nil
}

func (s *MemoryStore) deleteCourseLocked(ctx context.Context, title string) error {
	if err := s.content.Delete(ctx, map[string]string{"course_title": title}, nil); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.titles.Delete(ctx, nil, nil, title); err != nil {
		return fmt.Errorf("delete catalog entry: %w", err)
	}
	delete(s.catalog, title)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error) {
	// Embed the query once, before the lock. A failure here is a service
	// outage and must reach the caller; it is not an empty result.
	queryVec, err := s.embedFn(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	count := s.content.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	where := map[string]string{}
	if opts.CourseTitle != "" {
		where["course_title"] = opts.CourseTitle
	}
	if opts.LessonNumber != nil {
		where["lesson_number"] = strconv.Itoa(*opts.LessonNumber)
	}
	if len(where) == 0 {
		where = nil
	}

	// chromem rejects nResults larger than the filtered document count and
	// does not expose that count up front, so step k down until it accepts.
	// With the query embedded above, the k validation is the only thing
	// QueryEmbedding can fail on.
	var results []chromem.Result
	for attempt := limit; attempt > 0; attempt-- {
		results, err = s.content.QueryEmbedding(ctx, queryVec, attempt, where, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		// Every k was rejected: the filtered subset is empty, which by
		// contract is not an error.
		return nil, nil
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		lesson, _ := strconv.Atoi(r.Metadata["lesson_number"])
		chunkIdx, _ := strconv.Atoi(r.Metadata["chunk_index"])
		hits = append(hits, Hit{
			Content:      r.Content,
			CourseTitle:  r.Metadata["course_title"],
			LessonNumber: lesson,
			ChunkIndex:   chunkIdx,
			Similarity:   float64(r.Similarity),
		})
	}
	return hits, nil
}

func (s *MemoryStore) ResolveCourseName(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.catalog[name]; ok {
		return name, nil
	}
	if s.titles.Count() == 0 {
		return "", ErrCourseNotFound
	}

	results, err := s.titles.Query(ctx, name, 1, nil, nil)
	if err != nil {
		return "", fmt.Errorf("query course catalog: %w", err)
	}
	if len(results) == 0 || float64(results[0].Similarity) < s.threshold {
		return "", ErrCourseNotFound
	}
	return results[0].ID, nil
}

func (s *MemoryStore) GetOutline(ctx context.Context, title string) (course.Outline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.catalog[title]
	if !ok {
		return course.Outline{}, ErrCourseNotFound
	}

	outline := course.Outline{
		Title:   title,
		Link:    entry.link,
		Lessons: append([]course.OutlineLesson(nil), entry.lessons...),
	}
	return outline, nil
}

func (s *MemoryStore) GetCourseLink(ctx context.Context, title string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.catalog[title]
	if !ok {
		return "", ErrCourseNotFound
	}
	return entry.link, nil
}

func (s *MemoryStore) GetLessonLink(ctx context.Context, title string, lesson int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.catalog[title]
	if !ok {
		return "", ErrCourseNotFound
	}
	return entry.lessonLinks[lesson], nil
}

func (s *MemoryStore) ListCourseTitles(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	titles := make([]string, 0, len(s.catalog))
	for title := range s.catalog {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles, nil
}

func (s *MemoryStore) CourseCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.catalog), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(contentCollection); err != nil {
		return fmt.Errorf("delete content collection: %w", err)
	}
	if err := s.db.DeleteCollection(catalogCollection); err != nil {
		return fmt.Errorf("delete catalog collection: %w", err)
	}

	content, err := s.db.CreateCollection(contentCollection, nil, s.embedFn)
	if err != nil {
		return fmt.Errorf("recreate content collection: %w", err)
	}
	titles, err := s.db.CreateCollection(catalogCollection, nil, s.embedFn)
	if err != nil {
		return fmt.Errorf("recreate catalog collection: %w", err)
	}

	s.content = content
	s.titles = titles
	s.catalog = make(map[string]catalogEntry)
	return nil
}

var _ Store = (*MemoryStore)(nil)
