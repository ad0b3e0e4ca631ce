package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/course-rag/course"
	"github.com/fabfab/course-rag/embeddings"
)

// PostgresStore is the pgvector-backed index. Course replacement runs inside
// a single transaction, so concurrent searches see either the old or the
// fully-new course.
type PostgresStore struct {
	pool      *pgxpool.Pool
	embedder  embeddings.Embedder
	dimension int
	threshold float64
}

// NewPostgresPool opens a connection pool for the index.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	return pool, nil
}

// NewPostgresStore ensures the schema exists and returns a ready store.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, embedder embeddings.Embedder, dimension int, threshold float64) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	s := &PostgresStore{
		pool:      pool,
		embedder:  embedder,
		dimension: dimension,
		threshold: threshold,
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS course_catalog (
			title TEXT PRIMARY KEY,
			link TEXT,
			instructor TEXT,
			title_embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.dimension),
		`CREATE TABLE IF NOT EXISTS course_lessons (
			course_title TEXT NOT NULL REFERENCES course_catalog(title) ON DELETE CASCADE,
			lesson_number INT NOT NULL,
			title TEXT NOT NULL,
			link TEXT,
			PRIMARY KEY (course_title, lesson_number)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS course_chunks (
			id UUID PRIMARY KEY,
			course_title TEXT NOT NULL REFERENCES course_catalog(title) ON DELETE CASCADE,
			lesson_number INT NOT NULL,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			UNIQUE (course_title, chunk_index)
		)`, s.dimension),
		"CREATE INDEX IF NOT EXISTS idx_course_chunks_course ON course_chunks(course_title, lesson_number)",
		"CREATE INDEX IF NOT EXISTS idx_course_chunks_embedding ON course_chunks USING ivfflat (embedding vector_cosine_ops)",
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) AddCourse(ctx context.Context, c course.Course, chunks []course.Chunk) (err error) {
	if c.Title == "" {
		return fmt.Errorf("course title is required")
	}

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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Upsert replaces the whole course; cascades drop old lessons and chunks.
	if _, err = tx.Exec(ctx, "DELETE FROM course_catalog WHERE title = $1", c.Title); err != nil {
		return fmt.Errorf("clear existing course: %w", err)
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO course_catalog (title, link, instructor, title_embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`, c.Title, c.Link, c.Instructor, pgvector.NewVector(vectors[0])); err != nil {
		return fmt.Errorf("insert catalog entry: %w", err)
	}

	for _, lesson := range c.Lessons {
		if _, err = tx.Exec(ctx, `
			INSERT INTO course_lessons (course_title, lesson_number, title, link)
			VALUES ($1, $2, $3, $4)
		`, c.Title, lesson.Number, lesson.Title, lesson.Link); err != nil {
			return fmt.Errorf("insert lesson %d: %w", lesson.Number, err)
		}
	}

	for i, chunk := range chunks {
		if _, err = tx.Exec(ctx, `
			INSERT INTO course_chunks (id, course_title, lesson_number, chunk_index, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), chunk.CourseTitle, chunk.LessonNumber, chunk.Index, chunk.Content, pgvector.NewVector(vectors[i+1])); err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}
	vec := pgvector.NewVector(vectors[0])

	sql := `
		SELECT content, course_title, lesson_number, chunk_index,
		       1 - (embedding <=> $1::vector) AS similarity
		FROM course_chunks`
	args := []any{vec}

	conditions := ""
	if opts.CourseTitle != "" {
		args = append(args, opts.CourseTitle)
		conditions += fmt.Sprintf(" WHERE course_title = $%d", len(args))
	}
	if opts.LessonNumber != nil {
		args = append(args, *opts.LessonNumber)
		if conditions == "" {
			conditions += fmt.Sprintf(" WHERE lesson_number = $%d", len(args))
		} else {
			conditions += fmt.Sprintf(" AND lesson_number = $%d", len(args))
		}
	}

	args = append(args, limit)
	sql += conditions + fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, limit)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Content, &h.CourseTitle, &h.LessonNumber, &h.ChunkIndex, &h.Similarity); err != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", err)
		}
		hits = append(hits, h)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return hits, nil
}

func (s *PostgresStore) ResolveCourseName(ctx context.Context, name string) (string, error) {
	var title string
	err := s.pool.QueryRow(ctx, "SELECT title FROM course_catalog WHERE title = $1", name).Scan(&title)
	if err == nil {
		return title, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("query catalog: %w", err)
	}

	vectors, err := s.embedder.Embed(ctx, []string{name})
	if err != nil {
		return "", fmt.Errorf("embed course name: %w", err)
	}
	if len(vectors) == 0 {
		return "", fmt.Errorf("embedder returned no vectors")
	}

	var similarity float64
	err = s.pool.QueryRow(ctx, `
		SELECT title, 1 - (title_embedding <=> $1::vector) AS similarity
		FROM course_catalog
		ORDER BY title_embedding <=> $1::vector
		LIMIT 1
	`, pgvector.NewVector(vectors[0])).Scan(&title, &similarity)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrCourseNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve course name: %w", err)
	}
	if similarity < s.threshold {
		return "", ErrCourseNotFound
	}
	return title, nil
}

func (s *PostgresStore) GetOutline(ctx context.Context, title string) (course.Outline, error) {
	outline := course.Outline{Title: title}

	err := s.pool.QueryRow(ctx, "SELECT COALESCE(link, '') FROM course_catalog WHERE title = $1", title).Scan(&outline.Link)
	if errors.Is(err, pgx.ErrNoRows) {
		return course.Outline{}, ErrCourseNotFound
	}
	if err != nil {
		return course.Outline{}, fmt.Errorf("query course: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT lesson_number, title, COALESCE(link, '')
		FROM course_lessons
		WHERE course_title = $1
		ORDER BY lesson_number
	`, title)
	if err != nil {
		return course.Outline{}, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lesson course.OutlineLesson
		if err := rows.Scan(&lesson.Number, &lesson.Title, &lesson.Link); err != nil {
			return course.Outline{}, fmt.Errorf("scan lesson: %w", err)
		}
		outline.Lessons = append(outline.Lessons, lesson)
	}
	if rows.Err() != nil {
		return course.Outline{}, rows.Err()
	}
	return outline, nil
}

func (s *PostgresStore) GetCourseLink(ctx context.Context, title string) (string, error) {
	var link string
	err := s.pool.QueryRow(ctx, "SELECT COALESCE(link, '') FROM course_catalog WHERE title = $1", title).Scan(&link)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrCourseNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query course link: %w", err)
	}
	return link, nil
}

func (s *PostgresStore) GetLessonLink(ctx context.Context, title string, lesson int) (string, error) {
	var link string
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(link, '')
		FROM course_lessons
		WHERE course_title = $1 AND lesson_number = $2
	`, title, lesson).Scan(&link)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query lesson link: %w", err)
	}
	return link, nil
}

func (s *PostgresStore) ListCourseTitles(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT title FROM course_catalog ORDER BY title")
	if err != nil {
		return nil, fmt.Errorf("query course titles: %w", err)
	}
	defer rows.Close()

	titles := make([]string, 0)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan course title: %w", err)
		}
		titles = append(titles, title)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return titles, nil
}

func (s *PostgresStore) CourseCount(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM course_catalog").Scan(&count); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE course_catalog CASCADE"); err != nil {
		return fmt.Errorf("truncate catalog: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
