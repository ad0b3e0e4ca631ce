// Package rag wires the index, ingestion pipeline, tool registry, and
// generation loop into one question-answering system.
package rag

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fabfab/course-rag/agent"
	"github.com/fabfab/course-rag/config"
	"github.com/fabfab/course-rag/course"
	"github.com/fabfab/course-rag/index"
	"github.com/fabfab/course-rag/ingestion"
	"github.com/fabfab/course-rag/llm"
	"github.com/fabfab/course-rag/tools"
)

// Answer is the complete reply to one question.
type Answer struct {
	Answer    string          `json:"answer"`
	Sources   []course.Source `json:"sources"`
	SessionID string          `json:"session_id"`
}

// System is the top-level facade: ingest documents, answer questions with
// retrieval, report catalog stats.
type System struct {
	store     index.Store
	ingester  *ingestion.Service
	generator *agent.Generator
	sessions  *SessionStore
	timeout   time.Duration
	logger    *log.Logger
}

// New assembles a System from a configured store and model client.
func New(cfg config.Config, store index.Store, client llm.Client, logger *log.Logger) (*System, error) {
	if logger == nil {
		logger = log.Default()
	}

	chunker, err := ingestion.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("building chunker: %w", err)
	}

	registry := tools.NewRegistry(logger)
	registry.Register(tools.NewSearchTool(store, cfg.MaxResults))
	registry.Register(tools.NewOutlineTool(store))

	return &System{
		store:     store,
		ingester:  ingestion.NewService(store, chunker, logger),
		generator: agent.NewGenerator(client, registry, logger, agent.WithMaxRounds(cfg.MaxToolRounds)),
		sessions:  NewSessionStore(cfg.MaxHistory),
		timeout:   cfg.RequestTimeout,
		logger:    logger,
	}, nil
}

// Ask answers one question. An empty sessionID starts a new session; the
// returned Answer always carries the session ID to continue with.
func (s *System) Ask(ctx context.Context, question, sessionID string) (Answer, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if sessionID == "" {
		sessionID = s.sessions.Create()
	}
	history := s.sessions.History(sessionID)

	answer, err := s.generator.Generate(ctx, question, history)
	if err != nil {
		return Answer{}, fmt.Errorf("answering question: %w", err)
	}

	s.sessions.Append(sessionID, question, answer.Text)

	sources := answer.Sources
	if sources == nil {
		sources = []course.Source{}
	}
	return Answer{
		Answer:    answer.Text,
		Sources:   sources,
		SessionID: sessionID,
	}, nil
}

// AddCourseFolder ingests every course document under dir, skipping courses
// already present in the index. It returns the number of courses added and
// the total chunks indexed.
func (s *System) AddCourseFolder(ctx context.Context, dir string) (int, int, error) {
	return s.ingester.LoadDirectory(ctx, dir)
}

// AddCourseFile ingests a single document, replacing any existing course
// with the same title.
func (s *System) AddCourseFile(ctx context.Context, path string) (course.Course, int, error) {
	return s.ingester.LoadFile(ctx, path)
}

// ClearSession forgets a session's conversation history. Clearing an unknown
// session is a no-op.
func (s *System) ClearSession(sessionID string) {
	s.sessions.Clear(sessionID)
}

// Stats reports the catalog size and titles.
func (s *System) Stats(ctx context.Context) (course.Stats, error) {
	count, err := s.store.CourseCount(ctx)
	if err != nil {
		return course.Stats{}, fmt.Errorf("counting courses: %w", err)
	}
	titles, err := s.store.ListCourseTitles(ctx)
	if err != nil {
		return course.Stats{}, fmt.Errorf("listing courses: %w", err)
	}
	if titles == nil {
		titles = []string{}
	}
	return course.Stats{TotalCourses: count, CourseTitles: titles}, nil
}

// ClearIndex drops all indexed courses and chunks.
func (s *System) ClearIndex(ctx context.Context) error {
	return s.store.Clear(ctx)
}
