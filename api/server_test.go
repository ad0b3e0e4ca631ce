package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fabfab/course-rag/course"
	"github.com/fabfab/course-rag/rag"
)

type stubService struct {
	answer rag.Answer
	stats  course.Stats
	err    error

	lastQuestion string
	lastSession  string
	lastCleared  string
}

var _ QueryService = (*stubService)(nil)

func (s *stubService) Ask(ctx context.Context, question, sessionID string) (rag.Answer, error) {
	s.lastQuestion = question
	s.lastSession = sessionID
	if s.err != nil {
		return rag.Answer{}, s.err
	}
	return s.answer, nil
}

func (s *stubService) Stats(ctx context.Context) (course.Stats, error) {
	if s.err != nil {
		return course.Stats{}, s.err
	}
	return s.stats, nil
}

func (s *stubService) ClearSession(sessionID string) {
	s.lastCleared = sessionID
}

func newTestServer(svc QueryService) *Server {
	return New(svc, log.New(io.Discard, "", 0))
}

func TestHandleQuery(t *testing.T) {
	lesson := 1
	svc := &stubService{answer: rag.Answer{
		Answer:    "Variables hold values.",
		Sources:   []course.Source{{Course: "Python Course", Lesson: &lesson, Link: "https://example.com/l1"}},
		SessionID: "session-123",
	}}
	srv := newTestServer(svc)

	body := strings.NewReader(`{"query":"What are variables?","session_id":"session-123"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var got rag.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Answer != "Variables hold values." || got.SessionID != "session-123" {
		t.Errorf("response = %+v", got)
	}
	if len(got.Sources) != 1 || got.Sources[0].Course != "Python Course" {
		t.Errorf("sources = %+v", got.Sources)
	}
	if svc.lastQuestion != "What are variables?" || svc.lastSession != "session-123" {
		t.Errorf("service saw question=%q session=%q", svc.lastQuestion, svc.lastSession)
	}
}

func TestHandleQueryWithoutSession(t *testing.T) {
	svc := &stubService{answer: rag.Answer{Answer: "ok", Sources: []course.Source{}, SessionID: "fresh"}}
	srv := newTestServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"hi"}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.lastSession != "" {
		t.Errorf("service saw session %q, want empty", svc.lastSession)
	}
	if !strings.Contains(rec.Body.String(), `"session_id":"fresh"`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestHandleQueryValidation(t *testing.T) {
	srv := newTestServer(&stubService{})

	cases := []struct {
		name string
		body string
	}{
		{name: "empty query", body: `{"query":"  "}`},
		{name: "malformed json", body: `{"query":`},
		{name: "unknown field", body: `{"query":"x","unknown":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleQueryServiceError(t *testing.T) {
	srv := newTestServer(&stubService{err: errors.New("model offline")})

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"x"}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "query failed") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestHandleQueryMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("Allow = %q", allow)
	}
}

func TestHandleSessionClear(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/session/session-123", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if svc.lastCleared != "session-123" {
		t.Errorf("service cleared %q, want session-123", svc.lastCleared)
	}
	if !strings.Contains(rec.Body.String(), `"message":"session cleared"`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestHandleSessionClearMethodNotAllowed(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/session/session-123", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodDelete {
		t.Errorf("Allow = %q", allow)
	}
	if svc.lastCleared != "" {
		t.Errorf("session %q cleared on a GET", svc.lastCleared)
	}
}

func TestHandleCourses(t *testing.T) {
	svc := &stubService{stats: course.Stats{
		TotalCourses: 2,
		CourseTitles: []string{"Go Basics", "Python Course"},
	}}
	srv := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got course.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.TotalCourses != 2 || len(got.CourseTitles) != 2 {
		t.Errorf("stats = %+v", got)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"message":"ok"`) {
		t.Errorf("body = %s", rec.Body)
	}
}
