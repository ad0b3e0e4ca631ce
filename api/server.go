// Package api exposes the HTTP surface of the course question-answering
// system.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/fabfab/course-rag/course"
	"github.com/fabfab/course-rag/rag"
)

// QueryService is the part of the system the HTTP layer needs.
type QueryService interface {
	Ask(ctx context.Context, question, sessionID string) (rag.Answer, error)
	Stats(ctx context.Context) (course.Stats, error)
	ClearSession(sessionID string)
}

// Server exposes HTTP handlers over a QueryService.
type Server struct {
	svc     QueryService
	logger  *log.Logger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// New constructs a Server serving the HTTP API over svc.
func New(svc QueryService, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{svc: svc, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/query", s.handleQuery)
	mux.HandleFunc("/api/courses", s.handleCourses)
	mux.HandleFunc("/api/session/{id}", s.handleSessionClear)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}

	answer, err := s.svc.Ask(r.Context(), req.Query, req.SessionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("query failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("course stats failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.methodNotAllowed(w, http.MethodDelete)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("session id is required"))
		return
	}

	s.svc.ClearSession(id)
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "session cleared"})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
