package rag

import (
	"sync"

	"github.com/fabfab/course-rag/llm"
	"github.com/google/uuid"
)

// SessionStore keeps per-session conversation history in memory, trimmed to
// the most recent exchanges. Safe for concurrent use.
type SessionStore struct {
	mu         sync.RWMutex
	sessions   map[string][]llm.Message
	maxHistory int
}

// NewSessionStore keeps up to maxHistory question/answer exchanges per
// session (twice that in messages).
func NewSessionStore(maxHistory int) *SessionStore {
	if maxHistory < 0 {
		maxHistory = 0
	}
	return &SessionStore{
		sessions:   make(map[string][]llm.Message),
		maxHistory: maxHistory,
	}
}

// Create returns a fresh session ID with empty history.
func (s *SessionStore) Create() string {
	id := uuid.New().String()
	s.mu.Lock()
	s.sessions[id] = nil
	s.mu.Unlock()
	return id
}

// History returns a copy of the session's messages, oldest first. Unknown
// session IDs yield empty history.
func (s *SessionStore) History(id string) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := s.sessions[id]
	out := make([]llm.Message, len(messages))
	copy(out, messages)
	return out
}

// Append records one completed exchange and drops the oldest messages beyond
// the history window.
func (s *SessionStore) Append(id, question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := append(s.sessions[id],
		llm.Message{Role: llm.RoleUser, Content: question},
		llm.Message{Role: llm.RoleAssistant, Content: answer},
	)
	if limit := s.maxHistory * 2; len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	s.sessions[id] = messages
}

// Clear forgets a session's history.
func (s *SessionStore) Clear(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}
