package proxy

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionState implements the session-mode state machine from spec §4.A:
// "fresh -> session_created -> calling -> idle -> closed".
type sessionState string

const (
	stateFresh          sessionState = "fresh"
	stateSessionCreated sessionState = "session_created"
	stateCalling        sessionState = "calling"
	stateIdle           sessionState = "idle"
	stateClosed         sessionState = "closed"
)

// session tracks one server-side MCP session bound to this proxy
// instance. Cleanup of the remote session is TTL-governed by the server;
// Close here only releases local bookkeeping.
type session struct {
	mu       sync.Mutex
	id       string
	state    sessionState
	lastUsed time.Time
}

func newSession() *session {
	return &session{state: stateFresh}
}

// ensureCreated transitions fresh -> session_created, assigning a new
// session id if one isn't already set, mirroring
// auto_session_management=true's transparent create+reuse.
func (s *session) ensureCreated() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == "" {
		s.id = uuid.New().String()
	}
	if s.state == stateFresh {
		s.state = stateSessionCreated
	}
	return s.id
}

// beginCall transitions into calling. Any state but closed may begin a
// call; per spec, "any error leaves the session untouched".
func (s *session) beginCall() {
	s.mu.Lock()
	if s.state != stateClosed {
		s.state = stateCalling
	}
	s.mu.Unlock()
}

// endCall transitions calling -> idle after a call completes, successfully
// or not.
func (s *session) endCall() {
	s.mu.Lock()
	if s.state == stateCalling {
		s.state = stateIdle
	}
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *session) close() {
	s.mu.Lock()
	s.state = stateClosed
	s.mu.Unlock()
}

func (s *session) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
