package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// Ensure SessionStore implements the interface.
var _ driven.SessionStore = (*SessionStore)(nil)

// SessionStore is an in-memory implementation of driven.SessionStore.
// The single mutex serialises concurrent writers per the port contract.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.SessionState
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.SessionState),
	}
}

// Get retrieves the state for a session.
func (s *SessionStore) Get(_ context.Context, sessionID string) (*domain.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	out := *state
	out.Turns = make([]domain.Turn, len(state.Turns))
	copy(out.Turns, state.Turns)
	out.Scratch = make(map[string]string, len(state.Scratch))
	for k, v := range state.Scratch {
		out.Scratch[k] = v
	}
	return &out, nil
}

// AppendTurn appends a turn with the next sequence number and slides
// LastWrite forward. Creates the session on first write.
func (s *SessionStore) AppendTurn(
	_ context.Context, sessionID, role, content string, at time.Time,
) (domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.getOrCreate(sessionID, at)
	turn := domain.Turn{
		Seq:       state.NextSeq(),
		Role:      role,
		Content:   content,
		CreatedAt: at,
	}
	state.Turns = append(state.Turns, turn)
	state.LastWrite = at
	return turn, nil
}

// SetScratch writes a scratch key and slides LastWrite forward.
func (s *SessionStore) SetScratch(_ context.Context, sessionID, key, value string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.getOrCreate(sessionID, at)
	state.Scratch[key] = value
	state.LastWrite = at
	return nil
}

// Delete removes a session outright.
func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// DeleteOlderThan removes every session whose LastWrite predates the
// cutoff.
func (s *SessionStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, state := range s.sessions {
		if state.LastWrite.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// getOrCreate returns the session, creating it on first write.
// Callers hold the write lock.
func (s *SessionStore) getOrCreate(sessionID string, at time.Time) *domain.SessionState {
	state, ok := s.sessions[sessionID]
	if !ok {
		state = &domain.SessionState{
			ID:        sessionID,
			Scratch:   make(map[string]string),
			CreatedAt: at,
			LastWrite: at,
		}
		s.sessions[sessionID] = state
	}
	return state
}
