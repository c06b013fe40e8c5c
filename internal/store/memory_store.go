package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voicestack.local/voicegate/internal/ids"
)

// MemoryStore keeps sessions in process memory. Used by tests and
// ephemeral runs; semantics match the gorm store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]SessionRecord
	turns    map[string][]TurnRecord
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]SessionRecord),
		turns:    make(map[string][]TurnRecord),
	}
}

func (s *MemoryStore) EnsureSession(_ context.Context, sessionID string) (SessionRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return SessionRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SessionRecord{}, fmt.Errorf("memory store is closed")
	}

	if existing, ok := s.sessions[sessionID]; ok {
		return existing, nil
	}
	now := time.Now().UTC()
	rec := SessionRecord{SessionID: sessionID, CreatedAt: now, UpdatedAt: now}
	s.sessions[sessionID] = rec
	return rec, nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (SessionRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return SessionRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SessionRecord{}, fmt.Errorf("memory store is closed")
	}

	rec, ok := s.sessions[sessionID]
	if !ok {
		return SessionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) AppendTurn(_ context.Context, draft TurnDraft) (TurnRecord, error) {
	if err := validateDraft(draft); err != nil {
		return TurnRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return TurnRecord{}, fmt.Errorf("memory store is closed")
	}

	turns := s.turns[draft.SessionID]
	lastStamp := time.Time{}
	if len(turns) > 0 {
		lastStamp = turns[len(turns)-1].CreatedAt
	}

	turn := TurnRecord{
		TurnID:    ids.New(),
		SessionID: draft.SessionID,
		AgentID:   draft.AgentID,
		Sequence:  int64(len(turns) + 1),
		Input:     draft.Input,
		Output:    draft.Output,
		Status:    draft.Status,
		ErrorKind: draft.ErrorKind,
		Error:     draft.Error,
		AudioRef:  draft.AudioRef,
		CreatedAt: nextStamp(lastStamp),
	}

	session, ok := s.sessions[draft.SessionID]
	if !ok {
		session = SessionRecord{SessionID: draft.SessionID, CreatedAt: turn.CreatedAt}
	}
	session.UpdatedAt = turn.CreatedAt
	s.sessions[draft.SessionID] = session
	s.turns[draft.SessionID] = append(turns, turn)
	return turn, nil
}

func (s *MemoryStore) ListTurns(_ context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}

	turns := s.turns[sessionID]
	if limit > 0 && limit < len(turns) {
		turns = turns[len(turns)-limit:]
	}
	out := make([]TurnRecord, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) ClearSession(_ context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.turns, sessionID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
