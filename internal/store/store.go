// Package store is the append-only conversation log. Appends are
// serialized per session so sequence numbers and timestamps strictly
// increase within a session; a turn is only visible after its write has
// committed.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	EnsureSession(ctx context.Context, sessionID string) (SessionRecord, error)
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	AppendTurn(ctx context.Context, draft TurnDraft) (TurnRecord, error)
	ListTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	ClearSession(ctx context.Context, sessionID string) error
	Close() error
}

func validateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session_id is required")
	}
	return nil
}

func validateDraft(draft TurnDraft) error {
	if err := validateSessionID(draft.SessionID); err != nil {
		return err
	}
	if strings.TrimSpace(draft.AgentID) == "" {
		return fmt.Errorf("agent_id is required")
	}
	switch draft.Status {
	case TurnStatusCompleted, TurnStatusFailed:
	default:
		return fmt.Errorf("unsupported turn status %q", draft.Status)
	}
	return nil
}

// sessionLocks keeps one mutex per session key so appends to one session
// never interleave while independent sessions proceed in parallel.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *sessionLocks) lockFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.locks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	l.locks[key] = m
	return m
}

// nextStamp returns a wall-clock timestamp strictly after prev. Called
// only while the session lock is held.
func nextStamp(prev time.Time) time.Time {
	now := time.Now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}
