package store

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func completedDraft(sessionID, agentID, input, output string) TurnDraft {
	return TurnDraft{
		SessionID: sessionID,
		AgentID:   agentID,
		Input:     input,
		Output:    output,
		Status:    TurnStatusCompleted,
	}
}

func TestMemoryStoreAppendAndList(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	turn1, err := s.AppendTurn(context.Background(), completedDraft("s1", "research", "q", "a1"))
	if err != nil {
		t.Fatalf("append turn1: %v", err)
	}
	turn2, err := s.AppendTurn(context.Background(), completedDraft("s1", "summarizer", "q", "a2"))
	if err != nil {
		t.Fatalf("append turn2: %v", err)
	}
	if turn1.Sequence != 1 || turn2.Sequence != 2 {
		t.Fatalf("unexpected sequences: %d, %d", turn1.Sequence, turn2.Sequence)
	}
	if !turn2.CreatedAt.After(turn1.CreatedAt) {
		t.Fatalf("expected strictly increasing timestamps: %v then %v", turn1.CreatedAt, turn2.CreatedAt)
	}

	turns, err := s.ListTurns(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].TurnID != turn1.TurnID || turns[1].TurnID != turn2.TurnID {
		t.Fatalf("unexpected turn order")
	}
}

func TestMemoryStoreListLimitKeepsMostRecent(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	for _, out := range []string{"a1", "a2", "a3"} {
		if _, err := s.AppendTurn(context.Background(), completedDraft("s1", "insight", "q", out)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	turns, err := s.ListTurns(context.Background(), "s1", 2)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Output != "a2" || turns[1].Output != "a3" {
		t.Fatalf("expected the most recent turns in order, got %q, %q", turns[0].Output, turns[1].Output)
	}
}

func TestMemoryStoreConcurrentAppendsStayOrdered(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	const appends = 50
	var wg sync.WaitGroup
	for i := 0; i < appends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AppendTurn(context.Background(), completedDraft("s1", "research", "q", "a")); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	turns, err := s.ListTurns(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != appends {
		t.Fatalf("expected %d turns, got %d", appends, len(turns))
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].Sequence != turns[i-1].Sequence+1 {
			t.Fatalf("sequence gap at %d: %d then %d", i, turns[i-1].Sequence, turns[i].Sequence)
		}
		if !turns[i].CreatedAt.After(turns[i-1].CreatedAt) {
			t.Fatalf("timestamps not strictly increasing at %d", i)
		}
	}
}

func TestMemoryStoreFailedTurnRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	_, err := s.AppendTurn(context.Background(), TurnDraft{
		SessionID: "s1",
		AgentID:   "devil",
		Input:     "q",
		Status:    TurnStatusFailed,
		ErrorKind: "gateway_unavailable",
		Error:     "connection refused",
	})
	if err != nil {
		t.Fatalf("append failed turn: %v", err)
	}

	turns, err := s.ListTurns(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Status != TurnStatusFailed || turns[0].ErrorKind != "gateway_unavailable" {
		t.Fatalf("unexpected failed turn: %+v", turns[0])
	}
}

func TestMemoryStoreClearSession(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	if _, err := s.AppendTurn(context.Background(), completedDraft("s1", "research", "q", "a")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.ClearSession(context.Background(), "s1"); err != nil {
		t.Fatalf("clear session: %v", err)
	}
	if _, err := s.GetSession(context.Background(), "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
	if err := s.ClearSession(context.Background(), "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for second clear, got %v", err)
	}
}

func TestMemoryStoreValidatesDraft(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	if _, err := s.AppendTurn(context.Background(), TurnDraft{SessionID: "s1", AgentID: "research", Status: "pending"}); err == nil {
		t.Fatalf("expected error for unsupported status")
	}
	if _, err := s.AppendTurn(context.Background(), TurnDraft{AgentID: "research", Status: TurnStatusCompleted}); err == nil {
		t.Fatalf("expected error for missing session id")
	}
}
