// Package events defines the lifecycle envelope the gateway publishes to
// its subscribers.
package events

import (
	"encoding/json"
	"time"
)

type Type string

const (
	TypeTurnStarted    Type = "turn.started"
	TypeTurnCompleted  Type = "turn.completed"
	TypeTurnFailed     Type = "turn.failed"
	TypeSessionCleared Type = "session.cleared"
	TypeExportCreated  Type = "export.created"
)

type Envelope struct {
	EventID    string          `json:"event_id"`
	TraceID    string          `json:"trace_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	EventType  Type            `json:"event_type"`
	SessionID  string          `json:"session_id"`
	AgentID    string          `json:"agent_id,omitempty"`
	TurnID     string          `json:"turn_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func (e Envelope) DecodePayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Valid reports whether t is one of the published event types.
func Valid(t Type) bool {
	switch t {
	case TypeTurnStarted, TypeTurnCompleted, TypeTurnFailed, TypeSessionCleared, TypeExportCreated:
		return true
	default:
		return false
	}
}
