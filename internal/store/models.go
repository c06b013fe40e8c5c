package store

import "time"

type SessionRecord struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TurnStatus string

const (
	TurnStatusCompleted TurnStatus = "completed"
	TurnStatusFailed    TurnStatus = "failed"
)

// TurnDraft is what the orchestrator hands to AppendTurn. The store assigns
// identity, sequence and timestamp at commit time.
type TurnDraft struct {
	SessionID string
	AgentID   string
	Input     string
	Output    string
	Status    TurnStatus
	ErrorKind string
	Error     string
	AudioRef  string
}

// TurnRecord is one committed exchange. Immutable once written.
type TurnRecord struct {
	TurnID    string     `json:"turn_id"`
	SessionID string     `json:"session_id"`
	AgentID   string     `json:"agent_id"`
	Sequence  int64      `json:"sequence"`
	Input     string     `json:"input"`
	Output    string     `json:"output,omitempty"`
	Status    TurnStatus `json:"status"`
	ErrorKind string     `json:"error_kind,omitempty"`
	Error     string     `json:"error,omitempty"`
	AudioRef  string     `json:"audio_ref,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
