package store

import "time"

type sessionRow struct {
	SessionID string    `gorm:"primaryKey;size:191"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (sessionRow) TableName() string {
	return "sessions"
}

func (r sessionRow) toRecord() SessionRecord {
	return SessionRecord{
		SessionID: r.SessionID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type turnRow struct {
	TurnID    string    `gorm:"primaryKey;size:64"`
	SessionID string    `gorm:"size:191;uniqueIndex:idx_turns_session_sequence,priority:1"`
	AgentID   string    `gorm:"size:64;not null"`
	Sequence  int64     `gorm:"not null;uniqueIndex:idx_turns_session_sequence,priority:2"`
	Input     string    `gorm:"type:text;not null"`
	Output    string    `gorm:"type:text"`
	Status    string    `gorm:"size:32;not null"`
	ErrorKind string    `gorm:"size:64"`
	Error     string    `gorm:"type:text"`
	AudioRef  string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (turnRow) TableName() string {
	return "turns"
}

func (r turnRow) toRecord() TurnRecord {
	return TurnRecord{
		TurnID:    r.TurnID,
		SessionID: r.SessionID,
		AgentID:   r.AgentID,
		Sequence:  r.Sequence,
		Input:     r.Input,
		Output:    r.Output,
		Status:    TurnStatus(r.Status),
		ErrorKind: r.ErrorKind,
		Error:     r.Error,
		AudioRef:  r.AudioRef,
		CreatedAt: r.CreatedAt,
	}
}

func turnRowFromRecord(rec TurnRecord) turnRow {
	return turnRow{
		TurnID:    rec.TurnID,
		SessionID: rec.SessionID,
		AgentID:   rec.AgentID,
		Sequence:  rec.Sequence,
		Input:     rec.Input,
		Output:    rec.Output,
		Status:    string(rec.Status),
		ErrorKind: rec.ErrorKind,
		Error:     rec.Error,
		AudioRef:  rec.AudioRef,
		CreatedAt: rec.CreatedAt,
	}
}
