package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"voicestack.local/voicegate/internal/db"
	"voicestack.local/voicegate/internal/faults"
	"voicestack.local/voicegate/internal/ids"
)

type GormStore struct {
	db    *gorm.DB
	locks *sessionLocks
}

func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormDB, err := db.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}

	store := &GormStore{db: gormDB, locks: newSessionLocks()}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *GormStore) migrate() error {
	return s.db.AutoMigrate(&sessionRow{}, &turnRow{})
}

func (s *GormStore) EnsureSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return SessionRecord{}, err
	}

	now := time.Now().UTC()
	var row sessionRow
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = sessionRow{SessionID: sessionID, CreatedAt: now, UpdatedAt: now}
			if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
				return SessionRecord{}, fmt.Errorf("%w: create session: %v", faults.ErrPersistence, err)
			}
			return row.toRecord(), nil
		}
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) GetSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return SessionRecord{}, err
	}

	var row sessionRow
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SessionRecord{}, ErrNotFound
		}
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return row.toRecord(), nil
}

// AppendTurn commits one turn. The per-session lock keeps at most one
// append in flight per session, which is what makes sequence numbers and
// timestamps strictly increase.
func (s *GormStore) AppendTurn(ctx context.Context, draft TurnDraft) (TurnRecord, error) {
	if err := validateDraft(draft); err != nil {
		return TurnRecord{}, err
	}

	lock := s.locks.lockFor(draft.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.EnsureSession(ctx, draft.SessionID); err != nil {
		return TurnRecord{}, err
	}

	var out TurnRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last turnRow
		lastStamp := time.Time{}
		var maxSeq int64
		err := tx.Where("session_id = ?", draft.SessionID).
			Order("sequence DESC").
			Take(&last).Error
		switch {
		case err == nil:
			maxSeq = last.Sequence
			lastStamp = last.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("sequence lookup: %w", err)
		}

		row := turnRowFromRecord(TurnRecord{
			TurnID:    ids.New(),
			SessionID: draft.SessionID,
			AgentID:   draft.AgentID,
			Sequence:  maxSeq + 1,
			Input:     draft.Input,
			Output:    draft.Output,
			Status:    draft.Status,
			ErrorKind: draft.ErrorKind,
			Error:     draft.Error,
			AudioRef:  draft.AudioRef,
			CreatedAt: nextStamp(lastStamp),
		})
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create turn: %w", err)
		}
		if err := tx.Model(&sessionRow{}).
			Where("session_id = ?", draft.SessionID).
			Update("updated_at", row.CreatedAt).Error; err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		out = row.toRecord()
		return nil
	})
	if err != nil {
		return TurnRecord{}, fmt.Errorf("%w: %v", faults.ErrPersistence, err)
	}
	return out, nil
}

func (s *GormStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	// A positive limit keeps the most recent turns; output is always in
	// ascending sequence order.
	query := s.db.WithContext(ctx).
		Model(&turnRow{}).
		Where("session_id = ?", sessionID)
	if limit > 0 {
		query = query.Order("sequence DESC").Limit(limit)
	} else {
		query = query.Order("sequence ASC")
	}

	var rows []turnRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	if limit > 0 {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	out := make([]TurnRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

func (s *GormStore) ClearSession(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	lock := s.locks.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&turnRow{}).Error; err != nil {
			return fmt.Errorf("delete turns: %w", err)
		}
		res := tx.Where("session_id = ?", sessionID).Delete(&sessionRow{})
		if res.Error != nil {
			return fmt.Errorf("delete session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", faults.ErrPersistence, err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}
