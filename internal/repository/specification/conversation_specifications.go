package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByConversationID struct {
	ConversationID uuid.UUID
}

func (s ByConversationID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("conversation_id = ?", s.ConversationID)
}

type ByTurnKey struct {
	Key string
}

func (s ByTurnKey) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("turn_key = ?", s.Key)
}

// MostRecentlyActive orders conversations newest activity first. Id breaks
// ties so eviction order is deterministic.
type MostRecentlyActive struct{}

func (s MostRecentlyActive) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("last_activity_at DESC").Order("id DESC")
}

// LeastRecentlyActive is the eviction order.
type LeastRecentlyActive struct{}

func (s LeastRecentlyActive) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("last_activity_at ASC").Order("id ASC")
}

// Chronological is the canonical message order: created_at, then the
// per-conversation insertion sequence.
type Chronological struct {
	Desc bool
}

func (s Chronological) Apply(db *gorm.DB) *gorm.DB {
	if s.Desc {
		return db.Order("created_at DESC").Order("sequence DESC")
	}
	return db.Order("created_at ASC").Order("sequence ASC")
}
