package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Session is the persisted login state for one entity. At most one row per
// entity; the payload schema belongs to the connector.
type Session struct {
	EntityID   uuid.UUID      `gorm:"primaryKey;column:entity_id" json:"entity_id"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	Expiration time.Time      `gorm:"not null" json:"expiration"`
	Payload    datatypes.JSON `gorm:"not null" json:"-"`
}

func (Session) TableName() string {
	return "entity_sessions"
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.Expiration)
}
