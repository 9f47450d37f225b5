package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	"github.com/google/uuid"
)

// Record marks one completed fetch of a feature for an entity. Rows are
// append-only and drive the cooldown policy.
type Record struct {
	ID       snowflake.ID         `gorm:"primaryKey" json:"id"`
	EntityID uuid.UUID            `gorm:"not null;index:idx_fetch_records_key" json:"entity_id"`
	Feature  entitydomain.Feature `gorm:"not null;index:idx_fetch_records_key" json:"feature"`
	Date     time.Time            `gorm:"not null" json:"date"`
}

func (Record) TableName() string {
	return "fetch_records"
}
