package domain

import (
	"time"

	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Snapshot is the single current payload per (entity, feature). A successful
// fetch replaces the whole row.
type Snapshot struct {
	EntityID uuid.UUID            `gorm:"primaryKey;column:entity_id" json:"entity_id"`
	Feature  entitydomain.Feature `gorm:"primaryKey" json:"feature"`
	Payload  datatypes.JSON       `gorm:"not null" json:"payload"`
	Date     time.Time            `gorm:"not null" json:"date"`
}

func (Snapshot) TableName() string {
	return "position_snapshots"
}
