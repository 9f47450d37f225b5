package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Record is a stored credential blob for one entity. The blob is opaque to
// everything but the owning connector.
type Record struct {
	EntityID  uuid.UUID `gorm:"primaryKey;column:entity_id" json:"entity_id"`
	Blob      []byte    `gorm:"not null" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Record) TableName() string {
	return "credentials"
}

var ErrNotFound = errors.New("credential_not_found")
