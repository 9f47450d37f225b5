package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	// Get returns nil when no session is stored for the entity.
	Get(ctx context.Context, db *gorm.DB, entityID uuid.UUID) (*Session, error)
	Upsert(ctx context.Context, db *gorm.DB, session Session) error
	Delete(ctx context.Context, db *gorm.DB, entityID uuid.UUID) error
}
