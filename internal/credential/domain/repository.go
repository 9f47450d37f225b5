package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, entityID uuid.UUID) (*Record, error)
	Put(ctx context.Context, db *gorm.DB, entityID uuid.UUID, blob []byte, now time.Time) error
	Delete(ctx context.Context, db *gorm.DB, entityID uuid.UUID) error
	ListAvailable(ctx context.Context, db *gorm.DB) ([]uuid.UUID, error)
}
