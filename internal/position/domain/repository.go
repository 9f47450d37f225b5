package domain

import (
	"context"

	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	// PutBatch replaces the current snapshot of every (entity, feature) pair
	// in the batch. Callers wrap it in a transaction together with the fetch
	// record append.
	PutBatch(ctx context.Context, db *gorm.DB, snapshots []Snapshot) error

	// Get returns nil when no snapshot is stored.
	Get(ctx context.Context, db *gorm.DB, entityID uuid.UUID, feature entitydomain.Feature) (*Snapshot, error)

	// List returns snapshots ordered by (entity_id, feature), optionally
	// restricted to one feature.
	List(ctx context.Context, db *gorm.DB, feature *entitydomain.Feature) ([]Snapshot, error)

	DeleteByEntity(ctx context.Context, db *gorm.DB, entityID uuid.UUID) error
}
