package domain

import (
	"context"
	"time"

	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Append(ctx context.Context, db *gorm.DB, records []Record) error

	// Latest answers from the in-memory last-timestamp cache. Warm must have
	// run for persisted history to be visible.
	Latest(entityID uuid.UUID, feature entitydomain.Feature) (time.Time, bool)

	List(ctx context.Context, db *gorm.DB, entityID *uuid.UUID) ([]Record, error)

	// Observe folds committed records into the cache. Called after the
	// surrounding transaction commits, never inside it.
	Observe(records []Record)

	// Warm rebuilds the last-timestamp cache from storage.
	Warm(ctx context.Context, db *gorm.DB) error
}
