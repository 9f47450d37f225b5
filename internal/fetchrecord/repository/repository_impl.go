package repository

import (
	"context"
	"sync"
	"time"

	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	"github.com/finanze/finanze/internal/fetchrecord/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type cacheKey struct {
	entityID uuid.UUID
	feature  entitydomain.Feature
}

type repo struct {
	mu     sync.RWMutex
	latest map[cacheKey]time.Time
}

func Provide() domain.Repository {
	return NewRepository()
}

func NewRepository() domain.Repository {
	return &repo{latest: map[cacheKey]time.Time{}}
}

func (r *repo) Append(ctx context.Context, db *gorm.DB, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).Create(&records).Error; err != nil {
		return err
	}
	// Cache is refreshed once the surrounding transaction commits; see
	// Observe in the orchestrator's commit path.
	return nil
}

func (r *repo) Latest(entityID uuid.UUID, feature entitydomain.Feature) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.latest[cacheKey{entityID: entityID, feature: feature}]
	return ts, ok
}

func (r *repo) List(ctx context.Context, db *gorm.DB, entityID *uuid.UUID) ([]domain.Record, error) {
	var records []domain.Record
	stmt := db.WithContext(ctx).Model(&domain.Record{})
	if entityID != nil {
		stmt = stmt.Where("entity_id = ?", *entityID)
	}
	if err := stmt.Order("date").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) Warm(ctx context.Context, db *gorm.DB) error {
	var rows []struct {
		EntityID uuid.UUID
		Feature  entitydomain.Feature
		Date     time.Time
	}
	err := db.WithContext(ctx).
		Model(&domain.Record{}).
		Select("entity_id", "feature", "MAX(date) AS date").
		Group("entity_id").
		Group("feature").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = make(map[cacheKey]time.Time, len(rows))
	for _, row := range rows {
		r.latest[cacheKey{entityID: row.EntityID, feature: row.Feature}] = row.Date
	}
	return nil
}

// Observe folds committed records into the last-timestamp cache. Timestamps
// only move forward.
func (r *repo) Observe(records []domain.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range records {
		key := cacheKey{entityID: record.EntityID, feature: record.Feature}
		if current, exists := r.latest[key]; !exists || record.Date.After(current) {
			r.latest[key] = record.Date
		}
	}
}
