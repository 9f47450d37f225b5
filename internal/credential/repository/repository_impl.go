package repository

import (
	"context"
	"time"

	"github.com/finanze/finanze/internal/credential/domain"
	pkgdb "github.com/finanze/finanze/pkg/db"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, entityID uuid.UUID) (*domain.Record, error) {
	var record domain.Record
	err := db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		First(&record).Error
	if err != nil {
		if pkgdb.IsNotFoundErr(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) Put(ctx context.Context, db *gorm.DB, entityID uuid.UUID, blob []byte, now time.Time) error {
	record := domain.Record{
		EntityID:  entityID,
		Blob:      blob,
		CreatedAt: now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"blob", "created_at"}),
		}).
		Create(&record).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, entityID uuid.UUID) error {
	return db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Delete(&domain.Record{}).Error
}

func (r *repo) ListAvailable(ctx context.Context, db *gorm.DB) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := db.WithContext(ctx).
		Model(&domain.Record{}).
		Order("entity_id").
		Pluck("entity_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
