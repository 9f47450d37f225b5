package repository

import (
	"context"

	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	"github.com/finanze/finanze/internal/position/domain"
	pkgdb "github.com/finanze/finanze/pkg/db"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) PutBatch(ctx context.Context, db *gorm.DB, snapshots []domain.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_id"}, {Name: "feature"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "date"}),
		}).
		Create(&snapshots).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, entityID uuid.UUID, feature entitydomain.Feature) (*domain.Snapshot, error) {
	var snapshot domain.Snapshot
	err := db.WithContext(ctx).
		Where("entity_id = ? AND feature = ?", entityID, feature).
		First(&snapshot).Error
	if err != nil {
		if pkgdb.IsNotFoundErr(err) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, feature *entitydomain.Feature) ([]domain.Snapshot, error) {
	var snapshots []domain.Snapshot
	stmt := db.WithContext(ctx).Model(&domain.Snapshot{})
	if feature != nil {
		stmt = stmt.Where("feature = ?", *feature)
	}
	if err := stmt.Order("entity_id, feature").Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (r *repo) DeleteByEntity(ctx context.Context, db *gorm.DB, entityID uuid.UUID) error {
	return db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Delete(&domain.Snapshot{}).Error
}
