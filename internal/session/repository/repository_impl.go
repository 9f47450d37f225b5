package repository

import (
	"context"

	"github.com/finanze/finanze/internal/session/domain"
	pkgdb "github.com/finanze/finanze/pkg/db"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, entityID uuid.UUID) (*domain.Session, error) {
	var session domain.Session
	err := db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		First(&session).Error
	if err != nil {
		if pkgdb.IsNotFoundErr(err) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, session domain.Session) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"created_at", "expiration", "payload"}),
		}).
		Create(&session).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, entityID uuid.UUID) error {
	return db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Delete(&domain.Session{}).Error
}
