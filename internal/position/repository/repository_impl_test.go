package repository

import (
	"context"
	"testing"
	"time"

	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	"github.com/finanze/finanze/internal/position/domain"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Snapshot{}))
	return db
}

func TestPutBatchReplacesSnapshots(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()
	id := uuid.New()
	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.PutBatch(ctx, db, []domain.Snapshot{{
		EntityID: id,
		Feature:  entitydomain.FeaturePositions,
		Payload:  datatypes.JSON(`{"holdings":[]}`),
		Date:     date,
	}}))

	// A newer fetch replaces the whole row for the pair.
	require.NoError(t, repo.PutBatch(ctx, db, []domain.Snapshot{{
		EntityID: id,
		Feature:  entitydomain.FeaturePositions,
		Payload:  datatypes.JSON(`{"holdings":[{"name":"a","amount":"1","currency":"EUR"}]}`),
		Date:     date.Add(time.Hour),
	}}))

	got, err := repo.Get(ctx, db, id, entitydomain.FeaturePositions)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Date.Equal(date.Add(time.Hour)))
	assert.Contains(t, string(got.Payload), `"name":"a"`)

	var count int64
	require.NoError(t, db.Model(&domain.Snapshot{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetAbsentSnapshot(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()

	got, err := repo.Get(context.Background(), db, uuid.New(), entitydomain.FeaturePositions)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListOrderedAndFiltered(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	require.NoError(t, repo.PutBatch(ctx, db, []domain.Snapshot{
		{EntityID: b, Feature: entitydomain.FeaturePositions, Payload: datatypes.JSON(`{}`), Date: date},
		{EntityID: a, Feature: entitydomain.FeatureTransactions, Payload: datatypes.JSON(`{}`), Date: date},
		{EntityID: a, Feature: entitydomain.FeaturePositions, Payload: datatypes.JSON(`{}`), Date: date},
	}))

	all, err := repo.List(ctx, db, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, a, all[0].EntityID)
	assert.Equal(t, entitydomain.FeaturePositions, all[0].Feature)
	assert.Equal(t, entitydomain.FeatureTransactions, all[1].Feature)
	assert.Equal(t, b, all[2].EntityID)

	feature := entitydomain.FeaturePositions
	filtered, err := repo.List(ctx, db, &feature)
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}

func TestDeleteByEntity(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()
	keep, drop := uuid.New(), uuid.New()
	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.PutBatch(ctx, db, []domain.Snapshot{
		{EntityID: keep, Feature: entitydomain.FeaturePositions, Payload: datatypes.JSON(`{}`), Date: date},
		{EntityID: drop, Feature: entitydomain.FeaturePositions, Payload: datatypes.JSON(`{}`), Date: date},
		{EntityID: drop, Feature: entitydomain.FeatureTransactions, Payload: datatypes.JSON(`{}`), Date: date},
	}))

	require.NoError(t, repo.DeleteByEntity(ctx, db, drop))

	all, err := repo.List(ctx, db, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep, all[0].EntityID)
}
