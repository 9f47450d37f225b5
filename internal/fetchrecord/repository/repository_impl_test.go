package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	"github.com/finanze/finanze/internal/fetchrecord/domain"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
	require.NoError(t, db.AutoMigrate(&domain.Record{}))
	return db
}

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func TestLatestServedFromCache(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	node := newNode(t)
	ctx := context.Background()
	id := uuid.New()
	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, ok := repo.Latest(id, entitydomain.FeaturePositions)
	assert.False(t, ok)

	records := []domain.Record{{
		ID:       node.Generate(),
		EntityID: id,
		Feature:  entitydomain.FeaturePositions,
		Date:     date,
	}}
	require.NoError(t, repo.Append(ctx, db, records))

	// Append alone does not touch the cache; Observe runs after commit.
	_, ok = repo.Latest(id, entitydomain.FeaturePositions)
	assert.False(t, ok)

	repo.Observe(records)
	got, ok := repo.Latest(id, entitydomain.FeaturePositions)
	require.True(t, ok)
	assert.Equal(t, date, got)
}

func TestObserveKeepsNewestTimestamp(t *testing.T) {
	repo := Provide()
	id := uuid.New()
	newer := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	repo.Observe([]domain.Record{{EntityID: id, Feature: entitydomain.FeaturePositions, Date: newer}})
	repo.Observe([]domain.Record{{EntityID: id, Feature: entitydomain.FeaturePositions, Date: older}})

	got, ok := repo.Latest(id, entitydomain.FeaturePositions)
	require.True(t, ok)
	assert.Equal(t, newer, got)
}

func TestWarmRebuildsCache(t *testing.T) {
	db := openTestDB(t)
	node := newNode(t)
	ctx := context.Background()
	id := uuid.New()
	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(2 * time.Hour)

	seed := Provide()
	require.NoError(t, seed.Append(ctx, db, []domain.Record{
		{ID: node.Generate(), EntityID: id, Feature: entitydomain.FeaturePositions, Date: older},
		{ID: node.Generate(), EntityID: id, Feature: entitydomain.FeaturePositions, Date: newer},
		{ID: node.Generate(), EntityID: id, Feature: entitydomain.FeatureTransactions, Date: older},
	}))

	// A fresh repository, as after restart, rebuilds from storage.
	repo := Provide()
	require.NoError(t, repo.Warm(ctx, db))

	got, ok := repo.Latest(id, entitydomain.FeaturePositions)
	require.True(t, ok)
	assert.True(t, got.Equal(newer))
	got, ok = repo.Latest(id, entitydomain.FeatureTransactions)
	require.True(t, ok)
	assert.True(t, got.Equal(older))
}

func TestListFiltersByEntity(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	node := newNode(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, db, []domain.Record{
		{ID: node.Generate(), EntityID: a, Feature: entitydomain.FeaturePositions, Date: date},
		{ID: node.Generate(), EntityID: b, Feature: entitydomain.FeaturePositions, Date: date},
	}))

	all, err := repo.List(ctx, db, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyA, err := repo.List(ctx, db, &a)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, a, onlyA[0].EntityID)
}
