package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openRawSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestPoolOptions(t *testing.T) {
	cfg := DefaultPoolConfig()
	for _, opt := range []PoolOption{
		MaxOpenConns(30),
		MaxIdleConns(0), // keeps the base
		ConnMaxLifetime(time.Hour),
		ConnMaxIdleTime(0),
	} {
		opt(&cfg)
	}
	assert.Equal(t, PoolConfig{
		MaxOpenConns:    30,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}, cfg)
}

func TestConfigurePool(t *testing.T) {
	db := openRawSQLite(t)
	require.NoError(t, ConfigurePool(db, DefaultPoolConfig(), MaxOpenConns(3), MaxIdleConns(8)))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 3, sqlDB.Stats().MaxOpenConnections)
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.True(t, s.IsSQLite())
	sqlDB, err := s.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	ids, err := s.List(ctx, "nightly")
	require.NoError(t, err)
	assert.Empty(t, ids, "schema must be migrated")
}

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	_, err := OpenSQLite(context.Background(), t.TempDir()+"/missing/dir/jobs.db")
	require.Error(t, err)
}
