package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig sizes the database/sql pool behind a GormStore. Zero durations
// mean no limit.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig suits one suite process talking to a server database:
// async groups write concurrently, but rarely more than a handful at once.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

// SQLitePoolConfig funnels everything through one connection. SQLite has a
// single writer and ":memory:" databases exist per connection.
func SQLitePoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
}

// PoolOption adjusts a PoolConfig.
type PoolOption func(*PoolConfig)

// MaxOpenConns caps open connections. Non-positive values keep the base.
func MaxOpenConns(n int) PoolOption {
	return func(c *PoolConfig) {
		if n > 0 {
			c.MaxOpenConns = n
		}
	}
}

// MaxIdleConns caps idle connections. Non-positive values keep the base.
func MaxIdleConns(n int) PoolOption {
	return func(c *PoolConfig) {
		if n > 0 {
			c.MaxIdleConns = n
		}
	}
}

func ConnMaxLifetime(d time.Duration) PoolOption {
	return func(c *PoolConfig) { c.ConnMaxLifetime = d }
}

func ConnMaxIdleTime(d time.Duration) PoolOption {
	return func(c *PoolConfig) { c.ConnMaxIdleTime = d }
}

// ConfigurePool applies base, adjusted by opts, to the pool of db.
func ConfigurePool(db *gorm.DB, base PoolConfig, opts ...PoolOption) error {
	cfg := base
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxIdleConns > cfg.MaxOpenConns && cfg.MaxOpenConns > 0 {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get *sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return nil
}

// OpenSQLite opens (creating if needed) a SQLite database at path, configures
// its pool and migrates the schema. Use ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string, opts ...PoolOption) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return newMigrated(ctx, db, SQLitePoolConfig(), opts...)
}

// OpenPostgres connects to PostgreSQL with dsn, configures its pool and
// migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...PoolOption) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newMigrated(ctx, db, DefaultPoolConfig(), opts...)
}

func newMigrated(ctx context.Context, db *gorm.DB, base PoolConfig, opts ...PoolOption) (*GormStore, error) {
	if err := ConfigurePool(db, base, opts...); err != nil {
		return nil, err
	}
	s := NewGormStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}
