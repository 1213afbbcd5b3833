package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/jobsuite/pkg/core"
)

// openTestDB opens a database for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// opens a fresh in-memory SQLite instance on a single connection.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		require.NoError(t, err, "open postgres test db")

		sqlDB, err := db.DB()
		require.NoError(t, err, "get underlying sql.DB")
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(1)

		// Clean before AND after to ensure test isolation.
		cleanupPostgresDB(db)
		t.Cleanup(func() {
			cleanupPostgresDB(db)
			_ = sqlDB.Close()
		})
		return db
	}
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open in-memory sqlite")
	require.NoError(t, ConfigurePool(db, SQLitePoolConfig()))
	return db
}

func cleanupPostgresDB(db *gorm.DB) {
	db.Exec("DELETE FROM job_statuses")
}

// newTestGormStore returns a migrated GormStore.
func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	s := NewGormStore(openTestDB(t))
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

// newTestFileStore returns a FileStore rooted in a temp dir.
func newTestFileStore(t *testing.T, opts ...FileOption) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), opts...)
	require.NoError(t, err)
	return s
}

// sampleStatus builds a running record with properties for round-trip tests.
func sampleStatus(jobID string) *core.Status {
	start := time.Date(2024, 5, 1, 8, 30, 0, 123456789, time.UTC)
	st := core.NewStatus(jobID)
	st.Begin(start)
	st.SetProgress(0.42)
	st.Note = "processing: 42 of 100"
	st.LastActivity = start.Add(3 * time.Second)
	st.Properties.Set("cursor", "row-42")
	st.Properties.Set("files", "a.csv", "b.csv")
	st.Properties.Add("files", "true")
	return st
}
