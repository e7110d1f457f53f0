// Package testdb opens throwaway databases for the test suites.
package testdb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens a database for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL and empties the
// jobs table before and after the test; otherwise it creates a file-based
// SQLite database in the test's temp dir, so several connections (and so
// several workers) share it.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		require.NoError(t, err, "open postgres test db")

		sqlDB, err := db.DB()
		require.NoError(t, err, "get underlying sql.DB")
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(2)

		cleanup(db)
		t.Cleanup(func() {
			cleanup(db)
			_ = sqlDB.Close()
		})
		return db
	}

	path := filepath.Join(t.TempDir(), "delayed.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	require.NoError(t, err, "open sqlite test db")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// IsPostgres reports whether Open connects to PostgreSQL.
func IsPostgres() bool {
	return os.Getenv("TEST_DATABASE_URL") != ""
}

func cleanup(db *gorm.DB) {
	if db.Migrator().HasTable("delayed_jobs") {
		db.Exec("DELETE FROM delayed_jobs")
	}
}

// Clock is a settable time source for storage.WithClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}
