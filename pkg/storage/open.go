package storage

import (
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqliteParams lets several worker processes share one SQLite file.
const sqliteParams = "_busy_timeout=5000&_journal_mode=WAL"

// IsPostgresDSN reports whether dsn names a PostgreSQL database, either as a
// URL or as a libpq keyword string.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// Dialector picks the gorm driver for dsn. Anything that is not a
// PostgreSQL DSN is a SQLite file path.
func Dialector(dsn string) gorm.Dialector {
	if IsPostgresDSN(dsn) {
		return postgres.Open(dsn)
	}
	if dsn != ":memory:" && !strings.Contains(dsn, "?") {
		dsn = "file:" + strings.TrimPrefix(dsn, "file:") + "?" + sqliteParams
	}
	return sqlite.Open(dsn)
}

// Open connects to dsn with gorm's own logging limited to warnings.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(Dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}
