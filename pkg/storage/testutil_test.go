package storage

import (
	"testing"

	"gorm.io/gorm"

	"github.com/jdziat/delayed/pkg/internal/testdb"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testdb.Open(t)
}

func skipIfNotPostgres(t *testing.T) {
	t.Helper()
	if !testdb.IsPostgres() {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL-specific test")
	}
}
