// Package storage persists delayed jobs with GORM.
//
// GormStorage implements core.Storage on any GORM dialect; SQLite and
// PostgreSQL are exercised by the test suite. Reservation relies on a single
// conditional UPDATE per candidate, so no row locks or transactions are held
// while a job runs.
//
// Most users should import the root package github.com/jdziat/delayed,
// which provides NewGormStorage().
package storage
