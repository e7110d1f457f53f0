package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// defaultMaxIdleConns is database/sql's own idle default, restored by
// AfterFork when no pool was configured.
const defaultMaxIdleConns = 2

// ErrInvalidPool is returned for pool settings database/sql would silently
// reinterpret.
var ErrInvalidPool = errors.New("delayed: invalid connection pool settings")

// PoolConfig sizes the database/sql pool behind a GormStorage. Zero values
// mean "no limit", as in database/sql.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig suits long-running processes sharing one store, such as
// the admin server.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

// WorkerPoolConfig suits a single worker process, which polls on one
// connection and sleeps between batches.
func WorkerPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 10 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
	}
}

// Validate rejects negative values and an idle pool larger than the open
// limit.
func (c PoolConfig) Validate() error {
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 || c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0 {
		return fmt.Errorf("%w: values must not be negative", ErrInvalidPool)
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("%w: %d idle connections exceed the limit of %d open",
			ErrInvalidPool, c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// ConfigurePool applies cfg to the connection pool behind db.
func ConfigurePool(db *gorm.DB, cfg PoolConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("delayed: failed to get underlying *sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return nil
}

// NewGormStorageWithPool configures db's pool and wraps it. AfterFork
// restores these settings.
func NewGormStorageWithPool(db *gorm.DB, pool PoolConfig, opts ...Option) (*GormStorage, error) {
	if err := ConfigurePool(db, pool); err != nil {
		return nil, err
	}
	s := NewGormStorage(db, opts...)
	s.pool = &pool
	return s, nil
}

// BeforeFork closes idle connections so no socket is shared with a child
// process started by a process pool.
func (s *GormStorage) BeforeFork() {
	if s.db == nil {
		return
	}
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.SetMaxIdleConns(0)
	}
}

// AfterFork reopens the idle pool closed by BeforeFork.
func (s *GormStorage) AfterFork() {
	if s.db == nil {
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	idle := defaultMaxIdleConns
	if s.pool != nil {
		idle = s.pool.MaxIdleConns
	}
	sqlDB.SetMaxIdleConns(idle)
}
