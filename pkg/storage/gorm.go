package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jdziat/delayed/pkg/core"
)

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db    *gorm.DB
	clock func() time.Time
	pool  *PoolConfig
}

var _ core.Storage = (*GormStorage)(nil)

// Option configures a GormStorage.
type Option interface {
	apply(*GormStorage)
}

type optionFunc func(*GormStorage)

func (f optionFunc) apply(s *GormStorage) { f(s) }

// WithClock replaces the clock used by Now on dialects that do not ask the
// database for the time.
func WithClock(clock func() time.Time) Option {
	return optionFunc(func(s *GormStorage) {
		s.clock = clock
	})
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB, opts ...Option) *GormStorage {
	s := &GormStorage{db: db}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// DB returns the underlying connection.
func (s *GormStorage) DB() *gorm.DB { return s.db }

// IsSQLite reports whether the store runs on SQLite.
func (s *GormStorage) IsSQLite() bool {
	return s.dialect() == "sqlite"
}

func (s *GormStorage) dialect() string {
	if s.db == nil || s.db.Dialector == nil {
		return ""
	}
	return s.db.Dialector.Name()
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{})
}

// Now returns the time every worker compares run_at and lock ages against.
// PostgreSQL is asked for its own clock so workers on different hosts agree.
func (s *GormStorage) Now(ctx context.Context) (time.Time, error) {
	if s.clock != nil {
		return s.clock().UTC(), nil
	}
	if s.dialect() == "postgres" {
		var now time.Time
		if err := s.db.WithContext(ctx).Raw("SELECT CURRENT_TIMESTAMP").Scan(&now).Error; err != nil {
			return time.Time{}, err
		}
		return now.UTC(), nil
	}
	return time.Now().UTC(), nil
}

// Insert adds a job row. A duplicate unique key comes back as a
// *core.ConstraintViolation.
func (s *GormStorage) Insert(ctx context.Context, job *core.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.RunAt.IsZero() {
		now, err := s.Now(ctx)
		if err != nil {
			return err
		}
		job.RunAt = now
	}
	job.RunAt = job.RunAt.UTC()

	err := s.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return nil
	}
	if !errors.Is(s.translate(err), gorm.ErrDuplicatedKey) {
		return err
	}

	field := "id"
	if job.UniqueKey != nil {
		exists, lookupErr := s.UniqueKeyExists(ctx, *job.UniqueKey)
		if lookupErr != nil {
			return lookupErr
		}
		if exists {
			field = "unique_key"
		}
	}
	return &core.ConstraintViolation{Field: field, Err: err}
}

// translate maps driver errors onto gorm's portable error values.
func (s *GormStorage) translate(err error) error {
	if t, ok := s.db.Dialector.(gorm.ErrorTranslator); ok {
		return t.Translate(err)
	}
	return err
}

// UniqueKeyExists reports whether any row carries key.
func (s *GormStorage) UniqueKeyExists(ctx context.Context, key string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("unique_key = ?", key).
		Count(&count).Error
	return count > 0, err
}

// FindAvailable returns jobs the worker may try to lock, best first.
func (s *GormStorage) FindAvailable(ctx context.Context, q core.AvailableQuery) ([]*core.Job, error) {
	now := q.Now.UTC()
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}

	tx := s.db.WithContext(ctx).
		Where("run_at <= ?", now).
		Where("failed_at IS NULL").
		Where("(locked_at IS NULL OR locked_at < ? OR locked_by = ?)", now.Add(-q.MaxRunTime), q.WorkerName).
		Where("(server IS NULL OR server = '' OR server = ?)", q.Host)
	if q.MinPriority != nil {
		tx = tx.Where("priority >= ?", *q.MinPriority)
	}
	if q.MaxPriority != nil {
		tx = tx.Where("priority <= ?", *q.MaxPriority)
	}

	var jobList []*core.Job
	err := tx.Order("priority ASC, run_at ASC").
		Limit(limit).
		Find(&jobList).Error
	return jobList, err
}

// LockExclusively claims job for workerName with a single conditional update.
// It returns false when another worker got there first.
func (s *GormStorage) LockExclusively(ctx context.Context, job *core.Job, workerName string, now time.Time, maxRunTime time.Duration) (bool, error) {
	now = now.UTC()
	tx := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", job.ID)

	if job.LockedByWorker(workerName) {
		// Re-acquiring our own lock, e.g. after a restart under the same name.
		tx = tx.Where("locked_by = ?", workerName)
	} else {
		tx = tx.
			Where("(locked_at IS NULL OR locked_at < ?)", now.Add(-maxRunTime)).
			Where("run_at <= ?", now).
			Where("failed_at IS NULL")
	}

	result := tx.Updates(map[string]any{
		"locked_at": now,
		"locked_by": workerName,
	})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	job.Lock(workerName, now)
	return true, nil
}

// ClearLocks releases every lock held by workerName.
func (s *GormStorage) ClearLocks(ctx context.Context, workerName string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("locked_by = ?", workerName).
		Updates(map[string]any{
			"locked_at": nil,
			"locked_by": nil,
		})
	return result.RowsAffected, result.Error
}

// Delete removes a finished job.
// Validates that the worker owns the job before deleting.
func (s *GormStorage) Delete(ctx context.Context, job *core.Job, workerName string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND locked_by = ?", job.ID, workerName).
		Delete(&core.Job{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// Save writes back the scheduling state of a job the worker still holds.
func (s *GormStorage) Save(ctx context.Context, job *core.Job, workerName string) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ?", job.ID, workerName).
		Updates(map[string]any{
			"attempts":   job.Attempts,
			"last_error": job.LastError,
			"run_at":     job.RunAt.UTC(),
			"failed_at":  utcPtr(job.FailedAt),
			"locked_at":  utcPtr(job.LockedAt),
			"locked_by":  job.LockedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *GormStorage) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
