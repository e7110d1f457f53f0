package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/delayed/pkg/core"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

const maxRunTime = 4 * time.Hour

// newTestStorage creates a fresh migrated storage whose clock is pinned to testNow.
func newTestStorage(t *testing.T) *GormStorage {
	t.Helper()
	s := NewGormStorage(openTestDB(t), WithClock(func() time.Time { return testNow }))
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

// insertJob persists a job with sensible defaults and returns it.
func insertJob(t *testing.T, s *GormStorage, mutate func(*core.Job)) *core.Job {
	t.Helper()
	job := &core.Job{Handler: "--- !delayed/SimpleJob {}\n", RunAt: testNow}
	if mutate != nil {
		mutate(job)
	}
	require.NoError(t, s.Insert(context.Background(), job))
	return job
}

func available(t *testing.T, s *GormStorage, worker, host string) []*core.Job {
	t.Helper()
	jobs, err := s.FindAvailable(context.Background(), core.AvailableQuery{
		WorkerName: worker,
		Host:       host,
		Now:        testNow,
		MaxRunTime: maxRunTime,
		Limit:      5,
	})
	require.NoError(t, err)
	return jobs
}

func ids(jobs []*core.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// ──────────────────────────────────────────────────────────────────────────────
// Constructor / detection
// ──────────────────────────────────────────────────────────────────────────────

func TestNewGormStorage_IsSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := NewGormStorage(db)
	assert.True(t, s.IsSQLite(), "should detect SQLite dialect")
	assert.Same(t, db, s.DB(), "DB() should return the same *gorm.DB passed in")
}

func TestNewGormStorage_NilDB(t *testing.T) {
	s := NewGormStorage(nil)
	assert.False(t, s.IsSQLite(), "nil db should not claim SQLite")
}

func TestNewGormStorage_IsNotSQLite_PostgreSQL(t *testing.T) {
	skipIfNotPostgres(t)

	s := NewGormStorage(openTestDB(t))
	assert.False(t, s.IsSQLite())
}

// ──────────────────────────────────────────────────────────────────────────────
// Now
// ──────────────────────────────────────────────────────────────────────────────

func TestNow_UsesInjectedClock(t *testing.T) {
	s := newTestStorage(t)

	now, err := s.Now(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testNow, now)
}

func TestNow_DefaultsToUTC(t *testing.T) {
	s := NewGormStorage(openTestDB(t))

	now, err := s.Now(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.UTC, now.Location())
	assert.WithinDuration(t, time.Now(), now, time.Minute)
}

// ──────────────────────────────────────────────────────────────────────────────
// Insert / UniqueKeyExists
// ──────────────────────────────────────────────────────────────────────────────

func TestInsert_AssignsIDAndRunAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	job := &core.Job{Handler: "--- !delayed/SimpleJob {}\n", Priority: 3}
	require.NoError(t, s.Insert(ctx, job))

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, testNow, job.RunAt)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Priority)
	assert.Equal(t, 0, got.Attempts)
	assert.Equal(t, job.Handler, got.Handler)
	assert.True(t, testNow.Equal(got.RunAt))
	assert.False(t, got.Locked())
	assert.False(t, got.Failed())
}

func TestInsert_DuplicateUniqueKeyIsConstraintViolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	insertJob(t, s, func(j *core.Job) { j.UniqueKey = strPtr("report:7") })

	err := s.Insert(ctx, &core.Job{Handler: "x", UniqueKey: strPtr("report:7")})
	require.Error(t, err)
	assert.True(t, core.IsUniqueKeyViolation(err), "got %v", err)

	var cv *core.ConstraintViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "unique_key", cv.Field)

	exists, err := s.UniqueKeyExists(ctx, "report:7")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInsert_DuplicateIDIsNotAUniqueKeyViolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	first := insertJob(t, s, nil)

	err := s.Insert(ctx, &core.Job{ID: first.ID, Handler: "x"})
	require.Error(t, err)
	assert.False(t, core.IsUniqueKeyViolation(err))

	var cv *core.ConstraintViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "id", cv.Field)
}

func TestInsert_ManyRowsWithoutUniqueKey(t *testing.T) {
	s := newTestStorage(t)

	for range 3 {
		insertJob(t, s, nil)
	}
	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Pending)
}

func TestUniqueKeyExists_Missing(t *testing.T) {
	s := newTestStorage(t)

	exists, err := s.UniqueKeyExists(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, exists)
}

// ──────────────────────────────────────────────────────────────────────────────
// FindAvailable
// ──────────────────────────────────────────────────────────────────────────────

func TestFindAvailable_OrdersByPriorityThenRunAt(t *testing.T) {
	s := newTestStorage(t)

	late := insertJob(t, s, func(j *core.Job) { j.Priority = 0; j.RunAt = testNow.Add(-time.Minute) })
	early := insertJob(t, s, func(j *core.Job) { j.Priority = 0; j.RunAt = testNow.Add(-time.Hour) })
	urgent := insertJob(t, s, func(j *core.Job) { j.Priority = -5 })
	lazy := insertJob(t, s, func(j *core.Job) { j.Priority = 10; j.RunAt = testNow.Add(-48 * time.Hour) })

	got := available(t, s, "w1", "host-a")
	assert.Equal(t, []string{urgent.ID, early.ID, late.ID, lazy.ID}, ids(got))
}

func TestFindAvailable_LimitsCandidates(t *testing.T) {
	s := newTestStorage(t)
	for range 8 {
		insertJob(t, s, nil)
	}

	assert.Len(t, available(t, s, "w1", ""), 5)
}

func TestFindAvailable_ExcludesFutureAndFailedJobs(t *testing.T) {
	s := newTestStorage(t)

	ready := insertJob(t, s, nil)
	insertJob(t, s, func(j *core.Job) { j.RunAt = testNow.Add(time.Second) })
	insertJob(t, s, func(j *core.Job) { j.FailedAt = timePtr(testNow.Add(-time.Hour)) })

	assert.Equal(t, []string{ready.ID}, ids(available(t, s, "w1", "")))
}

func TestFindAvailable_LockState(t *testing.T) {
	s := newTestStorage(t)

	free := insertJob(t, s, nil)
	insertJob(t, s, func(j *core.Job) { j.Lock("w2", testNow.Add(-time.Minute)) })
	stale := insertJob(t, s, func(j *core.Job) { j.Lock("w2", testNow.Add(-maxRunTime-time.Second)) })
	mine := insertJob(t, s, func(j *core.Job) { j.Lock("w1", testNow.Add(-time.Minute)) })

	got := available(t, s, "w1", "")
	assert.ElementsMatch(t, []string{free.ID, stale.ID, mine.ID}, ids(got))
}

func TestFindAvailable_ServerAffinity(t *testing.T) {
	s := newTestStorage(t)

	anywhere := insertJob(t, s, nil)
	blank := insertJob(t, s, func(j *core.Job) { j.Server = strPtr("") })
	here := insertJob(t, s, func(j *core.Job) { j.Server = strPtr("host-a") })
	insertJob(t, s, func(j *core.Job) { j.Server = strPtr("host-b") })

	got := available(t, s, "w1", "host-a")
	assert.ElementsMatch(t, []string{anywhere.ID, blank.ID, here.ID}, ids(got))
}

func TestFindAvailable_PriorityWindow(t *testing.T) {
	s := newTestStorage(t)

	insertJob(t, s, func(j *core.Job) { j.Priority = -1 })
	mid := insertJob(t, s, func(j *core.Job) { j.Priority = 2 })
	insertJob(t, s, func(j *core.Job) { j.Priority = 9 })

	minP, maxP := 0, 5
	got, err := s.FindAvailable(context.Background(), core.AvailableQuery{
		WorkerName:  "w1",
		Now:         testNow,
		MaxRunTime:  maxRunTime,
		MinPriority: &minP,
		MaxPriority: &maxP,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{mid.ID}, ids(got))
}

// ──────────────────────────────────────────────────────────────────────────────
// LockExclusively
// ──────────────────────────────────────────────────────────────────────────────

func TestLockExclusively_SetsLockFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := insertJob(t, s, nil)

	ok, err := s.LockExclusively(ctx, job, "w1", testNow, maxRunTime)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, job.LockedByWorker("w1"))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, got.Locked())
	assert.Equal(t, "w1", *got.LockedBy)
	assert.True(t, testNow.Equal(*got.LockedAt))
}

func TestLockExclusively_OnlyOneWorkerWinsSameCandidate(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	insertJob(t, s, nil)

	// Both workers read the same unlocked snapshot before either writes.
	seenByA := available(t, s, "a", "")
	seenByB := available(t, s, "b", "")
	require.Len(t, seenByA, 1)
	require.Len(t, seenByB, 1)

	okA, err := s.LockExclusively(ctx, seenByA[0], "a", testNow, maxRunTime)
	require.NoError(t, err)
	okB, err := s.LockExclusively(ctx, seenByB[0], "b", testNow, maxRunTime)
	require.NoError(t, err)

	assert.True(t, okA)
	assert.False(t, okB, "second conditional write must observe the first lock")
	assert.False(t, seenByB[0].Locked(), "losing candidate is left untouched")
}

func TestLockExclusively_ConcurrentWorkers(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := insertJob(t, s, nil)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for i := range workers {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			candidate := *job
			ok, err := s.LockExclusively(ctx, &candidate, name, testNow, maxRunTime)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins = append(wins, name)
				mu.Unlock()
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	require.Len(t, wins, 1)
	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, wins[0], *got.LockedBy)
}

func TestLockExclusively_StaleLockIsTakenOver(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := insertJob(t, s, func(j *core.Job) { j.Lock("crashed", testNow.Add(-maxRunTime-time.Minute)) })

	ok, err := s.LockExclusively(ctx, job, "rescuer", testNow, maxRunTime)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "rescuer", *got.LockedBy)
}

func TestLockExclusively_FreshForeignLockIsRespected(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := insertJob(t, s, func(j *core.Job) { j.Lock("busy", testNow.Add(-time.Minute)) })

	ok, err := s.LockExclusively(ctx, job, "other", testNow, maxRunTime)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLockExclusively_OwnLockIsReacquired(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := insertJob(t, s, func(j *core.Job) { j.Lock("w1", testNow.Add(-time.Minute)) })

	ok, err := s.LockExclusively(ctx, job, "w1", testNow, maxRunTime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, testNow.Equal(*job.LockedAt))
}

func TestLockExclusively_RechecksEligibility(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	future := insertJob(t, s, func(j *core.Job) { j.RunAt = testNow.Add(time.Hour) })
	failed := insertJob(t, s, func(j *core.Job) { j.FailedAt = timePtr(testNow) })

	for _, job := range []*core.Job{future, failed} {
		ok, err := s.LockExclusively(ctx, job, "w1", testNow, maxRunTime)
		require.NoError(t, err)
		assert.False(t, ok, job.ID)
	}
}

func TestClearLocks_ReleasesOnlyOwnLocks(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	mine := insertJob(t, s, func(j *core.Job) { j.Lock("w1", testNow) })
	theirs := insertJob(t, s, func(j *core.Job) { j.Lock("w2", testNow) })

	n, err := s.ClearLocks(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetJob(ctx, mine.ID)
	require.NoError(t, err)
	assert.False(t, got.Locked())
	assert.Nil(t, got.LockedAt)

	got, err = s.GetJob(ctx, theirs.ID)
	require.NoError(t, err)
	assert.True(t, got.LockedByWorker("w2"))
}

// ──────────────────────────────────────────────────────────────────────────────
// Delete / Save
// ──────────────────────────────────────────────────────────────────────────────

func TestDelete_RequiresOwnership(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := insertJob(t, s, func(j *core.Job) { j.Lock("w1", testNow) })

	assert.ErrorIs(t, s.Delete(ctx, job, "w2"), core.ErrJobNotOwned)
	require.NoError(t, s.Delete(ctx, job, "w1"))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSave_PersistsRescheduleAndReleasesLock(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := insertJob(t, s, func(j *core.Job) { j.Lock("w1", testNow) })

	job.Attempts = 3
	job.LastError = strPtr("boom")
	job.RunAt = testNow.Add(21 * time.Second)
	job.Unlock()
	require.NoError(t, s.Save(ctx, job, "w1"))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "boom", *got.LastError)
	assert.True(t, testNow.Add(21*time.Second).Equal(got.RunAt))
	assert.False(t, got.Locked())
	assert.Nil(t, got.FailedAt)
}

func TestSave_RequiresOwnership(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := insertJob(t, s, func(j *core.Job) { j.Lock("w2", testNow) })

	job.Attempts = 1
	assert.ErrorIs(t, s.Save(ctx, job, "w1"), core.ErrJobNotOwned)
}

// ──────────────────────────────────────────────────────────────────────────────
// GetJob / FailedJobs / Stats / Retry
// ──────────────────────────────────────────────────────────────────────────────

func TestGetJob_NotFound(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.GetJob(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestFailedJobs_NewestFirst(t *testing.T) {
	s := newTestStorage(t)

	older := insertJob(t, s, func(j *core.Job) { j.FailedAt = timePtr(testNow.Add(-time.Hour)) })
	newer := insertJob(t, s, func(j *core.Job) { j.FailedAt = timePtr(testNow) })
	insertJob(t, s, nil)

	got, err := s.FailedJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID, older.ID}, ids(got))

	got, err = s.FailedJobs(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStats_CountsByState(t *testing.T) {
	s := newTestStorage(t)

	insertJob(t, s, nil)
	insertJob(t, s, nil)
	insertJob(t, s, func(j *core.Job) { j.Lock("w1", testNow) })
	insertJob(t, s, func(j *core.Job) { j.FailedAt = timePtr(testNow) })

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Stats{Pending: 2, Locked: 1, Failed: 1}, stats)
}

func TestRetry_ResetsFailedJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := insertJob(t, s, func(j *core.Job) {
		j.Attempts = 25
		j.LastError = strPtr("gave up")
		j.FailedAt = timePtr(testNow.Add(-time.Hour))
		j.RunAt = testNow.Add(-2 * time.Hour)
	})

	require.NoError(t, s.Retry(ctx, job.ID))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Attempts)
	assert.Nil(t, got.LastError)
	assert.Nil(t, got.FailedAt)
	assert.True(t, testNow.Equal(got.RunAt))
	assert.Equal(t, []string{job.ID}, ids(available(t, s, "w1", "")))
}

func TestRetry_Errors(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	pending := insertJob(t, s, nil)

	assert.ErrorIs(t, s.Retry(ctx, "missing"), core.ErrJobNotFound)
	assert.ErrorIs(t, s.Retry(ctx, pending.ID), core.ErrJobNotFailed)
}
