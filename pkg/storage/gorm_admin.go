package storage

import (
	"context"

	"github.com/jdziat/delayed/pkg/core"
)

// FailedJobs returns permanently failed jobs, most recent failure first.
func (s *GormStorage) FailedJobs(ctx context.Context, limit int) ([]*core.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []*core.Job
	err := s.db.WithContext(ctx).
		Where("failed_at IS NOT NULL").
		Order("failed_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// Stats returns job counts by lifecycle state.
func (s *GormStorage) Stats(ctx context.Context) (core.Stats, error) {
	var stats core.Stats
	counts := []struct {
		dest  *int64
		where string
	}{
		{&stats.Pending, "failed_at IS NULL AND locked_at IS NULL"},
		{&stats.Locked, "failed_at IS NULL AND locked_at IS NOT NULL"},
		{&stats.Failed, "failed_at IS NOT NULL"},
	}
	for _, c := range counts {
		err := s.db.WithContext(ctx).
			Model(&core.Job{}).
			Where(c.where).
			Count(c.dest).Error
		if err != nil {
			return core.Stats{}, err
		}
	}
	return stats, nil
}

// Retry resets a permanently failed job so workers pick it up again.
func (s *GormStorage) Retry(ctx context.Context, jobID string) error {
	now, err := s.Now(ctx)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND failed_at IS NOT NULL", jobID).
		Updates(map[string]any{
			"attempts":   0,
			"last_error": nil,
			"failed_at":  nil,
			"locked_at":  nil,
			"locked_by":  nil,
			"run_at":     now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return core.ErrJobNotFound
	}
	return core.ErrJobNotFailed
}
