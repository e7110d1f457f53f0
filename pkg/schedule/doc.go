// Package schedule describes when recurring jobs are due.
//
// This package includes:
//   - Schedule interface for defining job schedules
//   - Every() for fixed-interval schedules
//   - Daily() and DailyIn() for daily schedules at a specific time
//   - Weekly() for weekly schedules on a specific day and time
//   - Cron() for cron expression-based schedules
//
// Workers enqueue a scheduled payload once per tick; see worker.WithSchedule.
package schedule
