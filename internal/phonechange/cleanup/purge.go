// Package cleanup deletes finished and expired phone-change rows on a cron schedule.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const runTimeout = time.Minute

// Purger deletes pending changes that finished or expired before cutoff.
type Purger interface {
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Job is a cron.Job that purges rows older than the retention window.
type Job struct {
	repo      Purger
	retention time.Duration
	logger    *zap.Logger
	nowF      func() time.Time
}

// NewJob returns a purge job keeping rows for retention after they finish or expire.
func NewJob(repo Purger, retention time.Duration, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		repo:      repo,
		retention: retention,
		logger:    logger,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Run implements cron.Job.
func (j *Job) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("cleanup: purge failed", zap.Error(err))
	}
}

// RunOnce performs a single purge and returns the number of deleted rows.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.nowF().Add(-j.retention)
	n, err := j.repo.PurgeStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge stale phone changes: %w", err)
	}
	j.logger.Info("cleanup: purged stale phone changes", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// NewScheduler returns a stopped cron scheduler running job on spec (standard 5-field or @every descriptors).
// Overlapping runs are skipped and panics are recovered.
func NewScheduler(spec string, job *Job, logger *zap.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{s: logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, fmt.Errorf("schedule purge %q: %w", spec, err)
	}
	return c, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
