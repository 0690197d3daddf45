package scheduler

import (
	"context"
	"time"

	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one execution of a stock sync job for the finish log line.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	stats     *inventorydomain.SyncStats
	failed    bool
}

type jobRunKey struct{}

func (r *jobRun) recordStats(stats inventorydomain.SyncStats) {
	if r == nil {
		return
	}
	r.stats = &stats
}

func (r *jobRun) markFailed() {
	if r == nil {
		return
	}
	r.failed = true
}

// errorCount is one for a failed run plus every stock item the run could not write.
func (r *jobRun) errorCount() int {
	count := 0
	if r.failed {
		count++
	}
	if r.stats != nil {
		count += r.stats.Failed
	}
	return count
}

func (s *Scheduler) startJobRun(ctx context.Context, job string) (context.Context, *jobRun) {
	if ctx == nil {
		ctx = context.Background()
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	return context.WithValue(ctx, jobRunKey{}, run), run
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

// logger tags the scheduler logger with the job and run id when ctx belongs to a run.
func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	log := obslogger.WithContext(ctx, s.log)
	if run := jobRunFromContext(ctx); run != nil {
		log = log.With(zap.String("job", run.job), zap.String("run_id", run.runID))
	}
	return log
}

func (s *Scheduler) logJobStart(ctx context.Context) {
	s.logger(ctx).Info("scheduler.job.start")
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("error_count", run.errorCount()),
	}
	if stats := run.stats; stats != nil {
		fields = append(fields,
			zap.Int("parsed", stats.Parsed),
			zap.Int("with_stock", stats.WithStock),
			zap.Int("matched", stats.Matched),
			zap.Int("updated", stats.Updated),
			zap.Int("unchanged", stats.Unchanged),
			zap.Int("unmatched", stats.Unmatched),
			zap.Int("failed", stats.Failed),
		)
	}
	log := s.logger(ctx)
	if run.errorCount() > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logSchedulerError(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	fields = append(fields,
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	)
	s.logger(ctx).Error(msg, fields...)
}
