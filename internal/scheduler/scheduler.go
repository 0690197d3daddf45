package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	"github.com/smallbiznis/storefront/internal/inventory/feed"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	"github.com/smallbiznis/storefront/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const jobPrefixStockSync = "stock_sync_"

// StockSyncer runs one supplier feed end to end.
type StockSyncer interface {
	Suppliers() []config.SupplierConfig
	Sync(ctx context.Context, supplierKey string) (inventorydomain.SyncStats, error)
}

type Params struct {
	fx.In

	Log    *zap.Logger
	GenID  *snowflake.Node
	Syncer *feed.Syncer
	Locker *ratelimit.Locker `optional:"true"`
	Clock  clock.Clock       `optional:"true"`
	Config Config            `optional:"true"`
}

type Scheduler struct {
	log    *zap.Logger
	cfg    Config
	genID  *snowflake.Node
	clock  clock.Clock
	syncer StockSyncer
	locker *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Syncer == nil {
		return nil, ErrInvalidConfig
	}
	return newScheduler(p.Log, p.GenID, p.Syncer, p.Locker, p.Clock, p.Config)
}

func newScheduler(log *zap.Logger, genID *snowflake.Node, syncer StockSyncer, locker *ratelimit.Locker, clk clock.Clock, cfg Config) (*Scheduler, error) {
	if log == nil || genID == nil || syncer == nil {
		return nil, ErrInvalidConfig
	}
	if clk == nil {
		clk = clock.New()
	}
	if !locker.Enabled() {
		log.Warn("scheduler running without a distributed lock, run a single replica")
	}
	return &Scheduler{
		log:    log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:    cfg.withDefaults(),
		genID:  genID,
		clock:  clk,
		syncer: syncer,
		locker: locker,
	}, nil
}

// StockSyncJobName is the job and lock name for a supplier, e.g. stock_sync_bam.
func StockSyncJobName(supplierKey string) string {
	return jobPrefixStockSync + strings.ToLower(strings.TrimSpace(supplierKey))
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx)
	log := s.logger(ctx)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil {
		run.markFailed()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled supplier sync. Failures of one supplier do not stop the others.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	for _, supplier := range s.syncer.Suppliers() {
		if !supplier.Enabled {
			continue
		}
		name := StockSyncJobName(supplier.Key)
		if !s.isJobEnabled(name) {
			continue
		}
		key := supplier.Key
		err = errors.Join(err, s.withJobLock(parent, name, func(ctx context.Context) error {
			return s.runJob(ctx, name, s.cfg.JobTimeout, func(ctx context.Context) error {
				return s.StockSyncJob(ctx, key)
			})
		}))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// StockSyncJob downloads and applies one supplier feed.
func (s *Scheduler) StockSyncJob(ctx context.Context, supplierKey string) error {
	name := StockSyncJobName(supplierKey)

	stats, err := s.syncer.Sync(ctx, supplierKey)
	if err != nil {
		s.logSchedulerError(ctx, "scheduler.stock_sync.failed", err, zap.String("supplier", supplierKey))
		return err
	}

	jobRunFromContext(ctx).recordStats(stats)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddBatchProcessed(name, "stock_item_updated", stats.Updated)
	schedMetrics.AddBatchProcessed(name, "stock_item_unchanged", stats.Unchanged)
	schedMetrics.AddBatchProcessed(name, "barcode_unmatched", stats.Unmatched)
	return nil
}

// withJobLock runs fn only when this replica holds the job lock. Without a
// locker every replica runs the job.
func (s *Scheduler) withJobLock(ctx context.Context, job string, fn func(context.Context) error) error {
	if !s.locker.Enabled() {
		return fn(ctx)
	}

	key := "scheduler:lock:" + job
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("%s: acquire lock: %w", job, err)
	}
	if !ok {
		obsmetrics.Scheduler().IncBatchDeferred(job, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.log.Info("scheduler.job.skipped", zap.String("job", job), zap.String("reason", "lock_held"))
		return nil
	}
	defer func() {
		// Release with a fresh context so a cancelled run still frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", job), zap.Error(err))
		}
	}()

	return fn(ctx)
}
