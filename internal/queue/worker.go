package queue

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/smallbiznis/storefront/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewServer(cfg config.Config, log *zap.Logger) *asynq.Server {
	concurrency := cfg.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	log = log.Named("queue.server")

	return asynq.NewServer(RedisConnOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueWaitlist: 3,
			QueueMailers:  6,
			"default":     1,
		},
		Logger: log.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retry, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Error("task failed",
				zap.String("type", task.Type()),
				zap.Int("retry", retry),
				zap.Int("max_retry", maxRetry),
				zap.Error(err),
			)
		}),
	})
}

// RunWorker starts the asynq server with the waitlist handlers for the app lifetime.
func RunWorker(lc fx.Lifecycle, srv *asynq.Server, handlers *Handlers) {
	mux := asynq.NewServeMux()
	handlers.Register(mux)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start(mux)
		},
		OnStop: func(context.Context) error {
			srv.Shutdown()
			return nil
		},
	})
}
