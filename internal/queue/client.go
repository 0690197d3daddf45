package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/smallbiznis/storefront/internal/config"
	waitlistdomain "github.com/smallbiznis/storefront/internal/waitlist/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultRedisAddr = "localhost:6379"

// RedisConnOpt builds the asynq connection from the shared Redis settings.
func RedisConnOpt(cfg config.Config) asynq.RedisClientOpt {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		addr = defaultRedisAddr
	}
	return asynq.RedisClientOpt{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// Client enqueues waitlist work. It is both the fan-out enqueuer used by the
// restock observer and the notifier used by the fan-out itself.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	log       *zap.Logger
	maxRetry  int
}

func NewClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *Client {
	opt := RedisConnOpt(cfg)
	c := newClient(asynq.NewClient(opt), asynq.NewInspector(opt), log, cfg.Queue.MaxRetry)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return c.Close()
		},
	})
	return c
}

func newClient(client *asynq.Client, inspector *asynq.Inspector, log *zap.Logger, maxRetry int) *Client {
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &Client{
		client:    client,
		inspector: inspector,
		log:       log.Named("queue.client"),
		maxRetry:  maxRetry,
	}
}

// NewClientWithConnOpt is used by tools and tests that talk to a specific Redis.
func NewClientWithConnOpt(opt asynq.RedisConnOpt, log *zap.Logger, maxRetry int) *Client {
	return newClient(asynq.NewClient(opt), asynq.NewInspector(opt), log, maxRetry)
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// EnqueueFanout makes sure a fan-out for the variant will read the pending
// entries after this call. A waiting task with the variant's id already does.
// A finished or archived one is replaced. A running one may have read its
// snapshot already, so a follow-up task is queued behind it.
func (c *Client) EnqueueFanout(ctx context.Context, variantID snowflake.ID) error {
	field := zap.String("variant_id", variantID.String())
	for _, taskID := range []string{FanoutTaskID(variantID), FanoutFollowUpTaskID(variantID)} {
		task, err := NewFanoutTask(variantID, asynq.MaxRetry(c.maxRetry), asynq.TaskID(taskID))
		if err != nil {
			return err
		}
		queued, err := c.enqueueFanout(ctx, task, taskID, field)
		if err != nil {
			return err
		}
		if queued {
			return nil
		}
	}

	// Both slots are running. An anonymous task still reads a fresh snapshot.
	task, err := NewFanoutTask(variantID, asynq.MaxRetry(c.maxRetry), asynq.TaskID(FanoutFollowUpTaskID(variantID)+":"+uuid.NewString()))
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, field)
}

// enqueueFanout reports false when the id is held by a task that is running.
func (c *Client) enqueueFanout(ctx context.Context, task *asynq.Task, taskID string, field zap.Field) (bool, error) {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		info, err := c.client.EnqueueContext(ctx, task)
		if err == nil {
			c.log.Debug("task enqueued",
				zap.String("type", task.Type()),
				zap.String("task_id", info.ID),
				zap.String("queue", info.Queue),
				field,
			)
			return true, nil
		}
		if !errors.Is(err, asynq.ErrTaskIDConflict) {
			return false, err
		}

		existing, err := c.inspector.GetTaskInfo(QueueWaitlist, taskID)
		if errors.Is(err, asynq.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("inspect task %s: %w", taskID, err)
		}

		switch existing.State {
		case asynq.TaskStateActive:
			return false, nil
		case asynq.TaskStateArchived, asynq.TaskStateCompleted:
			c.log.Info("replacing finished fan-out task",
				zap.String("task_id", taskID),
				zap.String("state", existing.State.String()),
				field,
			)
			if err := c.inspector.DeleteTask(QueueWaitlist, taskID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
				return false, fmt.Errorf("delete task %s: %w", taskID, err)
			}
		default:
			// Pending, scheduled or retrying: that run has not read its snapshot yet.
			c.log.Debug("task already enqueued", zap.String("type", task.Type()), zap.String("state", existing.State.String()), field)
			return true, nil
		}
	}
	return false, fmt.Errorf("enqueue task %s: %w", taskID, asynq.ErrTaskIDConflict)
}

func (c *Client) NotifyRestock(ctx context.Context, entry waitlistdomain.Entry) error {
	task, err := NewRestockEmailTask(entry.ID, asynq.MaxRetry(c.maxRetry))
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, zap.String("entry_id", entry.ID.String()))
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, field zap.Field) error {
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		// The same entry is already queued for delivery.
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			c.log.Debug("task already enqueued", zap.String("type", task.Type()), field)
			return nil
		}
		return err
	}
	c.log.Debug("task enqueued",
		zap.String("type", task.Type()),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
		field,
	)
	return nil
}
