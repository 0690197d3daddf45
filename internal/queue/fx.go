package queue

import (
	waitlistdomain "github.com/smallbiznis/storefront/internal/waitlist/domain"
	"go.uber.org/fx"
)

// Module provides the task client to any process that enqueues waitlist work.
var Module = fx.Module("queue.client",
	fx.Provide(NewClient),
	fx.Provide(
		func(c *Client) waitlistdomain.Notifier { return c },
		func(c *Client) waitlistdomain.FanoutEnqueuer { return c },
	),
)

// WorkerModule runs the asynq server that processes waitlist tasks.
var WorkerModule = fx.Module("queue.worker",
	fx.Provide(NewHandlers),
	fx.Provide(NewServer),
	fx.Invoke(RunWorker),
)
