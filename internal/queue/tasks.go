package queue

import (
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
)

const (
	TypeWaitlistFanout       = "waitlist:fanout"
	TypeWaitlistRestockEmail = "waitlist:restock_email"

	QueueWaitlist = "waitlist"
	QueueMailers  = "mailers"
)

type FanoutPayload struct {
	VariantID snowflake.ID `json:"variant_id"`
}

type RestockEmailPayload struct {
	EntryID snowflake.ID `json:"entry_id"`
}

// FanoutTaskID keys the fan-out task by variant so concurrent restocks collapse into one task.
func FanoutTaskID(variantID snowflake.ID) string {
	return fmt.Sprintf("%s:%s", TypeWaitlistFanout, variantID.String())
}

// FanoutFollowUpTaskID keys the fan-out queued behind one that is already running.
func FanoutFollowUpTaskID(variantID snowflake.ID) string {
	return FanoutTaskID(variantID) + ":next"
}

func RestockEmailTaskID(entryID snowflake.ID) string {
	return fmt.Sprintf("%s:%s", TypeWaitlistRestockEmail, entryID.String())
}

func NewFanoutTask(variantID snowflake.ID, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(FanoutPayload{VariantID: variantID})
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{
		asynq.TaskID(FanoutTaskID(variantID)),
		asynq.Queue(QueueWaitlist),
	}, opts...)
	return asynq.NewTask(TypeWaitlistFanout, payload, opts...), nil
}

func NewRestockEmailTask(entryID snowflake.ID, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(RestockEmailPayload{EntryID: entryID})
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{
		asynq.TaskID(RestockEmailTaskID(entryID)),
		asynq.Queue(QueueMailers),
	}, opts...)
	return asynq.NewTask(TypeWaitlistRestockEmail, payload, opts...), nil
}
