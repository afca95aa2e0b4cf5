package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const queueName = "default"

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type taskDeleter interface {
	DeleteTask(queue, id string) error
}

// Client schedules bulk posts on the asynq queue. The bulk post's task id
// doubles as the asynq task id so a pending task can be deleted on cancel.
type Client struct {
	client    enqueuer
	inspector taskDeleter
}

func NewClient(client *asynq.Client, inspector *asynq.Inspector) *Client {
	return &Client{client: client, inspector: inspector}
}

func (c *Client) EnqueueBulkPost(ctx context.Context, postID int64, taskID string, at time.Time) error {
	payload, err := json.Marshal(BulkPostPayload{PostID: postID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishBulkPost, payload)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.Queue(queueName),
		asynq.ProcessAt(at),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Info("task already scheduled", "post_id", postID, "task_id", taskID)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("task scheduled", "post_id", postID, "task_id", taskID, "process_at", at)
	return nil
}

// CancelBulkPost removes a task that has not started yet. A task that is
// already gone is not an error.
func (c *Client) CancelBulkPost(ctx context.Context, taskID string) error {
	err := c.inspector.DeleteTask(queueName, taskID)
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}
