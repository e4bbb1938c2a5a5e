package ops

import (
	"context"

	"treadmill/internal/common/queue"
	"treadmill/internal/judge/task"
	"treadmill/pkg/utils/logger"
)

// RetryLater parks the current request on the retry queue. The retry
// pipeline re-enqueues it for a fresh judge run.
func RetryLater(ctx context.Context, tc *task.Context) error {
	logger.Debugf(ctx, "op: retry request %d later", tc.Request.ID)
	return tc.Queue.Publish(ctx, tc.Config.Queue.Retry, queue.PriorityNormal, tc.Request)
}

// Enqueue puts the current request back on the normal judge queue
func Enqueue(ctx context.Context, tc *task.Context) error {
	logger.Debugf(ctx, "op: enqueue request %d", tc.Request.ID)
	return tc.Queue.Publish(ctx, tc.Config.Queue.Normal, queue.PriorityNormal, tc.Request)
}
