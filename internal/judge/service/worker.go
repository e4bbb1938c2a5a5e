// Package service runs the judge worker: a goroutine pool draining the
// judge queues into pipelines, and a small debug HTTP server.
package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"treadmill/internal/common/queue"
	"treadmill/internal/judge/apiclient"
	"treadmill/internal/judge/config"
	"treadmill/internal/judge/container"
	"treadmill/internal/judge/datapack"
	"treadmill/internal/judge/model"
	"treadmill/internal/judge/pipeline"
	"treadmill/internal/judge/task"
	"treadmill/pkg/errors"
	"treadmill/pkg/utils/logger"
	"treadmill/pkg/utils/telemetry"
)

// Deps bundles the shared drivers a judge run borrows. All of them must
// be safe for concurrent use; each request still gets its own Context,
// Runner and telemetry hub.
type Deps struct {
	Config     *config.Config
	Broker     queue.Broker
	API        apiclient.Gateway
	Containers container.Client
	DataPacks  datapack.Provider
}

// Worker drains judge queues with a pool of goroutines. Queues are
// polled in the order given, so earlier queues take strict priority.
type Worker struct {
	deps   Deps
	queues []string
	build  func(tc *task.Context) task.Task
}

// NewWorker creates a pool draining the given queues. Every delivered
// message becomes one task built by build.
func NewWorker(deps Deps, queues []string, build func(tc *task.Context) task.Task) *Worker {
	return &Worker{deps: deps, queues: queues, build: build}
}

// NewJudgeWorker drains new submissions and rejudge backfill
func NewJudgeWorker(deps Deps) *Worker {
	return NewWorker(deps,
		[]string{deps.Config.Queue.Normal, deps.Config.Queue.Rejudge},
		func(tc *task.Context) task.Task { return pipeline.NewJudgePipeline(tc) })
}

// NewRetryWorker puts parked requests back in line
func NewRetryWorker(deps Deps) *Worker {
	return NewWorker(deps,
		[]string{deps.Config.Queue.Retry},
		func(tc *task.Context) task.Task { return pipeline.NewRetryPipeline(tc) })
}

// Run polls until ctx is canceled, then waits for in-flight requests to
// finish. Their container and workspace teardown is detached from ctx,
// so a drain still releases resources.
func (w *Worker) Run(ctx context.Context) {
	n := w.deps.Config.Queue.Concurrency
	if n <= 0 {
		n = 1
	}
	logger.Info(ctx, "worker pool started",
		zap.Strings("queues", w.queues), zap.Int("concurrency", n))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	logger.Info(ctx, "worker pool drained", zap.Strings("queues", w.queues))
}

func (w *Worker) loop(ctx context.Context) {
	interval := w.deps.Config.Queue.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if w.drainOne(ctx) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// drainOne pops and handles at most one message, reporting whether it
// got one
func (w *Worker) drainOne(ctx context.Context) bool {
	for _, q := range w.queues {
		msg, err := w.deps.Broker.Pop(ctx, q)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn(ctx, "queue pop failed", zap.String("queue", q), zap.Error(err))
			}
			return false
		}
		if msg == nil {
			continue
		}
		w.handle(ctx, q, msg)
		return true
	}
	return false
}

// handle runs one delivered message through its pipeline
func (w *Worker) handle(ctx context.Context, q string, msg *queue.Message) {
	var req model.JudgeRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		// an undecodable message can never succeed, drop it
		logger.Error(ctx, "drop undecodable message",
			zap.String("queue", q), zap.String("message_id", msg.MessageID), zap.Error(err))
		return
	}

	if timeout := w.deps.Config.Queue.JobTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tc := task.NewContext(w.deps.Config, &req)
	tc.API = w.deps.API
	tc.Containers = w.deps.Containers
	tc.Queue = w.deps.Broker
	tc.DataPacks = w.deps.DataPacks
	tc.Telemetry = telemetry.NewHub()
	tc.Telemetry.SetUser(req.ID, req.SubmissionID, req.ProblemID)

	logger.Info(ctx, "request picked up", zap.String("queue", q),
		zap.Int64("request_id", req.ID), zap.Int("retry_count", msg.RetryCount))

	err := tc.Runner.Run(ctx, w.build(tc))
	switch {
	case err == nil:
		logger.Info(ctx, "request done", zap.Int64("request_id", req.ID))

	case errors.IsRetryable(err):
		// the judge API is down; hand the message back to the broker
		requeued, nerr := w.deps.Broker.Nack(ctx, q, w.priority(q), msg)
		switch {
		case nerr != nil:
			logger.Error(ctx, "nack failed", zap.Int64("request_id", req.ID), zap.Error(nerr))
		case !requeued:
			logger.Error(ctx, "retry budget exhausted, dropping request",
				zap.Int64("request_id", req.ID), zap.Int("retry_count", msg.RetryCount))
		default:
			logger.Warn(ctx, "request redelivered",
				zap.Int64("request_id", req.ID), zap.Error(err))
		}

	default:
		// the pipeline already routed the failure, nothing left to do
		logger.Error(ctx, "request failed", zap.Int64("request_id", req.ID), zap.Error(err))
	}
}

// priority returns the band a message popped from q re-enters with
func (w *Worker) priority(q string) int {
	if q == w.deps.Config.Queue.Rejudge {
		return queue.PriorityRejudge
	}
	return queue.PriorityNormal
}
