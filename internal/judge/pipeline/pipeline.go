// Package pipeline assembles the judge stages into the flows the
// worker runs: the judge pipeline grading one request end to end, and
// the retry pipeline putting a parked request back in line.
package pipeline

import (
	"context"

	"treadmill/internal/judge/model"
	"treadmill/internal/judge/ops"
	"treadmill/internal/judge/stage"
	"treadmill/internal/judge/task"
	"treadmill/internal/judge/workspace"
	"treadmill/pkg/errors"
	"treadmill/pkg/utils/logger"
)

// JudgePipeline grades one request: fetch, stage the workspace,
// compile, judge, report. Every failure maps to a final status here
// except transient API errors, which leave without one so the broker
// redelivers the request.
type JudgePipeline struct {
	tc *task.Context
}

func NewJudgePipeline(tc *task.Context) *JudgePipeline {
	return &JudgePipeline{tc: tc}
}

func (p *JudgePipeline) Name() string { return "judge-pipeline" }

func (p *JudgePipeline) Run(ctx context.Context) error {
	err := p.judge(ctx)
	if err == nil {
		return nil
	}
	tc := p.tc

	switch {
	case errors.Is(err, errors.SubmissionCompileError):
		return ops.UpdateJudgeResult(ctx, tc, ops.Result{
			Status: model.StatusCompileError,
			Error:  err.Error(),
		})

	case errors.IsRetryable(err):
		logger.Errorf(ctx, "request %d: judge api unavailable: %v", tc.Request.ID, err)
		return err

	default:
		logger.Errorf(ctx, "request %d failed in %v: %v", tc.Request.ID, tc.Runner.TaskStack(), err)
		tc.Telemetry.CaptureException(err, tc.Runner.TaskStack())
		if uerr := ops.UpdateJudgeResult(ctx, tc, ops.Result{
			Status: model.StatusInternalError,
			Error:  err.Error(),
		}); uerr != nil {
			logger.Errorf(ctx, "request %d: report internal error: %v", tc.Request.ID, uerr)
		}
		return ops.RetryLater(ctx, tc)
	}
}

func (p *JudgePipeline) judge(ctx context.Context) error {
	tc := p.tc
	if err := ops.FetchSubmission(ctx, tc); err != nil {
		return err
	}
	if err := ops.UpdateJudgeResult(ctx, tc, ops.Result{Status: model.StatusInProgress}); err != nil {
		return err
	}

	return tc.Runner.Scope(ctx, func(ctx context.Context) error {
		if err := tc.Runner.Enter(ctx, workspace.NewEnviron(tc)); err != nil {
			return err
		}
		if err := tc.Runner.Run(ctx, stage.NewCompileStage(tc)); err != nil {
			return err
		}
		if err := tc.Runner.Run(ctx, NewJudgeStage(tc)); err != nil {
			return err
		}

		status := model.StatusFailed
		if tc.TotalScore == tc.Spec.TotalScore {
			status = model.StatusPassed
		}
		return ops.UpdateJudgeResult(ctx, tc, ops.Result{Status: status})
	})
}

// RetryPipeline reports a parked request as enqueued again and pushes
// it back onto the normal queue.
type RetryPipeline struct {
	tc *task.Context
}

func NewRetryPipeline(tc *task.Context) *RetryPipeline {
	return &RetryPipeline{tc: tc}
}

func (p *RetryPipeline) Name() string { return "retry-pipeline" }

func (p *RetryPipeline) Run(ctx context.Context) error {
	err := p.requeue(ctx)
	if err == nil || errors.IsRetryable(err) {
		return err
	}

	tc := p.tc
	logger.Errorf(ctx, "request %d: requeue failed: %v", tc.Request.ID, err)
	tc.Telemetry.CaptureException(err, tc.Runner.TaskStack())
	if uerr := ops.UpdateJudgeResult(ctx, tc, ops.Result{
		Status: model.StatusInternalError,
		Error:  err.Error(),
	}); uerr != nil {
		logger.Errorf(ctx, "request %d: report internal error: %v", tc.Request.ID, uerr)
	}
	return err
}

func (p *RetryPipeline) requeue(ctx context.Context) error {
	if err := ops.UpdateJudgeResult(ctx, p.tc, ops.Result{Status: model.StatusEnqueued}); err != nil {
		return err
	}
	return ops.Enqueue(ctx, p.tc)
}
