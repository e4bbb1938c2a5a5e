package ops

import (
	"context"

	"treadmill/internal/judge/model"
	"treadmill/internal/judge/task"
	"treadmill/pkg/utils/logger"
)

// FetchSubmission loads the submission named by the judge request into
// the context: the submission itself, its normalized judge spec, and
// the resolved language profiles. Telemetry is tagged with the request
// identity so later captures carry it.
func FetchSubmission(ctx context.Context, tc *task.Context) error {
	logger.Debugf(ctx, "op: fetch submission %d of problem %d",
		tc.Request.SubmissionID, tc.Request.ProblemID)

	subm, err := tc.API.GetSubmission(ctx, tc.Request.ProblemID, tc.Request.SubmissionID)
	if err != nil {
		return err
	}

	spec := &subm.Problem.JudgeSpec
	spec.Normalize()

	lang, err := model.LanguageByTag(subm.Lang)
	if err != nil {
		return err
	}

	tc.Submission = subm
	tc.Spec = spec
	tc.SubmLang = &lang
	if spec.Grader != nil {
		glang, err := model.LanguageByTag(spec.Grader.Lang)
		if err != nil {
			return err
		}
		tc.GraderLang = &glang
	}

	tc.Telemetry.SetUser(tc.Request.ID, subm.ID, subm.Problem.ID)
	return nil
}

// Result selects and fills one judge result patch. TestSetID and
// TestCaseID pick the target: both zero patches the overall judgement,
// set only patches that testset, both patch one testcase. The judge
// API numbers sets and cases from 1.
type Result struct {
	TestSetID  int64
	TestCaseID int64

	Status     model.JudgeStatus
	SetStatus  model.TestSetStatus
	CaseStatus model.TestCaseStatus

	Score  int
	MaxRSS int64
	Time   float64
	Error  string
}

// UpdateJudgeResult patches one judge result and keeps the context
// counters current: a passed case adds its cpu time and raises the
// memory peak, a testset adds its score, and the overall patch reports
// the accumulated totals.
func UpdateJudgeResult(ctx context.Context, tc *task.Context, r Result) error {
	switch {
	case r.TestCaseID != 0:
		if r.CaseStatus == model.CasePassed {
			tc.TotalTime += r.Time
			if r.MaxRSS > tc.MaxMemory {
				tc.MaxMemory = r.MaxRSS
			}
		}
		logger.Debugf(ctx, "op: patch case %d/%d: %s", r.TestSetID, r.TestCaseID, r.CaseStatus)
		return tc.API.SetTestCaseResult(ctx, tc.Request.ID, r.TestSetID, r.TestCaseID, model.TestCaseResult{
			Status:             r.CaseStatus,
			MemoryUsedBytes:    r.MaxRSS,
			TimeElapsedSeconds: r.Time,
			Error:              r.Error,
		})

	case r.TestSetID != 0:
		tc.TotalScore += r.Score
		logger.Debugf(ctx, "op: patch set %d: %s score=%d", r.TestSetID, r.SetStatus, r.Score)
		return tc.API.SetTestSetResult(ctx, tc.Request.ID, r.TestSetID, model.TestSetResult{
			Score:  r.Score,
			Status: r.SetStatus,
		})

	default:
		logger.Debugf(ctx, "op: patch judgement: %s", r.Status)
		return tc.API.SetJudgeResult(ctx, tc.Request.ID, model.JudgeResult{
			Status:             r.Status,
			TotalScore:         tc.TotalScore,
			MemoryUsedBytes:    tc.MaxMemory,
			TimeElapsedSeconds: tc.TotalTime,
			Error:              r.Error,
		})
	}
}
