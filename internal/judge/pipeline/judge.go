package pipeline

import (
	"context"

	"treadmill/internal/judge/model"
	"treadmill/internal/judge/ops"
	"treadmill/internal/judge/path"
	"treadmill/internal/judge/stage"
	"treadmill/internal/judge/task"
	"treadmill/pkg/errors"
)

// JudgeStage runs the judged program against every test case and
// patches per-case and per-set results as they land.
type JudgeStage struct {
	tc *task.Context
}

func NewJudgeStage(tc *task.Context) *JudgeStage {
	return &JudgeStage{tc: tc}
}

func (s *JudgeStage) Name() string { return "judge" }

// Run opens the submission sandbox, and the grader's when the problem
// has one, then judges the test sets in declared order.
func (s *JudgeStage) Run(ctx context.Context) error {
	tc := s.tc
	return tc.Runner.Scope(ctx, func(ctx context.Context) error {
		subm := stage.NewSandboxEnviron(tc, *tc.SubmLang, true)
		if err := tc.Runner.Enter(ctx, subm); err != nil {
			return err
		}
		var grader *stage.SandboxEnviron
		if tc.HasGrader() {
			grader = stage.NewSandboxEnviron(tc, *tc.GraderLang, false)
			if err := tc.Runner.Enter(ctx, grader); err != nil {
				return err
			}
		}

		for _, set := range tc.Spec.TestSets {
			if err := s.judgeSet(ctx, subm, grader, set); err != nil {
				return err
			}
		}
		return nil
	})
}

// judgeSet judges one set's cases in order. The first non-pass outcome
// ends the set with a zero score; the cases after it are never run and
// keep their initial NOT_JUDGED state upstream. The next set still runs.
func (s *JudgeStage) judgeSet(ctx context.Context, subm, grader *stage.SandboxEnviron, set model.TestSet) error {
	passed := true
	for _, c := range set.Cases {
		ok, err := s.judgeCase(ctx, subm, grader, set.ID, c)
		if err != nil {
			return err
		}
		if !ok {
			passed = false
			break
		}
	}

	res := ops.Result{TestSetID: set.ID, SetStatus: model.SetFailed}
	if passed {
		res.Score = set.Score
		res.SetStatus = model.SetPassed
	}
	return ops.UpdateJudgeResult(ctx, s.tc, res)
}

// judgeCase runs one case and patches its verdict. A submission fault
// comes back as (false, nil); an error means the judge itself broke and
// the case was left NOT_JUDGED.
func (s *JudgeStage) judgeCase(ctx context.Context, subm, grader *stage.SandboxEnviron, setID int64, c model.TestCase) (bool, error) {
	tc := s.tc
	input := path.TestInput(setID, c.InputFile)
	expected := path.TestOutput(setID, c.OutputFile)

	meta, stdout, err := subm.ExecuteSubmission(ctx, input)
	if err != nil {
		return false, s.failCase(ctx, setID, c.ID, err)
	}

	var correct bool
	if grader != nil {
		correct, err = grader.ExecuteGrader(ctx, input, stdout, expected)
	} else {
		correct, err = ops.CompareFile(ctx, tc, stdout, expected)
	}
	if err != nil {
		return false, s.failCase(ctx, setID, c.ID, err)
	}

	if !correct {
		return false, ops.UpdateJudgeResult(ctx, tc, ops.Result{
			TestSetID:  setID,
			TestCaseID: c.ID,
			CaseStatus: model.CaseWrongAnswer,
		})
	}
	return true, ops.UpdateJudgeResult(ctx, tc, ops.Result{
		TestSetID:  setID,
		TestCaseID: c.ID,
		CaseStatus: model.CasePassed,
		MaxRSS:     meta.CgMemBytes(),
		Time:       meta.CPUTime(),
	})
}

// failCase patches one failed case. A submission fault becomes its
// verdict and judging moves on; grader and isolate faults are the
// judge's own problem, so the case stays NOT_JUDGED and the cause
// comes back up.
func (s *JudgeStage) failCase(ctx context.Context, setID, caseID int64, cause error) error {
	res := ops.Result{TestSetID: setID, TestCaseID: caseID, CaseStatus: model.CaseNotJudged}
	switch {
	case errors.Is(cause, errors.TimeLimitExceeded):
		res.CaseStatus = model.CaseTimeLimitExceeded
	case errors.Is(cause, errors.MemoryLimitExceeded):
		res.CaseStatus = model.CaseMemoryLimitExceeded
	case errors.Is(cause, errors.SubmissionRuntimeError):
		res.CaseStatus = model.CaseRuntimeError
		res.Error = cause.Error()
	}

	if err := ops.UpdateJudgeResult(ctx, s.tc, res); err != nil {
		return err
	}
	if res.CaseStatus == model.CaseNotJudged {
		return cause
	}
	return nil
}
