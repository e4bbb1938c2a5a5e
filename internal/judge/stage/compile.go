package stage

import (
	"context"

	"treadmill/internal/judge/path"
	"treadmill/internal/judge/task"
	"treadmill/pkg/errors"
)

// CompileStage builds the submission and, when present, the grader. A
// grader in the submission's language shares its builder container;
// image load dominates container start.
type CompileStage struct {
	tc *task.Context
}

func NewCompileStage(tc *task.Context) *CompileStage {
	return &CompileStage{tc: tc}
}

func (s *CompileStage) Name() string { return "compile" }

func (s *CompileStage) Run(ctx context.Context) error {
	tc := s.tc
	graderBuilt := false

	if tc.SubmLang.NeedsCompile() {
		err := tc.Runner.Scope(ctx, func(ctx context.Context) error {
			builder := NewBuilderEnviron(tc, *tc.SubmLang)
			if err := tc.Runner.Enter(ctx, builder); err != nil {
				return err
			}

			src := path.SubmissionSource(tc.SubmLang.SrcName, tc.Submission.SrcFile)
			bin := path.SubmissionBinary(tc.SubmLang.BinName)
			res, err := builder.Compile(ctx, src, bin)
			if err != nil {
				return err
			}
			if res.ExitCode != 0 {
				return errors.Newf(errors.SubmissionCompileError, "%s", res.Output)
			}

			if tc.HasGrader() && tc.GraderLang.Name == tc.SubmLang.Name {
				if err := s.compileGrader(ctx, builder); err != nil {
					return err
				}
				graderBuilt = true
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if tc.HasGrader() && !graderBuilt && tc.GraderLang.NeedsCompile() {
		return tc.Runner.Scope(ctx, func(ctx context.Context) error {
			builder := NewBuilderEnviron(tc, *tc.GraderLang)
			if err := tc.Runner.Enter(ctx, builder); err != nil {
				return err
			}
			return s.compileGrader(ctx, builder)
		})
	}
	return nil
}

func (s *CompileStage) compileGrader(ctx context.Context, builder *BuilderEnviron) error {
	src := path.GraderSource(s.tc.GraderLang.SrcName, s.tc.Spec.Grader.SrcFile)
	bin := path.GraderBinary(s.tc.GraderLang.BinName)
	res, err := builder.Compile(ctx, src, bin)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return errors.Newf(errors.GraderCompileError, "%s", res.Output)
	}
	return nil
}
