// Package workspace stages one judge request's files on the host. The
// layout is what the container and sandbox views of the path package
// assume: submission and test inputs under sandbox/, expected outputs
// and grader files outside it where the submission cannot reach them.
package workspace

import (
	"context"

	"treadmill/internal/judge/ops"
	"treadmill/internal/judge/path"
	"treadmill/internal/judge/task"
)

// Environ creates the workspace tree on setup and removes it on
// teardown. Setup requires FetchSubmission to have run: it stages from
// the judge spec in the context.
type Environ struct {
	tc *task.Context
}

func NewEnviron(tc *task.Context) *Environ {
	return &Environ{tc: tc}
}

func (e *Environ) Name() string { return "workspace" }

func (e *Environ) Setup(ctx context.Context) error {
	root := e.tc.WorkspaceRoot()

	// a crashed run leaves its tree behind; start from nothing
	if err := ops.RemoveDirectory(ctx, root); err != nil {
		return err
	}
	if err := ops.MakeDirectory(ctx, root, 0o755, false); err != nil {
		return err
	}

	subm := path.SubmissionSource(e.tc.SubmLang.SrcName, e.tc.Submission.SrcFile)
	if err := e.stage(ctx, subm); err != nil {
		return err
	}

	for _, set := range e.tc.Spec.TestSets {
		for _, c := range set.Cases {
			if err := e.stage(ctx, path.TestInput(set.ID, c.InputFile)); err != nil {
				return err
			}
			if err := e.stage(ctx, path.TestOutput(set.ID, c.OutputFile)); err != nil {
				return err
			}
		}
	}

	if e.tc.HasGrader() {
		grader := path.GraderSource(e.tc.GraderLang.SrcName, e.tc.Spec.Grader.SrcFile)
		if err := e.stage(ctx, grader); err != nil {
			return err
		}
	}

	if e.tc.SubmLang.BindEtc {
		if err := ops.CreateFile(ctx, e.tc, path.EtcPasswd(), 0); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environ) Teardown(ctx context.Context) error {
	return ops.RemoveDirectory(ctx, e.tc.WorkspaceRoot())
}

// stage materializes the object behind p and places it at p's host
// view, by symlink or copy per configuration. Symlinks are fast but
// expose the shared copy to a read-write sandbox mount, so production
// copies.
func (e *Environ) stage(ctx context.Context, p path.AFP) error {
	local, err := e.tc.DataPacks.EnsureObject(ctx, p.S3FSKey())
	if err != nil {
		return err
	}
	if e.tc.Config.Workspace.StageBySymlink {
		return ops.CreateSymlink(ctx, local, e.tc.HostPath(p))
	}
	return ops.CopyFile(ctx, local, e.tc.HostPath(p))
}
