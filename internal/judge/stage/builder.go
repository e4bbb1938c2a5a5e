// Package stage implements the judge pipeline's working stages:
// builder and sandbox containers as environs, the compile stage, and
// the per-case execution entry points the judge loop drives.
package stage

import (
	"context"

	"treadmill/internal/judge/container"
	"treadmill/internal/judge/model"
	"treadmill/internal/judge/ops"
	"treadmill/internal/judge/path"
	"treadmill/internal/judge/task"
	"treadmill/pkg/errors"
)

// BuilderEnviron is a non-privileged toolchain container compiling
// staged sources
type BuilderEnviron struct {
	tc   *task.Context
	lang model.Language
	id   string
}

func NewBuilderEnviron(tc *task.Context, lang model.Language) *BuilderEnviron {
	return &BuilderEnviron{tc: tc, lang: lang}
}

func (b *BuilderEnviron) Name() string { return "builder:" + b.lang.Name }

func (b *BuilderEnviron) Setup(ctx context.Context) error {
	if b.lang.BuilderTag == "" {
		return errors.Newf(errors.UnsupportedLanguage, "no builder image for %s", b.lang.Name)
	}
	id, err := ops.RunDockerContainer(ctx, b.tc, b.lang.BuilderTag, false)
	if err != nil {
		return err
	}
	b.id = id
	return nil
}

func (b *BuilderEnviron) Teardown(ctx context.Context) error {
	if b.id == "" {
		return nil
	}
	return ops.KillDockerContainer(ctx, b.tc, b.id)
}

// Compile runs the language's compile command over container views. A
// non-zero exit comes back in the result; mapping it to a verdict is
// the caller's business.
func (b *BuilderEnviron) Compile(ctx context.Context, src, bin path.AFP) (container.ExecResult, error) {
	if err := ops.CheckFileExists(ctx, b.tc, src); err != nil {
		return container.ExecResult{}, err
	}
	argv, err := b.lang.CompileArgv(src.Container(), bin.Container())
	if err != nil {
		return container.ExecResult{}, err
	}
	return ops.ExecInDockerContainer(ctx, b.tc, b.id, argv)
}
