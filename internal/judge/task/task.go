// Package task provides the runtime judge stages execute in: a Context
// carrying one request's state and drivers, and a Runner that tracks
// the task stack and tears down entered environs when a scope closes.
package task

import (
	"context"

	"treadmill/pkg/errors"
	"treadmill/pkg/utils/logger"
)

// Task is one named unit of judge work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// TaskFunc adapts a named function to the Task interface.
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) error
}

func (t TaskFunc) Name() string { return t.TaskName }

func (t TaskFunc) Run(ctx context.Context) error { return t.Fn(ctx) }

// Environ is a resource with paired setup and teardown, such as a
// running container or a staged workspace directory.
type Environ interface {
	Name() string
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// Runner executes tasks for one judge request. It is not safe for
// concurrent use; each request gets its own Runner.
type Runner struct {
	stack  []string
	scopes []*scope
}

type scope struct {
	environs []Environ
}

// NewRunner creates an empty runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes one task with its name on the task stack. The name is
// popped only on success; after a failure the stack still names the
// task the pipeline stopped in.
func (r *Runner) Run(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.stack = append(r.stack, t.Name())
	logger.Debugf(ctx, "task %s", t.Name())
	if err := t.Run(ctx); err != nil {
		return err
	}
	r.stack = r.stack[:len(r.stack)-1]
	return nil
}

// TaskStack returns a copy of the current task stack, outermost first.
func (r *Runner) TaskStack() []string {
	out := make([]string, len(r.stack))
	copy(out, r.stack)
	return out
}

// Scope runs fn with a fresh teardown scope. Environs entered while fn
// runs are torn down in reverse order when fn returns, whether or not
// it failed. Teardown runs detached from ctx cancellation so a killed
// judge still releases its containers and workspace.
func (r *Runner) Scope(ctx context.Context, fn func(ctx context.Context) error) error {
	s := &scope{}
	r.scopes = append(r.scopes, s)
	defer func() {
		r.scopes = r.scopes[:len(r.scopes)-1]
		s.teardown(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

// Enter sets up an environ inside the innermost scope. When setup
// fails, teardown runs immediately: environs tolerate partially built
// state, and this keeps half-created containers from leaking.
func (r *Runner) Enter(ctx context.Context, env Environ) error {
	if len(r.scopes) == 0 {
		return errors.PreconditionError("no active scope for environ %s", env.Name())
	}
	s := r.scopes[len(r.scopes)-1]

	logger.Debugf(ctx, "environ %s setup", env.Name())
	if err := env.Setup(ctx); err != nil {
		if terr := env.Teardown(context.WithoutCancel(ctx)); terr != nil {
			logger.Errorf(ctx, "environ %s teardown after failed setup: %v", env.Name(), terr)
		}
		return err
	}
	s.environs = append(s.environs, env)
	return nil
}

func (s *scope) teardown(ctx context.Context) {
	for i := len(s.environs) - 1; i >= 0; i-- {
		env := s.environs[i]
		logger.Debugf(ctx, "environ %s teardown", env.Name())
		if err := env.Teardown(ctx); err != nil {
			logger.Errorf(ctx, "environ %s teardown: %v", env.Name(), err)
		}
	}
	s.environs = nil
}
