package task_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"treadmill/internal/judge/task"
	apperr "treadmill/pkg/errors"
)

type recordEnviron struct {
	name     string
	log      *[]string
	setupErr error
}

func (e *recordEnviron) Name() string { return e.name }

func (e *recordEnviron) Setup(context.Context) error {
	*e.log = append(*e.log, "setup "+e.name)
	return e.setupErr
}

func (e *recordEnviron) Teardown(context.Context) error {
	*e.log = append(*e.log, "teardown "+e.name)
	return nil
}

func TestScopeTearsDownInReverseOrder(t *testing.T) {
	t.Parallel()
	r := task.NewRunner()
	var log []string

	err := r.Scope(context.Background(), func(ctx context.Context) error {
		for _, name := range []string{"workspace", "builder", "sandbox"} {
			if err := r.Enter(ctx, &recordEnviron{name: name, log: &log}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Scope: %v", err)
	}

	want := []string{
		"setup workspace", "setup builder", "setup sandbox",
		"teardown sandbox", "teardown builder", "teardown workspace",
	}
	if fmt.Sprint(log) != fmt.Sprint(want) {
		t.Errorf("log = %v, want %v", log, want)
	}
}

func TestScopeTearsDownWhenBodyFails(t *testing.T) {
	t.Parallel()
	r := task.NewRunner()
	var log []string
	boom := errors.New("boom")

	err := r.Scope(context.Background(), func(ctx context.Context) error {
		if err := r.Enter(ctx, &recordEnviron{name: "sandbox", log: &log}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Scope = %v, want boom", err)
	}
	if fmt.Sprint(log) != fmt.Sprint([]string{"setup sandbox", "teardown sandbox"}) {
		t.Errorf("log = %v", log)
	}
}

func TestScopeTearsDownAfterCancellation(t *testing.T) {
	t.Parallel()
	r := task.NewRunner()
	var log []string

	ctx, cancel := context.WithCancel(context.Background())
	err := r.Scope(ctx, func(ctx context.Context) error {
		if err := r.Enter(ctx, &recordEnviron{name: "container", log: &log}); err != nil {
			return err
		}
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Scope = %v, want context.Canceled", err)
	}
	if fmt.Sprint(log) != fmt.Sprint([]string{"setup container", "teardown container"}) {
		t.Errorf("log = %v, teardown must run despite cancellation", log)
	}
}

func TestEnterRunsTeardownWhenSetupFails(t *testing.T) {
	t.Parallel()
	r := task.NewRunner()
	var log []string
	setupErr := errors.New("image missing")

	err := r.Scope(context.Background(), func(ctx context.Context) error {
		return r.Enter(ctx, &recordEnviron{name: "builder", log: &log, setupErr: setupErr})
	})
	if !errors.Is(err, setupErr) {
		t.Fatalf("Scope = %v, want setup error", err)
	}
	if fmt.Sprint(log) != fmt.Sprint([]string{"setup builder", "teardown builder"}) {
		t.Errorf("log = %v, partial setup must still tear down", log)
	}
}

func TestEnterOutsideScopeFails(t *testing.T) {
	t.Parallel()
	r := task.NewRunner()
	var log []string

	err := r.Enter(context.Background(), &recordEnviron{name: "workspace", log: &log})
	if err == nil {
		t.Fatal("Enter without a scope should fail")
	}
	if code := apperr.GetCode(err); code != apperr.PreconditionFailed {
		t.Errorf("code = %d, want PreconditionFailed", code)
	}
	if len(log) != 0 {
		t.Errorf("log = %v, environ must not be touched", log)
	}
}

func TestRunKeepsFailedTaskOnStack(t *testing.T) {
	t.Parallel()
	r := task.NewRunner()
	boom := errors.New("boom")

	outer := task.TaskFunc{TaskName: "judge", Fn: func(ctx context.Context) error {
		return r.Run(ctx, task.TaskFunc{TaskName: "case_3", Fn: func(context.Context) error {
			return boom
		}})
	}}

	if err := r.Run(context.Background(), outer); !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want boom", err)
	}
	if got := fmt.Sprint(r.TaskStack()); got != fmt.Sprint([]string{"judge", "case_3"}) {
		t.Errorf("TaskStack = %v", r.TaskStack())
	}
}

func TestRunPopsStackOnSuccess(t *testing.T) {
	t.Parallel()
	r := task.NewRunner()

	err := r.Run(context.Background(), task.TaskFunc{TaskName: "compile", Fn: func(context.Context) error {
		return nil
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.TaskStack()) != 0 {
		t.Errorf("TaskStack = %v, want empty", r.TaskStack())
	}
}

func TestRunRefusesCanceledContext(t *testing.T) {
	t.Parallel()
	r := task.NewRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := r.Run(ctx, task.TaskFunc{TaskName: "execute", Fn: func(context.Context) error {
		ran = true
		return nil
	}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("task body must not run after cancellation")
	}
}
