package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"treadmill/pkg/errors"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	t.Parallel()
	err := errors.New(errors.IsolateInitFail)
	if errors.GetCode(err) != errors.IsolateInitFail {
		t.Fatalf("expected code %d, got %d", errors.IsolateInitFail, errors.GetCode(err))
	}
	if err.Error() != "Failed to initialize isolate sandbox" {
		t.Fatalf("unexpected default message: %q", err.Error())
	}
	if err.Stack == "" {
		t.Fatalf("expected stack trace to be captured")
	}
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	t.Parallel()
	cause := stderrors.New("connection refused")
	err := errors.Wrap(cause, errors.InternalAPIError)
	if !stderrors.Is(err, cause) {
		t.Fatalf("expected wrapped error to match cause")
	}
	if errors.GetCode(err) != errors.InternalAPIError {
		t.Fatalf("expected code %d, got %d", errors.InternalAPIError, errors.GetCode(err))
	}
	if errors.Wrap(nil, errors.InternalAPIError) != nil {
		t.Fatalf("wrapping nil should return nil")
	}
}

func TestWrapRecodesExistingError(t *testing.T) {
	t.Parallel()
	err := errors.New(errors.ContainerError)
	recoded := errors.Wrap(err, errors.IsolateExecutionError)
	if errors.GetCode(recoded) != errors.IsolateExecutionError {
		t.Fatalf("expected recoded error, got %d", errors.GetCode(recoded))
	}
}

func TestGetCodeOnForeignError(t *testing.T) {
	t.Parallel()
	if got := errors.GetCode(fmt.Errorf("plain")); got != errors.InternalServerError {
		t.Fatalf("expected InternalServerError for foreign error, got %d", got)
	}
	if got := errors.GetCode(nil); got != errors.Success {
		t.Fatalf("expected Success for nil, got %d", got)
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "api-error", err: errors.New(errors.InternalAPIError), want: true},
		{name: "decode-error", err: errors.New(errors.APIDecodeFailed), want: true},
		{name: "wrong-answer", err: errors.New(errors.WrongAnswer), want: false},
		{name: "isolate-init", err: errors.New(errors.IsolateInitFail), want: false},
		{name: "foreign", err: fmt.Errorf("plain"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := errors.IsRetryable(tt.err); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsUserFault(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "compile-error", err: errors.New(errors.SubmissionCompileError), want: true},
		{name: "runtime-error", err: errors.New(errors.SubmissionRuntimeError), want: true},
		{name: "tle", err: errors.New(errors.TimeLimitExceeded), want: true},
		{name: "mle", err: errors.New(errors.MemoryLimitExceeded), want: true},
		{name: "wa", err: errors.New(errors.WrongAnswer), want: true},
		{name: "grader-compile", err: errors.New(errors.GraderCompileError), want: false},
		{name: "unsupported-lang", err: errors.New(errors.UnsupportedLanguage), want: false},
		{name: "api", err: errors.New(errors.InternalAPIError), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := errors.IsUserFault(tt.err); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWithDetailAccumulates(t *testing.T) {
	t.Parallel()
	err := errors.New(errors.PreconditionFailed).
		WithDetail("path", "/workspace/subm/main").
		WithDetail("task", "ExecuteTask")
	if err.Details["path"] != "/workspace/subm/main" {
		t.Fatalf("expected path detail, got %v", err.Details["path"])
	}
	if err.Details["task"] != "ExecuteTask" {
		t.Fatalf("expected task detail, got %v", err.Details["task"])
	}
}
