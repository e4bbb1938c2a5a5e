package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"treadmill/internal/judge/model"
	"treadmill/internal/judge/ops"
	"treadmill/internal/judge/path"
	"treadmill/internal/judge/sandbox"
	"treadmill/internal/judge/task"
	"treadmill/pkg/errors"
)

const outputExcerptLen = 4096

// SandboxEnviron is the execution container for one program: the
// submission behind isolate, or the grader called directly. Both stay
// alive across all test cases of a request.
type SandboxEnviron struct {
	tc       *task.Context
	lang     model.Language
	isolated bool
	id       string
}

func NewSandboxEnviron(tc *task.Context, lang model.Language, isolated bool) *SandboxEnviron {
	return &SandboxEnviron{tc: tc, lang: lang, isolated: isolated}
}

func (s *SandboxEnviron) Name() string {
	if s.isolated {
		return "sandbox:" + s.lang.Name
	}
	return "grader-sandbox:" + s.lang.Name
}

func (s *SandboxEnviron) Setup(ctx context.Context) error {
	// isolate needs the cgroup access only a privileged container has
	id, err := ops.RunDockerContainer(ctx, s.tc, s.lang.SandboxTag, s.isolated)
	if err != nil {
		return err
	}
	s.id = id

	if s.isolated {
		res, err := ops.ExecInDockerContainer(ctx, s.tc, s.id, sandbox.InitArgv())
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return errors.Newf(errors.IsolateInitFail, "isolate init exited %d: %s",
				res.ExitCode, excerpt(res.Output))
		}
	}
	return nil
}

func (s *SandboxEnviron) Teardown(ctx context.Context) error {
	if s.id == "" {
		return nil
	}
	return ops.KillDockerContainer(ctx, s.tc, s.id)
}

// ExecuteSubmission runs the staged submission against one input file
// under isolate. A clean run returns the parsed meta and the stdout
// capture for answer checking; limit and runtime failures come back as
// coded errors with nothing else.
func (s *SandboxEnviron) ExecuteSubmission(ctx context.Context, stdin path.AFP) (*model.IsolateExecMeta, path.AFP, error) {
	tc := s.tc
	if !s.isolated {
		return nil, path.AFP{}, errors.PreconditionError("submission runs need an isolated sandbox")
	}

	bin := path.SubmissionBinary(s.lang.BinName)
	if err := ops.CheckFileExists(ctx, tc, stdin); err != nil {
		return nil, path.AFP{}, err
	}
	if err := ops.CheckFileExists(ctx, tc, bin); err != nil {
		return nil, path.AFP{}, err
	}

	execID := uuid.NewString()
	stdout := path.ExecOutput(execID + ".stdout")
	stderr := path.ExecOutput(execID + ".stderr")
	meta := path.ExecMeta(execID + ".meta")
	for _, f := range []path.AFP{stdout, stderr, meta} {
		// 0666: the sandboxed program runs as an unprivileged uid
		if err := ops.CreateFile(ctx, tc, f, 0o666); err != nil {
			return nil, path.AFP{}, err
		}
	}

	sandboxBin, err := bin.Sandbox()
	if err != nil {
		return nil, path.AFP{}, err
	}
	progArgv, err := s.lang.ExecArgv(sandboxBin)
	if err != nil {
		return nil, path.AFP{}, err
	}
	isoArgv, err := sandbox.Exec{
		Lang:   s.lang,
		Spec:   tc.Spec,
		Meta:   meta,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Argv:   progArgv,
	}.IsolateArgv()
	if err != nil {
		return nil, path.AFP{}, err
	}

	res, err := ops.ExecInDockerContainer(ctx, tc, s.id, isoArgv)
	if err != nil {
		return nil, path.AFP{}, err
	}
	if sandbox.Fatal(res.ExitCode) {
		return nil, path.AFP{}, errors.Newf(errors.IsolateExecutionError, "isolate exited %d: %s",
			res.ExitCode, excerpt(res.Output))
	}

	content, err := ops.ReadFile(ctx, tc, meta)
	if err != nil {
		return nil, path.AFP{}, err
	}
	execMeta, err := model.ParseExecMeta(content)
	if err != nil {
		return nil, path.AFP{}, err
	}

	if sandbox.TimedOut(execMeta, tc.Spec) {
		return nil, path.AFP{}, errors.New(errors.TimeLimitExceeded)
	}
	if sandbox.OutOfMemory(res.ExitCode, execMeta, tc.Spec) {
		return nil, path.AFP{}, errors.New(errors.MemoryLimitExceeded)
	}
	if res.ExitCode != 0 {
		detail := s.captured(ctx, stderr, stdout)
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", res.ExitCode)
		}
		return nil, path.AFP{}, errors.Newf(errors.SubmissionRuntimeError, "%s", detail)
	}
	return execMeta, stdout, nil
}

// ExecuteGrader runs the staged grader with the canonical positional
// arguments and interprets its verdict: "1" is correct, "0" is not,
// anything else is the grader's own fault
func (s *SandboxEnviron) ExecuteGrader(ctx context.Context, testInput, submStdout, expected path.AFP) (bool, error) {
	tc := s.tc
	bin := path.GraderBinary(s.lang.BinName)
	if err := ops.CheckFileExists(ctx, tc, bin); err != nil {
		return false, err
	}

	verdict := path.GraderVerdict(uuid.NewString() + ".verdict")
	if err := ops.CreateFile(ctx, tc, verdict, 0o666); err != nil {
		return false, err
	}

	// the grader is not isolated, so it sees container views; stdout is
	// shell-redirected since exec always runs through sh -c
	argv, err := s.lang.ExecArgv(bin.Container(),
		testInput.Container(), submStdout.Container(), expected.Container(),
		"1>", verdict.Container())
	if err != nil {
		return false, err
	}

	res, err := ops.ExecInDockerContainer(ctx, tc, s.id, argv)
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, errors.Newf(errors.GraderRuntimeError, "grader exited %d: %s",
			res.ExitCode, excerpt(res.Output))
	}

	out, err := ops.ReadFile(ctx, tc, verdict)
	if err != nil {
		return false, err
	}
	switch strings.TrimRight(out, " \t\r\n") {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, errors.Newf(errors.GraderRuntimeError, "unexpected grader verdict %q", excerpt(out))
	}
}

// captured collects the run's own output for a runtime error report,
// stderr first
func (s *SandboxEnviron) captured(ctx context.Context, stderr, stdout path.AFP) string {
	var parts []string
	for _, f := range []path.AFP{stderr, stdout} {
		content, err := ops.ReadFile(ctx, s.tc, f)
		if err != nil {
			continue
		}
		if trimmed := strings.TrimSpace(content); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return excerpt(strings.Join(parts, "\n"))
}

func excerpt(s string) string {
	if len(s) > outputExcerptLen {
		return s[:outputExcerptLen]
	}
	return s
}
