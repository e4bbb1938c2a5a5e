// Package sandbox renders isolate command lines and classifies run
// outcomes. isolate runs inside the privileged sandbox container, so
// every path handed to it is a container or sandbox view, never a host
// path.
package sandbox

import (
	"strconv"

	"treadmill/internal/judge/model"
	"treadmill/internal/judge/path"
)

const (
	sandboxBind = "/sandbox=/workspace/sandbox:rw"

	// python resolves its uid at startup and needs a passwd stub
	etcBind = "/etc=/workspace/etc:rw"
)

// InitArgv is the control-group init command, run once per sandbox
// container before the first isolated execution
func InitArgv() []string {
	return []string{"isolate", "--cg", "--init"}
}

// Exec describes one isolated run of the submission
type Exec struct {
	Lang model.Language
	Spec *model.JudgeSpec

	// Meta is where isolate writes the run report. It stays outside
	// the sandbox bind so the submission cannot touch it.
	Meta   path.AFP
	Stdin  path.AFP
	Stdout path.AFP
	Stderr path.AFP

	// Argv is the program command over sandbox views
	Argv []string
}

// IsolateArgv renders the isolate invocation for this run
func (e Exec) IsolateArgv() ([]string, error) {
	stdin, err := e.Stdin.Sandbox()
	if err != nil {
		return nil, err
	}
	stdout, err := e.Stdout.Sandbox()
	if err != nil {
		return nil, err
	}
	stderr, err := e.Stderr.Sandbox()
	if err != nil {
		return nil, err
	}

	argv := []string{"isolate", "--dir=" + sandboxBind}
	if e.Lang.BindEtc {
		argv = append(argv, "--dir="+etcBind)
	}
	argv = append(argv,
		"--cg",
		"--meta="+e.Meta.Container(),
		// the control group counts in kB; doubled so the program hits
		// its own limit before the group kills the whole run
		"--cg-mem="+strconv.FormatInt(e.Spec.MemLimitBytes/1024*2, 10),
		"--time="+formatSeconds(e.Spec.TimeLimitSeconds),
		"--wall-time="+formatSeconds(3*e.Spec.TimeLimitSeconds),
		"--extra-time=1.0",
	)
	if e.Spec.FileSizeLimitKilos > 0 {
		argv = append(argv, "--fsize="+strconv.FormatInt(e.Spec.FileSizeLimitKilos, 10))
	}
	argv = append(argv,
		"--processes="+strconv.FormatInt(e.processes(), 10),
		"--stdin="+stdin,
		"--stdout="+stdout,
		"--stderr="+stderr,
		"--run", "--",
	)
	return append(argv, e.Argv...), nil
}

func (e Exec) processes() int64 {
	n := e.Spec.PidLimits
	if e.Lang.MinProcesses > n {
		n = e.Lang.MinProcesses
	}
	return n
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Fatal reports whether isolate itself failed rather than the program
// inside it. The wrapper exits 1 when the program fails and 2 or more
// on its own errors.
func Fatal(exitCode int) bool {
	return exitCode >= 2
}

// TimedOut reports whether the run blew the time limit. The wall clock
// decides; the killed flag alone does not, isolate kills for other
// reasons too.
func TimedOut(meta *model.IsolateExecMeta, spec *model.JudgeSpec) bool {
	return meta.WallTime() > spec.TimeLimitSeconds
}

// OutOfMemory reports whether the run was stopped by the memory limit:
// the control group peak reached it and the wrapper saw the program
// fail
func OutOfMemory(exitCode int, meta *model.IsolateExecMeta, spec *model.JudgeSpec) bool {
	return exitCode == 1 && meta.CgMemBytes() >= spec.MemLimitBytes
}
