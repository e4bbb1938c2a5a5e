// Package path models the three views of a judge workspace file.
//
// One logical file is addressed by a segment list relative to the
// workspace root of a judge request. The same file resolves to a host
// path for the worker process, a container path under the /workspace
// bind mount, and, for sandbox-visible files, a path inside the isolate
// jail where /workspace/sandbox is re-rooted at /sandbox.
package path

import (
	"path/filepath"
	"strconv"
	"strings"

	"treadmill/pkg/errors"
)

const (
	containerRoot = "/workspace"
	sandboxRoot   = "/sandbox"
	sandboxDir    = "sandbox"
)

// AFP is an abstract file path. The zero value is not useful; build
// one with New, NewHidden or the role constructors below.
type AFP struct {
	segments       []string
	sandboxVisible bool
	s3fsKey        string
}

// WorkspaceRoot returns the host directory of one request's workspace
func WorkspaceRoot(root string, requestID int64) string {
	return filepath.Join(root, strconv.FormatInt(requestID, 10))
}

// New returns a sandbox-visible AFP from workspace-relative segments
func New(segments ...string) AFP {
	return AFP{segments: segments, sandboxVisible: true}
}

// NewHidden returns an AFP that is not visible inside the sandbox
func NewHidden(segments ...string) AFP {
	return AFP{segments: segments}
}

// WithS3FSKey returns a copy carrying the object key of the file's
// pre-mounted s3fs source, used as a copy source during staging
func (p AFP) WithS3FSKey(key string) AFP {
	p.s3fsKey = key
	return p
}

// Host resolves the file on the worker host
func (p AFP) Host(root string, requestID int64) string {
	parts := []string{root, strconv.FormatInt(requestID, 10)}
	if p.sandboxVisible {
		parts = append(parts, sandboxDir)
	}
	parts = append(parts, p.segments...)
	return filepath.Join(parts...)
}

// Container resolves the file inside the Docker container
func (p AFP) Container() string {
	parts := []string{containerRoot}
	if p.sandboxVisible {
		parts = append(parts, sandboxDir)
	}
	parts = append(parts, p.segments...)
	return filepath.Join(parts...)
}

// ContainerDir resolves the file's parent directory inside the container
func (p AFP) ContainerDir() string {
	return filepath.Dir(p.Container())
}

// Sandbox resolves the file inside the isolate jail. Files staged
// outside the sandbox subtree have no such view.
func (p AFP) Sandbox() (string, error) {
	if !p.sandboxVisible {
		return "", errors.Newf(errors.PreconditionFailed, "file not visible inside sandbox: %s", p)
	}
	return filepath.Join(append([]string{sandboxRoot}, p.segments...)...), nil
}

// SandboxVisible reports whether the file lives under the sandbox subtree
func (p AFP) SandboxVisible() bool {
	return p.sandboxVisible
}

// HasS3FS reports whether the file has a pre-mounted s3fs source
func (p AFP) HasS3FS() bool {
	return p.s3fsKey != ""
}

// S3FSKey returns the object key of the s3fs source, if any
func (p AFP) S3FSKey() string {
	return p.s3fsKey
}

// S3FS resolves the file's source under the s3fs mount root
func (p AFP) S3FS(root string) string {
	return filepath.Join(root, p.s3fsKey)
}

// Basename returns the last path segment
func (p AFP) Basename() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

func (p AFP) String() string {
	if p.sandboxVisible {
		return sandboxDir + "/" + strings.Join(p.segments, "/")
	}
	return strings.Join(p.segments, "/")
}

// SubmissionSource names the staged submission source file
func SubmissionSource(srcName, objectKey string) AFP {
	return New("subm", srcName).WithS3FSKey(objectKey)
}

// SubmissionBinary names the compile output of the submission
func SubmissionBinary(binName string) AFP {
	return New("subm", binName)
}

// GraderSource names the staged grader source file. Grader files stay
// outside the sandbox subtree; the grader runs non-isolated and the
// submission must not be able to read it.
func GraderSource(srcName, objectKey string) AFP {
	return NewHidden("grader", srcName).WithS3FSKey(objectKey)
}

// GraderBinary names the compile output of the grader
func GraderBinary(binName string) AFP {
	return NewHidden("grader", binName)
}

// TestInput names a staged test case input file
func TestInput(testSetID int64, objectKey string) AFP {
	return New("data", strconv.FormatInt(testSetID, 10), filepath.Base(objectKey)).WithS3FSKey(objectKey)
}

// TestOutput names a staged expected output file. It stays outside the
// sandbox subtree so the submission cannot read the answer.
func TestOutput(testSetID int64, objectKey string) AFP {
	return NewHidden("data", strconv.FormatInt(testSetID, 10), filepath.Base(objectKey)).WithS3FSKey(objectKey)
}

// ExecOutput names a per-execution capture file under logs/
func ExecOutput(name string) AFP {
	return New("logs", name)
}

// ExecMeta names the isolate meta file of one execution. The sandboxed
// program must not be able to reach it.
func ExecMeta(name string) AFP {
	return NewHidden("logs", name)
}

// GraderVerdict names the file one grader run writes its verdict to.
// Like the meta file it stays out of the submission's reach.
func GraderVerdict(name string) AFP {
	return NewHidden("logs", name)
}

// EtcPasswd names the passwd stub bound over /etc in python sandboxes
func EtcPasswd() AFP {
	return NewHidden("etc", "passwd")
}
