package path_test

import (
	"strings"
	"testing"

	"treadmill/internal/judge/path"
)

func TestSubmissionSourceViews(t *testing.T) {
	t.Parallel()
	p := path.SubmissionSource("main.cpp", "submissions/42/main.cpp")

	if got := p.Host("/var/treadmill", 17); got != "/var/treadmill/17/sandbox/subm/main.cpp" {
		t.Fatalf("unexpected host view: %s", got)
	}
	if got := p.Container(); got != "/workspace/sandbox/subm/main.cpp" {
		t.Fatalf("unexpected container view: %s", got)
	}
	sb, err := p.Sandbox()
	if err != nil {
		t.Fatalf("sandbox view failed: %v", err)
	}
	if sb != "/sandbox/subm/main.cpp" {
		t.Fatalf("unexpected sandbox view: %s", sb)
	}
	if !p.HasS3FS() {
		t.Fatalf("expected an s3fs source")
	}
	if got := p.S3FS("/mnt/s3"); got != "/mnt/s3/submissions/42/main.cpp" {
		t.Fatalf("unexpected s3fs view: %s", got)
	}
}

func TestHiddenFileHasNoSandboxView(t *testing.T) {
	t.Parallel()
	p := path.TestOutput(3, "problems/9/tests/3/1.out")

	if got := p.Host("/var/treadmill", 17); got != "/var/treadmill/17/data/3/1.out" {
		t.Fatalf("unexpected host view: %s", got)
	}
	if got := p.Container(); got != "/workspace/data/3/1.out" {
		t.Fatalf("unexpected container view: %s", got)
	}
	if _, err := p.Sandbox(); err == nil {
		t.Fatalf("expected sandbox view of a hidden file to fail")
	}
}

func TestSandboxViewMatchesContainerRebase(t *testing.T) {
	t.Parallel()
	files := []path.AFP{
		path.SubmissionSource("main.py", "s/1"),
		path.SubmissionBinary("main"),
		path.TestInput(5, "problems/9/tests/5/big.in"),
		path.ExecOutput("abc.stdout"),
	}
	for _, p := range files {
		sb, err := p.Sandbox()
		if err != nil {
			t.Fatalf("sandbox view of %s failed: %v", p, err)
		}
		rel := strings.TrimPrefix(p.Container(), "/workspace/sandbox/")
		if sb != "/sandbox/"+rel {
			t.Fatalf("sandbox view %s does not rebase container view %s", sb, p.Container())
		}
	}
}

func TestGraderFilesAreHidden(t *testing.T) {
	t.Parallel()
	src := path.GraderSource("grader.cpp", "problems/9/grader/grader.cpp")
	if got := src.Container(); got != "/workspace/grader/grader.cpp" {
		t.Fatalf("unexpected grader container view: %s", got)
	}
	if got := src.Host("/w", 4); got != "/w/4/grader/grader.cpp" {
		t.Fatalf("unexpected grader host view: %s", got)
	}
	if _, err := src.Sandbox(); err == nil {
		t.Fatalf("grader source must not be sandbox visible")
	}
	if _, err := path.GraderBinary("grader").Sandbox(); err == nil {
		t.Fatalf("grader binary must not be sandbox visible")
	}
}

func TestTestInputUsesKeyBasename(t *testing.T) {
	t.Parallel()
	p := path.TestInput(5, "problems/9/tests/5/1.in")
	if got := p.Container(); got != "/workspace/sandbox/data/5/1.in" {
		t.Fatalf("unexpected container view: %s", got)
	}
	if got := p.S3FSKey(); got != "problems/9/tests/5/1.in" {
		t.Fatalf("unexpected s3fs key: %s", got)
	}
}

func TestExecFiles(t *testing.T) {
	t.Parallel()
	out := path.ExecOutput("id.stdout")
	if got := out.Container(); got != "/workspace/sandbox/logs/id.stdout" {
		t.Fatalf("unexpected exec output view: %s", got)
	}
	meta := path.ExecMeta("id.meta")
	if got := meta.Container(); got != "/workspace/logs/id.meta" {
		t.Fatalf("unexpected meta view: %s", got)
	}
	if _, err := meta.Sandbox(); err == nil {
		t.Fatalf("meta file must not be sandbox visible")
	}
	if got := meta.Host("/w", 3); got != "/w/3/logs/id.meta" {
		t.Fatalf("unexpected meta host view: %s", got)
	}
}

func TestEtcPasswdStub(t *testing.T) {
	t.Parallel()
	p := path.EtcPasswd()
	if got := p.Container(); got != "/workspace/etc/passwd" {
		t.Fatalf("unexpected container view: %s", got)
	}
	if got := p.Host("/w", 9); got != "/w/9/etc/passwd" {
		t.Fatalf("unexpected host view: %s", got)
	}
}

func TestContainerDir(t *testing.T) {
	t.Parallel()
	p := path.SubmissionBinary("Main.class")
	if got := p.ContainerDir(); got != "/workspace/sandbox/subm" {
		t.Fatalf("unexpected container dir: %s", got)
	}
}
