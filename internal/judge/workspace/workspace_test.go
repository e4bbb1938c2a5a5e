package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"treadmill/internal/judge/config"
	"treadmill/internal/judge/datapack"
	"treadmill/internal/judge/model"
	"treadmill/internal/judge/task"
	"treadmill/internal/judge/workspace"
	"treadmill/pkg/errors"
)

type fakeProvider struct {
	files map[string]string
	keys  []string
}

var _ datapack.Provider = (*fakeProvider)(nil)

func (f *fakeProvider) EnsureObject(ctx context.Context, objectKey string) (string, error) {
	f.keys = append(f.keys, objectKey)
	local, ok := f.files[objectKey]
	if !ok {
		return "", errors.Newf(errors.StorageError, "object %s not found", objectKey)
	}
	return local, nil
}

func newTestContext(t *testing.T) (*task.Context, *fakeProvider) {
	t.Helper()
	cfg, err := config.Default(config.ProfileTest)
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Workspace.HostRoot = t.TempDir()

	tc := task.NewContext(cfg, &model.JudgeRequest{ID: 7, ProblemID: 3, SubmissionID: 42})
	tc.Submission = &model.Submission{
		ID:      42,
		Lang:    "python3",
		SrcFile: "submissions/42/main.py",
		Problem: model.Problem{
			ID: 3,
			JudgeSpec: model.JudgeSpec{
				TotalScore:       100,
				MemLimitBytes:    256 << 20,
				TimeLimitSeconds: 2,
				PidLimits:        1,
				Grader:           &model.Grader{Lang: "cpp", SrcFile: "problems/3/grader.cpp"},
				TestSets: []model.TestSet{
					{ID: 1, Score: 40, Cases: []model.TestCase{
						{ID: 1, InputFile: "problems/3/tests/1/1.in", OutputFile: "problems/3/tests/1/1.out"},
					}},
					{ID: 2, Score: 60, Cases: []model.TestCase{
						{ID: 1, InputFile: "problems/3/tests/2/1.in", OutputFile: "problems/3/tests/2/1.out"},
					}},
				},
			},
		},
	}
	tc.Spec = &tc.Submission.Problem.JudgeSpec
	submLang, graderLang := model.LangPython3, model.LangCPP
	tc.SubmLang = &submLang
	tc.GraderLang = &graderLang

	provider := &fakeProvider{files: map[string]string{}}
	packDir := t.TempDir()
	objects := map[string]string{
		"submissions/42/main.py":   "print(input())\n",
		"problems/3/tests/1/1.in":  "1\n",
		"problems/3/tests/1/1.out": "1\n",
		"problems/3/tests/2/1.in":  "2\n",
		"problems/3/tests/2/1.out": "2\n",
		"problems/3/grader.cpp":    "int main() {}\n",
	}
	for key, content := range objects {
		local := filepath.Join(packDir, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(local, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		provider.files[key] = local
	}
	tc.DataPacks = provider
	return tc, provider
}

func TestSetupStagesTheFullTree(t *testing.T) {
	t.Parallel()
	tc, provider := newTestContext(t)
	env := workspace.NewEnviron(tc)

	if err := env.Setup(context.Background()); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	root := tc.WorkspaceRoot()
	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("workspace root missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o755 {
		t.Fatalf("expected root mode 0755, got %o", perm)
	}

	for _, rel := range []string{
		"sandbox/subm/main.py",
		"sandbox/data/1/1.in",
		"sandbox/data/2/1.in",
		"data/1/1.out",
		"data/2/1.out",
		"grader/grader.cpp",
		"etc/passwd",
	} {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			t.Fatalf("staged file %s missing: %v", rel, err)
		}
	}

	// expected outputs live outside the sandbox subtree
	if _, err := os.Stat(filepath.Join(root, "sandbox", "data", "1", "1.out")); !os.IsNotExist(err) {
		t.Fatalf("expected output leaked into the sandbox: %v", err)
	}
	if len(provider.keys) != 6 {
		t.Fatalf("expected 6 staged objects, got %d: %v", len(provider.keys), provider.keys)
	}
}

func TestStagingModeFollowsConfig(t *testing.T) {
	t.Parallel()
	tc, _ := newTestContext(t)
	tc.Config.Workspace.StageBySymlink = true
	if err := workspace.NewEnviron(tc).Setup(context.Background()); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	staged := filepath.Join(tc.WorkspaceRoot(), "sandbox", "subm", "main.py")
	info, err := os.Lstat(staged)
	if err != nil {
		t.Fatalf("lstat: %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("expected a symlink under symlink staging")
	}

	tc2, _ := newTestContext(t)
	tc2.Config.Workspace.StageBySymlink = false
	if err := workspace.NewEnviron(tc2).Setup(context.Background()); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	staged = filepath.Join(tc2.WorkspaceRoot(), "sandbox", "subm", "main.py")
	info, err = os.Lstat(staged)
	if err != nil {
		t.Fatalf("lstat: %v", err)
	}
	if !info.Mode().IsRegular() {
		t.Fatalf("expected a regular file under copy staging")
	}
	data, err := os.ReadFile(staged)
	if err != nil || string(data) != "print(input())\n" {
		t.Fatalf("unexpected staged copy: %q %v", data, err)
	}
}

func TestSetupSkipsAbsentPieces(t *testing.T) {
	t.Parallel()
	tc, _ := newTestContext(t)
	tc.Spec.Grader = nil
	tc.GraderLang = nil
	submLang := model.LangCPP
	tc.SubmLang = &submLang
	tc.Submission.SrcFile = "submissions/42/main.cpp"
	fake := tc.DataPacks.(*fakeProvider)
	fake.files["submissions/42/main.cpp"] = fake.files["submissions/42/main.py"]

	if err := workspace.NewEnviron(tc).Setup(context.Background()); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tc.WorkspaceRoot(), "grader")); !os.IsNotExist(err) {
		t.Fatalf("grader dir staged without a grader: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tc.WorkspaceRoot(), "etc", "passwd")); !os.IsNotExist(err) {
		t.Fatalf("passwd stub staged for a non-python submission: %v", err)
	}
}

func TestSetupReplacesStaleTree(t *testing.T) {
	t.Parallel()
	tc, _ := newTestContext(t)
	stale := filepath.Join(tc.WorkspaceRoot(), "sandbox", "logs", "old.stdout")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(stale, []byte("leftover"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := workspace.NewEnviron(tc).Setup(context.Background()); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale file survived setup: %v", err)
	}
}

func TestSetupFailsOnMissingObject(t *testing.T) {
	t.Parallel()
	tc, provider := newTestContext(t)
	delete(provider.files, "problems/3/tests/2/1.out")

	err := workspace.NewEnviron(tc).Setup(context.Background())
	if !errors.Is(err, errors.StorageError) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestTeardownRemovesRoot(t *testing.T) {
	t.Parallel()
	tc, _ := newTestContext(t)
	env := workspace.NewEnviron(tc)
	ctx := context.Background()

	if err := env.Setup(ctx); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := env.Teardown(ctx); err != nil {
		t.Fatalf("teardown failed: %v", err)
	}
	if _, err := os.Stat(tc.WorkspaceRoot()); !os.IsNotExist(err) {
		t.Fatalf("workspace root survived teardown: %v", err)
	}
}
