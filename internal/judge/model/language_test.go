package model_test

import (
	"reflect"
	"testing"

	"treadmill/internal/judge/model"
	"treadmill/pkg/errors"
)

func TestLanguageByTag(t *testing.T) {
	t.Parallel()
	tests := []struct {
		tag  string
		want string
	}{
		{tag: "cpp", want: "cpp"},
		{tag: "c++", want: "cpp"},
		{tag: "C++", want: "cpp"},
		{tag: "go", want: "go"},
		{tag: "java", want: "java"},
		{tag: "python3", want: "python3"},
		{tag: " python3 ", want: "python3"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.tag, func(t *testing.T) {
			t.Parallel()
			lang, err := model.LanguageByTag(tt.tag)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if lang.Name != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, lang.Name)
			}
		})
	}
}

func TestLanguageByTagUnknown(t *testing.T) {
	t.Parallel()
	_, err := model.LanguageByTag("brainfuck")
	if !errors.Is(err, errors.UnsupportedLanguage) {
		t.Fatalf("expected UnsupportedLanguage, got %v", err)
	}
}

func TestCompileArgv(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		lang model.Language
		src  string
		bin  string
		want []string
	}{
		{
			name: "cpp",
			lang: model.LangCPP,
			src:  "/workspace/sandbox/subm/main.cpp",
			bin:  "/workspace/sandbox/subm/main",
			want: []string{"g++", "-std=c++14", "-O2", "-o", "/workspace/sandbox/subm/main", "/workspace/sandbox/subm/main.cpp"},
		},
		{
			name: "go",
			lang: model.LangGo,
			src:  "/workspace/sandbox/subm/main.go",
			bin:  "/workspace/sandbox/subm/main",
			want: []string{"go", "build", "-o", "/workspace/sandbox/subm/main", "/workspace/sandbox/subm/main.go"},
		},
		{
			name: "java",
			lang: model.LangJava,
			src:  "/workspace/sandbox/subm/Main.java",
			bin:  "/workspace/sandbox/subm/Main.class",
			want: []string{"javac", "-d", "/workspace/sandbox/subm", "/workspace/sandbox/subm/Main.java"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.lang.CompileArgv(tt.src, tt.bin)
			if err != nil {
				t.Fatalf("compile argv failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPython3HasNoCompileStep(t *testing.T) {
	t.Parallel()
	if model.LangPython3.NeedsCompile() {
		t.Fatalf("python3 should not need compilation")
	}
	if _, err := model.LangPython3.CompileArgv("a", "b"); !errors.Is(err, errors.UnsupportedLanguage) {
		t.Fatalf("expected UnsupportedLanguage, got %v", err)
	}
}

func TestExecArgv(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		lang  model.Language
		bin   string
		extra []string
		want  []string
	}{
		{
			name: "native",
			lang: model.LangCPP,
			bin:  "/sandbox/subm/main",
			want: []string{"/sandbox/subm/main"},
		},
		{
			name: "java",
			lang: model.LangJava,
			bin:  "/sandbox/subm/Main.class",
			want: []string{"/usr/bin/java", "-XX:ParallelGCThreads=1", "-Xmx256M", "-Xss16M", "-cp", "/sandbox/subm", "Main"},
		},
		{
			name: "python",
			lang: model.LangPython3,
			bin:  "/sandbox/subm/main.py",
			want: []string{"/usr/local/bin/python", "/sandbox/subm/main.py"},
		},
		{
			name:  "grader-args",
			lang:  model.LangCPP,
			bin:   "/workspace/sandbox/grader/main",
			extra: []string{"/workspace/sandbox/data/1/1.in", "/workspace/sandbox/logs/x.stdout", "/workspace/data/1/1.out"},
			want: []string{
				"/workspace/sandbox/grader/main",
				"/workspace/sandbox/data/1/1.in",
				"/workspace/sandbox/logs/x.stdout",
				"/workspace/data/1/1.out",
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.lang.ExecArgv(tt.bin, tt.extra...)
			if err != nil {
				t.Fatalf("exec argv failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestJavaSandboxNeeds(t *testing.T) {
	t.Parallel()
	if model.LangJava.MinProcesses != 16 {
		t.Fatalf("expected java process floor of 16, got %d", model.LangJava.MinProcesses)
	}
	if model.LangJava.BindEtc {
		t.Fatalf("java must not bind /etc")
	}
	if !model.LangPython3.BindEtc {
		t.Fatalf("python3 must bind /etc")
	}
}
