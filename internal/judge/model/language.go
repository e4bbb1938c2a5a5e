package model

import (
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"treadmill/pkg/errors"
)

// Language describes one supported submission language: canonical file
// names, toolchain images, and command templates. Templates expand
// {src}, {bin} and {bin_dir} placeholders and are split shell-style,
// so image-specific flags can be overridden without code changes.
type Language struct {
	Name        string
	DisplayName string
	SrcName     string
	BinName     string
	BuilderTag  string
	SandboxTag  string

	// CompileTemplate is empty for languages that run from source.
	CompileTemplate string
	ExecTemplate    string

	// MinProcesses floors the sandbox process cap. The JVM cannot
	// start with fewer than 16.
	MinProcesses int64

	// BindEtc mounts the workspace /etc stub into the sandbox. The
	// python interpreter insists on resolving its uid at startup.
	BindEtc bool
}

var (
	LangCPP = Language{
		Name:            "cpp",
		DisplayName:     "c++14 (g++ 6.4.0)",
		SrcName:         "main.cpp",
		BinName:         "main",
		BuilderTag:      "talk4u/treadmill-builder-gcc:v0.1.0",
		SandboxTag:      "talk4u/treadmill-sandbox-native:v0.1.0",
		CompileTemplate: "g++ -std=c++14 -O2 -o {bin} {src}",
		ExecTemplate:    "{bin}",
	}

	LangGo = Language{
		Name:            "go",
		DisplayName:     "Go 1.10.1",
		SrcName:         "main.go",
		BinName:         "main",
		BuilderTag:      "talk4u/treadmill-builder-go110:v0.1.0",
		SandboxTag:      "talk4u/treadmill-sandbox-native:v0.1.0",
		CompileTemplate: "go build -o {bin} {src}",
		ExecTemplate:    "{bin}",
	}

	LangJava = Language{
		Name:            "java",
		DisplayName:     "OpenJDK 8u151",
		SrcName:         "Main.java",
		BinName:         "Main.class",
		BuilderTag:      "talk4u/treadmill-builder-jdk8:v0.1.0",
		SandboxTag:      "talk4u/treadmill-sandbox-jre8:v0.1.0",
		CompileTemplate: "javac -d {bin_dir} {src}",
		ExecTemplate:    "/usr/bin/java -XX:ParallelGCThreads=1 -Xmx256M -Xss16M -cp {bin_dir} Main",
		MinProcesses:    16,
	}

	LangPython3 = Language{
		Name:         "python3",
		DisplayName:  "Python 3.6.5",
		SrcName:      "main.py",
		BinName:      "main.py",
		BuilderTag:   "talk4u/treadmill-sandbox-py36:v0.1.0",
		SandboxTag:   "talk4u/treadmill-sandbox-py36:v0.1.0",
		ExecTemplate: "/usr/local/bin/python {bin}",
		BindEtc:      true,
	}
)

// languages maps wire tags to profiles. The judge API historically
// spells C++ as "c++".
var languages = map[string]Language{
	"cpp":     LangCPP,
	"c++":     LangCPP,
	"go":      LangGo,
	"java":    LangJava,
	"python3": LangPython3,
}

// SupportedLanguages lists the selectable profiles, for startup logging
func SupportedLanguages() []Language {
	return []Language{LangCPP, LangGo, LangJava, LangPython3}
}

// LanguageByTag resolves a wire language tag
func LanguageByTag(tag string) (Language, error) {
	lang, ok := languages[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return Language{}, errors.Newf(errors.UnsupportedLanguage, "unknown language tag: %q", tag)
	}
	return lang, nil
}

// NeedsCompile reports whether the language has a build step
func (l Language) NeedsCompile() bool {
	return l.CompileTemplate != ""
}

// CompileArgv renders the compile command over container path views
func (l Language) CompileArgv(srcPath, binPath string) ([]string, error) {
	if !l.NeedsCompile() {
		return nil, errors.Newf(errors.UnsupportedLanguage, "%s has no compile step", l.Name)
	}
	return splitTemplate(l.CompileTemplate, srcPath, binPath)
}

// ExecArgv renders the run command for the given binary path view,
// appending extra arguments verbatim
func (l Language) ExecArgv(binPath string, extra ...string) ([]string, error) {
	argv, err := splitTemplate(l.ExecTemplate, "", binPath)
	if err != nil {
		return nil, err
	}
	return append(argv, extra...), nil
}

func splitTemplate(tpl, srcPath, binPath string) ([]string, error) {
	expanded := strings.NewReplacer(
		"{src}", srcPath,
		"{bin}", binPath,
		"{bin_dir}", filepath.Dir(binPath),
	).Replace(tpl)

	argv, err := shlex.Split(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InvalidParams, "malformed command template: %s", tpl)
	}
	return argv, nil
}
