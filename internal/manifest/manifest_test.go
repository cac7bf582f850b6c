package manifest

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/Grouvya/flatpak-manifest-generator/internal/project"
)

func baseProject() *project.Project {
	p := project.New()
	p.SetField(project.FieldAppID, "io.github.alice.note")
	p.SetField(project.FieldAppName, "Note")
	p.SetField(project.FieldSummary, "A note taker")
	p.SetField(project.FieldRuntime, "org.gnome.Platform")
	p.SetField(project.FieldRuntimeVersion, "47")
	p.SetField(project.FieldSDK, "org.gnome.Sdk")
	p.SetField(project.FieldSDKVersion, "47")
	p.SetField(project.FieldExecutable, "main.py")
	p.Vars.SourcePath = "/src/note"
	p.Vars.SourceType = project.SourceDirectory
	return p
}

func TestSanitizeAppName(t *testing.T) {
	cases := map[string]string{
		"Note":                 "Note",
		"My Awesome App":       "My-Awesome-App",
		"weird!@#chars":        "weirdchars",
		"":                     "app",
		"!!!":                  "app",
		"under_score-dash9":    "under_score-dash9",
		"  spaces  everywhere": "--spaces--everywhere",
	}
	for in, want := range cases {
		if got := SanitizeAppName(in); got != want {
			t.Errorf("SanitizeAppName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFinishArgsFallbackDisplay(t *testing.T) {
	p := baseProject()
	p.SetPerm(project.PermX11, false)
	p.SetPerm(project.PermWayland, false)
	args := FinishArgs(p)

	count := 0
	for _, a := range args {
		if a == "--socket=fallback-x11" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one fallback flag, got %d in %v", count, args)
	}

	for _, perm := range []string{project.PermX11, project.PermWayland} {
		p := baseProject()
		p.SetPerm(project.PermX11, perm == project.PermX11)
		p.SetPerm(project.PermWayland, perm == project.PermWayland)
		for _, a := range FinishArgs(p) {
			if a == "--socket=fallback-x11" {
				t.Errorf("%s toggle set but fallback still emitted", perm)
			}
		}
	}
}

func TestFinishArgsOrderAndCustom(t *testing.T) {
	p := baseProject()
	p.SetField(project.FieldCustomPerms, "--talk-name=org.freedesktop.Notifications\n\n  --env=FOO=bar  \n")
	args := FinishArgs(p)
	if args[0] != "--share=ipc" {
		t.Fatalf("first arg = %q, want --share=ipc", args[0])
	}
	n := len(args)
	if args[n-2] != "--talk-name=org.freedesktop.Notifications" || args[n-1] != "--env=FOO=bar" {
		t.Errorf("custom lines not appended verbatim in order: %v", args)
	}
}

func TestMainModuleDirectoryPython(t *testing.T) {
	p := baseProject()
	m := MainModule(p, "")
	if m.Name != "Note" || m.Buildsystem != "simple" {
		t.Fatalf("module = %+v", m)
	}
	if len(m.BuildCommands) != 3 {
		t.Fatalf("expected 3 build commands, got %v", m.BuildCommands)
	}
	if !strings.Contains(m.BuildCommands[2], "python3 /app/share/Note/main.py") {
		t.Errorf("wrapper should invoke the interpreter: %q", m.BuildCommands[2])
	}
	if len(m.Sources) != 1 || m.Sources[0].Type != "dir" || m.Sources[0].Path != "/src/note" {
		t.Errorf("sources = %+v", m.Sources)
	}
}

func TestMainModuleDirectoryBinary(t *testing.T) {
	p := baseProject()
	p.SetField(project.FieldExecutable, "note-bin")
	m := MainModule(p, "")
	if !strings.Contains(m.BuildCommands[2], "exec /app/share/Note/note-bin") {
		t.Errorf("wrapper should exec the binary directly: %q", m.BuildCommands[2])
	}
}

func TestMainModuleArchive(t *testing.T) {
	p := baseProject()
	p.Vars.SourceType = project.SourceArchive
	p.Vars.SourcePath = "/downloads/note-1.0.tar.gz"
	m := MainModule(p, "abc123")
	if len(m.BuildCommands) != 0 {
		t.Errorf("archive module should not synthesize build commands: %v", m.BuildCommands)
	}
	src := m.Sources[0]
	if src.Type != "archive" || src.Path != "note-1.0.tar.gz" || src.SHA256 != "abc123" {
		t.Errorf("source = %+v", src)
	}
}

func TestBuildManifestShape(t *testing.T) {
	p := baseProject()
	p.SetField(project.FieldDependencies, "- name: python-dependencies\n  buildsystem: simple\n")
	m, err := Build(p, "")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if m.Command != "Note" {
		t.Errorf("command = %q, want Note", m.Command)
	}
	if len(m.Modules) != 2 {
		t.Fatalf("expected dependency module + main module, got %d", len(m.Modules))
	}
	main, ok := m.Modules[1].(Module)
	if !ok || main.Name != "Note" {
		t.Errorf("last module must be the main module: %+v", m.Modules[1])
	}

	blob, err := Render(m)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(blob, &decoded); err != nil {
		t.Fatalf("rendered manifest is not valid YAML: %v", err)
	}
	for _, key := range []string{"app-id", "runtime", "runtime-version", "sdk", "command", "finish-args", "modules"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing manifest key %q", key)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	p := baseProject()
	p.SetField(project.FieldDependencies, "- name: python-dependencies\n  build-commands:\n    - pip3 install --prefix=/app requests\n")
	first, err := Build(p, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	a, err := Render(first)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := Build(p, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, err := Render(second)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(a) != string(b) {
		t.Error("two renders of the same project differ")
	}
}

func TestParseModulesRejectsNonList(t *testing.T) {
	if _, err := ParseModules("name: not-a-list\n"); err == nil {
		t.Error("expected error for mapping document")
	}
	mods, err := ParseModules("   \n")
	if err != nil || mods != nil {
		t.Errorf("blank text should parse to nil, got %v, %v", mods, err)
	}
}

func TestDesktopEntry(t *testing.T) {
	p := baseProject()
	entry := DesktopEntry(p)
	for _, want := range []string{
		"[Desktop Entry]",
		"Name=Note",
		"Comment=A note taker",
		"Exec=Note",
		"Icon=io.github.alice.note",
		"Type=Application",
		"Categories=Utility;",
	} {
		if !strings.Contains(entry, want) {
			t.Errorf("desktop entry missing %q:\n%s", want, entry)
		}
	}
}

func TestBuildScript(t *testing.T) {
	script := BuildScript("io.github.alice.note")
	if !strings.HasPrefix(script, "#!/bin/bash\nset -e\n") {
		t.Errorf("script header wrong:\n%s", script)
	}
	if !strings.Contains(script, "flatpak-builder --user --install --force-clean build-dir io.github.alice.note.yml") {
		t.Errorf("script missing builder invocation:\n%s", script)
	}
}
