package tui

import (
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Grouvya/flatpak-manifest-generator/internal/app"
	"github.com/Grouvya/flatpak-manifest-generator/internal/project"
)

func testService(t *testing.T) *app.Service {
	t.Helper()
	tmp := t.TempDir()
	svc, err := app.New(app.Options{
		ConfigPath: filepath.Join(tmp, "config.toml"),
		StateRoot:  filepath.Join(tmp, "state"),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestChooserCycleWraps(t *testing.T) {
	c := chooser{label: "Build System", choices: []string{"simple", "meson", "cmake"}}
	c.cycle(1)
	if c.value() != "meson" {
		t.Fatalf("after one step: %q", c.value())
	}
	c.cycle(-2)
	if c.value() != "cmake" {
		t.Fatalf("backward wrap: %q", c.value())
	}
	c.set("simple")
	if c.idx != 0 {
		t.Fatalf("set did not find choice: %d", c.idx)
	}
	c.set("missing")
	if c.idx != 0 {
		t.Fatalf("set with unknown value moved index: %d", c.idx)
	}
}

func TestChooserEmptyIsSafe(t *testing.T) {
	var c chooser
	c.cycle(1)
	if c.value() != "" {
		t.Fatalf("empty chooser value = %q", c.value())
	}
}

func TestClassifyLine(t *testing.T) {
	cases := map[string]Severity{
		"FATAL ERROR: command not found": SevError,
		"error: module failed":           SevError,
		"Installed 1/1":                  SevSuccess,
		"build complete":                 SevSuccess,
		"Downloading sources":            SevInfo,
	}
	for line, want := range cases {
		if got := classifyLine(line); got != want {
			t.Fatalf("classifyLine(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestNewSeedsFromProject(t *testing.T) {
	svc := testService(t)
	p := svc.NewProject()
	p.SetField(project.FieldAppID, "io.github.user.note")
	p.SetField(project.FieldAppName, "Note")
	p.Vars.SourcePath = "/tmp/src"
	m := New(svc, p, t.TempDir())
	if got := m.inputs[0].Value(); got != "io.github.user.note" {
		t.Fatalf("app id input = %q", got)
	}
	if got := m.sourceIn.Value(); got != "/tmp/src" {
		t.Fatalf("source input = %q", got)
	}
	if got := m.choosers[optRuntime].value(); got != "org.gnome.Platform" {
		t.Fatalf("runtime chooser = %q", got)
	}
	if got := m.choosers[optBuildSystem].value(); got != "simple" {
		t.Fatalf("build system chooser = %q", got)
	}
}

func TestSyncBasicsTrimsValues(t *testing.T) {
	svc := testService(t)
	p := svc.NewProject()
	m := New(svc, p, t.TempDir())
	m.inputs[0].SetValue("  io.github.user.note ")
	m.inputs[1].SetValue("Note")
	m.sourceIn.SetValue(" /tmp/src ")
	m.syncBasics()
	if got := p.Field(project.FieldAppID); got != "io.github.user.note" {
		t.Fatalf("app id = %q", got)
	}
	if p.Vars.SourcePath != "/tmp/src" {
		t.Fatalf("source path = %q", p.Vars.SourcePath)
	}
}

func TestCycleRuntimeMirrorsSDK(t *testing.T) {
	svc := testService(t)
	p := svc.NewProject()
	m := New(svc, p, t.TempDir())
	m.focus = optRuntime
	m.choosers[optRuntime].set("org.gnome.Platform")
	for range m.choosers[optRuntime].choices {
		if m.choosers[optRuntime].value() == "org.kde.Platform" {
			break
		}
		m.cycleChooser(1)
	}
	if got := m.choosers[optRuntime].value(); got != "org.kde.Platform" {
		t.Fatalf("runtime = %q", got)
	}
	if got := m.choosers[optSDK].value(); got != "org.kde.Sdk" {
		t.Fatalf("sdk should mirror runtime family, got %q", got)
	}
	if got := m.choosers[optRuntimeVersion].value(); got != "6.8" {
		t.Fatalf("runtime version = %q", got)
	}
}

func TestCtrlGDerivesAppID(t *testing.T) {
	svc := testService(t)
	m := New(svc, svc.NewProject(), t.TempDir())
	m.inputs[inAppName].SetValue("My Note App")
	m.inputs[inAuthor].SetValue("Jane Doe")
	next, _ := m.updateBasics(tea.KeyMsg{Type: tea.KeyCtrlG})
	if got := next.(Model).inputs[inAppID].Value(); got != "io.github.janedoe.mynoteapp" {
		t.Fatalf("derived app id = %q", got)
	}
}

func TestCtrlGNeedsAuthorAndName(t *testing.T) {
	svc := testService(t)
	m := New(svc, svc.NewProject(), t.TempDir())
	m.inputs[inAppName].SetValue("Note")
	next, _ := m.updateBasics(tea.KeyMsg{Type: tea.KeyCtrlG})
	got := next.(Model)
	if got.inputs[inAppID].Value() != "" {
		t.Fatalf("app id should stay empty, got %q", got.inputs[inAppID].Value())
	}
	if !strings.Contains(got.status, "Author") {
		t.Fatalf("status should name the missing fields: %q", got.status)
	}
}

func TestBuildSystemChoices(t *testing.T) {
	svc := testService(t)
	m := New(svc, svc.NewProject(), t.TempDir())
	want := []string{"simple", "meson", "cmake", "cmake-ninja", "autotools", "qmake"}
	got := m.choosers[optBuildSystem].choices
	if len(got) != len(want) {
		t.Fatalf("build systems = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("build systems = %v, want %v", got, want)
		}
	}
}

func TestRecoverCleanupReturnsError(t *testing.T) {
	svc := testService(t)
	var err error
	func() {
		defer recoverCleanup(svc, &err)
		panic("boom")
	}()
	if err == nil || !strings.Contains(err.Error(), "TUI_PANIC") {
		t.Fatalf("recovered error = %v", err)
	}
}

func TestPermLabelsCoverAllKeys(t *testing.T) {
	for _, key := range project.PermKeys() {
		if label := permLabel(key); label == key {
			t.Fatalf("missing label for %q", key)
		}
	}
}

func TestViewShowsValidationErrors(t *testing.T) {
	svc := testService(t)
	p := svc.NewProject()
	m := New(svc, p, t.TempDir())
	m.page = pagePerms
	m.errs = []string{"App ID is required."}
	view := m.View()
	if !strings.Contains(view, "App ID is required.") {
		t.Fatalf("view missing error line:\n%s", view)
	}
}
