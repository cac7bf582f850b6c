package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Grouvya/flatpak-manifest-generator/internal/execstream"
	"github.com/Grouvya/flatpak-manifest-generator/internal/flatpak"
	"github.com/Grouvya/flatpak-manifest-generator/internal/project"
	storepkg "github.com/Grouvya/flatpak-manifest-generator/internal/store"
)

type fakeRunner struct {
	outputs map[string]string
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	out, ok := f.outputs[key]
	if !ok {
		return nil, fmt.Errorf("unexpected command: %s", key)
	}
	return []byte(out), nil
}

func newTestService(t *testing.T, runner *fakeRunner) *Service {
	t.Helper()
	tmp := t.TempDir()
	opts := Options{
		ConfigPath: filepath.Join(tmp, "config.toml"),
		StateRoot:  filepath.Join(tmp, "state"),
	}
	if runner != nil {
		opts.Runner = runner
	}
	svc, err := New(opts)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func sampleProject(t *testing.T, svc *Service) *project.Project {
	t.Helper()
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "main.py"), []byte("import flask\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	p := svc.NewProject()
	p.SetField(project.FieldAppID, "io.github.user.note")
	p.SetField(project.FieldAppName, "Note")
	p.SetField(project.FieldSummary, "Notes")
	p.SetField(project.FieldExecutable, "main.py")
	p.Vars.SourcePath = srcDir
	p.Vars.SourceType = "directory"
	return p
}

func TestNewSeedsProjectDefaults(t *testing.T) {
	svc := newTestService(t, nil)
	p := svc.NewProject()
	if p.Field(project.FieldRuntime) != "org.gnome.Platform" {
		t.Fatalf("runtime default = %q", p.Field(project.FieldRuntime))
	}
	if p.Field(project.FieldSDKVersion) != "47" {
		t.Fatalf("sdk version default = %q", p.Field(project.FieldSDKVersion))
	}
	if p.Field(project.FieldBuildSystem) != "simple" {
		t.Fatalf("build system default = %q", p.Field(project.FieldBuildSystem))
	}
}

func TestSaveLoadListProjects(t *testing.T) {
	svc := newTestService(t, nil)
	p := sampleProject(t, svc)
	if err := svc.SaveProject(p, "note"); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := svc.LoadProject("note")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Field(project.FieldAppID) != "io.github.user.note" {
		t.Fatalf("loaded app id = %q", got.Field(project.FieldAppID))
	}
	names, err := svc.SavedProjects()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "note" {
		t.Fatalf("saved projects = %v", names)
	}
}

func TestGenerateWritesFilesAndAuditEntry(t *testing.T) {
	svc := newTestService(t, nil)
	p := sampleProject(t, svc)
	outDir := filepath.Join(t.TempDir(), "out")
	out, err := svc.Generate(p, outDir)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if filepath.Base(out.ManifestPath) != "io.github.user.note.yml" {
		t.Fatalf("manifest path = %q", out.ManifestPath)
	}
	raw, err := os.ReadFile(storepkg.AuditPath(svc.StateRoot))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(raw), `"operation":"generate"`) {
		t.Fatalf("audit log missing generate entry: %s", raw)
	}
}

func TestScanAndApplyDeps(t *testing.T) {
	svc := newTestService(t, nil)
	p := sampleProject(t, svc)
	res, err := svc.ScanDeps(p)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(res.Requirements) != 1 || res.Requirements[0] != "flask" {
		t.Fatalf("third party = %v", res.Requirements)
	}
	if err := svc.ApplyDepsModule(p, res.Requirements); err != nil {
		t.Fatalf("apply: %v", err)
	}
	deps := p.Field(project.FieldDependencies)
	if !strings.Contains(deps, "python-dependencies") {
		t.Fatalf("dependency text missing module: %s", deps)
	}
	if !p.Perm(project.PermNetwork) {
		t.Fatalf("network permission should be enabled for pip installs")
	}
	raw, err := os.ReadFile(filepath.Join(p.Vars.SourcePath, "requirements.txt"))
	if err != nil {
		t.Fatalf("read requirements: %v", err)
	}
	if strings.TrimSpace(string(raw)) != "flask" {
		t.Fatalf("requirements content = %q", raw)
	}
}

func TestRefreshRefsPersistsCache(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"flatpak list --runtime --columns=application,branch": "org.gnome.Sdk\t47\norg.gnome.Platform\t47\n",
	}}
	svc := newTestService(t, runner)
	cache, err := svc.RefreshRefs(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := cache.Sdks["org.gnome.Sdk"]; len(got) != 1 || got[0] != "47" {
		t.Fatalf("sdk refs = %v", got)
	}
	if _, err := os.Stat(storepkg.RefsCachePath(svc.StateRoot)); err != nil {
		t.Fatalf("cache file missing: %v", err)
	}

	again, err := svc.Refs(context.Background())
	if err != nil {
		t.Fatalf("refs: %v", err)
	}
	if got := again.Runtimes["org.gnome.Platform"]; len(got) != 1 || got[0] != "47" {
		t.Fatalf("runtime refs from cache = %v", got)
	}
}

func TestCheckSDK(t *testing.T) {
	arch := flatpak.SystemArch()
	runner := &fakeRunner{outputs: map[string]string{
		"flatpak list --runtime --columns=ref": "runtime/org.gnome.Sdk/" + arch + "/47\n",
	}}
	svc := newTestService(t, runner)
	p := sampleProject(t, svc)
	ok, err := svc.CheckSDK(context.Background(), p)
	if err != nil {
		t.Fatalf("check sdk: %v", err)
	}
	if !ok {
		t.Fatalf("sdk should be reported installed")
	}
	p.SetField(project.FieldSDKVersion, "48")
	ok, err = svc.CheckSDK(context.Background(), p)
	if err != nil {
		t.Fatalf("check sdk: %v", err)
	}
	if ok {
		t.Fatalf("sdk 48 should be reported missing")
	}
}

func TestInstallSDKRequiresConfiguredRemote(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"flatpak remotes --columns=name": "fedora\n",
	}}
	svc := newTestService(t, runner)
	p := sampleProject(t, svc)
	_, err := svc.InstallSDK(context.Background(), p)
	if err == nil {
		t.Fatal("expected missing-remote error")
	}
	if !strings.Contains(err.Error(), "FPK_REMOTE_MISSING") {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), "flatpak remote-add") {
		t.Fatalf("error should carry the remediation hint: %v", err)
	}
	if svc.Exec.State() != execstream.StateIdle {
		t.Fatalf("no install should have been spawned, state = %v", svc.Exec.State())
	}
}

func TestInstallSDKRequiresFlatpakTool(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"flatpak remotes --columns=name": "flathub\n",
	}}
	svc := newTestService(t, runner)
	svc.lookPath = func(name string) (string, error) {
		return "", fmt.Errorf("FPK_TOOL_MISSING: %s not found in PATH or common locations", name)
	}
	p := sampleProject(t, svc)
	_, err := svc.InstallSDK(context.Background(), p)
	if err == nil || !strings.Contains(err.Error(), "FPK_TOOL_MISSING") {
		t.Fatalf("expected missing-tool error, got %v", err)
	}
	if svc.Exec.State() != execstream.StateIdle {
		t.Fatalf("no install should have been spawned, state = %v", svc.Exec.State())
	}
}

func TestInstallSDKStreamsResolvedCommand(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"flatpak remotes --columns=name": "flathub\n",
	}}
	svc := newTestService(t, runner)
	svc.lookPath = func(string) (string, error) { return "echo", nil }
	p := sampleProject(t, svc)
	session, err := svc.InstallSDK(context.Background(), p)
	if err != nil {
		t.Fatalf("install sdk: %v", err)
	}
	var lines []string
	exitCode := -1
	for ev := range session.Events {
		if ev.Final {
			exitCode = ev.ExitCode
			continue
		}
		lines = append(lines, ev.Line)
	}
	if exitCode != 0 {
		t.Fatalf("exit code = %d", exitCode)
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "--user install --assumeyes flathub org.gnome.Sdk//47") {
		t.Fatalf("unexpected install arguments: %q", joined)
	}
}

func TestBuildRequiresBuilderTool(t *testing.T) {
	svc := newTestService(t, nil)
	svc.lookPath = func(name string) (string, error) {
		return "", fmt.Errorf("FPK_TOOL_MISSING: %s not found in PATH or common locations", name)
	}
	p := sampleProject(t, svc)
	outDir := filepath.Join(t.TempDir(), "out")
	if _, err := svc.Generate(p, outDir); err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, err := svc.Build(context.Background(), p.Field(project.FieldAppID), outDir)
	if err == nil || !strings.Contains(err.Error(), "FPK_TOOL_MISSING") {
		t.Fatalf("expected missing-tool error, got %v", err)
	}
	if svc.Exec.State() != execstream.StateIdle {
		t.Fatalf("no build should have been spawned, state = %v", svc.Exec.State())
	}
}

func TestBuildRequiresManifest(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.Build(context.Background(), "io.github.user.note", t.TempDir())
	if err == nil {
		t.Fatal("expected missing-manifest error")
	}
	if !strings.Contains(err.Error(), "APP_MANIFEST_MISSING") {
		t.Fatalf("unexpected error: %v", err)
	}
}
