// Package manifest builds the flatpak-builder manifest document and the
// companion text artifacts (desktop entry, build script, README). The YAML
// schema is owned by the Flatpak project; this package only assembles it.
package manifest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Grouvya/flatpak-manifest-generator/internal/project"
)

// Manifest is the top-level document. Field order matches the emitted YAML
// key order.
type Manifest struct {
	AppID          string   `yaml:"app-id"`
	Runtime        string   `yaml:"runtime"`
	RuntimeVersion string   `yaml:"runtime-version"`
	SDK            string   `yaml:"sdk"`
	Command        string   `yaml:"command"`
	FinishArgs     []string `yaml:"finish-args"`
	Modules        []any    `yaml:"modules"`
}

// Module is one buildable unit: a dependency or the main application.
type Module struct {
	Name          string        `yaml:"name"`
	Buildsystem   string        `yaml:"buildsystem,omitempty"`
	BuildOptions  *BuildOptions `yaml:"build-options,omitempty"`
	BuildCommands []string      `yaml:"build-commands,omitempty"`
	Sources       []Source      `yaml:"sources,omitempty"`
}

// BuildOptions carries per-module builder options.
type BuildOptions struct {
	BuildArgs []string `yaml:"build-args,omitempty"`
}

// Source is one source descriptor within a module.
type Source struct {
	Type     string   `yaml:"type"`
	Path     string   `yaml:"path,omitempty"`
	SHA256   string   `yaml:"sha256,omitempty"`
	Commands []string `yaml:"commands,omitempty"`
}

// SanitizeAppName reduces a display name to the command/module name used in
// the manifest: spaces become dashes, everything outside [A-Za-z0-9_-] is
// dropped, and an empty result falls back to "app".
func SanitizeAppName(name string) string {
	name = strings.ReplaceAll(name, " ", "-")
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "app"
	}
	return b.String()
}

// finishArgFlags maps permission toggles to their sandbox flags, in emission
// order.
var finishArgFlags = []struct {
	perm string
	flag string
}{
	{project.PermX11, "--socket=x11"},
	{project.PermWayland, "--socket=wayland"},
	{project.PermNetwork, "--share=network"},
	{project.PermHome, "--filesystem=home"},
	{project.PermDRI, "--device=dri"},
	{project.PermHost, "--filesystem=host"},
	{project.PermUSB, "--device=all"},
	{project.PermPulseAudio, "--socket=pulseaudio"},
}

// FinishArgs assembles the sandbox permission flags: IPC sharing always,
// one flag per enabled toggle, a fallback X11 socket when neither display
// toggle is set, and the user's custom lines verbatim.
func FinishArgs(p *project.Project) []string {
	args := []string{"--share=ipc"}
	for _, f := range finishArgFlags {
		if p.Perm(f.perm) {
			args = append(args, f.flag)
		}
	}
	if !p.Perm(project.PermX11) && !p.Perm(project.PermWayland) {
		args = append(args, "--socket=fallback-x11")
	}
	for _, line := range strings.Split(p.Field(project.FieldCustomPerms), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			args = append(args, line)
		}
	}
	return args
}

// MainModule synthesizes the application's own build unit. Directory sources
// with the simple buildsystem get install/copy/wrapper-script commands that
// pick a python3 invocation for .py executables and a direct exec otherwise;
// archive sources instead declare an archive entry with its content hash.
func MainModule(p *project.Project, archiveSHA256 string) Module {
	appName := SanitizeAppName(p.Field(project.FieldAppName))
	buildsystem := p.Field(project.FieldBuildSystem)
	if buildsystem == "" {
		buildsystem = "simple"
	}
	m := Module{Name: appName, Buildsystem: buildsystem}

	if buildsystem == "simple" && p.Vars.SourceType == project.SourceDirectory {
		exe := p.Field(project.FieldExecutable)
		var execCall string
		if strings.HasSuffix(exe, ".py") {
			execCall = fmt.Sprintf("python3 /app/share/%s/%s", appName, exe)
		} else {
			execCall = fmt.Sprintf("exec /app/share/%s/%s", appName, exe)
		}
		m.BuildCommands = []string{
			fmt.Sprintf("install -d /app/share/%s", appName),
			fmt.Sprintf("cp -a ./* /app/share/%s/", appName),
			fmt.Sprintf("install -Dm755 /dev/stdin /app/bin/%s <<'EOF'\n#!/bin/sh\n%s \"$@\"\nEOF", appName, execCall),
		}
	}

	if p.Vars.SourceType == project.SourceArchive {
		m.Sources = []Source{{
			Type:   "archive",
			Path:   filepath.Base(p.Vars.SourcePath),
			SHA256: archiveSHA256,
		}}
	} else {
		m.Sources = []Source{{Type: "dir", Path: p.Vars.SourcePath}}
	}
	return m
}

// ParseModules decodes user-supplied dependency YAML into nodes that are
// re-emitted untouched ahead of the main module. A non-list document is an
// error; an empty document yields nil.
func ParseModules(text string) ([]*yaml.Node, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("MAN_DEPS_PARSE: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	seq := doc.Content[0]
	if seq.Kind == yaml.ScalarNode && seq.Value == "" {
		return nil, nil
	}
	if seq.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("MAN_DEPS_PARSE: dependency YAML must be a list of modules")
	}
	return seq.Content, nil
}

// Build assembles the full manifest for a project. archiveSHA256 is only
// consulted for archive sources.
func Build(p *project.Project, archiveSHA256 string) (Manifest, error) {
	m := Manifest{
		AppID:          p.Field(project.FieldAppID),
		Runtime:        p.Field(project.FieldRuntime),
		RuntimeVersion: p.Field(project.FieldRuntimeVersion),
		SDK:            p.Field(project.FieldSDK),
		Command:        SanitizeAppName(p.Field(project.FieldAppName)),
		FinishArgs:     FinishArgs(p),
	}
	deps, err := ParseModules(p.Field(project.FieldDependencies))
	if err != nil {
		return Manifest{}, err
	}
	for _, d := range deps {
		m.Modules = append(m.Modules, d)
	}
	m.Modules = append(m.Modules, MainModule(p, archiveSHA256))
	return m, nil
}

// Render encodes the manifest as YAML with two-space indentation.
func Render(m Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("MAN_ENCODE: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("MAN_ENCODE: %w", err)
	}
	return buf.Bytes(), nil
}

// DesktopEntry renders the key=value desktop file.
func DesktopEntry(p *project.Project) string {
	category := p.Field(project.FieldCategory)
	if category == "" {
		category = "Utility"
	}
	return fmt.Sprintf(
		"[Desktop Entry]\nName=%s\nComment=%s\nExec=%s\nIcon=%s\nType=Application\nCategories=%s;\n",
		p.Field(project.FieldAppName),
		p.Field(project.FieldSummary),
		SanitizeAppName(p.Field(project.FieldAppName)),
		p.Field(project.FieldAppID),
		category,
	)
}

// BuildScript renders the POSIX build-and-install script.
func BuildScript(appID string) string {
	return "#!/bin/bash\nset -e\n\n# Build and install the application for the current user\n" +
		fmt.Sprintf("flatpak-builder --user --install --force-clean build-dir %s.yml\n", appID)
}

// Readme renders the project README referencing the generated run command.
func Readme(p *project.Project) string {
	return fmt.Sprintf("# %s\n\nBuild with `./build.sh` and run with `flatpak run %s`.\n",
		p.Field(project.FieldAppName), p.Field(project.FieldAppID))
}
