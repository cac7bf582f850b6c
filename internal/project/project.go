// Package project holds the form state of one packaging project: the field
// values collected by the wizard, the auxiliary source/icon variables, and
// the permission toggles. A project round-trips losslessly through its JSON
// save file.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Grouvya/flatpak-manifest-generator/internal/fsutil"
)

// SourceType declares how the application source is provided.
type SourceType string

const (
	SourceDirectory SourceType = "directory"
	SourceArchive   SourceType = "archive"
)

// Field keys. The save-file schema stores field values keyed by these names.
const (
	FieldAppID          = "appId"
	FieldAppName        = "appName"
	FieldAuthor         = "author"
	FieldSummary        = "summary"
	FieldCategory       = "category"
	FieldRuntime        = "runtime"
	FieldRuntimeVersion = "runtimeVersion"
	FieldSDK            = "sdk"
	FieldSDKVersion     = "sdkVersion"
	FieldBuildSystem    = "buildSystem"
	FieldExecutable     = "executable"
	FieldDependencies   = "dependencies"
	FieldSystemDeps     = "systemDeps"
	FieldCustomPerms    = "customPerms"
)

// Permission keys for the sandbox toggles.
const (
	PermHome       = "home"
	PermHost       = "host"
	PermDRI        = "dri"
	PermUSB        = "usb"
	PermPulseAudio = "pulseaudio"
	PermNetwork    = "network"
	PermX11        = "x11"
	PermWayland    = "wayland"
)

// Vars are the auxiliary variables kept outside the field map.
type Vars struct {
	SourcePath string     `json:"source_path"`
	IconPath   string     `json:"icon_path"`
	SourceType SourceType `json:"source_type"`
}

// Project is the complete form state. Fields and Perms always contain an
// entry for every known key so that save files stay stable across versions.
type Project struct {
	Fields map[string]string `json:"fields"`
	Vars   Vars              `json:"vars"`
	Perms  map[string]bool   `json:"perms"`
}

// New returns a project with the defaults the wizard starts from: directory
// source, simple buildsystem, and the GPU/network/display toggles enabled.
func New() *Project {
	p := &Project{
		Fields: map[string]string{},
		Vars:   Vars{SourceType: SourceDirectory},
		Perms:  map[string]bool{},
	}
	for _, k := range FieldKeys() {
		p.Fields[k] = ""
	}
	p.Fields[FieldBuildSystem] = "simple"
	for _, k := range PermKeys() {
		p.Perms[k] = false
	}
	p.Perms[PermDRI] = true
	p.Perms[PermNetwork] = true
	p.Perms[PermX11] = true
	p.Perms[PermWayland] = true
	return p
}

// FieldKeys lists every field key in form order.
func FieldKeys() []string {
	return []string{
		FieldAppID, FieldAppName, FieldAuthor, FieldSummary, FieldCategory,
		FieldRuntime, FieldRuntimeVersion, FieldSDK, FieldSDKVersion,
		FieldBuildSystem, FieldExecutable, FieldDependencies, FieldSystemDeps,
		FieldCustomPerms,
	}
}

// PermKeys lists every permission toggle key in form order.
func PermKeys() []string {
	return []string{
		PermHome, PermHost, PermDRI, PermUSB, PermPulseAudio,
		PermNetwork, PermX11, PermWayland,
	}
}

// Field returns the trimmed value of a field, or "" for unknown keys.
func (p *Project) Field(key string) string {
	return strings.TrimSpace(p.Fields[key])
}

// SetField stores a field value, creating the map on first use.
func (p *Project) SetField(key, value string) {
	if p.Fields == nil {
		p.Fields = map[string]string{}
	}
	p.Fields[key] = value
}

// Perm reports whether a permission toggle is set.
func (p *Project) Perm(key string) bool { return p.Perms[key] }

// SetPerm flips a permission toggle.
func (p *Project) SetPerm(key string, on bool) {
	if p.Perms == nil {
		p.Perms = map[string]bool{}
	}
	p.Perms[key] = on
}

// Load reads a project save file.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("PRJ_PARSE: %w", err)
	}
	if p.Fields == nil {
		p.Fields = map[string]string{}
	}
	if p.Perms == nil {
		p.Perms = map[string]bool{}
	}
	if p.Vars.SourceType == "" {
		p.Vars.SourceType = SourceDirectory
	}
	return &p, nil
}

// Save writes the project atomically as indented JSON.
func Save(path string, p *Project) error {
	blob, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return fmt.Errorf("PRJ_ENCODE: %w", err)
	}
	return fsutil.AtomicWrite(path, blob, 0o644)
}
