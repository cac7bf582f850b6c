// Package generate writes the full output set for a project: manifest,
// desktop entry, build script, README and copied assets.
package generate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/Grouvya/flatpak-manifest-generator/internal/fsutil"
	"github.com/Grouvya/flatpak-manifest-generator/internal/manifest"
	"github.com/Grouvya/flatpak-manifest-generator/internal/project"
	"github.com/Grouvya/flatpak-manifest-generator/internal/validate"
)

// Output lists everything a Generate call produced.
type Output struct {
	Dir          string   `json:"dir"`
	ManifestPath string   `json:"manifest"`
	DesktopPath  string   `json:"desktop"`
	ScriptPath   string   `json:"script"`
	ReadmePath   string   `json:"readme"`
	IconPath     string   `json:"icon,omitempty"`
	ArchivePath  string   `json:"archive,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

type Generator struct{}

// Run validates the project and writes all files into outDir. The
// directory is created if missing. Validation errors abort before any
// file is written.
func (Generator) Run(p *project.Project, outDir string) (*Output, error) {
	res := validate.Check(p)
	if !res.OK() {
		return nil, fmt.Errorf("GEN_INVALID: %s", res.Errors[0])
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("GEN_MKDIR: %w", err)
	}

	appID := p.Field(project.FieldAppID)
	out := &Output{Dir: outDir, Warnings: res.Warnings}

	var archiveSHA string
	if p.Vars.SourceType == "archive" {
		sum, err := fsutil.SHA256File(p.Vars.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("GEN_ARCHIVE_HASH: %w", err)
		}
		archiveSHA = sum
	}

	m, err := manifest.Build(p, archiveSHA)
	if err != nil {
		return nil, err
	}
	raw, err := manifest.Render(m)
	if err != nil {
		return nil, err
	}
	out.ManifestPath = filepath.Join(outDir, appID+".yml")
	if err := fsutil.AtomicWrite(out.ManifestPath, raw, 0o644); err != nil {
		return nil, fmt.Errorf("GEN_WRITE_MANIFEST: %w", err)
	}

	out.DesktopPath = filepath.Join(outDir, appID+".desktop")
	if err := fsutil.AtomicWrite(out.DesktopPath, []byte(manifest.DesktopEntry(p)), 0o644); err != nil {
		return nil, fmt.Errorf("GEN_WRITE_DESKTOP: %w", err)
	}

	out.ScriptPath = filepath.Join(outDir, "build.sh")
	if err := fsutil.AtomicWrite(out.ScriptPath, []byte(manifest.BuildScript(appID)), 0o755); err != nil {
		return nil, fmt.Errorf("GEN_WRITE_SCRIPT: %w", err)
	}

	out.ReadmePath = filepath.Join(outDir, "README.md")
	if err := fsutil.AtomicWrite(out.ReadmePath, []byte(manifest.Readme(p)), 0o644); err != nil {
		return nil, fmt.Errorf("GEN_WRITE_README: %w", err)
	}

	if p.Vars.IconPath != "" {
		dst := filepath.Join(outDir, filepath.Base(p.Vars.IconPath))
		if err := fsutil.CopyFile(p.Vars.IconPath, dst); err != nil {
			return nil, fmt.Errorf("GEN_COPY_ICON: %w", err)
		}
		out.IconPath = dst
	}

	if p.Vars.SourceType == "archive" {
		dst := filepath.Join(outDir, filepath.Base(p.Vars.SourcePath))
		if err := fsutil.CopyFile(p.Vars.SourcePath, dst); err != nil {
			return nil, fmt.Errorf("GEN_COPY_ARCHIVE: %w", err)
		}
		out.ArchivePath = dst
	}

	log.Info().Str("dir", outDir).Str("app_id", appID).Msg("files generated")
	return out, nil
}

// ExportManifest writes only the rendered manifest to path.
func (Generator) ExportManifest(p *project.Project, path string) error {
	res := validate.Check(p)
	if !res.OK() {
		return fmt.Errorf("GEN_INVALID: %s", res.Errors[0])
	}
	var archiveSHA string
	if p.Vars.SourceType == "archive" {
		sum, err := fsutil.SHA256File(p.Vars.SourcePath)
		if err != nil {
			return fmt.Errorf("GEN_ARCHIVE_HASH: %w", err)
		}
		archiveSHA = sum
	}
	m, err := manifest.Build(p, archiveSHA)
	if err != nil {
		return err
	}
	raw, err := manifest.Render(m)
	if err != nil {
		return err
	}
	if err := fsutil.AtomicWrite(path, raw, 0o644); err != nil {
		return fmt.Errorf("GEN_WRITE_MANIFEST: %w", err)
	}
	return nil
}
