// Package app wires the generator's services behind one entry point
// shared by the CLI commands and the wizard.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Grouvya/flatpak-manifest-generator/internal/audit"
	"github.com/Grouvya/flatpak-manifest-generator/internal/config"
	"github.com/Grouvya/flatpak-manifest-generator/internal/doctor"
	"github.com/Grouvya/flatpak-manifest-generator/internal/execstream"
	"github.com/Grouvya/flatpak-manifest-generator/internal/flatpak"
	"github.com/Grouvya/flatpak-manifest-generator/internal/generate"
	"github.com/Grouvya/flatpak-manifest-generator/internal/manifest"
	"github.com/Grouvya/flatpak-manifest-generator/internal/project"
	"github.com/Grouvya/flatpak-manifest-generator/internal/pydeps"
	storepkg "github.com/Grouvya/flatpak-manifest-generator/internal/store"
	"github.com/Grouvya/flatpak-manifest-generator/internal/validate"
)

type Options struct {
	ConfigPath string
	// StateRoot overrides the configured storage root when non-empty.
	StateRoot string
	// Runner overrides the flatpak query runner, used by tests.
	Runner flatpak.Runner
}

type Service struct {
	ConfigPath string
	Config     config.Config
	StateRoot  string

	Client *flatpak.Client
	Exec   *execstream.Runner
	Doctor *doctor.Service
	Audit  *audit.Logger

	// lookPath resolves build tools before a session starts; tests
	// replace it.
	lookPath func(name string) (string, error)
}

func New(opts Options) (*Service, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Ensure(configPath)
	if err != nil {
		return nil, err
	}

	stateRoot := opts.StateRoot
	if stateRoot == "" {
		stateRoot, err = config.ResolveRoot(cfg.Storage.Root)
		if err != nil {
			return nil, err
		}
	}
	if err := storepkg.EnsureLayout(stateRoot); err != nil {
		return nil, err
	}

	client := flatpak.NewClient()
	if opts.Runner != nil {
		client = flatpak.NewClientWithRunner(opts.Runner)
	}
	logger := audit.New(storepkg.AuditPath(stateRoot))
	return &Service{
		ConfigPath: configPath,
		Config:     cfg,
		StateRoot:  stateRoot,
		Client:     client,
		Exec:       execstream.New(),
		Doctor:     &doctor.Service{ConfigPath: configPath, StateRoot: stateRoot, Client: client},
		Audit:      logger,
		lookPath:   flatpak.FindExecutable,
	}, nil
}

func (s *Service) SaveConfig() error {
	return config.Save(s.ConfigPath, s.Config)
}

// NewProject returns a project seeded with the configured defaults.
func (s *Service) NewProject() *project.Project {
	p := project.New()
	d := s.Config.Defaults
	if d.Runtime != "" {
		p.SetField(project.FieldRuntime, d.Runtime)
		p.SetField(project.FieldRuntimeVersion, d.RuntimeVersion)
		p.SetField(project.FieldSDK, d.SDK)
		p.SetField(project.FieldSDKVersion, d.SDKVersion)
	}
	if d.BuildSystem != "" {
		p.SetField(project.FieldBuildSystem, d.BuildSystem)
	}
	return p
}

// SavePath maps a project name to its save file under the state root.
func (s *Service) SavePath(name string) string {
	return filepath.Join(storepkg.SavesRoot(s.StateRoot), name+".json")
}

func (s *Service) SaveProject(p *project.Project, name string) error {
	return project.Save(s.SavePath(name), p)
}

func (s *Service) LoadProject(name string) (*project.Project, error) {
	return project.Load(s.SavePath(name))
}

// SavedProjects lists the names of save files under the state root.
func (s *Service) SavedProjects() ([]string, error) {
	entries, err := os.ReadDir(storepkg.SavesRoot(s.StateRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("PRJ_LIST: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name()[:len(e.Name())-len(".json")])
	}
	return names, nil
}

func (s *Service) Validate(p *project.Project) validate.Result {
	return validate.Check(p)
}

func (s *Service) Generate(p *project.Project, outDir string) (*generate.Output, error) {
	out, err := generate.Generator{}.Run(p, outDir)
	appID := p.Field(project.FieldAppID)
	if err != nil {
		s.Audit.Fail(audit.OpGenerate, appID, err)
		return nil, err
	}
	s.Audit.OK(audit.OpGenerate, appID, map[string]string{"dir": outDir})
	return out, nil
}

func (s *Service) ExportManifest(p *project.Project, path string) error {
	appID := p.Field(project.FieldAppID)
	if err := (generate.Generator{}).ExportManifest(p, path); err != nil {
		s.Audit.Fail(audit.OpExport, appID, err)
		return err
	}
	s.Audit.OK(audit.OpExport, appID, map[string]string{"path": path})
	return nil
}

// ScanDeps walks the project source and returns likely third-party
// Python imports.
func (s *Service) ScanDeps(p *project.Project) (pydeps.Result, error) {
	res, err := pydeps.Scan(p.Vars.SourcePath)
	if err != nil {
		s.Audit.Fail(audit.OpDepsScan, p.Field(project.FieldAppID), err)
		return res, err
	}
	s.Audit.OK(audit.OpDepsScan, p.Field(project.FieldAppID), map[string]string{
		"found": fmt.Sprintf("%d", len(res.Requirements)),
	})
	return res, nil
}

// DepsModuleFragment renders the pip module YAML for a requirement list.
func (s *Service) DepsModuleFragment(reqs []string) (string, error) {
	return pydeps.ModuleFragment(reqs)
}

// ApplyDepsModule writes requirements.txt next to the sources and
// appends the pip module fragment to the project's dependency text.
func (s *Service) ApplyDepsModule(p *project.Project, reqs []string) error {
	if len(reqs) == 0 {
		return nil
	}
	path := pydeps.RequirementsPath(p.Vars.SourcePath)
	if err := pydeps.WriteRequirements(path, reqs); err != nil {
		return err
	}
	fragment, err := pydeps.ModuleFragment(reqs)
	if err != nil {
		return err
	}
	existing := p.Field(project.FieldDependencies)
	if existing != "" {
		fragment = existing + "\n" + fragment
	}
	if _, err := manifest.ParseModules(fragment); err != nil {
		return err
	}
	p.SetField(project.FieldDependencies, fragment)
	if !p.Perm(project.PermNetwork) {
		p.SetPerm(project.PermNetwork, true)
	}
	return nil
}

// RefreshRefs queries installed flatpak refs and rewrites the cache.
func (s *Service) RefreshRefs(ctx context.Context) (*flatpak.Cache, error) {
	cache, queryErr := s.Client.Refresh(ctx)
	if err := flatpak.SaveCache(storepkg.RefsCachePath(s.StateRoot), cache); err != nil {
		return nil, err
	}
	if queryErr != nil {
		s.Audit.Fail(audit.OpRefresh, "", queryErr)
		return cache, queryErr
	}
	s.Audit.OK(audit.OpRefresh, "", nil)
	return cache, nil
}

// Refs loads the cached installed refs, refreshing on a cache miss.
func (s *Service) Refs(ctx context.Context) (*flatpak.Cache, error) {
	cache, err := flatpak.LoadCache(storepkg.RefsCachePath(s.StateRoot))
	if err != nil {
		return nil, err
	}
	if len(cache.Runtimes) == 0 && len(cache.Sdks) == 0 {
		// Query errors are tolerable here: the static fallback table
		// still drives completion.
		if refreshed, _ := s.RefreshRefs(ctx); refreshed != nil {
			return refreshed, nil
		}
	}
	return cache, nil
}

// CheckSDK reports whether the project's SDK is installed for the host
// architecture.
func (s *Service) CheckSDK(ctx context.Context, p *project.Project) (bool, error) {
	sdk := p.Field(project.FieldSDK)
	version := p.Field(project.FieldSDKVersion)
	return s.Client.HasRef(ctx, sdk, flatpak.SystemArch(), version)
}

// InstallSDK starts a streamed flatpak install for the project's SDK.
// The configured remote must exist before anything is spawned.
func (s *Service) InstallSDK(ctx context.Context, p *project.Project) (*execstream.Session, error) {
	appID := p.Field(project.FieldAppID)
	remote := s.Config.Flatpak.Remote
	ok, err := s.Client.HasRemote(ctx, remote)
	if err != nil {
		s.Audit.Fail(audit.OpSDKInstall, appID, err)
		return nil, err
	}
	if !ok {
		err := fmt.Errorf("FPK_REMOTE_MISSING: remote %q is not configured\n%s",
			remote, flatpak.RemediationMissingRemote)
		s.Audit.Fail(audit.OpSDKInstall, appID, err)
		return nil, err
	}
	tool, err := s.lookPath("flatpak")
	if err != nil {
		s.Audit.Fail(audit.OpSDKInstall, appID, err)
		return nil, err
	}
	sdk := p.Field(project.FieldSDK)
	version := p.Field(project.FieldSDKVersion)
	args := flatpak.InstallSDKArgs(remote, sdk, version)
	session, err := s.Exec.Start(ctx, tool, args...)
	if err != nil {
		s.Audit.Fail(audit.OpSDKInstall, appID, err)
		return nil, err
	}
	s.Audit.OK(audit.OpSDKInstall, appID, map[string]string{
		"ref": sdk + "//" + version,
	})
	return session, nil
}

// Build starts a streamed flatpak-builder run for a generated manifest.
func (s *Service) Build(ctx context.Context, appID, projectDir string) (*execstream.Session, error) {
	manifestPath := filepath.Join(projectDir, appID+".yml")
	if _, err := os.Stat(manifestPath); err != nil {
		return nil, fmt.Errorf("APP_MANIFEST_MISSING: %w", err)
	}
	tool, err := s.lookPath("flatpak-builder")
	if err != nil {
		s.Audit.Fail(audit.OpBuild, appID, err)
		return nil, err
	}
	buildDir := filepath.Join(projectDir, "build-dir")
	args := flatpak.BuildArgs(buildDir, manifestPath)
	session, err := s.Exec.Start(ctx, tool, args...)
	if err != nil {
		s.Audit.Fail(audit.OpBuild, appID, err)
		return nil, err
	}
	s.Audit.OK(audit.OpBuild, appID, map[string]string{"dir": projectDir})
	return session, nil
}

// RunApp launches an installed app detached from this process.
func (s *Service) RunApp(appID string) error {
	if err := flatpak.RunApp(appID); err != nil {
		s.Audit.Fail(audit.OpRun, appID, err)
		return err
	}
	s.Audit.OK(audit.OpRun, appID, nil)
	return nil
}

// Shutdown terminates any in-flight external process.
func (s *Service) Shutdown() {
	s.Exec.Terminate()
}
