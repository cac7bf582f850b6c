package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Grouvya/flatpak-manifest-generator/internal/app"
	"github.com/Grouvya/flatpak-manifest-generator/internal/applog"
	"github.com/Grouvya/flatpak-manifest-generator/internal/execstream"
	"github.com/Grouvya/flatpak-manifest-generator/internal/flatpak"
	"github.com/Grouvya/flatpak-manifest-generator/internal/project"
	"github.com/Grouvya/flatpak-manifest-generator/internal/pydeps"
	"github.com/Grouvya/flatpak-manifest-generator/internal/tui"
)

type ExitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

// activeSvc is the service owned by the running command; a crash must
// still terminate any build child it started.
var activeSvc *app.Service

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("uncaught error")
			if activeSvc != nil {
				activeSvc.Shutdown()
			}
			fmt.Fprintf(os.Stderr, "fatal error: %v\n", r)
			os.Exit(1)
		}
	}()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ex, ok := err.(ExitCoder); ok {
			os.Exit(ex.ExitCode())
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var jsonOutput bool

	newSvc := func() (*app.Service, error) {
		svc, err := app.New(app.Options{ConfigPath: configPath})
		if err != nil {
			return nil, err
		}
		logDir := os.TempDir() + "/flatpak-generator"
		if err := applog.Init(logDir, svc.Config.Logging.Level, svc.Config.Logging.Format); err != nil {
			return nil, err
		}
		activeSvc = svc
		return svc, nil
	}

	cmd := &cobra.Command{
		Use:           "fmgen",
		Short:         "Generate, build and run flatpak manifests for desktop apps",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(newWizardCmd(newSvc))
	cmd.AddCommand(newValidateCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newGenerateCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newExportCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newDepsCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newSDKCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newBuildCmd(newSvc))
	cmd.AddCommand(newRunCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newProjectCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newDoctorCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newVersionCmd(&jsonOutput))

	return cmd
}

// projectFlags resolves the project a command operates on, either a
// named save under the state root or an explicit JSON file.
type projectFlags struct {
	name string
	file string
}

func (f *projectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "project", "p", "", "named save to load")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "project JSON file to load")
}

func (f *projectFlags) load(svc *app.Service) (*project.Project, error) {
	switch {
	case f.file != "":
		return project.Load(f.file)
	case f.name != "":
		return svc.LoadProject(f.name)
	}
	return nil, fmt.Errorf("CLI_NO_PROJECT: pass --project <name> or --file <path>")
}

func newWizardCmd(newSvc func() (*app.Service, error)) *cobra.Command {
	var flags projectFlags
	var outDir string
	var saveAs string
	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Interactive manifest wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			var proj *project.Project
			if flags.name != "" || flags.file != "" {
				if proj, err = flags.load(svc); err != nil {
					return err
				}
			} else {
				proj = svc.NewProject()
			}
			if outDir == "" {
				outDir = "."
			}
			if err := tui.Run(svc, proj, outDir); err != nil {
				return err
			}
			if saveAs != "" {
				return svc.SaveProject(proj, saveAs)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default current directory)")
	cmd.Flags().StringVar(&saveAs, "save-as", "", "save the project state under this name on exit")
	return cmd
}

func newValidateCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var flags projectFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a project configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			proj, err := flags.load(svc)
			if err != nil {
				return err
			}
			res := svc.Validate(proj)
			if *jsonOutput {
				return print(true, res, "")
			}
			for _, w := range res.Warnings {
				fmt.Println("warning: " + w)
			}
			if res.OK() {
				fmt.Println("valid")
				return nil
			}
			for _, e := range res.Errors {
				fmt.Println("error: " + e)
			}
			return &exitError{code: 1, msg: fmt.Sprintf("%d validation errors", len(res.Errors))}
		},
	}
	flags.register(cmd)
	return cmd
}

func newGenerateCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var flags projectFlags
	var outDir string
	var yes bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write manifest, desktop entry, build script and README",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			proj, err := flags.load(svc)
			if err != nil {
				return err
			}
			if res := svc.Validate(proj); len(res.Warnings) > 0 && !yes {
				for _, w := range res.Warnings {
					fmt.Println("warning: " + w)
				}
				return &exitError{code: 1, msg: "warnings present, re-run with --yes to proceed"}
			}
			out, err := svc.Generate(proj, outDir)
			if err != nil {
				return err
			}
			return print(*jsonOutput, out, "files generated in "+out.Dir)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "proceed despite warnings")
	return cmd
}

func newExportCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var flags projectFlags
	var outFile string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write only the YAML manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			proj, err := flags.load(svc)
			if err != nil {
				return err
			}
			if outFile == "" {
				outFile = proj.Field(project.FieldAppID) + ".yml"
			}
			if err := svc.ExportManifest(proj, outFile); err != nil {
				return err
			}
			return print(*jsonOutput, map[string]string{"manifest": outFile}, "manifest written to "+outFile)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default <app-id>.yml)")
	return cmd
}

func newDepsCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	depsCmd := &cobra.Command{Use: "deps", Short: "Python dependency helpers"}

	var scanFlags projectFlags
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the project sources for third-party Python imports",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			proj, err := scanFlags.load(svc)
			if err != nil {
				return err
			}
			res, err := svc.ScanDeps(proj)
			if err != nil {
				return err
			}
			if len(res.Requirements) > 0 {
				reqPath := pydeps.RequirementsPath(proj.Vars.SourcePath)
				if err := pydeps.WriteRequirements(reqPath, res.Requirements); err != nil {
					return err
				}
			}
			if *jsonOutput {
				return print(true, res, "")
			}
			if len(res.Requirements) == 0 {
				fmt.Println("no third-party imports found")
				return nil
			}
			fmt.Println(strings.Join(res.Requirements, "\n"))
			for _, s := range res.Skipped {
				fmt.Println("skipped unreadable file: " + s)
			}
			return nil
		},
	}
	scanFlags.register(scanCmd)

	var moduleFlags projectFlags
	var apply bool
	moduleCmd := &cobra.Command{
		Use:   "module",
		Short: "Emit a pip module for the scanned dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			proj, err := moduleFlags.load(svc)
			if err != nil {
				return err
			}
			// An existing requirements.txt wins over a fresh scan, matching
			// the checked-in file the user may have curated.
			reqPath := pydeps.RequirementsPath(proj.Vars.SourcePath)
			reqs, err := pydeps.ReadRequirements(reqPath)
			if err != nil {
				res, scanErr := svc.ScanDeps(proj)
				if scanErr != nil {
					return scanErr
				}
				reqs = res.Requirements
			}
			if len(reqs) == 0 {
				fmt.Println("no third-party imports found")
				return nil
			}
			if apply {
				if err := svc.ApplyDepsModule(proj, reqs); err != nil {
					return err
				}
				if moduleFlags.name != "" {
					if err := svc.SaveProject(proj, moduleFlags.name); err != nil {
						return err
					}
				}
				return print(*jsonOutput, reqs, "pip module added for: "+strings.Join(reqs, ", "))
			}
			fragment, err := svc.DepsModuleFragment(reqs)
			if err != nil {
				return err
			}
			fmt.Print(fragment)
			return nil
		},
	}
	moduleFlags.register(moduleCmd)
	moduleCmd.Flags().BoolVar(&apply, "apply", false, "append the module to the project's dependency text")

	depsCmd.AddCommand(scanCmd)
	depsCmd.AddCommand(moduleCmd)
	return depsCmd
}

func newSDKCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	sdkCmd := &cobra.Command{Use: "sdk", Short: "Inspect and install runtimes and SDKs"}

	listCmd := &cobra.Command{
		Use:   "list [name]",
		Short: "List known runtimes and SDKs with their versions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			cache, err := svc.Refs(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				versions := cache.Versions(args[0])
				if *jsonOutput {
					return print(true, versions, "")
				}
				fmt.Println(strings.Join(versions, "\n"))
				return nil
			}
			listing := map[string][]string{}
			for _, name := range cache.RuntimeNames() {
				listing[name] = cache.Versions(name)
			}
			for _, name := range cache.SDKNames() {
				listing[name] = cache.Versions(name)
			}
			if *jsonOutput {
				return print(true, listing, "")
			}
			for _, name := range append(cache.RuntimeNames(), cache.SDKNames()...) {
				fmt.Printf("%s: %s\n", name, strings.Join(listing[name], ", "))
			}
			return nil
		},
	}

	var installFlags projectFlags
	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install the project's SDK from the configured remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			proj, err := installFlags.load(svc)
			if err != nil {
				return err
			}
			installed, err := svc.CheckSDK(cmd.Context(), proj)
			if err == nil && installed {
				fmt.Println("SDK already installed")
				return nil
			}
			session, err := svc.InstallSDK(cmd.Context(), proj)
			if err != nil {
				return err
			}
			return streamSession(session, flatpak.RemediationSDKInstall)
		},
	}
	installFlags.register(installCmd)

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the installed-refs cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			cache, err := svc.RefreshRefs(cmd.Context())
			if err != nil {
				return err
			}
			return print(*jsonOutput, cache, fmt.Sprintf("cached %d runtimes, %d SDKs", len(cache.Runtimes), len(cache.Sdks)))
		},
	}

	sdkCmd.AddCommand(listCmd)
	sdkCmd.AddCommand(installCmd)
	sdkCmd.AddCommand(refreshCmd)
	return sdkCmd
}

func newBuildCmd(newSvc func() (*app.Service, error)) *cobra.Command {
	var flags projectFlags
	var dir string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build and install a generated project with flatpak-builder",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			proj, err := flags.load(svc)
			if err != nil {
				return err
			}
			appID := proj.Field(project.FieldAppID)
			manifestPath := filepath.Join(dir, appID+".yml")
			if _, statErr := os.Stat(manifestPath); statErr != nil {
				if _, err := svc.Generate(proj, dir); err != nil {
					return err
				}
				fmt.Println("files generated in " + dir)
			}
			session, err := svc.Build(cmd.Context(), appID, dir)
			if err != nil {
				return err
			}
			return streamSession(session, flatpak.RemediationBuild)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&dir, "out", "o", ".", "directory holding the generated files")
	return cmd
}

func newRunCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var inTerminal bool
	cmd := &cobra.Command{
		Use:   "run <app-id>",
		Short: "Launch an installed application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			if inTerminal {
				term, err := flatpak.FindTerminal(preferredTerminals(svc))
				if err != nil {
					return err
				}
				if err := flatpak.RunInTerminal(term, "flatpak run "+args[0]); err != nil {
					return err
				}
				return print(*jsonOutput, map[string]string{"launched": args[0], "terminal": term}, "launched "+args[0]+" in "+term)
			}
			if err := svc.RunApp(args[0]); err != nil {
				return err
			}
			return print(*jsonOutput, map[string]string{"launched": args[0]}, "launched "+args[0])
		},
	}
	cmd.Flags().BoolVarP(&inTerminal, "terminal", "t", false, "run inside a terminal emulator")
	return cmd
}

func preferredTerminals(svc *app.Service) []string {
	if svc.Config.Flatpak.Terminal != "" {
		return []string{svc.Config.Flatpak.Terminal}
	}
	return nil
}

func newProjectCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	projectCmd := &cobra.Command{Use: "project", Short: "Manage saved projects"}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			names, err := svc.SavedProjects()
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, names, "")
			}
			if len(names) == 0 {
				fmt.Println("no saved projects")
				return nil
			}
			fmt.Println(strings.Join(names, "\n"))
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <name> <file>",
		Short: "Import a project JSON file as a named save",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			proj, err := project.Load(args[1])
			if err != nil {
				return err
			}
			if err := svc.SaveProject(proj, args[0]); err != nil {
				return err
			}
			return print(*jsonOutput, map[string]string{"imported": args[0]}, "imported "+args[0])
		},
	}

	projectCmd.AddCommand(listCmd)
	projectCmd.AddCommand(importCmd)
	return projectCmd
}

func newDoctorCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"diag"},
		Short:   "Check the host for flatpak tooling",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			report := svc.Doctor.Run(context.Background())
			if *jsonOutput {
				return print(true, report, "")
			}
			if report.Healthy {
				fmt.Println("healthy")
				return nil
			}
			fmt.Println("issues found:")
			for _, f := range report.Findings {
				fmt.Printf("- [%s] %s\n", f.Code, f.Message)
			}
			return &exitError{code: 1, msg: "doctor found problems"}
		},
	}
}

func newVersionCmd(jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version": versionString,
				"commit":  commitString,
				"date":    dateString,
			}
			if *jsonOutput {
				return print(true, info, "")
			}
			fmt.Printf("fmgen %s\ncommit: %s\nbuilt at: %s\n", versionString, commitString, dateString)
			return nil
		},
	}
}

// streamSession echoes a session's output lines and converts a non-zero
// exit into a process exit code.
func streamSession(session *execstream.Session, remediation string) error {
	fmt.Println("$ " + session.Command)
	exitCode := 0
	for ev := range session.Events {
		if ev.Line != "" {
			fmt.Println(ev.Line)
		}
		if ev.Final {
			exitCode = ev.ExitCode
		}
	}
	if exitCode != 0 {
		fmt.Fprintln(os.Stderr, remediation)
		return &exitError{code: exitCode, msg: fmt.Sprintf("command failed with exit code %d", exitCode)}
	}
	return nil
}

func print(jsonOutput bool, payload any, message string) error {
	if jsonOutput {
		blob, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
		return nil
	}
	if message != "" {
		fmt.Println(message)
	}
	return nil
}
