// Package flatpak wraps the external flatpak and flatpak-builder command
// line tools: executable lookup, remote and installed-ref queries, SDK
// installation preflight, and application launch.
package flatpak

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
)

// fallbackSearchDirs are consulted when PATH lookup fails.
var fallbackSearchDirs = []string{"/usr/bin", "/bin", "/usr/local/bin"}

// Runner executes an external command and captures its combined output.
// The seam keeps every query testable without a flatpak installation.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", err, msg)
	}
	return out, nil
}

// Client issues queries against the local flatpak installation.
type Client struct {
	runner Runner
}

// NewClient returns a client backed by real subprocess execution.
func NewClient() *Client { return &Client{runner: execRunner{}} }

// NewClientWithRunner returns a client with a custom runner, for tests.
func NewClientWithRunner(r Runner) *Client { return &Client{runner: r} }

// FindExecutable locates a tool via PATH, then the user bin directory, then
// the documented fallback system directories.
func FindExecutable(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		log.Debug().Str("tool", name).Str("path", path).Msg("found executable via PATH")
		return path, nil
	}
	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".local", "bin", name))
	}
	for _, dir := range fallbackSearchDirs {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode().Perm()&0o111 != 0 {
			log.Debug().Str("tool", name).Str("path", candidate).Msg("found executable in fallback dir")
			return candidate, nil
		}
	}
	return "", fmt.Errorf("FPK_TOOL_MISSING: %s not found in PATH or common locations", name)
}

// Remotes returns the configured flatpak remote names.
func (c *Client) Remotes(ctx context.Context) ([]string, error) {
	out, err := c.runner.Output(ctx, "flatpak", "remotes", "--columns=name")
	if err != nil {
		return nil, fmt.Errorf("FPK_REMOTES: %w", err)
	}
	return strings.Fields(string(out)), nil
}

// HasRemote reports whether the named remote is configured.
func (c *Client) HasRemote(ctx context.Context, name string) (bool, error) {
	remotes, err := c.Remotes(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range remotes {
		if r == name {
			return true, nil
		}
	}
	return false, nil
}

// InstalledRefs lists installed runtimes and SDKs as name -> branches.
// Refs ending in .Sdk are SDKs, refs ending in .Platform are runtimes;
// anything else (extensions, locales) is ignored.
func (c *Client) InstalledRefs(ctx context.Context) (runtimes, sdks map[string][]string, err error) {
	out, err := c.runner.Output(ctx, "flatpak", "list", "--runtime", "--columns=application,branch")
	if err != nil {
		return nil, nil, fmt.Errorf("FPK_LIST_REFS: %w", err)
	}
	runtimes, sdks = map[string][]string{}, map[string][]string{}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		ref, branch, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if !ok {
			continue
		}
		switch {
		case strings.HasSuffix(ref, ".Sdk"):
			sdks[ref] = appendUnique(sdks[ref], branch)
		case strings.HasSuffix(ref, ".Platform"):
			runtimes[ref] = appendUnique(runtimes[ref], branch)
		}
	}
	return runtimes, sdks, nil
}

// HasRef reports whether a specific runtime ref (name/arch/version) is
// installed.
func (c *Client) HasRef(ctx context.Context, name, arch, version string) (bool, error) {
	out, err := c.runner.Output(ctx, "flatpak", "list", "--runtime", "--columns=ref")
	if err != nil {
		return false, fmt.Errorf("FPK_LIST_REFS: %w", err)
	}
	want := name + "/" + arch + "/" + version
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, want) {
			return true, nil
		}
	}
	return false, nil
}

// InstallSDKArgs is the fixed argument vector for a user-level SDK install
// from the given remote.
func InstallSDKArgs(remote, sdk, version string) []string {
	return []string{"--user", "install", "--assumeyes", remote, sdk + "//" + version}
}

// BuildArgs is the fixed argument vector for a build-and-install run.
func BuildArgs(buildDir, manifestPath string) []string {
	return []string{"--user", "--install", "--force-clean", buildDir, manifestPath}
}

// RunApp launches an installed application detached from the generator.
func RunApp(appID string) error {
	cmd := exec.Command("flatpak", "run", appID)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("FPK_RUN: %w", err)
	}
	return cmd.Process.Release()
}

// SystemArch maps the Go architecture to flatpak's naming.
func SystemArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "arm":
		return "arm"
	case "386":
		return "x86_32"
	default:
		return runtime.GOARCH
	}
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}
