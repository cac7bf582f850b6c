// Package pydeps scans a Python source tree for third-party imports and
// turns the result into a requirements list and, optionally, a single
// pip-install manifest module. The aggregated module keeps generated
// manifests compatible with flatpak-builder versions that lack a native
// per-package dependency source type.
package pydeps

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	_ "embed"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Grouvya/flatpak-manifest-generator/internal/fsutil"
	"github.com/Grouvya/flatpak-manifest-generator/internal/manifest"
)

//go:embed stdlib_modules.txt
var stdlibRaw string

var stdlibModules = func() map[string]struct{} {
	set := map[string]struct{}{}
	for _, line := range strings.Split(stdlibRaw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			set[line] = struct{}{}
		}
	}
	return set
}()

var (
	importRe = regexp.MustCompile(`^\s*import\s+(.+)$`)
	fromRe   = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`)
	identRe  = regexp.MustCompile(`^\w+$`)
)

// Result holds the outcome of one scan.
type Result struct {
	Requirements []string // sorted, deduplicated third-party root modules
	Skipped      []string // files that could not be read
}

// Scan walks every .py file under sourceDir, collects the root module of
// each import statement, and subtracts the Python standard library. A file
// that cannot be read is skipped with a logged warning, not fatal.
func Scan(sourceDir string) (Result, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return Result{}, fmt.Errorf("DEP_SCAN_DIR: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("DEP_SCAN_DIR: %s is not a directory", sourceDir)
	}

	imports := map[string]struct{}{}
	var skipped []string
	err = filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("skipping unreadable source file")
			skipped = append(skipped, path)
			return nil
		}
		for _, mod := range parseImports(data) {
			imports[mod] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("DEP_SCAN_WALK: %w", err)
	}

	var reqs []string
	for mod := range imports {
		if _, std := stdlibModules[mod]; !std {
			reqs = append(reqs, mod)
		}
	}
	sort.Strings(reqs)
	return Result{Requirements: reqs, Skipped: skipped}, nil
}

// parseImports extracts root module names from plain and "from" import
// statements. Relative imports (leading dot) name modules inside the
// project itself and are ignored.
func parseImports(src []byte) []string {
	var mods []string
	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := fromRe.FindStringSubmatch(line); m != nil {
			if root := rootModule(m[1]); root != "" {
				mods = append(mods, root)
			}
			continue
		}
		if m := importRe.FindStringSubmatch(line); m != nil {
			for _, part := range strings.Split(m[1], ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				// "import a.b as c" — the module is the token before "as".
				if fields := strings.Fields(part); len(fields) > 0 {
					if root := rootModule(fields[0]); root != "" {
						mods = append(mods, root)
					}
				}
			}
		}
	}
	return mods
}

func rootModule(dotted string) string {
	if strings.HasPrefix(dotted, ".") {
		return ""
	}
	root, _, _ := strings.Cut(dotted, ".")
	if root == "" || !identRe.MatchString(root) {
		return ""
	}
	return root
}

// RequirementsPath returns the conventional requirements.txt location for a
// source directory.
func RequirementsPath(sourceDir string) string {
	return filepath.Join(sourceDir, "requirements.txt")
}

// WriteRequirements writes the newline-separated package list.
func WriteRequirements(path string, reqs []string) error {
	return fsutil.AtomicWrite(path, []byte(strings.Join(reqs, "\n")+"\n"), 0o644)
}

// ReadRequirements reads a requirements file, dropping blank lines and
// comment lines beginning with '#'.
func ReadRequirements(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reqs []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		reqs = append(reqs, line)
	}
	return reqs, nil
}

// ModuleFragment wraps a requirements list into a single manifest module
// running one aggregated pip install with network access, rendered as the
// YAML text that precedes the main module in the manifest.
func ModuleFragment(reqs []string) (string, error) {
	if len(reqs) == 0 {
		return "", nil
	}
	mod := []manifest.Module{{
		Name:        "python-dependencies",
		Buildsystem: "simple",
		BuildOptions: &manifest.BuildOptions{
			BuildArgs: []string{"--share=network"},
		},
		BuildCommands: []string{"pip3 install --prefix=/app " + strings.Join(reqs, " ")},
		Sources: []manifest.Source{{
			Type:     "script",
			Commands: []string{"echo 'Installing Python dependencies...'"},
		}},
	}}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(mod); err != nil {
		return "", fmt.Errorf("DEP_MODULE_ENCODE: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("DEP_MODULE_ENCODE: %w", err)
	}
	return buf.String(), nil
}
