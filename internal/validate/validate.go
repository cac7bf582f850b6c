// Package validate checks a project's form state before generation. Errors
// block generation entirely; warnings require explicit confirmation.
package validate

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Grouvya/flatpak-manifest-generator/internal/project"
)

// appIDPattern is reverse-DNS notation with at least three dot-separated
// segments, each starting with a letter.
var appIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*){2,}$`)

// Result carries ordered validation output.
type Result struct {
	Errors   []string
	Warnings []string
}

// OK reports whether generation may proceed without confirmation prompts.
func (r Result) OK() bool { return len(r.Errors) == 0 }

type requiredField struct {
	key   string
	label string
}

var requiredFields = []requiredField{
	{project.FieldAppID, "App ID"},
	{project.FieldAppName, "App Name"},
	{project.FieldSummary, "Summary"},
	{project.FieldRuntime, "Runtime"},
	{project.FieldRuntimeVersion, "Runtime Version"},
	{project.FieldSDK, "SDK"},
	{project.FieldSDKVersion, "SDK Version"},
}

// Check validates the project and returns every error and warning in a
// stable order.
func Check(p *project.Project) Result {
	var r Result
	for _, f := range requiredFields {
		if p.Field(f.key) == "" {
			r.Errors = append(r.Errors, "Missing required field: "+f.label)
		}
	}

	if id := p.Field(project.FieldAppID); id != "" {
		if !appIDPattern.MatchString(id) {
			r.Errors = append(r.Errors, "App ID must use reverse DNS notation (e.g., io.github.username.app)")
		} else if id != strings.ToLower(id) {
			r.Warnings = append(r.Warnings, "App ID format may not follow all common best practices (e.g., should be all lowercase).")
		}
	}

	src := strings.TrimSpace(p.Vars.SourcePath)
	if src == "" {
		r.Errors = append(r.Errors, "Source location is required")
	} else if info, err := os.Stat(src); err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("Source location does not exist: %s", src))
	} else if p.Vars.SourceType == project.SourceDirectory && !info.IsDir() {
		r.Errors = append(r.Errors, "Source type is directory but the source location is a file")
	} else if p.Vars.SourceType == project.SourceArchive && info.IsDir() {
		r.Errors = append(r.Errors, "Source type is archive but the source location is a directory")
	}

	return r
}

// ValidAppID reports whether the identifier passes the syntax check alone.
func ValidAppID(id string) bool { return appIDPattern.MatchString(id) }

// GenerateAppID derives an io.github identifier from author and app name,
// the way the wizard's Generate button does. Returns an error when either
// part sanitizes to nothing.
func GenerateAppID(author, appName string) (string, error) {
	sane := func(s string) string {
		s = strings.ToLower(strings.ReplaceAll(s, " ", ""))
		var b strings.Builder
		for _, c := range s {
			if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
				b.WriteRune(c)
			}
		}
		return b.String()
	}
	a, n := sane(author), sane(appName)
	if a == "" || n == "" {
		return "", fmt.Errorf("VAL_APPID_PARTS: author and app name must contain alphanumeric characters")
	}
	return "io.github." + a + "." + n, nil
}
