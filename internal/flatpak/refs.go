package flatpak

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/Grouvya/flatpak-manifest-generator/internal/fsutil"
)

// fallbackVersions is the static table of known runtime/SDK versions, used
// when the local installation has nothing newer to offer. Purely advisory.
var fallbackVersions = map[string][]string{
	"org.gnome.Platform":       {"47", "46", "45", "44"},
	"org.gnome.Sdk":            {"47", "46", "45", "44"},
	"org.kde.Platform":         {"6.8", "6.7", "6.6"},
	"org.kde.Sdk":              {"6.8", "6.7", "6.6"},
	"org.freedesktop.Platform": {"23.08", "22.08"},
	"org.freedesktop.Sdk":      {"23.08", "22.08"},
}

// Cache holds the advisory runtime/SDK version listings, merged from the
// local installation and the static fallback table.
type Cache struct {
	Runtimes  map[string][]string `json:"runtimes"`
	Sdks      map[string][]string `json:"sdks"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Refresh queries the local installation and rebuilds the cache. The query
// failing is not fatal: the fallback table still applies.
func (c *Client) Refresh(ctx context.Context) (*Cache, error) {
	runtimes, sdks, err := c.InstalledRefs(ctx)
	if err != nil {
		runtimes, sdks = map[string][]string{}, map[string][]string{}
	}
	cache := &Cache{Runtimes: runtimes, Sdks: sdks, UpdatedAt: time.Now().UTC()}
	return cache, err
}

// LoadCache reads a persisted cache; a missing file yields an empty cache.
func LoadCache(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Cache{Runtimes: map[string][]string{}, Sdks: map[string][]string{}}, nil
		}
		return nil, err
	}
	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Runtimes == nil {
		c.Runtimes = map[string][]string{}
	}
	if c.Sdks == nil {
		c.Sdks = map[string][]string{}
	}
	return &c, nil
}

// SaveCache persists the cache as JSON.
func SaveCache(path string, c *Cache) error {
	blob, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(path, blob, 0o644)
}

// RuntimeNames returns the union of installed and known runtimes, sorted.
func (c *Cache) RuntimeNames() []string {
	return unionNames(c.Runtimes, func(name string) bool {
		return !isSdkName(name)
	})
}

// SDKNames returns the union of installed and known SDKs, sorted.
func (c *Cache) SDKNames() []string {
	return unionNames(c.Sdks, isSdkName)
}

// Versions merges installed and fallback versions for one ref name, newest
// first. An unknown name yields the conservative freedesktop default.
func (c *Cache) Versions(name string) []string {
	set := map[string]struct{}{}
	installed := c.Runtimes[name]
	if isSdkName(name) {
		installed = c.Sdks[name]
	}
	for _, v := range installed {
		set[v] = struct{}{}
	}
	for _, v := range fallbackVersions[name] {
		set[v] = struct{}{}
	}
	if len(set) == 0 {
		return []string{"23.08"}
	}
	versions := make([]string, 0, len(set))
	for v := range set {
		versions = append(versions, v)
	}
	SortVersionsDesc(versions)
	return versions
}

// MatchingSDK returns the SDK conventionally paired with a runtime
// (Platform -> Sdk), or "" when the runtime does not follow the convention.
func MatchingSDK(runtime string) string {
	if strings.HasSuffix(runtime, ".Platform") {
		return strings.TrimSuffix(runtime, "Platform") + "Sdk"
	}
	return ""
}

// SortVersionsDesc orders version strings newest first. Flatpak branches
// ("47", "23.08", "6.8") compare as semantic versions; anything that does
// not parse falls back to reverse lexical order.
func SortVersionsDesc(versions []string) {
	sort.Slice(versions, func(i, j int) bool {
		vi, vj := "v"+versions[i], "v"+versions[j]
		if semver.IsValid(vi) && semver.IsValid(vj) {
			return semver.Compare(vi, vj) > 0
		}
		return versions[i] > versions[j]
	})
}

func isSdkName(name string) bool {
	return len(name) > 4 && name[len(name)-4:] == ".Sdk"
}

func unionNames(installed map[string][]string, keep func(string) bool) []string {
	set := map[string]struct{}{}
	for name := range installed {
		set[name] = struct{}{}
	}
	for name := range fallbackVersions {
		if keep(name) {
			set[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
