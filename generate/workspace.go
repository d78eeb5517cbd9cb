package generate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/jellydator/ttlcache/v3"
)

// ProjectContext summarizes the project a document lives in.
type ProjectContext struct {
	Dir            string
	Root           string            // repository root, empty outside git
	Manifests      map[string]string // label -> extracted summary
	PackageManager string            // from lockfile (pnpm, yarn, bun, npm, cargo, go)
}

// Lines renders the context as "project:" lines for the user message, in a
// stable order.
func (p *ProjectContext) Lines() []string {
	if p == nil {
		return nil
	}
	labels := make([]string, 0, len(p.Manifests))
	for label := range p.Manifests {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	lines := make([]string, 0, len(labels)+1)
	for _, label := range labels {
		lines = append(lines, "project: "+label+": "+p.Manifests[label])
	}
	if p.PackageManager != "" {
		lines = append(lines, "project: package manager: "+p.PackageManager)
	}
	return lines
}

const (
	projectCacheTTL  = 1 * time.Hour
	gatherTimeout    = 5 * time.Second
	manifestMaxChars = 512
)

// ProjectCache holds ProjectContext entries keyed by directory.
type ProjectCache struct {
	cache *ttlcache.Cache[string, *ProjectContext]

	mu       sync.Mutex
	inflight map[string]bool
}

// NewProjectCache creates a cache whose entries live for an hour.
func NewProjectCache() *ProjectCache {
	c := ttlcache.New[string, *ProjectContext](
		ttlcache.WithTTL[string, *ProjectContext](projectCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *ProjectContext](),
	)
	go c.Start()
	return &ProjectCache{cache: c, inflight: make(map[string]bool)}
}

// Close stops the expiration loop.
func (pc *ProjectCache) Close() {
	pc.cache.Stop()
}

// Get returns the cached context for dir, or nil.
func (pc *ProjectCache) Get(dir string) *ProjectContext {
	item := pc.cache.Get(dir)
	if item == nil {
		return nil
	}
	return item.Value()
}

// GatherAsync gathers dir in the background unless it is cached or already
// being gathered.
func (pc *ProjectCache) GatherAsync(dir string) {
	if dir == "" || pc.Get(dir) != nil {
		return
	}
	pc.mu.Lock()
	if pc.inflight[dir] {
		pc.mu.Unlock()
		return
	}
	pc.inflight[dir] = true
	pc.mu.Unlock()

	go func() {
		defer func() {
			pc.mu.Lock()
			delete(pc.inflight, dir)
			pc.mu.Unlock()
		}()
		pc.Gather(context.Background(), dir)
	}()
}

// Gather reads the manifests of dir (and of its repository root when that
// differs) and caches the result.
func (pc *ProjectCache) Gather(ctx context.Context, dir string) *ProjectContext {
	ctx, cancel := context.WithTimeout(ctx, gatherTimeout)
	defer cancel()

	entry := &ProjectContext{
		Dir:       dir,
		Manifests: make(map[string]string),
	}
	entry.Root = gitRoot(ctx, dir)

	if entry.Root != "" && entry.Root != dir {
		readManifests(entry.Root, "root ", entry.Manifests)
	}
	readManifests(dir, "", entry.Manifests)
	entry.PackageManager = detectPackageManager(dir, entry.Root)

	pc.cache.Set(dir, entry, ttlcache.DefaultTTL)
	slog.Debug("gathered project context", "dir", dir, "manifests", len(entry.Manifests))
	return entry
}

// DocumentDir returns the local directory of a file:// document URI, or "".
func DocumentDir(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return ""
	}
	return filepath.Dir(filepath.FromSlash(u.Path))
}

func gitRoot(ctx context.Context, dir string) string {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

var manifestReaders = []struct {
	file    string
	label   string
	extract func(string) string
}{
	{"go.mod", "go.mod", extractGoMod},
	{"Cargo.toml", "Cargo.toml", extractCargo},
	{"pyproject.toml", "pyproject.toml", extractPyproject},
	{"package.json", "package.json scripts", extractPackageScripts},
}

func readManifests(dir, labelPrefix string, out map[string]string) {
	for _, r := range manifestReaders {
		data, err := os.ReadFile(filepath.Join(dir, r.file))
		if err != nil {
			continue
		}
		if summary := r.extract(string(data)); summary != "" {
			out[labelPrefix+r.label] = truncateChars(summary, manifestMaxChars)
		}
	}
}

// extractGoMod keeps the module and go directives.
func extractGoMod(content string) string {
	var parts []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "module ") || strings.HasPrefix(line, "go ") {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, ", ")
}

type cargoManifest struct {
	Package struct {
		Name    string `toml:"name"`
		Edition string `toml:"edition"`
	} `toml:"package"`
	Bin []struct {
		Name string `toml:"name"`
	} `toml:"bin"`
	Dependencies map[string]toml.Primitive `toml:"dependencies"`
}

// extractCargo keeps the crate name, edition, binaries and dependency names.
func extractCargo(content string) string {
	var m cargoManifest
	if _, err := toml.Decode(content, &m); err != nil {
		return ""
	}
	var parts []string
	if m.Package.Name != "" {
		parts = append(parts, fmt.Sprintf("name = %q", m.Package.Name))
	}
	if m.Package.Edition != "" {
		parts = append(parts, fmt.Sprintf("edition = %q", m.Package.Edition))
	}
	for _, bin := range m.Bin {
		if bin.Name != "" {
			parts = append(parts, fmt.Sprintf("bin = %q", bin.Name))
		}
	}
	if len(m.Dependencies) > 0 {
		deps := make([]string, 0, len(m.Dependencies))
		for name := range m.Dependencies {
			deps = append(deps, name)
		}
		sort.Strings(deps)
		parts = append(parts, "deps = "+strings.Join(deps, " "))
	}
	return strings.Join(parts, ", ")
}

type pyprojectManifest struct {
	Project struct {
		Name           string   `toml:"name"`
		RequiresPython string   `toml:"requires-python"`
		Dependencies   []string `toml:"dependencies"`
	} `toml:"project"`
}

// extractPyproject keeps the project name, python requirement and dependencies.
func extractPyproject(content string) string {
	var m pyprojectManifest
	if _, err := toml.Decode(content, &m); err != nil {
		return ""
	}
	var parts []string
	if m.Project.Name != "" {
		parts = append(parts, fmt.Sprintf("name = %q", m.Project.Name))
	}
	if m.Project.RequiresPython != "" {
		parts = append(parts, fmt.Sprintf("requires-python = %q", m.Project.RequiresPython))
	}
	if len(m.Project.Dependencies) > 0 {
		parts = append(parts, "deps = "+strings.Join(m.Project.Dependencies, " "))
	}
	return strings.Join(parts, ", ")
}

// extractPackageScripts renders the "scripts" object as sorted name: command pairs.
func extractPackageScripts(content string) string {
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal([]byte(content), &pkg); err != nil || len(pkg.Scripts) == 0 {
		return ""
	}
	names := make([]string, 0, len(pkg.Scripts))
	for name := range pkg.Scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+pkg.Scripts[name])
	}
	return strings.Join(parts, ", ")
}

// lockfiles maps lockfile names to package managers, most specific first.
var lockfiles = []struct {
	file    string
	manager string
}{
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"bun.lockb", "bun"},
	{"package-lock.json", "npm"},
	{"Cargo.lock", "cargo"},
	{"go.sum", "go"},
	{"uv.lock", "uv"},
	{"poetry.lock", "poetry"},
}

func detectPackageManager(dir, root string) string {
	for _, d := range []string{dir, root} {
		if d == "" {
			continue
		}
		for _, lf := range lockfiles {
			if _, err := os.Stat(filepath.Join(d, lf.file)); err == nil {
				return lf.manager
			}
		}
	}
	return ""
}

// truncateChars keeps at most n code points of s, marking the cut with "...".
func truncateChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return firstChars(s, n) + "..."
}
