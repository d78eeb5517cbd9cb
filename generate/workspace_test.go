package generate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestProjectCacheGetMiss(t *testing.T) {
	pc := NewProjectCache()
	defer pc.Close()

	if got := pc.Get("/nonexistent/path"); got != nil {
		t.Errorf("expected nil for cache miss, got %+v", got)
	}
}

func TestProjectCacheGetExpired(t *testing.T) {
	c := ttlcache.New[string, *ProjectContext](
		ttlcache.WithTTL[string, *ProjectContext](time.Millisecond),
		ttlcache.WithDisableTouchOnHit[string, *ProjectContext](),
	)
	go c.Start()
	pc := &ProjectCache{cache: c, inflight: make(map[string]bool)}
	defer pc.Close()

	pc.cache.Set("/test", &ProjectContext{Dir: "/test"}, ttlcache.DefaultTTL)
	time.Sleep(10 * time.Millisecond)

	if got := pc.Get("/test"); got != nil {
		t.Errorf("expected nil for expired entry, got %+v", got)
	}
}

func TestProjectCacheGather(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module example.com/tool\n\ngo 1.23\n\nrequire golang.org/x/time v0.14.0\n")
	writeFile(t, dir, "go.sum", "")
	writeFile(t, dir, "package.json", `{"name":"web","scripts":{"test":"vitest","build":"vite build"}}`)

	pc := NewProjectCache()
	defer pc.Close()
	pc.Gather(context.Background(), dir)

	got := pc.Get(dir)
	if got == nil {
		t.Fatal("expected entry after gather")
	}
	if got.Manifests["go.mod"] != "module example.com/tool, go 1.23" {
		t.Errorf("go.mod = %q", got.Manifests["go.mod"])
	}
	if got.Manifests["package.json scripts"] != "build: vite build, test: vitest" {
		t.Errorf("package.json scripts = %q", got.Manifests["package.json scripts"])
	}
	if got.PackageManager != "go" {
		t.Errorf("package manager = %q, want go", got.PackageManager)
	}

	lines := got.Lines()
	want := []string{
		"project: go.mod: module example.com/tool, go 1.23",
		"project: package.json scripts: build: vite build, test: vitest",
		"project: package manager: go",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("Lines() =\n%s\nwant\n%s", strings.Join(lines, "\n"), strings.Join(want, "\n"))
	}
}

func TestProjectCacheGatherAsync(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Cargo.toml", "[package]\nname = \"crab\"\n")

	pc := NewProjectCache()
	defer pc.Close()
	pc.GatherAsync(dir)
	pc.GatherAsync(dir)

	deadline := time.Now().Add(2 * time.Second)
	for pc.Get(dir) == nil {
		if time.Now().After(deadline) {
			t.Fatal("background gather never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := pc.Get(dir).Manifests["Cargo.toml"]; got != `name = "crab"` {
		t.Errorf("Cargo.toml = %q", got)
	}
}

func TestExtractCargo(t *testing.T) {
	content := `[package]
name = "mytool"
edition = "2021"

[[bin]]
name = "mytool-cli"

[dependencies]
serde = "1"
tokio = { version = "1", features = ["full"] }
`
	want := `name = "mytool", edition = "2021", bin = "mytool-cli", deps = serde tokio`
	if got := extractCargo(content); got != want {
		t.Errorf("extractCargo() = %q, want %q", got, want)
	}
	if got := extractCargo("not [valid toml"); got != "" {
		t.Errorf("expected empty for invalid toml, got %q", got)
	}
}

func TestExtractPyproject(t *testing.T) {
	content := `[project]
name = "pkg"
requires-python = ">=3.11"
dependencies = ["httpx", "rich"]
`
	want := `name = "pkg", requires-python = ">=3.11", deps = httpx rich`
	if got := extractPyproject(content); got != want {
		t.Errorf("extractPyproject() = %q, want %q", got, want)
	}
	if got := extractPyproject("[tool.black]\nline-length = 88\n"); got != "" {
		t.Errorf("expected empty without [project], got %q", got)
	}
}

func TestExtractPackageScriptsNoScripts(t *testing.T) {
	if got := extractPackageScripts(`{"name": "myapp", "version": "1.0.0"}`); got != "" {
		t.Errorf("expected empty for no scripts, got %q", got)
	}
}

func TestDetectPackageManager(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"pnpm", []string{"pnpm-lock.yaml"}, "pnpm"},
		{"yarn", []string{"yarn.lock"}, "yarn"},
		{"cargo", []string{"Cargo.lock"}, "cargo"},
		{"pnpm wins over npm", []string{"package-lock.json", "pnpm-lock.yaml"}, "pnpm"},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				writeFile(t, dir, f, "")
			}
			if got := detectPackageManager(dir, ""); got != tt.want {
				t.Errorf("detectPackageManager() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectPackageManagerFallsBackToRoot(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "pkg")
	os.Mkdir(sub, 0o755)
	writeFile(t, root, "yarn.lock", "")

	if got := detectPackageManager(sub, root); got != "yarn" {
		t.Errorf("detectPackageManager() = %q, want yarn", got)
	}
}

func TestDocumentDir(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"file:///home/me/src/main.go", "/home/me/src"},
		{"untitled:Untitled-1", ""},
		{"https://example.com/a.go", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DocumentDir(tt.uri); got != filepath.FromSlash(tt.want) {
			t.Errorf("DocumentDir(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestTruncateChars(t *testing.T) {
	if got := truncateChars("héllo", 10); got != "héllo" {
		t.Errorf("got %q", got)
	}
	if got := truncateChars("héllo", 2); got != "hé..." {
		t.Errorf("got %q", got)
	}
}
