package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "test-app"
version = "0.1.0"

[vm]
max-frame-depth = 512
max-trace-lines = 10
entry = "build/main.candyc"

[modules]
paths = ["lib", "vendor"]
store = ".candy/images.db"

[log]
verbosity = 2
file = "candy.log"
`
	if err := os.WriteFile(filepath.Join(dir, TomlFile), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.VM.MaxFrameDepth != 512 {
		t.Errorf("max-frame-depth = %d, want 512", m.VM.MaxFrameDepth)
	}
	if m.VM.MaxTraceLines != 10 {
		t.Errorf("max-trace-lines = %d, want 10", m.VM.MaxTraceLines)
	}
	if len(m.Modules.Paths) != 2 {
		t.Errorf("module paths count = %d, want 2", len(m.Modules.Paths))
	}
	if m.Log.Verbosity != 2 || m.Log.File != "candy.log" {
		t.Errorf("log = %+v, want verbosity 2 file candy.log", m.Log)
	}
	if got, want := m.StorePath(), filepath.Join(m.Dir, ".candy", "images.db"); got != want {
		t.Errorf("StorePath() = %q, want %q", got, want)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "build", "main.candyc"); got != want {
		t.Errorf("EntryPath() = %q, want %q", got, want)
	}
	if filepath.Base(m.Path) != TomlFile {
		t.Errorf("Path = %q, want a %s", m.Path, TomlFile)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "minimal"
`
	if err := os.WriteFile(filepath.Join(dir, TomlFile), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Modules.Paths) != 1 || m.Modules.Paths[0] != "lib" {
		t.Errorf("default module paths = %v, want [lib]", m.Modules.Paths)
	}
	if m.VM.MaxFrameDepth != DefaultMaxFrameDepth {
		t.Errorf("default max-frame-depth = %d, want %d", m.VM.MaxFrameDepth, DefaultMaxFrameDepth)
	}
	if m.VM.MaxTraceLines != DefaultMaxTraceLines {
		t.Errorf("default max-trace-lines = %d, want %d", m.VM.MaxTraceLines, DefaultMaxTraceLines)
	}
	if m.StorePath() != "" {
		t.Errorf("StorePath() = %q, want empty", m.StorePath())
	}
	if m.EntryPath() != "" {
		t.Errorf("EntryPath() = %q, want empty", m.EntryPath())
	}
}

func TestLoadYamlManifest(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
project:
  name: yaml-app
vm:
  max-frame-depth: 100
modules:
  paths: [mods]
  store: /var/lib/candy/images.db
`
	if err := os.WriteFile(filepath.Join(dir, YamlFile), []byte(yamlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "yaml-app" {
		t.Errorf("project name = %q, want yaml-app", m.Project.Name)
	}
	if m.VM.MaxFrameDepth != 100 {
		t.Errorf("max-frame-depth = %d, want 100", m.VM.MaxFrameDepth)
	}
	if m.StorePath() != "/var/lib/candy/images.db" {
		t.Errorf("absolute store path rewritten: %q", m.StorePath())
	}
	paths := m.ModulePaths()
	if len(paths) != 1 || paths[0] != filepath.Join(m.Dir, "mods") {
		t.Errorf("ModulePaths() = %v", paths)
	}
}

func TestTomlPreferredOverYaml(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, TomlFile), []byte("[project]\nname = \"from-toml\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, YamlFile), []byte("project:\n  name: from-yaml\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "from-toml" {
		t.Errorf("project name = %q, want from-toml", m.Project.Name)
	}
}

func TestLoadParseError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, TomlFile), []byte("[project\nname ="), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for a directory without a manifest")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `[project]
name = "found-project"
`
	if err := os.WriteFile(filepath.Join(dir, TomlFile), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadYaml(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "src")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, YamlFile), []byte("project:\n  name: up-here\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil || m.Project.Name != "up-here" {
		t.Fatalf("FindAndLoad = %+v, want project up-here", m)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no candy.toml exists")
	}
}

func TestModulePaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Modules: ModuleConfig{
			Paths: []string{"lib", "/opt/candy/lib"},
		},
	}

	paths := m.ModulePaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/lib" {
		t.Errorf("paths[0] = %q, want /app/lib", paths[0])
	}
	if paths[1] != "/opt/candy/lib" {
		t.Errorf("paths[1] = %q, want /opt/candy/lib", paths[1])
	}
}
