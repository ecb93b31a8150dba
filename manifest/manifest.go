// Package manifest handles candy.toml and candy.yaml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
	"gopkg.in/yaml.v3"
)

var log = commonlog.GetLogger("candy.manifest")

// File names searched for, in order of preference.
const (
	TomlFile = "candy.toml"
	YamlFile = "candy.yaml"
)

// Defaults applied by Load when a setting is absent.
const (
	DefaultMaxFrameDepth = 2048
	DefaultMaxTraceLines = 24
)

// Manifest represents a candy project configuration.
type Manifest struct {
	Project Project      `toml:"project" yaml:"project"`
	VM      VMConfig     `toml:"vm" yaml:"vm"`
	Modules ModuleConfig `toml:"modules" yaml:"modules"`
	Log     LogConfig    `toml:"log" yaml:"log"`

	// Dir is the directory containing the manifest file (set at load time).
	Dir string `toml:"-" yaml:"-"`

	// Path is the manifest file that was read.
	Path string `toml:"-" yaml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" yaml:"name"`
	Version string `toml:"version" yaml:"version"`
}

// VMConfig tunes the virtual machine.
type VMConfig struct {
	MaxFrameDepth int    `toml:"max-frame-depth" yaml:"max-frame-depth"`
	MaxTraceLines int    `toml:"max-trace-lines" yaml:"max-trace-lines"`
	Entry         string `toml:"entry" yaml:"entry"` // image run by default
}

// ModuleConfig configures where imported modules are found.
type ModuleConfig struct {
	Paths []string `toml:"paths" yaml:"paths"`
	Store string   `toml:"store" yaml:"store"` // sqlite image store, optional
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"`
}

// Load parses the manifest in the given directory. candy.toml wins over
// candy.yaml when both exist.
func Load(dir string) (*Manifest, error) {
	var m Manifest

	path := filepath.Join(dir, TomlFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	case os.IsNotExist(err):
		path = filepath.Join(dir, YamlFile)
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.Path = path

	// Defaults
	if m.VM.MaxFrameDepth <= 0 {
		m.VM.MaxFrameDepth = DefaultMaxFrameDepth
	}
	if m.VM.MaxTraceLines <= 0 {
		m.VM.MaxTraceLines = DefaultMaxTraceLines
	}
	if len(m.Modules.Paths) == 0 {
		m.Modules.Paths = []string{"lib"}
	}

	log.Debugf("loaded manifest %s", path)
	return &m, nil
}

// FindAndLoad walks up from startDir to find a candy.toml or candy.yaml
// file, then loads and returns the manifest. Returns nil if no manifest is
// found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range []string{TomlFile, YamlFile} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return Load(dir)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// ModulePaths returns absolute paths for the configured module directories.
func (m *Manifest) ModulePaths() []string {
	var paths []string
	for _, d := range m.Modules.Paths {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// StorePath returns the absolute image store path, or "" when none is
// configured.
func (m *Manifest) StorePath() string {
	if m.Modules.Store == "" {
		return ""
	}
	return m.resolve(m.Modules.Store)
}

// EntryPath returns the absolute path of the entry image, or "".
func (m *Manifest) EntryPath() string {
	if m.VM.Entry == "" {
		return ""
	}
	return m.resolve(m.VM.Entry)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
