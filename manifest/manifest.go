// Package manifest handles classtool.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/CursedJvmSharp/ObjectWeb.Asm-sub001/pkg/classfile"
)

// Manifest represents a classtool.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Target  Target      `toml:"target"`
	Store   StoreConfig `toml:"store"`
	Dump    DumpConfig  `toml:"dump"`

	// Dir is the directory containing the classtool.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Target configures class-file emission.
type Target struct {
	// ClassVersion is the major class-file version to emit, e.g. 52 for
	// Java 8. Zero selects the default.
	ClassVersion int `toml:"class-version"`
	// OutputDir is where assembled .class files are written.
	OutputDir string `toml:"output-dir"`
}

// StoreConfig configures the content-addressed class store.
type StoreConfig struct {
	Path string `toml:"path"`
}

// DumpConfig configures the dump listing.
type DumpConfig struct {
	Lines  bool `toml:"lines"`  // include LineNumberTable rows
	Frames bool `toml:"frames"` // include stack map frame counts
}

// Load parses a classtool.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "classtool.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Target.ClassVersion == 0 {
		m.Target.ClassVersion = classfile.V1_8
	}
	if m.Target.OutputDir == "" {
		m.Target.OutputDir = "classes"
	}
	if m.Store.Path == "" {
		m.Store.Path = filepath.Join(".classtool", "store.db")
	}
	if !md.IsDefined("dump", "lines") {
		m.Dump.Lines = true
	}
	if !md.IsDefined("dump", "frames") {
		m.Dump.Frames = true
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a classtool.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "classtool.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// OutputDirPath returns the absolute path of the configured output
// directory.
func (m *Manifest) OutputDirPath() string {
	if filepath.IsAbs(m.Target.OutputDir) {
		return m.Target.OutputDir
	}
	return filepath.Join(m.Dir, m.Target.OutputDir)
}

// StorePath returns the absolute path of the class store database.
func (m *Manifest) StorePath() string {
	if filepath.IsAbs(m.Store.Path) {
		return m.Store.Path
	}
	return filepath.Join(m.Dir, m.Store.Path)
}
