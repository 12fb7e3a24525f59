// Package config holds the compile-time constants shared by the compiler
// and the VM, and the stencil.yaml project configuration used by the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFileName is the well-known project configuration file name.
const ProjectFileName = "stencil.yaml"

// Project represents the top-level stencil.yaml configuration.
type Project struct {
	// Params lists template parameter names in slot order. They occupy
	// local slots 0..len(Params)-1 of the main frame.
	Params []string `yaml:"params,omitempty"`

	// Funcs lists host function names callable from templates. The CLI
	// resolves them against its built-in helper table.
	Funcs []string `yaml:"funcs,omitempty"`

	// Escape controls HTML escaping of <%= %> output. Defaults to the
	// EscapeByDefault constant when omitted.
	Escape *bool `yaml:"escape,omitempty"`

	// Debug is one of "none", "minimal", "full".
	Debug string `yaml:"debug,omitempty"`

	// CacheDir is the compiled-template cache directory. Empty disables
	// the cache.
	CacheDir string `yaml:"cache_dir,omitempty"`

	// Partials maps include keys to template file paths, relative to the
	// project file.
	Partials map[string]string `yaml:"partials,omitempty"`
}

// LoadProject reads and parses a stencil.yaml file.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &p, nil
}

// FindProject walks up from dir looking for a stencil.yaml. Returns the
// loaded project and its directory, or ("", nil, nil) if none exists.
func FindProject(dir string) (string, *Project, error) {
	for {
		candidate := filepath.Join(dir, ProjectFileName)
		if _, err := os.Stat(candidate); err == nil {
			p, err := LoadProject(candidate)
			if err != nil {
				return "", nil, err
			}
			return dir, p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil, nil
		}
		dir = parent
	}
}

// Validate checks the structural integrity of a project configuration.
func (p *Project) Validate() error {
	if len(p.Params) > MaxLocals {
		return fmt.Errorf("too many params: %d (max %d)", len(p.Params), MaxLocals)
	}
	seen := make(map[string]bool, len(p.Params))
	for _, name := range p.Params {
		if name == "" {
			return fmt.Errorf("empty param name")
		}
		if seen[name] {
			return fmt.Errorf("duplicate param %q", name)
		}
		seen[name] = true
	}
	switch p.Debug {
	case "", "none", "minimal", "full":
	default:
		return fmt.Errorf("unknown debug level %q (want none, minimal or full)", p.Debug)
	}
	return nil
}

// EscapeEnabled resolves the effective escape setting.
func (p *Project) EscapeEnabled() bool {
	if p.Escape != nil {
		return *p.Escape
	}
	return EscapeByDefault
}
