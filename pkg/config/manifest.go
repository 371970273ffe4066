package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest declares extra resources and overrides the server identity
type Manifest struct {
	Server struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"server"`

	Handlers  []string           `yaml:"handlers"`
	Resources []ManifestResource `yaml:"resources"`

	dir string
}

// ManifestResource is a static, file-backed or directory-backed resource.
// Exactly one of Text, Path and Dir must be set. A Dir entry publishes one
// resource per matching file, named Name/<relative path>, and a JSON index
// of those files named Name.
type ManifestResource struct {
	Name        string   `yaml:"name"`
	URI         string   `yaml:"uri"`
	MimeType    string   `yaml:"mimeType"`
	Description string   `yaml:"description"`
	Text        string   `yaml:"text"`
	Path        string   `yaml:"path"`
	Dir         string   `yaml:"dir"`
	Extensions  []string `yaml:"extensions"`
	Render      bool     `yaml:"render"`
}

// LoadManifest reads a YAML manifest from path
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", filepath.Base(path), err)
	}
	m.dir = filepath.Dir(path)

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", filepath.Base(path), err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	for i, r := range m.Resources {
		if r.Name == "" {
			return fmt.Errorf("resource %d has no name", i)
		}
		set := 0
		for _, v := range []string{r.Text, r.Path, r.Dir} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("resource %s must set exactly one of text, path or dir", r.Name)
		}
		if r.Render && r.Text != "" {
			return fmt.Errorf("resource %s: render requires path or dir", r.Name)
		}
		if len(r.Extensions) > 0 && r.Dir == "" {
			return fmt.Errorf("resource %s: extensions requires dir", r.Name)
		}
	}
	return nil
}

// ResolvePath returns a resource path relative to the manifest's directory
func (m *Manifest) ResolvePath(p string) string {
	if filepath.IsAbs(p) || m.dir == "" {
		return p
	}
	return filepath.Join(m.dir, p)
}

// Apply merges manifest values into cfg. Set manifest fields replace
// environment values.
func (m *Manifest) Apply(cfg *Config) {
	if m.Server.Name != "" {
		cfg.Server.Name = m.Server.Name
	}
	if m.Server.Version != "" {
		cfg.Server.Version = m.Server.Version
	}
	if len(m.Handlers) > 0 {
		cfg.SetHandlerSets(m.Handlers)
	}
}
