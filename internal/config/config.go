// Package config loads release.yaml and the host environment into the
// runtime configuration for a pipeline run. Paths in the file are written
// relative to the project directory and resolved on load.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the config file looked up in the project directory.
const DefaultConfigName = "release.yaml"

const (
	// ProbeAlways marks a target buildable on every host.
	ProbeAlways = "always"
	// ProbeDarwin marks a target that needs a macOS host.
	ProbeDarwin = "darwin"
	// probeEnvPrefix marks a target gated on a non-empty environment
	// variable, e.g. "env:ANDROID_NDK_HOME".
	probeEnvPrefix = "env:"
)

// Manifest kinds understood by the version coordinator.
const (
	ManifestCargo = "cargo"
	ManifestNPM   = "npm"
)

// Registry kinds understood by the publisher.
const (
	RegistryCrates = "crates"
	RegistryNPM    = "npm"
	RegistryNone   = "none"
)

// Duration wraps time.Duration so yaml configs can use "20s" notation.
type Duration time.Duration

// UnmarshalYAML parses Go duration notation.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back into Go notation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Env captures the host environment consumed by the pipeline. Probes read
// from here, never from ambient process state.
type Env struct {
	AndroidNDKHome     string `env:"ANDROID_NDK_HOME"`
	CargoRegistryToken string `env:"CARGO_REGISTRY_TOKEN"`
	// NoColor follows the no-color.org convention: any non-empty value
	// disables color, so it is captured verbatim rather than as a bool.
	NoColor    string `env:"NO_COLOR"`
	SkipMobile bool   `env:"DDK_RELEASE_SKIP_MOBILE"`
}

// ColorDisabled reports whether NO_COLOR was set to anything.
func (e Env) ColorDisabled() bool {
	return e.NoColor != ""
}

// Lookup resolves an env-gated probe variable by name.
func (e Env) Lookup(name string) string {
	switch name {
	case "ANDROID_NDK_HOME":
		return e.AndroidNDKHome
	case "CARGO_REGISTRY_TOKEN":
		return e.CargoRegistryToken
	default:
		return os.Getenv(name)
	}
}

// CommandSpec is one external command bound to a working directory.
type CommandSpec struct {
	Dir     string   `yaml:"dir"`
	Command []string `yaml:"command"`
}

// IsZero reports whether the spec was left empty in the config.
func (c CommandSpec) IsZero() bool {
	return len(c.Command) == 0
}

// PackageConfig declares one coordinated package.
type PackageConfig struct {
	Name     string `yaml:"name"`
	Manifest string `yaml:"manifest"`
	Kind     string `yaml:"kind"`
	Registry string `yaml:"registry"`
	Dir      string `yaml:"dir"`
	Optional bool   `yaml:"optional"`
	Publish  bool   `yaml:"publish"`
}

// GateConfig declares one validation command run before building.
type GateConfig struct {
	Dir      string   `yaml:"dir"`
	Command  []string `yaml:"command"`
	Required bool     `yaml:"required"`
}

// PatchRule is an idempotent find/replace applied to one generated file.
// Replace must not contain Find so reapplying the rule is a fixed point.
type PatchRule struct {
	Path    string `yaml:"path"`
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
}

// TargetConfig declares one binding target.
type TargetConfig struct {
	Name     string      `yaml:"name"`
	Tag      string      `yaml:"tag"`
	Probe    string      `yaml:"probe"`
	Mobile   bool        `yaml:"mobile"`
	Required bool        `yaml:"required"`
	Generate CommandSpec `yaml:"generate"`
	Build    CommandSpec `yaml:"build"`
	Patch    *PatchRule  `yaml:"patch,omitempty"`
	Output   string      `yaml:"output"`
}

// PublishConfig tunes the externally visible release sequence.
type PublishConfig struct {
	Remote          string   `yaml:"remote"`
	ReleaseTitle    string   `yaml:"release_title"`
	PropagationWait Duration `yaml:"propagation_wait"`
}

// ReleaseConfig models release.yaml.
type ReleaseConfig struct {
	Version    int             `yaml:"version"`
	Component  string          `yaml:"component"`
	ScratchDir string          `yaml:"scratch_dir"`
	Packages   []PackageConfig `yaml:"packages"`
	Gates      []GateConfig    `yaml:"gates"`
	Targets    []TargetConfig  `yaml:"targets"`
	Publish    PublishConfig   `yaml:"publish"`
}

// Config holds the runtime configuration for one pipeline run.
type Config struct {
	// ProjectDir is the checkout the release is cut from.
	ProjectDir string

	Release ReleaseConfig
	Env     Env
}

// Load reads the config file (or falls back to the built-in ddk defaults
// when the file is absent) and parses the host environment.
func Load(projectDir, path string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve project dir: %w", err)
	}
	cfg := &Config{
		ProjectDir: abs,
		Release:    defaultReleaseConfig(),
	}
	if path == "" {
		path = filepath.Join(abs, DefaultConfigName)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(abs, path)
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err == nil {
		var parsed ReleaseConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.Release = parsed
	}
	cfg.Release.applyDefaults()
	cfg.Release.normalize(abs)
	if err := cfg.Release.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := env.Parse(&cfg.Env); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

// ScratchDir returns the absolute scratch directory for packaged artifacts.
func (c *Config) ScratchDir() string {
	return c.Release.ScratchDir
}

func (rc *ReleaseConfig) applyDefaults() {
	if rc.Version == 0 {
		rc.Version = 1
	}
	if strings.TrimSpace(rc.Component) == "" {
		rc.Component = "ddk"
	}
	if strings.TrimSpace(rc.ScratchDir) == "" {
		rc.ScratchDir = filepath.Join("dist", "release")
	}
	if strings.TrimSpace(rc.Publish.Remote) == "" {
		rc.Publish.Remote = "origin"
	}
	if strings.TrimSpace(rc.Publish.ReleaseTitle) == "" {
		rc.Publish.ReleaseTitle = rc.Component + " {version}"
	}
	if rc.Publish.PropagationWait <= 0 {
		rc.Publish.PropagationWait = Duration(20 * time.Second)
	}
}

func (rc *ReleaseConfig) normalize(base string) {
	rc.Component = strings.TrimSpace(rc.Component)
	rc.ScratchDir = resolvePath(base, rc.ScratchDir)
	for i := range rc.Packages {
		pkg := &rc.Packages[i]
		pkg.Name = strings.TrimSpace(pkg.Name)
		pkg.Kind = strings.ToLower(strings.TrimSpace(pkg.Kind))
		pkg.Registry = strings.ToLower(strings.TrimSpace(pkg.Registry))
		if pkg.Registry == "" {
			pkg.Registry = RegistryNone
		}
		if pkg.Dir == "" && pkg.Manifest != "" {
			pkg.Dir = filepath.Dir(pkg.Manifest)
		}
		pkg.Manifest = resolvePath(base, pkg.Manifest)
		pkg.Dir = resolvePath(base, pkg.Dir)
	}
	for i := range rc.Gates {
		rc.Gates[i].Dir = resolvePath(base, rc.Gates[i].Dir)
	}
	for i := range rc.Targets {
		target := &rc.Targets[i]
		target.Name = strings.TrimSpace(target.Name)
		target.Tag = strings.TrimSpace(target.Tag)
		target.Probe = strings.TrimSpace(target.Probe)
		if target.Probe == "" {
			target.Probe = ProbeAlways
		}
		target.Generate.Dir = resolvePath(base, target.Generate.Dir)
		target.Build.Dir = resolvePath(base, target.Build.Dir)
		target.Output = resolvePath(base, target.Output)
		if target.Patch != nil {
			target.Patch.Path = resolvePath(base, target.Patch.Path)
		}
	}
}

func (rc *ReleaseConfig) validate() error {
	if rc.Version < 1 {
		return fmt.Errorf("version must be >= 1")
	}
	if len(rc.Packages) == 0 {
		return fmt.Errorf("at least one package is required")
	}
	seenPkg := map[string]bool{}
	for i, pkg := range rc.Packages {
		if pkg.Name == "" {
			return fmt.Errorf("packages[%d]: name is required", i)
		}
		if seenPkg[pkg.Name] {
			return fmt.Errorf("packages[%d]: duplicate package %s", i, pkg.Name)
		}
		seenPkg[pkg.Name] = true
		if pkg.Manifest == "" {
			return fmt.Errorf("packages[%d]: manifest path is required", i)
		}
		switch pkg.Kind {
		case ManifestCargo, ManifestNPM:
		default:
			return fmt.Errorf("packages[%d]: kind must be %q or %q", i, ManifestCargo, ManifestNPM)
		}
		switch pkg.Registry {
		case RegistryCrates, RegistryNPM, RegistryNone:
		default:
			return fmt.Errorf("packages[%d]: registry must be crates, npm, or none", i)
		}
		if pkg.Publish && pkg.Registry == RegistryNone {
			return fmt.Errorf("packages[%d]: publishable package needs a registry", i)
		}
	}
	for i, gate := range rc.Gates {
		if len(gate.Command) == 0 {
			return fmt.Errorf("gates[%d]: command is required", i)
		}
	}
	seenTag := map[string]bool{}
	for i, target := range rc.Targets {
		if target.Name == "" {
			return fmt.Errorf("targets[%d]: name is required", i)
		}
		if target.Tag == "" {
			return fmt.Errorf("targets[%d]: tag is required", i)
		}
		if seenTag[target.Tag] {
			return fmt.Errorf("targets[%d]: duplicate tag %s", i, target.Tag)
		}
		seenTag[target.Tag] = true
		if err := validateProbe(target.Probe); err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
		if target.Generate.IsZero() {
			return fmt.Errorf("targets[%d]: generate command is required", i)
		}
		if target.Output == "" {
			return fmt.Errorf("targets[%d]: output path is required", i)
		}
		if target.Patch != nil {
			if err := target.Patch.Validate(); err != nil {
				return fmt.Errorf("targets[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// Validate checks the rule is non-empty and idempotent under reapplication.
func (p PatchRule) Validate() error {
	if p.Path == "" || p.Find == "" {
		return fmt.Errorf("patch rule needs a path and a find literal")
	}
	if strings.Contains(p.Replace, p.Find) {
		return fmt.Errorf("patch replacement %q reintroduces %q; rule would not be idempotent", p.Replace, p.Find)
	}
	return nil
}

// ProbeEnvVar returns the variable name of an env-gated probe, or "".
func ProbeEnvVar(probe string) string {
	if strings.HasPrefix(probe, probeEnvPrefix) {
		return strings.TrimPrefix(probe, probeEnvPrefix)
	}
	return ""
}

func validateProbe(probe string) error {
	if probe == ProbeAlways || probe == ProbeDarwin {
		return nil
	}
	if name := ProbeEnvVar(probe); name != "" {
		return nil
	}
	return fmt.Errorf("probe must be %q, %q, or \"env:VAR\", got %q", ProbeAlways, ProbeDarwin, probe)
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
