// Package config handles loading, saving, and resolving the repomonitor
// configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	// LocalConfigFilename is the per-directory repomonitor config file.
	LocalConfigFilename = ".repomonitor.yaml"
	// ConfigAPIVersion is the current config schema apiVersion.
	ConfigAPIVersion = "skaphos.io/repomonitor/v1beta1"
	// ConfigKind is the current config schema kind.
	ConfigKind = "RepoMonitorConfig"
	// EnvConfig overrides the config location.
	EnvConfig = "REPOMONITOR_CONFIG"
	// StateFilename is the default state file name.
	StateFilename = "state.yaml"
)

// Duration is a time.Duration written as a Go duration string ("1h", "30s").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Monitor holds scheduling and probing settings.
type Monitor struct {
	Delay          Duration `yaml:"delay"`
	StartDelay     Duration `yaml:"start_delay"`
	MaxSearchDepth int      `yaml:"max_search_depth"`
	Concurrency    int      `yaml:"concurrency"`
	ProbeTimeout   Duration `yaml:"probe_timeout"`
	PublishBusy    *bool    `yaml:"publish_busy,omitempty"`
}

// BusyEnabled reports whether cycles publish the busy status first.
func (m Monitor) BusyEnabled() bool {
	return m.PublishBusy == nil || *m.PublishBusy
}

// Config represents the repomonitor configuration.
type Config struct {
	APIVersion     string   `yaml:"apiVersion"`
	Kind           string   `yaml:"kind"`
	Roots          []string `yaml:"roots,omitempty"`
	Projects       []string `yaml:"projects,omitempty"`
	Exclude        []string `yaml:"exclude"`
	FollowSymlinks bool     `yaml:"follow_symlinks,omitempty"`
	Backend        string   `yaml:"backend"`
	Remote         string   `yaml:"remote"`
	StatePath      string   `yaml:"state_path,omitempty"`
	WatchRefs      bool     `yaml:"watch_refs"`
	Monitor        Monitor  `yaml:"monitor"`
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() Config {
	return Config{
		APIVersion: ConfigAPIVersion,
		Kind:       ConfigKind,
		Exclude:    []string{"**/node_modules/**", "**/.terraform/**", "**/dist/**", "**/vendor/**"},
		Backend:    "git",
		Remote:     "origin",
		WatchRefs:  true,
		Monitor: Monitor{
			Delay:          Duration(time.Hour),
			StartDelay:     Duration(30 * time.Second),
			MaxSearchDepth: 1000,
			Concurrency:    8,
			ProbeTimeout:   Duration(5 * time.Minute),
		},
	}
}

// ConfigDir returns the platform-appropriate config directory path.
// It checks, in order: the override parameter, REPOMONITOR_CONFIG env var,
// and finally os.UserConfigDir()/repomonitor.
func ConfigDir(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return filepath.Dir(override), nil
		}
		return override, nil
	}

	if env := os.Getenv(EnvConfig); env != "" {
		if isConfigFilePath(env) {
			return filepath.Dir(env), nil
		}
		return env, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "repomonitor"), nil
}

// ConfigPath resolves the config file path from override/env/defaults.
func ConfigPath(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return override, nil
		}
		return filepath.Join(override, "config.yaml"), nil
	}

	if env := os.Getenv(EnvConfig); env != "" {
		if isConfigFilePath(env) {
			return env, nil
		}
		return filepath.Join(env, "config.yaml"), nil
	}

	dir, err := ConfigDir("")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// InitConfigPath resolves where "repomonitor init" should write config.
// Order: explicit override, REPOMONITOR_CONFIG, then local dotfile in cwd.
func InitConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv(EnvConfig) != "" {
		return ConfigPath(override)
	}

	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(cwd, LocalConfigFilename), nil
}

// ResolveConfigPath resolves config for runtime commands.
// Order: explicit override, REPOMONITOR_CONFIG, nearest local dotfile in cwd/parents,
// then global platform config path.
func ResolveConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv(EnvConfig) != "" {
		return ConfigPath(override)
	}

	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}

	localPath, err := FindNearestConfigPath(cwd)
	if err != nil {
		return "", err
	}
	if localPath != "" {
		return localPath, nil
	}

	return ConfigPath("")
}

// FindNearestConfigPath searches cwd and each parent directory for .repomonitor.yaml.
// It returns an empty string when no local config file is found.
func FindNearestConfigPath(cwd string) (string, error) {
	dir := cwd
	for {
		candidate := filepath.Join(dir, LocalConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads the config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigGVK(&cfg)
	if err := validateConfigGVK(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads the config file, returning defaults when it does not
// exist. found reports whether a file was read.
func LoadOrDefault(path string) (cfg *Config, found bool, err error) {
	cfg, err = Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		defaults := DefaultConfig()
		return &defaults, false, nil
	}
	return nil, false, err
}

// Validate rejects negative durations and counts.
func (c *Config) Validate() error {
	m := c.Monitor
	switch {
	case m.Delay < 0:
		return fmt.Errorf("monitor.delay must not be negative (got %s)", m.Delay)
	case m.StartDelay < 0:
		return fmt.Errorf("monitor.start_delay must not be negative (got %s)", m.StartDelay)
	case m.ProbeTimeout < 0:
		return fmt.Errorf("monitor.probe_timeout must not be negative (got %s)", m.ProbeTimeout)
	case m.MaxSearchDepth < 0:
		return fmt.Errorf("monitor.max_search_depth must not be negative (got %d)", m.MaxSearchDepth)
	case m.Concurrency < 0:
		return fmt.Errorf("monitor.concurrency must not be negative (got %d)", m.Concurrency)
	}
	return nil
}

// ResolvePath resolves p against the config file location. Absolute paths
// are returned unchanged; relative paths are joined to the directory
// containing configPath.
func ResolvePath(configPath, p string) string {
	if strings.TrimSpace(p) == "" {
		return ""
	}
	if filepath.IsAbs(p) || strings.TrimSpace(configPath) == "" {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(filepath.Dir(configPath), p))
}

// ConfigRoot returns the effective default root for a config file path.
func ConfigRoot(configPath string) string {
	if strings.TrimSpace(configPath) == "" {
		return ""
	}
	return filepath.Clean(filepath.Dir(configPath))
}

// EffectiveRoots returns the configured roots resolved against the config
// location. A local dotfile with no roots and no projects watches its own
// directory.
func EffectiveRoots(configPath string, cfg *Config) []string {
	if cfg == nil {
		return nil
	}
	roots := resolveAll(configPath, cfg.Roots)
	if len(roots) == 0 && len(cfg.Projects) == 0 && filepath.Base(configPath) == LocalConfigFilename {
		roots = []string{ConfigRoot(configPath)}
	}
	return roots
}

// EffectiveProjects returns the configured projects resolved against the
// config location.
func EffectiveProjects(configPath string, cfg *Config) []string {
	if cfg == nil {
		return nil
	}
	return resolveAll(configPath, cfg.Projects)
}

// StatePath resolves where the watcher writes its state file: state_path
// relative to the config file, or the user cache directory.
func StatePath(configPath string, cfg *Config) (string, error) {
	if cfg != nil && strings.TrimSpace(cfg.StatePath) != "" {
		return ResolvePath(configPath, cfg.StatePath), nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "repomonitor", StateFilename), nil
}

// Save writes the config to the given path.
func Save(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	applyConfigGVK(cfg)
	if err := validateConfigGVK(cfg); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func resolveAll(configPath string, paths []string) []string {
	var out []string
	for _, p := range paths {
		if resolved := ResolvePath(configPath, p); resolved != "" {
			out = append(out, resolved)
		}
	}
	return out
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Backend == "" {
		cfg.Backend = defaults.Backend
	}
	if cfg.Remote == "" {
		cfg.Remote = defaults.Remote
	}
	m := &cfg.Monitor
	if m.Delay == 0 {
		m.Delay = defaults.Monitor.Delay
	}
	if m.StartDelay == 0 {
		m.StartDelay = defaults.Monitor.StartDelay
	}
	if m.MaxSearchDepth == 0 {
		m.MaxSearchDepth = defaults.Monitor.MaxSearchDepth
	}
	if m.Concurrency == 0 {
		m.Concurrency = defaults.Monitor.Concurrency
	}
	if m.ProbeTimeout == 0 {
		m.ProbeTimeout = defaults.Monitor.ProbeTimeout
	}
}

func isConfigFilePath(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, "config.yaml") || strings.HasSuffix(lower, "config.yml") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyConfigGVK(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = ConfigAPIVersion
	}
	if strings.TrimSpace(cfg.Kind) == "" {
		cfg.Kind = ConfigKind
	}
}

func validateConfigGVK(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.APIVersion != ConfigAPIVersion {
		return fmt.Errorf("unsupported config apiVersion %q (expected %q)", cfg.APIVersion, ConfigAPIVersion)
	}
	if cfg.Kind != ConfigKind {
		return fmt.Errorf("unsupported config kind %q (expected %q)", cfg.Kind, ConfigKind)
	}
	return nil
}
