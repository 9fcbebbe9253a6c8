// Package packconfig loads the amdpack configuration file.
//
// Two formats are supported:
//   - amdpack.toml: declarative TOML
//   - config.sky: Starlark, evaluated in a sandbox; it must define a
//     configure() function returning a dict
//
// The file is found by walking up from the store root, or named by the
// AMDPACK_CONFIG environment variable or the --config flag.
package packconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config file names.
const (
	ConfigTOML = "amdpack.toml"
	ConfigSky  = "config.sky"
)

// EnvConfig is the environment variable naming a config file.
const EnvConfig = "AMDPACK_CONFIG"

// Defaults.
const (
	DefaultBundleName = "core-bundle"
	DefaultBundleDir  = "amdpack"
)

// ErrConflict is returned when both config files exist in one directory.
var ErrConflict = errors.New("multiple config files found in the same directory; use only one")

// Config is the amdpack configuration.
type Config struct {
	Build BuildConfig `json:"build" toml:"build"`
	Trace TraceConfig `json:"trace" toml:"trace"`
}

// BuildConfig configures the build command.
type BuildConfig struct {
	// Themes to bundle, as Vendor/name ids. Empty means every eligible theme.
	Themes []string `json:"themes" toml:"themes"`

	// BundleName is the bundle's module name and file name without ".js".
	BundleName string `json:"bundle_name" toml:"bundle_name"`

	// BundleDir is the directory under each locale the bundle is written to.
	BundleDir string `json:"bundle_dir" toml:"bundle_dir"`

	// Exclude lists module ids never added to the bundle.
	Exclude []string `json:"exclude" toml:"exclude"`

	// Minify is nil when unset; see MinifyEnabled.
	Minify *bool `json:"minify,omitempty" toml:"minify"`

	// MinifyWorkers bounds concurrent minifications. Zero means one per CPU.
	MinifyWorkers int `json:"minify_workers" toml:"minify_workers"`

	// Timeout bounds the build of one theme. Zero means no limit.
	Timeout Duration `json:"timeout" toml:"timeout"`
}

// TraceConfig configures dependency tracing.
type TraceConfig struct {
	// ReadConcurrency bounds concurrent file reads per theme.
	ReadConcurrency int `json:"read_concurrency" toml:"read_concurrency"`
}

// MinifyEnabled reports whether bundles are minified. Defaults to true.
func (b BuildConfig) MinifyEnabled() bool {
	return b.Minify == nil || *b.Minify
}

// Duration wraps time.Duration for TOML/JSON string parsing.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText implements encoding.TextMarshaler for Duration. Zero
// encodes as "0s"; encoders reject an empty result.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns a Config with defaults filled in.
func DefaultConfig() *Config {
	return &Config{
		Build: BuildConfig{
			BundleName: DefaultBundleName,
			BundleDir:  DefaultBundleDir,
		},
	}
}

// LoadConfig loads the config file at path, picking the format by
// extension.
func LoadConfig(path string) (*Config, error) {
	var cfg *Config
	var err error
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		cfg, err = LoadTOMLConfig(path)
	case ".sky", ".star":
		cfg, err = LoadStarlarkConfig(path, DefaultStarlarkTimeout)
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s (expected .toml or .sky)", ext)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would produce a broken bundle.
func (c *Config) Validate() error {
	if c.Build.BundleName == "" || strings.ContainsAny(c.Build.BundleName, `/\`) {
		return fmt.Errorf("build.bundle_name %q must be a plain file name", c.Build.BundleName)
	}
	if c.Build.BundleDir == "" || filepath.IsAbs(c.Build.BundleDir) || strings.HasPrefix(filepath.Clean(c.Build.BundleDir), "..") {
		return fmt.Errorf("build.bundle_dir %q must be a relative directory inside the locale", c.Build.BundleDir)
	}
	if c.Build.MinifyWorkers < 0 {
		return fmt.Errorf("build.minify_workers must not be negative, got %d", c.Build.MinifyWorkers)
	}
	if c.Trace.ReadConcurrency < 0 {
		return fmt.Errorf("trace.read_concurrency must not be negative, got %d", c.Trace.ReadConcurrency)
	}
	return nil
}

// DiscoverConfig finds and loads the config file.
//
// Resolution order:
//  1. the file named by AMDPACK_CONFIG
//  2. amdpack.toml or config.sky in startDir or the nearest parent,
//     stopping at the git root
//
// It returns the loaded config and its path, or (DefaultConfig(), "", nil)
// when there is none.
func DiscoverConfig(startDir string) (*Config, string, error) {
	if envPath := os.Getenv(EnvConfig); envPath != "" {
		cfg, err := LoadConfig(envPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config from %s: %w", EnvConfig, err)
		}
		return cfg, envPath, nil
	}

	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("getting working directory: %w", err)
		}
	}

	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path: %w", err)
	}

	gitRoot := findGitRoot(absDir)

	dir := absDir
	for {
		configPath, err := findConfigInDir(dir)
		if err != nil {
			return nil, "", err
		}
		if configPath != "" {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return nil, "", err
			}
			return cfg, configPath, nil
		}

		if gitRoot != "" && dir == gitRoot {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return DefaultConfig(), "", nil
}

// findConfigInDir returns the config file in dir, "" if there is none, or
// ErrConflict if there are two.
func findConfigInDir(dir string) (string, error) {
	tomlPath := filepath.Join(dir, ConfigTOML)
	skyPath := filepath.Join(dir, ConfigSky)

	tomlExists := fileExists(tomlPath)
	skyExists := fileExists(skyPath)

	switch {
	case tomlExists && skyExists:
		return "", fmt.Errorf("%w: found %s, %s in %s", ErrConflict, ConfigTOML, ConfigSky, dir)
	case tomlExists:
		return tomlPath, nil
	case skyExists:
		return skyPath, nil
	}
	return "", nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// findGitRoot returns the enclosing git repository root, or "".
func findGitRoot(startDir string) string {
	dir := startDir
	for {
		if fileExists(filepath.Join(dir, ".git")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Merge applies the non-zero values of other on top of c. Lists replace
// rather than append, so a --theme flag narrows the configured themes.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if len(other.Build.Themes) > 0 {
		c.Build.Themes = other.Build.Themes
	}
	if other.Build.BundleName != "" {
		c.Build.BundleName = other.Build.BundleName
	}
	if other.Build.BundleDir != "" {
		c.Build.BundleDir = other.Build.BundleDir
	}
	if len(other.Build.Exclude) > 0 {
		c.Build.Exclude = append(c.Build.Exclude, other.Build.Exclude...)
	}
	if other.Build.Minify != nil {
		c.Build.Minify = other.Build.Minify
	}
	if other.Build.MinifyWorkers != 0 {
		c.Build.MinifyWorkers = other.Build.MinifyWorkers
	}
	if other.Build.Timeout.Duration != 0 {
		c.Build.Timeout = other.Build.Timeout
	}

	if other.Trace.ReadConcurrency != 0 {
		c.Trace.ReadConcurrency = other.Trace.ReadConcurrency
	}
}
