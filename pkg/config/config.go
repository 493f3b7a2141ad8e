// Package config loads the optional protocdl project file,
// .config/protocdl.yml, and applies environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the project file looked up below a .config directory
	FileName = "protocdl.yml"

	EnvVersion  = "PROTOCDL_VERSION"
	EnvCacheDir = "PROTOCDL_CACHE_DIR"
	EnvIncludes = "PROTOCDL_INCLUDES"
)

// ErrNotFound is returned by Discover when no project file exists
var ErrNotFound = errors.New("no protocdl config found")

// Config is the project file. Every field is optional.
type Config struct {
	// Version pins the protoc release; empty means the latest in the catalog
	Version string `yaml:"version,omitempty"`
	// CacheDir overrides the cache root; ~ and $VARS are expanded
	CacheDir string `yaml:"cache_dir,omitempty"`
	// Includes controls extraction of the well-known .proto files
	Includes *bool `yaml:"includes,omitempty"`
	// Timeout bounds a single download, e.g. "2m"
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Retries is the number of extra download attempts
	Retries int `yaml:"retries,omitempty"`
}

// IncludesEnabled reports whether include files should be extracted
func (c *Config) IncludesEnabled() bool {
	return c.Includes == nil || *c.Includes
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %s", c.Timeout)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative: %d", c.Retries)
	}
	return nil
}

// ApplyEnv overrides fields from PROTOCDL_* environment variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvVersion); v != "" {
		c.Version = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv(EnvIncludes); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", EnvIncludes)
		}
		c.Includes = &enabled
	}
	return nil
}

// Load reads and parses a protocdl config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file: %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file: %s", path)
	}

	return &cfg, nil
}

// Discover searches for .config/protocdl.yml in the current directory and
// its parents
func Discover() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get current directory")
	}
	return DiscoverFrom(dir)
}

// DiscoverFrom searches for .config/protocdl.yml starting at dir
func DiscoverFrom(dir string) (string, error) {
	for {
		configPath := filepath.Join(dir, ".config", FileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", ErrNotFound
}

// LoadOrDiscover loads the config at configPath, or discovers one if
// configPath is empty. A missing discovered file yields an empty config and
// an empty path; an explicit path must exist. Environment overrides are
// applied in both cases.
func LoadOrDiscover(configPath string) (*Config, string, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = Discover()
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, "", err
		}
	}

	cfg := &Config{}
	if path != "" {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, "", err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}
