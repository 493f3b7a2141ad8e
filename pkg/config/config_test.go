package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	configPath := filepath.Join(dir, ".config", FileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  bool
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name: "full config",
			content: `version: "31.0"
cache_dir: ~/.cache/protoc
includes: false
timeout: 2m
retries: 3
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "31.0", cfg.Version)
				assert.Equal(t, "~/.cache/protoc", cfg.CacheDir)
				assert.False(t, cfg.IncludesEnabled())
				assert.Equal(t, 2*time.Minute, cfg.Timeout)
				assert.Equal(t, 3, cfg.Retries)
			},
		},
		{
			name:    "empty config uses defaults",
			content: "",
			validate: func(t *testing.T, cfg *Config) {
				assert.Empty(t, cfg.Version)
				assert.True(t, cfg.IncludesEnabled())
				assert.Zero(t, cfg.Timeout)
			},
		},
		{
			name:    "unquoted version",
			content: "version: 30.2\n",
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "30.2", cfg.Version)
			},
		},
		{
			name:    "invalid yaml",
			content: "version: [",
			wantErr: true,
		},
		{
			name:    "invalid timeout",
			content: "timeout: soon\n",
			wantErr: true,
		},
		{
			name:    "negative retries",
			content: "retries: -1\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			cfg, err := Load(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	assert.Error(t, err)
}

func TestDiscoverFrom(t *testing.T) {
	t.Run("current directory", func(t *testing.T) {
		dir := t.TempDir()
		want := writeConfig(t, dir, "version: \"31.0\"\n")

		got, err := DiscoverFrom(dir)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("parent directory", func(t *testing.T) {
		dir := t.TempDir()
		want := writeConfig(t, dir, "version: \"31.0\"\n")
		subdir := filepath.Join(dir, "a", "b")
		require.NoError(t, os.MkdirAll(subdir, 0755))

		got, err := DiscoverFrom(subdir)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := DiscoverFrom(t.TempDir())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLoadOrDiscover(t *testing.T) {
	origWd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(origWd)

	t.Run("explicit path wins over discovery", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "version: \"27.0\"\n")
		explicit := filepath.Join(dir, "explicit.yml")
		require.NoError(t, os.WriteFile(explicit, []byte("version: \"31.0\"\n"), 0644))
		require.NoError(t, os.Chdir(dir))

		cfg, path, err := LoadOrDiscover(explicit)
		require.NoError(t, err)
		assert.Equal(t, "31.0", cfg.Version)
		assert.Equal(t, explicit, path)
	})

	t.Run("discovered file", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "version: \"29.0\"\n")
		require.NoError(t, os.Chdir(dir))

		cfg, path, err := LoadOrDiscover("")
		require.NoError(t, err)
		assert.Equal(t, "29.0", cfg.Version)
		assert.Contains(t, path, filepath.Join(".config", FileName))
	})

	t.Run("no file is not an error", func(t *testing.T) {
		require.NoError(t, os.Chdir(t.TempDir()))

		cfg, path, err := LoadOrDiscover("")
		require.NoError(t, err)
		assert.Empty(t, path)
		assert.Equal(t, &Config{}, cfg)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, _, err := LoadOrDiscover(filepath.Join(t.TempDir(), "missing.yml"))
		assert.Error(t, err)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "version: \"29.0\"\ncache_dir: /from/file\n")
		require.NoError(t, os.Chdir(dir))
		t.Setenv(EnvVersion, "31.0")
		t.Setenv(EnvCacheDir, "/from/env")
		t.Setenv(EnvIncludes, "false")

		cfg, _, err := LoadOrDiscover("")
		require.NoError(t, err)
		assert.Equal(t, "31.0", cfg.Version)
		assert.Equal(t, "/from/env", cfg.CacheDir)
		assert.False(t, cfg.IncludesEnabled())
	})

	t.Run("invalid includes override", func(t *testing.T) {
		require.NoError(t, os.Chdir(t.TempDir()))
		t.Setenv(EnvIncludes, "sometimes")

		_, _, err := LoadOrDiscover("")
		assert.Error(t, err)
	})
}
