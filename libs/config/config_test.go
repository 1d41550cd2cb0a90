package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nested struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type sample struct {
	Name    string   `yaml:"name" env:"SAMPLE_NAME"`
	Enabled bool     `yaml:"enabled"`
	Rate    float64  `yaml:"rate"`
	Tags    []string `yaml:"tags"`
	Store   nested   `yaml:"store"`
	Skip    string   `yaml:"skip" env:"-"`
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kiosk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: file\nrate: 1.5\nstore:\n  url: http://file\n  timeout: 2s\n"), 0o600))

	t.Setenv("SAMPLE_NAME", "env")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("TAGS", "a, b,,c")
	t.Setenv("ENABLED", "true")
	t.Setenv("SKIP", "ignored")

	var cfg sample
	require.NoError(t, LoadConfigFile(path, &cfg))

	assert.Equal(t, "env", cfg.Name)
	assert.True(t, cfg.Enabled)
	assert.InDelta(t, 1.5, cfg.Rate, 1e-9)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Tags)
	assert.Equal(t, "http://file", cfg.Store.URL)
	assert.Equal(t, 750*time.Millisecond, cfg.Store.Timeout)
	assert.Empty(t, cfg.Skip)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	var cfg sample
	require.Error(t, LoadConfigFile("", cfg))
	require.Error(t, LoadConfigFile("", nil))

	t.Setenv("STORE_TIMEOUT", "soon")
	err := LoadConfigFile("", &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_TIMEOUT")
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg sample
	err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}
