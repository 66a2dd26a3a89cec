package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, Default().Gate, cfg.Gate)
	assert.Equal(t, "61", cfg.Resolve.CountryCode)
	assert.Equal(t, "none", cfg.MissLog.Sink)
	assert.Equal(t, "memory", cfg.Cache.Kind)
	assert.Empty(t, cfg.LLM.Provider)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
gate:
  threshold: 0.75
  min_payload: 8
misslog:
  sink: file
  path: /tmp/misses.jsonl
registry:
  timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	t.Setenv("SITEINTENT_GATE_MIN_PAYLOAD", "3")
	t.Setenv("SITEINTENT_LOGGING_LEVEL", "debug")

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, cfg.Gate.Threshold, 1e-9)
	assert.Equal(t, 3, cfg.Gate.MinPayload)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/misses.jsonl", cfg.MissLog.Path)
	assert.Equal(t, 5*time.Second, cfg.Registry.Timeout)
}

func TestLoadProviderKeyFromEnv(t *testing.T) {
	t.Setenv("SITEINTENT_LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)

	pc := cfg.ProviderConfig(Proxy{HTTPS: "http://proxy:3128"})
	assert.Equal(t, "openai", pc.Provider)
	assert.Equal(t, 15, pc.Timeout)
	assert.Equal(t, "http://proxy:3128", pc.HTTPSProxy)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.LLM.Provider = "mystery" }},
		{"openai without key", func(c *Config) { c.LLM.Provider = "openai" }},
		{"file sink without path", func(c *Config) { c.MissLog.Sink = "file" }},
		{"redis sink without url", func(c *Config) { c.MissLog.Sink = "redis" }},
		{"bad cache kind", func(c *Config) { c.Cache.Kind = "tape" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"fuzzy threshold above one", func(c *Config) { c.Resolve.FuzzyThreshold = 1.5 }},
		{"registry endpoint not a url", func(c *Config) { c.Registry.Endpoint = "not a url" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, Validate(&cfg))
		})
	}

	cfg := Default()
	cfg.Gate.Threshold = 0.1
	assert.NoError(t, Validate(&cfg), "threshold is clamped at use, not rejected")
}
