package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/siteintent/internal/config"
	"github.com/ppiankov/siteintent/internal/misslog"
	"github.com/ppiankov/siteintent/internal/publish"
)

func TestNewAppDefaults(t *testing.T) {
	cfg := config.Default()
	a, err := newApp(context.Background(), &cfg, config.Proxy{})
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	assert.NotNil(t, a.pipeline)
	assert.Nil(t, a.pusher)
}

func TestNewAppWiresSinksAndPushers(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.MissLog.Sink = "file"
	cfg.MissLog.Path = filepath.Join(dir, "misses.jsonl")
	cfg.Publish.Dir = filepath.Join(dir, "payloads")
	cfg.Registry.Endpoint = "http://127.0.0.1:1/lookup"

	a, err := newApp(context.Background(), &cfg, config.Proxy{})
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	assert.IsType(t, &publish.FilePusher{}, a.pusher)

	sink, err := a.newMissLog(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &misslog.FileSink{}, sink)
}

func TestNewAppMissingIntentMap(t *testing.T) {
	cfg := config.Default()
	cfg.Resolve.IntentMap = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := newApp(context.Background(), &cfg, config.Proxy{})
	assert.Error(t, err)
}

func TestNewAppBadRedisURL(t *testing.T) {
	cfg := config.Default()
	cfg.MissLog.Sink = "redis"
	cfg.MissLog.RedisURL = "not-a-redis-url"

	_, err := newApp(context.Background(), &cfg, config.Proxy{})
	assert.Error(t, err)
}

func TestLoadFactsMergesHTMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "index.html")
	facts := filepath.Join(dir, "facts.json")
	require.NoError(t, os.WriteFile(page, []byte(`<h1>Acme Plumbing</h1><a href="/contact">Contact</a>`), 0o644))
	require.NoError(t, os.WriteFile(facts, []byte(`{"fields":{"phone":"02 1234 5678"}}`), 0o644))

	got, err := loadFacts([]string{page, facts}, "https://acme.com.au/")
	require.NoError(t, err)

	assert.Equal(t, "https://acme.com.au/", got.SourceURL)
	assert.Equal(t, "02 1234 5678", got.Fields["phone"])
	require.NotEmpty(t, got.Anchors)
	assert.Equal(t, "https://acme.com.au/contact", got.Anchors[0].Href)
}

func TestLoadFactsErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o644))

	_, err := loadFacts([]string{bad}, "")
	assert.Error(t, err)

	_, err = loadFacts([]string{filepath.Join(dir, "nope.json")}, "")
	assert.Error(t, err)
}

func TestWriteDefaultConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.yaml")
	require.NoError(t, writeDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "threshold: 0.6")

	assert.Error(t, writeDefaultConfig(path))
}

func TestMaskedHidesSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "sk-secret"
	cfg.Publish.Token = "tok"

	m := masked(cfg)
	assert.Equal(t, "****", m.LLM.APIKey)
	assert.Equal(t, "****", m.Publish.Token)
	assert.Empty(t, m.Registry.APIKey)
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey)
}

func TestResultName(t *testing.T) {
	assert.Equal(t, "acme_site", resultName("/tmp/facts/acme site.json"))
	assert.Equal(t, "result", resultName(".json"))
}
