package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 1000, cfg.History.MaxEntries)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "entitydoc.toml", `
[log]
level = "debug"
format = "json"

[store]
driver = "file"
path = "entities"
watch = true

[history]
max_entries = 50

[components]
dirs = ["components", "/abs/defs"]
`)

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, filepath.Join(dir, "entities"), cfg.Store.Path)
	assert.True(t, cfg.Store.Watch)
	assert.Equal(t, 50, cfg.History.MaxEntries)
	assert.Equal(t, []string{filepath.Join(dir, "components"), "/abs/defs"}, cfg.Components.Dirs)
	// Unset sections keep defaults.
	assert.Equal(t, 4, cfg.Service.SaveConcurrency)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoadParseErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(writeFile(t, dir, "bad.toml", "[log\nlevel="))
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Greater(t, pe.Line, 0)

	_, err = Load(writeFile(t, dir, "unknown.toml", "[log]\ncolour = \"red\"\n"))
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, "unknown setting")
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad driver", func(c *Config) { c.Store.Driver = "tape" }, "store.driver"},
		{"file needs path", func(c *Config) { c.Store.Driver = "file" }, "store.path"},
		{"redis needs addr", func(c *Config) { c.Store.Driver = "redis" }, "store.redis_addr"},
		{"badger needs path", func(c *Config) { c.Store.Driver = "badger" }, "store.path"},
		{"history", func(c *Config) { c.History.MaxEntries = 0 }, "history.max_entries"},
		{"concurrency", func(c *Config) { c.Service.SaveConcurrency = 0 }, "service.save_concurrency"},
		{"empty dir", func(c *Config) { c.Components.Dirs = []string{""} }, "components.dirs[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrValidationFailed)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.path, ve.Path)
		})
	}

	cfg := Default()
	cfg.Store.Driver = "badger"
	cfg.Store.InMemory = true
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ENTITYDOC_LOG_LEVEL":      "warn",
		"ENTITYDOC_STORE_DRIVER":   "redis",
		"ENTITYDOC_REDIS_ADDR":     "localhost:6379",
		"ENTITYDOC_REDIS_DB":       "3",
		"ENTITYDOC_STORE_WATCH":    "true",
		"ENTITYDOC_COMPONENT_DIRS": "a" + string(os.PathListSeparator) + "b",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 3, cfg.Store.RedisDB)
	assert.True(t, cfg.Store.Watch)
	assert.Equal(t, []string{"a", "b"}, cfg.Components.Dirs)

	env = map[string]string{"ENTITYDOC_HISTORY_MAX": "lots"}
	var pe *ParseError
	require.ErrorAs(t, Default().ApplyEnv(lookup), &pe)
	assert.Equal(t, "ENTITYDOC_HISTORY_MAX", pe.Path)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "entitydoc.toml", "[log]\nlevel = \"debug\"\n")
	t.Setenv("ENTITYDOC_LOG_LEVEL", "error")

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, "test.env", "ENTITYDOC_SAVE_CONCURRENCY=8\n")
	t.Setenv("ENTITYDOC_SAVE_CONCURRENCY", "")
	os.Unsetenv("ENTITYDOC_SAVE_CONCURRENCY")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Service.SaveConcurrency)

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))
}
