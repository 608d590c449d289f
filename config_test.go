package sekai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -run ^TestParseConfig$ . -count 1
func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
[world]
initial_capacity = 256
sanitize = true

[query]
default_cache = "all"
workers = 0

[logging]
level = "debug"
format = "json"
`))
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.World.InitialCapacity)
	assert.True(t, cfg.World.Sanitize)
	assert.False(t, cfg.World.AutoDeleteEmptyTables)
	assert.Equal(t, "all", cfg.Query.DefaultCache)
	assert.Equal(t, 1, cfg.Query.Workers)
	assert.Equal(t, DefaultConfig().Query.MaxUpDepth, cfg.Query.MaxUpDepth)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

// go test -run ^TestParseConfigErrors$ . -count 1
func TestParseConfigErrors(t *testing.T) {
	_, err := ParseConfig([]byte(`[query]
default_cache = "sometimes"`))
	assert.Error(t, err)

	_, err = ParseConfig([]byte(`[world`))
	assert.ErrorContains(t, err, "parse config")
}

// go test -run ^TestLoadConfig$ . -count 1
func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sekai.toml")
	require.NoError(t, os.WriteFile(path, []byte("[query]\nmax_up_depth = 8\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Query.MaxUpDepth)
	assert.Equal(t, "auto", cfg.Query.DefaultCache)

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// go test -run ^TestParseCacheKind$ . -count 1
func TestParseCacheKind(t *testing.T) {
	tests := []struct {
		in   string
		want CacheKind
	}{
		{"", CacheDefault},
		{"default", CacheDefault},
		{"none", CacheNone},
		{"Auto", CacheAuto},
		{"ALL", CacheAll},
	}
	for _, tt := range tests {
		got, err := ParseCacheKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseCacheKind("maybe")
	assert.Error(t, err)
}

// go test -run ^TestNewWorldFromConfig$ . -count 1
func TestNewWorldFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "not-a-level"
	cfg.Query.DefaultCache = "none"
	w, err := NewWorldFromConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, w.Logger())
	assert.Equal(t, "none", w.Config().Query.DefaultCache)

	logger, err := NewLogger(LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
}
