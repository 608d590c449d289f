package sekai

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the tunables of a world.
type Config struct {
	World   WorldConfig   `toml:"world"`
	Query   QueryConfig   `toml:"query"`
	Logging LoggingConfig `toml:"logging"`
}

type WorldConfig struct {
	InitialCapacity int `toml:"initial_capacity"`
	// Sanitize runs the full table sanity check after every structural
	// change. Slow, meant for tests.
	Sanitize              bool `toml:"sanitize"`
	AutoDeleteEmptyTables bool `toml:"auto_delete_empty_tables"`
}

type QueryConfig struct {
	DefaultCache string `toml:"default_cache"` // none, auto, all
	MaxUpDepth   int    `toml:"max_up_depth"`
	Workers      int    `toml:"workers"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json or console
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		World: WorldConfig{
			InitialCapacity: 1024,
		},
		Query: QueryConfig{
			DefaultCache: "auto",
			MaxUpDepth:   64,
			Workers:      4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML on top of DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if _, err := ParseCacheKind(cfg.Query.DefaultCache); err != nil {
		return nil, err
	}
	if cfg.Query.MaxUpDepth <= 0 {
		cfg.Query.MaxUpDepth = DefaultConfig().Query.MaxUpDepth
	}
	if cfg.Query.Workers <= 0 {
		cfg.Query.Workers = 1
	}
	return cfg, nil
}

// NewLogger builds a zap logger from the logging section.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
