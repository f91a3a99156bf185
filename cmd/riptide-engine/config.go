package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Docker  DockerConfig  `mapstructure:"docker"`
	Log     LogConfig     `mapstructure:"log"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Project ProjectConfig `mapstructure:"project"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig tunes the lifecycle engine.
type EngineConfig struct {
	// Workers bounds how many services start or stop at once.
	Workers int `mapstructure:"workers"`

	// PortBase is the first host port tried for main ports.
	PortBase int `mapstructure:"port_base"`

	// AssetsDir receives the wrapper entrypoint script. Empty means the
	// user cache directory.
	AssetsDir string `mapstructure:"assets_dir"`

	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	VerifyDelay time.Duration `mapstructure:"verify_delay"`
}

// ProjectConfig locates the project document.
type ProjectConfig struct {
	File    string `mapstructure:"file"`
	Compose string `mapstructure:"compose"`
	Name    string `mapstructure:"name"` // project name for compose imports
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.port_base", 30000)
	v.SetDefault("engine.assets_dir", "")
	v.SetDefault("engine.stop_timeout", "10s")
	v.SetDefault("engine.verify_delay", "1s")
	v.SetDefault("project.file", "riptide.yml")
	v.SetDefault("project.compose", "")
	v.SetDefault("project.name", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// A missing file falls back to defaults
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("RIPTIDE_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Engine.Workers < 1 {
		return nil, fmt.Errorf("engine.workers must be at least 1, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.PortBase < 1 || cfg.Engine.PortBase > 65535 {
		return nil, fmt.Errorf("engine.port_base out of range: %d", cfg.Engine.PortBase)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}

	return slog.New(handler)
}
