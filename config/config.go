// Package config loads the engine configuration from YAML.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/INLOpen/nexuscolumn/core"
)

// EngineConfig holds storage-engine configurations.
type EngineConfig struct {
	// Compression selects the block compression: none, snappy, lz4
	// or zstd.
	Compression string `yaml:"compression"`
	// ExtentSizeThresholdPoints is the active-extent seal point.
	ExtentSizeThresholdPoints int `yaml:"extent_size_threshold_points"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

// Config is the root of the configuration file.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Compression:               "snappy",
			ExtentSizeThresholdPoints: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader reads and validates a configuration document.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, err := c.CompressionType(); err != nil {
		return fmt.Errorf("engine.compression: %q is not a valid compression type", c.Engine.Compression)
	}
	if c.Engine.ExtentSizeThresholdPoints < 0 {
		return fmt.Errorf("engine.extent_size_threshold_points must not be negative, got %d", c.Engine.ExtentSizeThresholdPoints)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: %q is not a valid level", c.Logging.Level)
	}
	return nil
}

// CompressionType maps the configured compression name.
func (c *Config) CompressionType() (core.CompressionType, error) {
	switch c.Engine.Compression {
	case "", "none":
		return core.CompressionNone, nil
	case "snappy":
		return core.CompressionSnappy, nil
	case "lz4":
		return core.CompressionLZ4, nil
	case "zstd":
		return core.CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("unknown compression %q: %w", c.Engine.Compression, core.ErrBadArg)
	}
}

// LogLevel maps the configured level onto slog.
func (c *Config) LogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
