package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ObservabilityConfig configures logging, tracing and the optional APM
// backend. ServiceName and Environment are filled by Load and tag every
// log record and exported span.
type ObservabilityConfig struct {
	ServiceName      string `koanf:"-"`
	Environment      string `koanf:"-"`
	LogLevel         string `koanf:"log_level"`
	MaxFieldBytes    int    `koanf:"max_field_bytes"`
	ExportBufferSize int    `koanf:"export_buffer_size"`
	ExportRetries    int    `koanf:"export_retries"`
	NewRelicLicense  string `koanf:"new_relic_license"`
}

// DefaultObservabilityConfig returns the configuration used when no
// observability settings are supplied.
func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		LogLevel:         zerolog.InfoLevel.String(),
		MaxFieldBytes:    256,
		ExportBufferSize: 256,
		ExportRetries:    3,
	}
}

// Validate checks bounds and fills zero values with defaults.
func (c *ObservabilityConfig) Validate() error {
	if c.LogLevel == "" {
		c.LogLevel = zerolog.InfoLevel.String()
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.MaxFieldBytes < 0 || c.ExportBufferSize < 0 || c.ExportRetries < 0 {
		return fmt.Errorf("observability limits must not be negative")
	}
	if c.MaxFieldBytes == 0 {
		c.MaxFieldBytes = 256
	}
	if c.ExportBufferSize == 0 {
		c.ExportBufferSize = 256
	}
	if c.ExportRetries == 0 {
		c.ExportRetries = 3
	}
	return nil
}

// Level returns the parsed log level.
func (c *ObservabilityConfig) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
