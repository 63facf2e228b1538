package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// Config is the process configuration, loaded once at startup from
// CONVOPULSE_-prefixed environment variables.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      *DatabaseConfig      `koanf:"database"`
	Observability *ObservabilityConfig `koanf:"observability"`
	Archive       *ArchiveConfig       `koanf:"archive"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// DatabaseConfig is optional: when absent the server runs on the
// in-memory event store.
type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time"`
}

// URL composes the pgx connection string.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// ArchiveConfig enables gzip-JSON event-batch archival to an
// S3-compatible bucket. Optional; nil disables archival.
type ArchiveConfig struct {
	Endpoint      string `koanf:"endpoint" validate:"required"`
	Bucket        string `koanf:"bucket" validate:"required"`
	Region        string `koanf:"region"`
	AccessKey     string `koanf:"access_key"`
	SecretKey     string `koanf:"secret_key"`
	MaxBatchSize  int    `koanf:"max_batch_size"`
	FlushInterval string `koanf:"flush_interval"`
}

// Load loads and validates the configuration from environment variables
// using koanf. Configuration errors are fatal: the process cannot run
// half-configured.
func Load() *Config {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	k := koanf.New(".")
	err := k.Load(env.Provider("CONVOPULSE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "CONVOPULSE_"))
	}), nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not load environment variables")
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		logger.Fatal().Err(err).Msg("could not unmarshal config")
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		logger.Fatal().Err(err).Msg("could not validate config")
	}

	// Observability is a pointer so absence is distinguishable from the
	// zero value; absent means defaults.
	if cfg.Observability == nil {
		cfg.Observability = DefaultObservabilityConfig()
	}
	cfg.Observability.ServiceName = "convopulse"
	cfg.Observability.Environment = cfg.Primary.Env
	if err := cfg.Observability.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid observability config")
	}

	return cfg
}
