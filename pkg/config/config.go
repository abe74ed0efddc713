package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/TechXTT/tormtx/pkg/torm"
)

// Config holds the settings shared by the CLI commands.
type Config struct {
	Link          string `mapstructure:"link"`
	LogSQL        bool   `mapstructure:"log_sql"`
	LogLevel      string `mapstructure:"log_level"`
	Propagation   string `mapstructure:"propagation"`
	SchemaPath    string `mapstructure:"schema"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

var keys = []string{"link", "log_sql", "log_level", "propagation", "schema", "migrations_dir"}

// Load reads configuration from .env, the optional YAML file at path and
// TORM_* environment variables, in increasing order of precedence. When no
// link is configured it falls back to the datasource url of the schema.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("log_level", "info")
	v.SetDefault("propagation", torm.Required.String())
	v.SetDefault("migrations_dir", "migrations")
	v.SetDefault("log_sql", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("TORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Link == "" && cfg.SchemaPath != "" {
		link, err := LinkFromSchema(cfg.SchemaPath)
		if err != nil {
			return nil, err
		}
		cfg.Link = link
	}
	return &cfg, nil
}

// Validate checks that the configuration can open sessions.
func (c *Config) Validate() error {
	var errs []error
	if c.Link == "" {
		errs = append(errs, errors.New("link is required (set TORM_LINK or schema)"))
	}
	if _, err := torm.ParsePropagation(c.Propagation); err != nil {
		errs = append(errs, err)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// DefaultPropagation returns the configured propagation mode.
func (c *Config) DefaultPropagation() (torm.Propagation, error) {
	return torm.ParsePropagation(c.Propagation)
}

// Logger builds a zap logger for the configured level. The debug level
// uses the development encoder.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
