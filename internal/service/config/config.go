package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort       string
	DatabaseDSN    string
	MigrationsPath string
	LogLevel       string
	RequestTimeout time.Duration
}

// NewFromEnv reads configuration from the environment (and .env when
// present). An empty DATABASE_DSN selects the in-memory store.
func NewFromEnv() (Config, error) {
	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("PG_MIGRATIONS_PATH", "internal/migrations")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REQUEST_TIMEOUT", "60s")

	v.AutomaticEnv()
	v.SetConfigFile(".env")
	_ = v.ReadInConfig() // optional

	cfg := Config{
		HTTPPort:       v.GetString("PORT"),
		DatabaseDSN:    v.GetString("DATABASE_DSN"),
		MigrationsPath: v.GetString("PG_MIGRATIONS_PATH"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("config: port must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: request timeout must be positive")
	}
	return nil
}
