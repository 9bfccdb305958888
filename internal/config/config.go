package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"farmacia/m/internal/logger"
)

// Config holds application configuration values.
type Config struct {
	Secret      string
	DatabaseDSN string
	HTTPPort    string
	SeedFile    string
	TokenTTL    time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() (Config, error) {
	cfg := Config{
		Secret:      getEnv("SECRET", "dev_secret"),
		DatabaseDSN: getEnv("DATABASE_DSN", "farmacia.db"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		SeedFile:    getEnv("SEED_FILE", "assets/medications.csv"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "console"),
		TokenTTL:    24 * time.Hour,
	}

	log := logger.WithComponent("config")

	// Validate that port is numeric.
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		log.Warn().Str("value", cfg.HTTPPort).Msg("invalid HTTP_PORT, defaulting to 8080")
		cfg.HTTPPort = "8080"
	}

	if raw := os.Getenv("TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			log.Warn().Str("value", raw).Msg("invalid TOKEN_TTL, defaulting to 24h")
		} else {
			cfg.TokenTTL = ttl
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN must not be empty")
	}
	if c.Secret == "" {
		return errors.New("SECRET must not be empty")
	}
	return nil
}

// LoggerConfig returns the logger settings derived from the config.
func (c Config) LoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:  c.LogLevel,
		Format: c.LogFormat,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
