// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the matchmaking service.
type Config struct {
	// Service settings
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"speakmatch"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Anonymous auth
	JWTSecret string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"72h"`

	// Persistence
	DatabaseDSN     string `env:"DATABASE_DSN" envDefault:"host=localhost user=user password=password dbname=speakmatch port=5432 sslmode=disable"`
	RedisAddr       string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	SessionsChannel string `env:"SESSIONS_CHANNEL" envDefault:"sessions:completed"`

	// Matchmaking
	SessionTypes     []string      `env:"SESSION_TYPES" envSeparator:"," envDefault:"public_speaking,interview,debate"`
	QueueTTL         time.Duration `env:"QUEUE_TTL" envDefault:"300s"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"45s"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
	SendBuffer       int           `env:"SEND_BUFFER" envDefault:"256"`
}

// Load reads .env files (if any) and parses environment variables into Config.
func Load() (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that the hub cannot run without.
func (c *Config) Validate() error {
	types := c.SessionTypes[:0]
	for _, t := range c.SessionTypes {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	c.SessionTypes = types

	if len(c.SessionTypes) == 0 {
		return errors.New("SESSION_TYPES must list at least one session type")
	}
	if c.QueueTTL <= 0 {
		return errors.New("QUEUE_TTL must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return errors.New("HANDSHAKE_TIMEOUT must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if c.SendBuffer <= 0 {
		return errors.New("SEND_BUFFER must be positive")
	}
	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == DevJWTSecret) {
		return errors.New("JWT_SECRET is required in production")
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

func loadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
		}
	}
}
