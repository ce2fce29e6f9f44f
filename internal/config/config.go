// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SessionTTL bounds both the fast-store session records and the
	// per-turn client receive timeout.
	SessionTTL   time.Duration
	StoreTimeout time.Duration

	// PhoneRegion is the default region for numbers typed without a
	// country prefix.
	PhoneRegion string

	Generator GeneratorConfig
}

// GeneratorConfig controls the reply-generation collaborator.
type GeneratorConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxAttempts  int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		DBPath:        getEnv("DB_PATH", "./data/relay.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SessionTTL:    getEnvDuration("SESSION_TTL", 5*time.Minute),
		StoreTimeout:  getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		PhoneRegion:   getEnv("PHONE_REGION", "IN"),
		Generator: GeneratorConfig{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			BaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:        getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
			SystemPrompt: getEnv("SYSTEM_PROMPT", "You are a friendly support bot. Answer clearly and politely."),
			MaxAttempts:  getEnvInt("GENERATOR_MAX_ATTEMPTS", 3),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be > 0")
	}
	if c.PhoneRegion == "" {
		return fmt.Errorf("PHONE_REGION cannot be empty")
	}
	if c.Generator.MaxAttempts <= 0 {
		return fmt.Errorf("GENERATOR_MAX_ATTEMPTS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
