// Package config provides application configuration for the improv service.
// Values come from environment variables, optionally overlaid by a YAML file
// named in IMPROV_CONFIG_FILE.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port   string `yaml:"port"`
	DBPath string `yaml:"db_path"`

	// Provider selects the generative backend: "anthropic", "openai" or
	// "mock". API keys are read by the SDKs from their usual env variables.
	Provider string `yaml:"provider"`
	ModelID  string `yaml:"model_id"`

	TurnTimeout  time.Duration `yaml:"turn_timeout"`
	MaxInputLen  int           `yaml:"max_input_len"`
	CoachingTurn int           `yaml:"coaching_turn"`

	DailyLimit      int `yaml:"daily_limit"`
	ConcurrentLimit int `yaml:"concurrent_limit"`

	PartnerCacheTTL time.Duration `yaml:"partner_cache_ttl"`

	// StaleAfter is how long an active session may sit idle before the
	// background sweeper abandons it. SweepInterval is the sweeper period.
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Load reads configuration from environment variables, applying the optional
// YAML overlay first so explicit env variables always win.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            "8080",
		DBPath:          "./data/improv.db",
		Provider:        "anthropic",
		ModelID:         "",
		TurnTimeout:     30 * time.Second,
		MaxInputLen:     2000,
		CoachingTurn:    15,
		DailyLimit:      10,
		ConcurrentLimit: 3,
		PartnerCacheTTL: 300 * time.Second,
		StaleAfter:      60 * time.Minute,
		SweepInterval:   5 * time.Minute,
	}

	if path := os.Getenv("IMPROV_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.Provider = strings.ToLower(getEnv("MODEL_PROVIDER", cfg.Provider))
	cfg.ModelID = getEnv("MODEL_ID", cfg.ModelID)
	cfg.TurnTimeout = getEnvDuration("TURN_TIMEOUT", cfg.TurnTimeout)
	cfg.MaxInputLen = getEnvInt("MAX_INPUT_LEN", cfg.MaxInputLen)
	cfg.CoachingTurn = getEnvInt("COACHING_TURN", cfg.CoachingTurn)
	cfg.DailyLimit = getEnvInt("DAILY_SESSION_LIMIT", cfg.DailyLimit)
	cfg.ConcurrentLimit = getEnvInt("CONCURRENT_SESSION_LIMIT", cfg.ConcurrentLimit)
	cfg.PartnerCacheTTL = getEnvDuration("PARTNER_CACHE_TTL", cfg.PartnerCacheTTL)
	cfg.StaleAfter = getEnvDuration("SESSION_STALE_AFTER", cfg.StaleAfter)
	cfg.SweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", cfg.SweepInterval)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are consistent.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.Provider {
	case "anthropic", "openai", "mock":
	default:
		return fmt.Errorf("MODEL_PROVIDER must be anthropic, openai or mock, got %q", c.Provider)
	}
	if c.TurnTimeout <= 0 {
		return fmt.Errorf("TURN_TIMEOUT must be positive")
	}
	if c.MaxInputLen <= 0 {
		return fmt.Errorf("MAX_INPUT_LEN must be positive")
	}
	if c.CoachingTurn < 0 {
		return fmt.Errorf("COACHING_TURN cannot be negative")
	}
	if c.DailyLimit <= 0 || c.ConcurrentLimit <= 0 {
		return fmt.Errorf("session limits must be positive")
	}
	if c.StaleAfter <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("sweep settings must be positive")
	}
	return nil
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
