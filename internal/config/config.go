// Package config loads terminal settings from the environment and host
// definitions from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process settings.
type Config struct {
	LogLevel       string
	LogPretty      bool
	HostsFile      string
	DatabasePath   string
	AdminAddr      string
	EchoSchedule   string
	OnlineTimeout  time.Duration
	ConnectTimeout time.Duration
}

// Load reads envFile, or .env when envFile is empty and one exists, and
// then the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      getEnvAsBool("LOG_PRETTY", false),
		HostsFile:      getEnv("HOSTS_FILE", "./hosts.yaml"),
		DatabasePath:   getEnv("DATABASE_PATH", "./data/batch.db"),
		AdminAddr:      getEnv("ADMIN_ADDR", ":8080"),
		EchoSchedule:   getEnv("ECHO_SCHEDULE", "@every 60s"),
		OnlineTimeout:  getEnvAsDuration("ONLINE_TIMEOUT", 30*time.Second),
		ConnectTimeout: getEnvAsDuration("CONNECT_TIMEOUT", 30*time.Second),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.HostsFile == "":
		return fmt.Errorf("HOSTS_FILE is required")
	case c.DatabasePath == "":
		return fmt.Errorf("DATABASE_PATH is required")
	case c.OnlineTimeout <= 0:
		return fmt.Errorf("ONLINE_TIMEOUT must be positive, got %s", c.OnlineTimeout)
	case c.ConnectTimeout <= 0:
		return fmt.Errorf("CONNECT_TIMEOUT must be positive, got %s", c.ConnectTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration keeps malformed values so Validate can reject them.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return -1
	}
	return d
}
