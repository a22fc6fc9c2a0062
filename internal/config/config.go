// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Agent and schedule identifiers of the default deployment.
const (
	DefaultOrchestratorID = "698e1f65a96cf8dd37d6a841"
	DefaultVisualID       = "698e1f31a96cf8dd37d6a840"
	DefaultJudgeID        = "698e1f49d53462d090523311"
	DefaultScheduleID     = "698e1f6bebe6fd87d1dcc1d7"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string
	Port string
	Env  string // "development", "production", "testing"

	// Valkey (Redis-compatible session store)
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// Agent platform
	AgentAPIURL    string
	AgentAPIKey    string
	OrchestratorID string
	VisualID       string
	JudgeID        string

	// Recurring generation job
	SchedulerAPIURL  string
	ScheduleID       string
	ScheduleCron     string
	ScheduleTimezone string

	// Operator credentials
	OperatorEmail        string
	OperatorPasswordHash string
	OperatorTOTPSecret   string
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Values from a .env file in the working
// directory are applied first without overriding the real environment.
// Returns an error if critical values are missing in production mode.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  envOrDefault("APP_ENV", "development"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		AgentAPIURL:    envOrDefault("AGENT_API_URL", "http://localhost:8090"),
		AgentAPIKey:    os.Getenv("AGENT_API_KEY"),
		OrchestratorID: envOrDefault("AGENT_ORCHESTRATOR_ID", DefaultOrchestratorID),
		VisualID:       envOrDefault("AGENT_VISUAL_ID", DefaultVisualID),
		JudgeID:        envOrDefault("AGENT_JUDGE_ID", DefaultJudgeID),

		SchedulerAPIURL:  envOrDefault("SCHEDULER_API_URL", "http://localhost:8091"),
		ScheduleID:       envOrDefault("SCHEDULE_ID", DefaultScheduleID),
		ScheduleCron:     envOrDefault("SCHEDULE_CRON", "0 9 * * *"),
		ScheduleTimezone: envOrDefault("SCHEDULE_TIMEZONE", "America/New_York"),

		OperatorEmail:        envOrDefault("OPERATOR_EMAIL", "operator@postforge.local"),
		OperatorPasswordHash: os.Getenv("OPERATOR_PASSWORD_HASH"),
		OperatorTOTPSecret:   os.Getenv("OPERATOR_TOTP_SECRET"),
	}

	if cfg.Env == "production" {
		if cfg.OperatorPasswordHash == "" {
			return nil, fmt.Errorf("OPERATOR_PASSWORD_HASH must be set in production")
		}
		if cfg.OperatorTOTPSecret == "" {
			return nil, fmt.Errorf("OPERATOR_TOTP_SECRET must be set in production")
		}
		if cfg.AgentAPIKey == "" {
			return nil, fmt.Errorf("AGENT_API_KEY must be set in production")
		}
	}

	return cfg, nil
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
