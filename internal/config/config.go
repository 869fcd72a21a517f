// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrReelBaseURLRequired is returned when REEL_BASE_URL is not set.
	ErrReelBaseURLRequired = errors.New("config: REEL_BASE_URL is required")
	// ErrReelAPIKeyRequired is returned when REEL_API_KEY is not set.
	ErrReelAPIKeyRequired = errors.New("config: REEL_API_KEY is required")
	// ErrSpeechBaseURLRequired is returned when SPEECH_BASE_URL is not set.
	ErrSpeechBaseURLRequired = errors.New("config: SPEECH_BASE_URL is required")
	// ErrSpeechTokenRequired is returned when SPEECH_API_TOKEN is not set.
	ErrSpeechTokenRequired = errors.New("config: SPEECH_API_TOKEN is required")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Render service settings
	ReelBaseURL string `env:"REEL_BASE_URL, required" json:"reel_base_url"`
	ReelAPIKey  string `env:"REEL_API_KEY, required" json:"-"` // Masked in JSON

	// Speech service settings
	SpeechBaseURL  string `env:"SPEECH_BASE_URL, required" json:"speech_base_url"`
	SpeechAPIToken string `env:"SPEECH_API_TOKEN, required" json:"-"` // Masked in JSON

	// Job store settings; an empty RedisAddr selects the in-memory store.
	RedisAddr string `env:"REDIS_ADDR" json:"redis_addr,omitempty"`

	// Orchestration settings
	JobBudget    time.Duration `env:"JOB_BUDGET, default=20m" json:"job_budget"`
	PollInterval time.Duration `env:"POLL_INTERVAL, default=30s" json:"poll_interval"`

	// Artifact storage settings
	DataDir            string `env:"DATA_DIR, default=/tmp/avatarforge" json:"data_dir"`
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// RedisEnabled returns true if a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		switch {
		case strings.Contains(err.Error(), "REEL_BASE_URL"):
			return nil, ErrReelBaseURLRequired
		case strings.Contains(err.Error(), "REEL_API_KEY"):
			return nil, ErrReelAPIKeyRequired
		case strings.Contains(err.Error(), "SPEECH_BASE_URL"):
			return nil, ErrSpeechBaseURLRequired
		case strings.Contains(err.Error(), "SPEECH_API_TOKEN"):
			return nil, ErrSpeechTokenRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.ReelBaseURL == "" {
		return ErrReelBaseURLRequired
	}
	if c.ReelAPIKey == "" {
		return ErrReelAPIKeyRequired
	}
	if c.SpeechBaseURL == "" {
		return ErrSpeechBaseURLRequired
	}
	if c.SpeechAPIToken == "" {
		return ErrSpeechTokenRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, ReelBaseURL: %s, SpeechBaseURL: %s, RedisAddr: %s, JobBudget: %s, PollInterval: %s, DataDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.ReelBaseURL,
		c.SpeechBaseURL,
		c.RedisAddr,
		c.JobBudget,
		c.PollInterval,
		c.DataDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
