package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Room lifecycle defaults. These are service-wide constants rather
// than environment knobs; tests construct a Config directly when they
// need shorter windows.
const (
	DefaultHistorySize  = 100
	DefaultRemoveAfter  = 60 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// Config holds validated environment configuration
type Config struct {
	// HTTP
	Port      string
	StaticDir string

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool
	AllowedOrigins  string

	// Room lifecycle
	HistorySize  int
	RemoveAfter  time.Duration
	WriteTimeout time.Duration

	// Rate Limits
	RateLimitApiGlobal  string
	RateLimitApiHistory string
	RateLimitWsIp       string
}

// ValidateEnv validates all environment variables and returns a Config object
// Returns an error if any variable is invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Optional: PORT (defaults to 8080, must be a valid port if set)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Optional: STATIC_DIR (defaults to "./static")
	cfg.StaticDir = getEnvOrDefault("STATIC_DIR", "./static")

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Room lifecycle constants
	cfg.HistorySize = DefaultHistorySize
	cfg.RemoveAfter = DefaultRemoveAfter
	cfg.WriteTimeout = DefaultWriteTimeout

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitApiGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitApiHistory = getEnvOrDefault("RATE_LIMIT_API_HISTORY", "500-M")
	cfg.RateLimitWsIp = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration
	logValidatedConfig(cfg)

	return cfg, nil
}

// logValidatedConfig logs the validated configuration
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"port", cfg.Port,
		"static_dir", cfg.StaticDir,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"allowed_origins", cfg.AllowedOrigins,
		"history_size", cfg.HistorySize,
		"remove_after", cfg.RemoveAfter.String(),
		"write_timeout", cfg.WriteTimeout.String(),
		"rate_limit_api_global", cfg.RateLimitApiGlobal,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
