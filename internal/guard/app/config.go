package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Issuer              string // Required: expected issuer of identity tokens
	VerificationKeyFile string // Required: PEM PKIX public key of the identity provider

	BootstrapAdminEmails []string // Optional: emails eligible for first-admin self-elevation

	RateLimitKeySalt string        // Optional: salt for registration counter keys (default: random per boot)
	RateLimitMax     int           // Optional: registration attempts per window (default: 5)
	RateLimitWindow  time.Duration // Optional: registration rate window (default: 15m)

	RetentionWindow time.Duration // Optional: security event retention (default: 30 days)
	AggregateHour   int           // Optional: UTC hour for daily rollup (default: 1)
	CleanupHour     int           // Optional: UTC hour for retention cleanup (default: 3)

	DatabaseFile        string        // Optional: path to SQLite database file (default: ./guard.db)
	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:              os.Getenv("GUARD_ISSUER"),
		VerificationKeyFile: os.Getenv("GUARD_VERIFICATION_KEY_FILE"),

		RateLimitKeySalt: os.Getenv("GUARD_RATE_LIMIT_KEY_SALT"),
		RateLimitMax:     getEnvIntOrDefault("GUARD_RATE_LIMIT_MAX", 5),
		RateLimitWindow:  getEnvDurationOrDefault("GUARD_RATE_LIMIT_WINDOW", 15*time.Minute),

		RetentionWindow: getEnvDurationOrDefault("GUARD_RETENTION_WINDOW", 30*24*time.Hour),
		AggregateHour:   getEnvIntOrDefault("GUARD_AGGREGATE_HOUR_UTC", 1),
		CleanupHour:     getEnvIntOrDefault("GUARD_CLEANUP_HOUR_UTC", 3),

		DatabaseFile:        getEnvOrDefault("GUARD_DATABASE_FILE", "guard.db"),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	// Comma-separated list, whitespace tolerated.
	if raw := os.Getenv("GUARD_BOOTSTRAP_ADMIN_EMAILS"); raw != "" {
		for _, e := range strings.Split(raw, ",") {
			if e = strings.TrimSpace(e); e != "" {
				cfg.BootstrapAdminEmails = append(cfg.BootstrapAdminEmails, e)
			}
		}
	}

	if cfg.Issuer == "" {
		cfg.Issuer = "storeguard"
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer minutes also accepted.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
