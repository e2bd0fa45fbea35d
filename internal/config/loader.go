package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/example/scope-migrator/internal/logging"
)

// Config captures environment driven configuration values for the scopemigrate tool.
type Config struct {
	SQLiteDSN      string
	DescriptorPath string
	StateDatabase  string
	BusyTimeout    time.Duration
	LogLevel       slog.Level
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults. Every malformed value is reported
// in a single error so operators can fix them in one pass.
func Load() (Config, error) {
	cfg := Config{
		SQLiteDSN:   "file:scopemigrate.db",
		BusyTimeout: 30 * time.Second,
		LogLevel:    slog.LevelInfo,
	}

	invalid := make([]string, 0, 2)

	if dsn := strings.TrimSpace(os.Getenv("SCOPEMIGRATE_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	cfg.DescriptorPath = strings.TrimSpace(os.Getenv("SCOPEMIGRATE_DESCRIPTOR"))
	cfg.StateDatabase = strings.TrimSpace(os.Getenv("SCOPEMIGRATE_STATE_DATABASE"))

	if timeoutValue := strings.TrimSpace(os.Getenv("SCOPEMIGRATE_BUSY_TIMEOUT")); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout < 0 {
			invalid = append(invalid, "SCOPEMIGRATE_BUSY_TIMEOUT")
		} else {
			cfg.BusyTimeout = timeout
		}
	}

	if levelValue := strings.TrimSpace(os.Getenv("SCOPEMIGRATE_LOG_LEVEL")); levelValue != "" {
		level, err := logging.ParseLevel(levelValue)
		if err != nil {
			invalid = append(invalid, "SCOPEMIGRATE_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Validate reports required values that neither the environment nor the
// command line supplied.
func (c Config) Validate() error {
	missing := make([]string, 0, 2)
	if strings.TrimSpace(c.SQLiteDSN) == "" {
		missing = append(missing, "SCOPEMIGRATE_SQLITE_DSN (--dsn)")
	}
	if strings.TrimSpace(c.DescriptorPath) == "" {
		missing = append(missing, "SCOPEMIGRATE_DESCRIPTOR (--descriptor)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required configuration is not set: %s", strings.Join(missing, ", "))
	}
	return nil
}
