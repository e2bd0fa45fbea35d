package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

var envKeys = []string{
	"SCOPEMIGRATE_SQLITE_DSN",
	"SCOPEMIGRATE_DESCRIPTOR",
	"SCOPEMIGRATE_STATE_DATABASE",
	"SCOPEMIGRATE_BUSY_TIMEOUT",
	"SCOPEMIGRATE_LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		// Setenv registers the restore; Unsetenv then clears the value.
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.SQLiteDSN != "file:scopemigrate.db" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.BusyTimeout != 30*time.Second {
			t.Fatalf("expected default busy timeout 30s, got %s", cfg.BusyTimeout)
		}
		if cfg.LogLevel != slog.LevelInfo {
			t.Fatalf("expected default log level info, got %s", cfg.LogLevel)
		}
		if cfg.DescriptorPath != "" || cfg.StateDatabase != "" {
			t.Fatalf("expected empty descriptor and state database, got %+v", cfg)
		}
	})

	t.Run("parses all fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCOPEMIGRATE_SQLITE_DSN", "file:/tmp/app.db")
		t.Setenv("SCOPEMIGRATE_DESCRIPTOR", " /etc/app/billing.toml ")
		t.Setenv("SCOPEMIGRATE_STATE_DATABASE", "/var/lib/app/tracking.db")
		t.Setenv("SCOPEMIGRATE_BUSY_TIMEOUT", "5s")
		t.Setenv("SCOPEMIGRATE_LOG_LEVEL", "debug")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.SQLiteDSN != "file:/tmp/app.db" {
			t.Fatalf("unexpected DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.DescriptorPath != "/etc/app/billing.toml" {
			t.Fatalf("unexpected descriptor path: %q", cfg.DescriptorPath)
		}
		if cfg.StateDatabase != "/var/lib/app/tracking.db" {
			t.Fatalf("unexpected state database: %q", cfg.StateDatabase)
		}
		if cfg.BusyTimeout != 5*time.Second {
			t.Fatalf("expected busy timeout 5s, got %s", cfg.BusyTimeout)
		}
		if cfg.LogLevel != slog.LevelDebug {
			t.Fatalf("expected debug level, got %s", cfg.LogLevel)
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCOPEMIGRATE_BUSY_TIMEOUT", "soon")
		t.Setenv("SCOPEMIGRATE_LOG_LEVEL", "loud")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "invalid environment variable values: SCOPEMIGRATE_BUSY_TIMEOUT, SCOPEMIGRATE_LOG_LEVEL"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	if err := (Config{SQLiteDSN: "file:x.db", DescriptorPath: "d.toml"}).Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	err := Config{SQLiteDSN: "file:x.db"}.Validate()
	if err == nil {
		t.Fatalf("expected error when descriptor is missing")
	}
	expected := "required configuration is not set: SCOPEMIGRATE_DESCRIPTOR (--descriptor)"
	if err.Error() != expected {
		t.Fatalf("unexpected error message: %q", err.Error())
	}
}
