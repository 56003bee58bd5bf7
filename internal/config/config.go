// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration for the ledger engine and
// its CLI/MCP entry points.
type Config struct {
	// Storage settings.
	StorageRoot    string // Root directory for WAL segments, manifests, and snapshots.
	DefaultDomain  string // Domain registry id used when a Simulate call names no domain.
	WALSegmentCap  int64  // Byte cap before a WAL segment rolls.

	// Signing settings.
	SigningPrivateKeyPath string // Path to an Ed25519 private key PEM file.
	SigningPublicKeyPath  string // Path to an Ed25519 public key PEM file.
	SigningKeyID          string // kid embedded in issued proof signatures.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool // Use HTTP instead of HTTPS for the OTEL exporter (default: false).
	ServiceName  string

	// Operational settings.
	LogLevel                string
	StrictTemporal          bool  // Reject backward system_time appends instead of warning.
	EnableDestructiveDelete bool  // Allow CLI commands that truncate or rewrite WAL segments.
	AnchorSearchBudget      int   // Max counterfactual anchor candidates explored per CTF query.
	AnchorSearchWorkers     int   // Bounded concurrency for anchor search and precedent scoring.
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if any environment variable contains an unparseable value.
// Missing variables use sensible defaults; malformed values, and values
// that fail Validate (non-positive sizes, unreadable key files), are rejected.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		StorageRoot:           envStr("LEDGER_STORAGE_ROOT", "./data/ledger"),
		DefaultDomain:         envStr("LEDGER_DEFAULT_DOMAIN", "banking_aml"),
		SigningPrivateKeyPath: envStr("LEDGER_SIGNING_PRIVATE_KEY", ""),
		SigningPublicKeyPath:  envStr("LEDGER_SIGNING_PUBLIC_KEY", ""),
		SigningKeyID:          envStr("LEDGER_SIGNING_KEY_ID", ""),
		OTELEndpoint:          envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:           envStr("OTEL_SERVICE_NAME", "decision-ledger"),
		LogLevel:              envStr("LEDGER_LOG_LEVEL", "info"),
	}

	var segCap int
	segCap, errs = collectInt(errs, "LEDGER_WAL_SEGMENT_CAP", 64*1024*1024)
	cfg.WALSegmentCap = int64(segCap)

	cfg.AnchorSearchBudget, errs = collectInt(errs, "LEDGER_ANCHOR_SEARCH_BUDGET", 256)
	cfg.AnchorSearchWorkers, errs = collectInt(errs, "LEDGER_ANCHOR_SEARCH_WORKERS", 4)

	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)
	cfg.StrictTemporal, errs = collectBool(errs, "LEDGER_STRICT_TEMPORAL", false)
	cfg.EnableDestructiveDelete, errs = collectBool(errs, "LEDGER_ENABLE_DESTRUCTIVE_DELETE", false)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// collectInt parses an int env var, appending any error to the accumulator.
func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectBool parses a bool env var, appending any error to the accumulator.
func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that required configuration is present and sane.
func (c Config) Validate() error {
	var errs []error

	if c.StorageRoot == "" {
		errs = append(errs, errors.New("config: LEDGER_STORAGE_ROOT is required"))
	}
	if c.DefaultDomain == "" {
		errs = append(errs, errors.New("config: LEDGER_DEFAULT_DOMAIN is required"))
	}
	if c.WALSegmentCap <= 0 {
		errs = append(errs, errors.New("config: LEDGER_WAL_SEGMENT_CAP must be positive"))
	}
	if c.AnchorSearchBudget <= 0 {
		errs = append(errs, errors.New("config: LEDGER_ANCHOR_SEARCH_BUDGET must be positive"))
	}
	if c.AnchorSearchWorkers <= 0 {
		errs = append(errs, errors.New("config: LEDGER_ANCHOR_SEARCH_WORKERS must be positive"))
	}

	if (c.SigningPrivateKeyPath == "") != (c.SigningPublicKeyPath == "") {
		errs = append(errs, errors.New("config: LEDGER_SIGNING_PRIVATE_KEY and LEDGER_SIGNING_PUBLIC_KEY must both be set or both be empty"))
	}
	if c.SigningPrivateKeyPath != "" {
		if err := validateKeyFile(c.SigningPrivateKeyPath, "LEDGER_SIGNING_PRIVATE_KEY"); err != nil {
			errs = append(errs, err)
		}
	}
	if c.SigningPublicKeyPath != "" {
		if err := validateKeyFile(c.SigningPublicKeyPath, "LEDGER_SIGNING_PUBLIC_KEY"); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// validateKeyFile checks that a key file exists, is readable, is non-empty,
// and has restrictive permissions (owner-only on Unix).
func validateKeyFile(path, envVar string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config: %s %q: %w", envVar, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s %q is a directory, expected a file", envVar, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("config: %s %q is empty", envVar, path)
	}
	perm := info.Mode().Perm()
	if perm&0o077 != 0 {
		return fmt.Errorf("config: %s %q has overly permissive mode %04o (expected 0600 or stricter)", envVar, path, perm)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

