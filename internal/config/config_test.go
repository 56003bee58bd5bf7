package config

import (
	"testing"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidSegmentCap(t *testing.T) {
	t.Setenv("LEDGER_WAL_SEGMENT_CAP", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid LEDGER_WAL_SEGMENT_CAP")
	}
	if got := err.Error(); !contains(got, "LEDGER_WAL_SEGMENT_CAP") || !contains(got, "abc") {
		t.Fatalf("error should mention LEDGER_WAL_SEGMENT_CAP and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("LEDGER_WAL_SEGMENT_CAP", "abc")
	t.Setenv("LEDGER_ANCHOR_SEARCH_BUDGET", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "LEDGER_WAL_SEGMENT_CAP") {
		t.Fatalf("error should mention LEDGER_WAL_SEGMENT_CAP, got: %s", got)
	}
	if !contains(got, "LEDGER_ANCHOR_SEARCH_BUDGET") {
		t.Fatalf("error should mention LEDGER_ANCHOR_SEARCH_BUDGET, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.StorageRoot != "./data/ledger" {
		t.Fatalf("expected default storage root, got %q", cfg.StorageRoot)
	}
	if cfg.EnableDestructiveDelete {
		t.Fatal("expected destructive delete to be disabled by default")
	}
	if cfg.WALSegmentCap != 64*1024*1024 {
		t.Fatalf("expected default segment cap 64MiB, got %d", cfg.WALSegmentCap)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestLoad_SigningKeyPathValidation(t *testing.T) {
	bogusPath := "/tmp/ledger-test-nonexistent-key-file.pem"
	t.Setenv("LEDGER_SIGNING_PRIVATE_KEY", bogusPath)
	t.Setenv("LEDGER_SIGNING_PUBLIC_KEY", bogusPath)

	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when LEDGER_SIGNING_PRIVATE_KEY points to a nonexistent file")
	}
	got := err.Error()
	if !contains(got, bogusPath) {
		t.Fatalf("error should mention the path %q, got: %s", bogusPath, got)
	}
	if !contains(got, "LEDGER_SIGNING_PRIVATE_KEY") {
		t.Fatalf("error should mention LEDGER_SIGNING_PRIVATE_KEY, got: %s", got)
	}
}

func TestLoad_SigningKeyBothOrNeither(t *testing.T) {
	t.Run("private only fails", func(t *testing.T) {
		t.Setenv("LEDGER_SIGNING_PRIVATE_KEY", "/some/path")
		t.Setenv("LEDGER_SIGNING_PUBLIC_KEY", "")

		_, err := Load()
		if err == nil {
			t.Fatal("expected Load() to fail when only the private key is set")
		}
		if !contains(err.Error(), "both be set or both be empty") {
			t.Fatalf("error should mention both-or-neither, got: %s", err.Error())
		}
	})

	t.Run("public only fails", func(t *testing.T) {
		t.Setenv("LEDGER_SIGNING_PRIVATE_KEY", "")
		t.Setenv("LEDGER_SIGNING_PUBLIC_KEY", "/some/path")

		_, err := Load()
		if err == nil {
			t.Fatal("expected Load() to fail when only the public key is set")
		}
		if !contains(err.Error(), "both be set or both be empty") {
			t.Fatalf("error should mention both-or-neither, got: %s", err.Error())
		}
	})

	t.Run("both empty succeeds (unsigned proofs)", func(t *testing.T) {
		t.Setenv("LEDGER_SIGNING_PRIVATE_KEY", "")
		t.Setenv("LEDGER_SIGNING_PUBLIC_KEY", "")

		_, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed with both signing keys empty, got: %v", err)
		}
	})
}

func TestLoad_OTELEndpointParsing(t *testing.T) {
	endpoint := "https://otel.example.com:4317"
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", endpoint)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.OTELEndpoint != endpoint {
		t.Fatalf("expected OTELEndpoint %q, got %q", endpoint, cfg.OTELEndpoint)
	}
}

func TestLoad_AllEnvVarsHonored(t *testing.T) {
	t.Setenv("LEDGER_STORAGE_ROOT", "/var/lib/ledger")
	t.Setenv("LEDGER_DEFAULT_DOMAIN", "insurance_claims")
	t.Setenv("LEDGER_WAL_SEGMENT_CAP", "1048576")
	t.Setenv("LEDGER_ANCHOR_SEARCH_BUDGET", "512")
	t.Setenv("LEDGER_ANCHOR_SEARCH_WORKERS", "8")
	t.Setenv("OTEL_SERVICE_NAME", "ledger-test")
	t.Setenv("LEDGER_LOG_LEVEL", "debug")
	t.Setenv("LEDGER_STRICT_TEMPORAL", "true")
	t.Setenv("LEDGER_ENABLE_DESTRUCTIVE_DELETE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}

	if cfg.StorageRoot != "/var/lib/ledger" {
		t.Fatalf("expected StorageRoot %q, got %q", "/var/lib/ledger", cfg.StorageRoot)
	}
	if cfg.DefaultDomain != "insurance_claims" {
		t.Fatalf("expected DefaultDomain %q, got %q", "insurance_claims", cfg.DefaultDomain)
	}
	if cfg.WALSegmentCap != 1048576 {
		t.Fatalf("expected WALSegmentCap 1048576, got %d", cfg.WALSegmentCap)
	}
	if cfg.AnchorSearchBudget != 512 {
		t.Fatalf("expected AnchorSearchBudget 512, got %d", cfg.AnchorSearchBudget)
	}
	if cfg.AnchorSearchWorkers != 8 {
		t.Fatalf("expected AnchorSearchWorkers 8, got %d", cfg.AnchorSearchWorkers)
	}
	if cfg.ServiceName != "ledger-test" {
		t.Fatalf("expected ServiceName %q, got %q", "ledger-test", cfg.ServiceName)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LogLevel %q, got %q", "debug", cfg.LogLevel)
	}
	if !cfg.StrictTemporal {
		t.Fatal("expected StrictTemporal true")
	}
	if !cfg.EnableDestructiveDelete {
		t.Fatal("expected EnableDestructiveDelete true")
	}
}
