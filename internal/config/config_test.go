package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadIncludesEnrichmentDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ENRICH_MAX_CONCURRENCY", "")
	t.Setenv("ENRICH_CACHE_WRITE_TIMEOUT", "")
	t.Setenv("NATS_SUBJECT", "")
	t.Setenv("GAIA_RATE_LIMIT_RPS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EnrichMaxConcurrency != 8 {
		t.Fatalf("expected default concurrency 8, got %d", cfg.EnrichMaxConcurrency)
	}
	if cfg.EnrichCacheWriteTimeout != 5*time.Second {
		t.Fatalf("expected default cache write timeout 5s, got %s", cfg.EnrichCacheWriteTimeout)
	}
	if cfg.NATSSubject != "shipments.enrich" {
		t.Fatalf("expected default subject shipments.enrich, got %q", cfg.NATSSubject)
	}
	if cfg.GaiaRateLimitRPS != 5 {
		t.Fatalf("expected default rate limit 5, got %v", cfg.GaiaRateLimitRPS)
	}
}

func TestLoadParsesTypedOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ENRICH_MAX_CONCURRENCY", "3")
	t.Setenv("GAIA_TIMEOUT", "45s")
	t.Setenv("GAIA_RATE_LIMIT_RPS", "2.5")
	t.Setenv("BREAKER_ENABLED", "false")
	t.Setenv("RETRY_MAX_ATTEMPTS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EnrichMaxConcurrency != 3 {
		t.Fatalf("expected concurrency 3, got %d", cfg.EnrichMaxConcurrency)
	}
	if cfg.GaiaTimeout != 45*time.Second {
		t.Fatalf("expected gaia timeout 45s, got %s", cfg.GaiaTimeout)
	}
	if cfg.GaiaRateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5, got %v", cfg.GaiaRateLimitRPS)
	}
	if cfg.BreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Fatalf("expected invalid value to fall back to 3, got %d", cfg.RetryMaxAttempts)
	}
}

func TestLoadAppliesYAMLOverlayBelowEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "GAIA_BASE_URL: https://gaia.internal\nenrich_max_concurrency: 12\nREDIS_TTL: 1h\nAPI_PORT: 9000\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("GAIA_BASE_URL", "")
	t.Setenv("ENRICH_MAX_CONCURRENCY", "")
	t.Setenv("REDIS_TTL", "")
	t.Setenv("API_PORT", "8181")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GaiaBaseURL != "https://gaia.internal" {
		t.Fatalf("expected base url from file, got %q", cfg.GaiaBaseURL)
	}
	if cfg.EnrichMaxConcurrency != 12 {
		t.Fatalf("expected concurrency 12 from file, got %d", cfg.EnrichMaxConcurrency)
	}
	if cfg.RedisTTL != time.Hour {
		t.Fatalf("expected redis ttl 1h, got %s", cfg.RedisTTL)
	}
	if cfg.APIPort != "8181" {
		t.Fatalf("expected environment to win, got %q", cfg.APIPort)
	}
}

func TestLoadRejectsMalformedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("- just\n- a list\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed config file")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
