package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(testContext *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		testContext.Fatalf("unexpected load error: %v", err)
	}

	if cfg.HTTPAddress != "0.0.0.0:8080" {
		testContext.Fatalf("unexpected http address %s", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "inkstream.db" {
		testContext.Fatalf("unexpected database path %s", cfg.DatabasePath)
	}
	if cfg.AuthIssuer != "inkstream-auth" || cfg.AuthAudience != "inkstream-api" {
		testContext.Fatalf("unexpected auth identity %s/%s", cfg.AuthIssuer, cfg.AuthAudience)
	}
	if cfg.TokenTTL != 30*time.Minute {
		testContext.Fatalf("unexpected token ttl %v", cfg.TokenTTL)
	}
	if cfg.RateLimitLimit != 120 || cfg.RateLimitWindow != time.Minute {
		testContext.Fatalf("unexpected rate limit %d per %v", cfg.RateLimitLimit, cfg.RateLimitWindow)
	}
}

func TestLoadRejectsMissingSigningSecret(testContext *testing.T) {
	configViper := NewViper()

	if _, err := Load(configViper); err == nil {
		testContext.Fatalf("expected error for missing signing secret")
	}
}

func TestLoadRejectsEmptyDatabasePath(testContext *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("database.path", "  ")

	if _, err := Load(configViper); err == nil {
		testContext.Fatalf("expected error for blank database path")
	}
}

func TestLoadRejectsNonPositiveTokenTTL(testContext *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("auth.token_ttl_minutes", 0)

	if _, err := Load(configViper); err == nil {
		testContext.Fatalf("expected error for zero token ttl")
	}
}

func TestLoadReadsOverrides(testContext *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("http.address", "127.0.0.1:9090")
	configViper.Set("ratelimit.limit", 5)
	configViper.Set("ratelimit.window_seconds", 10)

	cfg, err := Load(configViper)
	if err != nil {
		testContext.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9090" {
		testContext.Fatalf("unexpected http address %s", cfg.HTTPAddress)
	}
	if cfg.RateLimitLimit != 5 || cfg.RateLimitWindow != 10*time.Second {
		testContext.Fatalf("unexpected rate limit %d per %v", cfg.RateLimitLimit, cfg.RateLimitWindow)
	}
}
