package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected address: %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "syncd.db" {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("unexpected ttl: %v", cfg.TokenTTL)
	}
	if cfg.TokenIssuer != "erp-core" || cfg.TokenAudience != "syncd-api" {
		t.Fatalf("unexpected token settings: %+v", cfg)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	configViper := NewViper()
	_, err := Load(configViper)
	if err == nil || !strings.Contains(err.Error(), "auth.signing_secret") {
		t.Fatalf("expected a signing secret error, got %v", err)
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("http.address", "127.0.0.1:9090")
	configViper.Set("token.ttl_minutes", 5)
	configViper.Set("log.file", "/var/log/syncd.log")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9090" {
		t.Fatalf("unexpected address: %q", cfg.HTTPAddress)
	}
	if cfg.TokenTTL != 5*time.Minute {
		t.Fatalf("unexpected ttl: %v", cfg.TokenTTL)
	}
	if cfg.LogFile != "/var/log/syncd.log" {
		t.Fatalf("unexpected log file: %q", cfg.LogFile)
	}
}

func TestLoadRejectsBlankDatabasePath(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("database.path", "   ")

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected a database path error")
	}
}
