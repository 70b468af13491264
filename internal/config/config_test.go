package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Port)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Errorf("Expected 30m token ttl, got %v", cfg.AccessTokenTTL)
	}
	wantRegions := []string{"europe", "americas", "asia", "esport"}
	if !reflect.DeepEqual(cfg.RiotRegions, wantRegions) {
		t.Errorf("Expected regions %v, got %v", wantRegions, cfg.RiotRegions)
	}
	if cfg.TraitPrefix != "TFT13_" {
		t.Errorf("Expected trait prefix TFT13_, got %s", cfg.TraitPrefix)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("Expected 10m cache ttl, got %v", cfg.CacheTTL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("RIOT_REGIONS", " Europe , ASIA ,")
	t.Setenv("TFT_TRAIT_PREFIX", "TFT14_")
	t.Setenv("ACCESS_TOKEN_EXPIRE", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if !reflect.DeepEqual(cfg.RiotRegions, []string{"europe", "asia"}) {
		t.Errorf("Expected normalized regions, got %v", cfg.RiotRegions)
	}
	if cfg.TraitPrefix != "TFT14_" {
		t.Errorf("Expected TFT14_, got %s", cfg.TraitPrefix)
	}
	if cfg.AccessTokenTTL != 2*time.Hour {
		t.Errorf("Expected 2h, got %v", cfg.AccessTokenTTL)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("Expected error when SECRET_KEY is empty")
	}
}

func TestLoad_BadFetchCount(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("MATCH_FETCH_COUNT", "500")

	if _, err := Load(); err == nil {
		t.Error("Expected error for MATCH_FETCH_COUNT above 100")
	}
}

func TestLoad_BadCacheTTL(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("CACHE_TTL", "0s")

	if _, err := Load(); err == nil {
		t.Error("Expected error for a zero CACHE_TTL")
	}
}

func TestMaskedAPIKey(t *testing.T) {
	cfg := &Config{RiotAPIKey: "RGAPI-0123456789abcdef"}
	if got := cfg.MaskedAPIKey(); got != "RGAPI-01...cdef" {
		t.Errorf("Unexpected mask: %s", got)
	}
	cfg.RiotAPIKey = "short"
	if got := cfg.MaskedAPIKey(); got != "****" {
		t.Errorf("Expected short keys fully masked, got %s", got)
	}
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(&Config{LogLevel: "debug", LogFormat: "json"})
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %v", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Error("Expected JSON formatter")
	}

	logger = NewLogger(&Config{LogLevel: "nonsense"})
	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("Expected fallback to info, got %v", logger.GetLevel())
	}
}

func TestParse_SkipsValidation(t *testing.T) {
	t.Setenv("SECRET_KEY", "")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.DatabaseURL != "gametracker.db" {
		t.Errorf("Expected default database url, got %s", cfg.DatabaseURL)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected Validate to still reject a missing secret")
	}
}
