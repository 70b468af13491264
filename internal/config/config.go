package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envPaths are tried in order; the first .env found wins
var envPaths = []string{".env", "../.env", "../../.env"}

// Config holds server configuration
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// Database
	DatabaseURL       string `env:"DATABASE_URL" envDefault:"gametracker.db"`
	DatabaseAuthToken string `env:"DATABASE_AUTH_TOKEN"`
	RedisURL          string `env:"REDIS_URL"`

	// Lifetime of cached statistics; bounds staleness when REDIS_URL is unset
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"10m"`

	// Access tokens
	JWTSecret      string        `env:"SECRET_KEY"`
	JWTAlgorithm   string        `env:"ALGORITHM" envDefault:"HS256"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_EXPIRE" envDefault:"30m"`

	// Riot API
	RiotAPIKey      string   `env:"RIOT_API_KEY"`
	RiotRegions     []string `env:"RIOT_REGIONS" envDefault:"europe,americas,asia,esport" envSeparator:","`
	RiotBaseURL     string   `env:"RIOT_BASE_URL"`
	MatchFetchCount int      `env:"MATCH_FETCH_COUNT" envDefault:"10"`

	// Batch sync reports are posted here when set
	SyncWebhookURL string `env:"SYNC_WEBHOOK_URL"`

	// Trait ids carry a season prefix such as TFT13_
	TraitPrefix string `env:"TFT_TRAIT_PREFIX" envDefault:"TFT13_"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// LoadDotEnv loads the first .env file found and reports its path.
// A missing file is not an error.
func LoadDotEnv() (string, bool) {
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// Load parses configuration from the environment and validates it
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads the environment without validation.
// Tools that never issue tokens use it so SECRET_KEY stays optional for them.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.DatabaseURL = strings.Trim(strings.TrimSpace(c.DatabaseURL), "\"")
	c.RiotAPIKey = strings.TrimSpace(c.RiotAPIKey)
	c.SyncWebhookURL = strings.TrimSpace(c.SyncWebhookURL)
	regions := make([]string, 0, len(c.RiotRegions))
	for _, r := range c.RiotRegions {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			regions = append(regions, r)
		}
	}
	c.RiotRegions = regions
}

// Validate checks required values
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}
	if c.JWTAlgorithm != "HS256" && c.JWTAlgorithm != "HS384" && c.JWTAlgorithm != "HS512" {
		return fmt.Errorf("unsupported ALGORITHM %q", c.JWTAlgorithm)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(c.RiotRegions) == 0 {
		return fmt.Errorf("RIOT_REGIONS must list at least one region")
	}
	if c.MatchFetchCount <= 0 || c.MatchFetchCount > 100 {
		return fmt.Errorf("MATCH_FETCH_COUNT must be between 1 and 100")
	}
	return nil
}

// MaskedAPIKey shows only the ends of the Riot key for logs
func (c *Config) MaskedAPIKey() string {
	if len(c.RiotAPIKey) <= 12 {
		return "****"
	}
	return c.RiotAPIKey[:8] + "..." + c.RiotAPIKey[len(c.RiotAPIKey)-4:]
}
