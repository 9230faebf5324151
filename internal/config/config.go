package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Priya8975/userdb-provisioner/internal/webhook"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string

	WebhookSecret string

	ProvisionerBaseURL  string
	ProvisionerAPIToken string
	ProvisionerScope    string

	DefaultRegion string
	RegionMap     string
	GeoLookupURL  string

	ListTimeout   time.Duration
	CreateTimeout time.Duration
	GeoTimeout    time.Duration

	CreateRateLimit int
	ClaimTTL        time.Duration

	DatabaseURL  string
	RedisURL     string
	NumRecorders int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment
// variables take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		WebhookSecret:       getEnv("WEBHOOK_SECRET", ""),
		ProvisionerBaseURL:  getEnv("PROVISIONER_BASE_URL", "https://api.turso.tech"),
		ProvisionerAPIToken: getEnv("PROVISIONER_API_TOKEN", ""),
		ProvisionerScope:    getEnv("PROVISIONER_SCOPE", ""),
		DefaultRegion:       getEnv("DEFAULT_REGION", "us-east-1"),
		RegionMap:           getEnv("REGION_MAP", "EU=eu-west-1,OC=ap-southeast-2"),
		GeoLookupURL:        getEnv("GEO_LOOKUP_URL", ""),
		ListTimeout:         getEnvDuration("LIST_TIMEOUT", 5*time.Second),
		CreateTimeout:       getEnvDuration("CREATE_TIMEOUT", 10*time.Second),
		GeoTimeout:          getEnvDuration("GEO_TIMEOUT", 2*time.Second),
		CreateRateLimit:     getEnvInt("CREATE_RATE_LIMIT", 0),
		ClaimTTL:            getEnvDuration("CLAIM_TTL", 30*time.Second),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		NumRecorders:        getEnvInt("NUM_RECORDERS", 4),
	}

	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if err := webhook.ValidateSecret(cfg.WebhookSecret); err != nil {
		return nil, fmt.Errorf("WEBHOOK_SECRET is invalid: %w", err)
	}
	if cfg.ProvisionerAPIToken == "" {
		return nil, fmt.Errorf("PROVISIONER_API_TOKEN is required")
	}
	if cfg.ProvisionerScope == "" {
		return nil, fmt.Errorf("PROVISIONER_SCOPE is required")
	}
	if cfg.DefaultRegion == "" {
		return nil, fmt.Errorf("DEFAULT_REGION must not be empty")
	}
	if cfg.NumRecorders < 1 {
		cfg.NumRecorders = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("5s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
