// Package config loads and validates relay config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers accepted in DATABASE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Model providers accepted in LLM_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the chat ingress and liveness listener (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the gRPC health listener. Empty disables the gRPC server.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`

	// DatabaseDriver is postgres, sqlite or memory.
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	// DatabaseURL is the connection string; a file path or DSN for sqlite.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DatabaseName overrides the database named in DatabaseURL (postgres only).
	DatabaseName string `mapstructure:"DATABASE_NAME"`
	// StoreTimeout bounds every storage operation (e.g. "5s").
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`

	// IdentityHashCost is the bcrypt work factor for identity tokens (4–31).
	IdentityHashCost int `mapstructure:"IDENTITY_HASH_COST"`
	// IdentityLookupPepper enables the keyed lookup index when non-empty.
	IdentityLookupPepper string `mapstructure:"IDENTITY_LOOKUP_PEPPER"`

	// SessionTTL is how long a session survives without interaction (e.g. "30m").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// SessionWindow is the number of messages kept per session.
	SessionWindow int `mapstructure:"SESSION_WINDOW"`

	LLMProvider  string `mapstructure:"LLM_PROVIDER"`
	LLMBaseURL   string `mapstructure:"LLM_BASE_URL"`
	LLMAPIKey    string `mapstructure:"LLM_API_KEY"`
	OpenAIAPIKey string `mapstructure:"OPENAI_API_KEY"`
	LLMModel     string `mapstructure:"LLM_MODEL"`
	LLMTimeout   string `mapstructure:"LLM_TIMEOUT"`
	SystemPrompt string `mapstructure:"SYSTEM_PROMPT"`

	// IngressJWTSecret, when set, makes the HTTP ingress require HS256 bearer tokens.
	IngressJWTSecret string `mapstructure:"INGRESS_JWT_SECRET"`
	// EligibilityPolicyFile is an optional Rego file replacing the built-in eligibility policy.
	EligibilityPolicyFile string `mapstructure:"ELIGIBILITY_POLICY_FILE"`

	// OTLPEndpoint is the OTLP gRPC collector. Empty yields no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// UpgradeIdentitiesOnStart runs the legacy identity upgrade once before serving.
	UpgradeIdentitiesOnStart bool `mapstructure:"UPGRADE_IDENTITIES_ON_START"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("GRPC_ADDR", ":8081")
	v.SetDefault("DATABASE_DRIVER", DriverPostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_NAME", "discord_bot")
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("IDENTITY_HASH_COST", 10)
	v.SetDefault("IDENTITY_LOOKUP_PEPPER", "")
	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("SESSION_WINDOW", 10)
	v.SetDefault("LLM_PROVIDER", ProviderOpenAI)
	v.SetDefault("LLM_BASE_URL", "https://api.groq.com/openai/v1")
	v.SetDefault("LLM_API_KEY", "")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("LLM_MODEL", "llama-3.3-70b-versatile")
	v.SetDefault("LLM_TIMEOUT", "60s")
	v.SetDefault("SYSTEM_PROMPT", "")
	v.SetDefault("INGRESS_JWT_SECRET", "")
	v.SetDefault("ELIGIBILITY_POLICY_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("UPGRADE_IDENTITIES_ON_START", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("config: DATABASE_URL must be set for driver %s", cfg.DatabaseDriver)
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("config: DATABASE_DRIVER must be postgres, sqlite or memory, got %q", cfg.DatabaseDriver)
	}

	if cfg.IdentityHashCost == 0 {
		cfg.IdentityHashCost = 10
	}
	if cfg.IdentityHashCost < 4 || cfg.IdentityHashCost > 31 {
		return nil, errors.New("config: IDENTITY_HASH_COST must be between 4 and 31")
	}

	if cfg.SessionWindow <= 0 {
		return nil, errors.New("config: SESSION_WINDOW must be positive")
	}
	if cfg.SessionWindow%2 != 0 {
		return nil, errors.New("config: SESSION_WINDOW must be even (user and assistant entries are kept in pairs)")
	}

	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if cfg.LLMProvider != ProviderOpenAI && cfg.LLMProvider != ProviderGemini {
		return nil, fmt.Errorf("config: LLM_PROVIDER must be openai or gemini, got %q", cfg.LLMProvider)
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = cfg.OpenAIAPIKey
	}

	return &cfg, nil
}

// StoreTimeoutDuration parses StoreTimeout. Returns 5s if unset or invalid.
func (c *Config) StoreTimeoutDuration() time.Duration {
	return parseDuration(c.StoreTimeout, 5*time.Second)
}

// SessionTTLDuration parses SessionTTL. Returns 30m if unset or invalid.
func (c *Config) SessionTTLDuration() time.Duration {
	return parseDuration(c.SessionTTL, 30*time.Minute)
}

// LLMTimeoutDuration parses LLMTimeout. Returns 60s if unset or invalid.
func (c *Config) LLMTimeoutDuration() time.Duration {
	return parseDuration(c.LLMTimeout, 60*time.Second)
}

// DatabaseDSN returns DatabaseURL with the path replaced by DatabaseName, for tools that
// only accept a URL (golang-migrate). Keyword/value DSNs get a trailing dbname pair.
func (c *Config) DatabaseDSN() string {
	dsn := strings.TrimSpace(c.DatabaseURL)
	if c.DatabaseName == "" || dsn == "" {
		return dsn
	}
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		u.Path = "/" + c.DatabaseName
		return u.String()
	}
	return dsn + " dbname=" + c.DatabaseName
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
