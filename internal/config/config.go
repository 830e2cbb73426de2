package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"

	TransportREST = "rest"
	TransportSDK  = "sdk"
)

// Config holds application configuration
type Config struct {
	ServerPort      string
	BaseURL         string
	FrontendURL     string
	EnableHSTS      bool
	ServerDebugMode bool
	CookieSecure    bool

	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string
	GeminiTransport string
	UpstreamTimeout time.Duration
	UpstreamRPS     float64

	OpenAIKey  string
	AIProvider string
	AIModel    string
	AIBaseURL  string

	RateLimit              int
	RateLimitWindow        time.Duration
	RateLimitStore         string
	RateLimitSweepInterval time.Duration
	RateLimitReload        time.Duration
	BurstRate              string

	RedisURL    string
	DatabaseURL string

	MaxUploadBytes    int64
	UploadMemoryBytes int64
	TempDir           string

	OpenAIClientID     string
	OpenAIClientSecret string
	OpenAIRedirectURI  string
	OpenAIAuthURL      string
	OpenAITokenURL     string

	OTELEnabled  bool
	OTELEndpoint string
}

// UsesRedis reports whether any component needs the Redis connection.
func (c *Config) UsesRedis() bool {
	return c.RateLimitStore == RateLimitStoreRedis
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom loads configuration using lookup to read variables.
func LoadFrom(lookup func(string) string) (*Config, error) {
	env := envSource(lookup)
	cfg := &Config{
		ServerPort:      env.getEnv("SERVER_PORT", "8080"),
		BaseURL:         env.getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:     env.getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:      env.getEnvBool("ENABLE_HSTS", false),
		ServerDebugMode: env.getEnvBool("SERVER_DEBUG_MODE", false),
		CookieSecure:    env.getEnvBool("COOKIE_SECURE", false),

		GeminiAPIKey:    env.getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     env.getEnv("GEMINI_MODEL", "gemini-3-pro-image-preview"),
		GeminiBaseURL:   env.getEnv("GEMINI_BASE_URL", ""),
		GeminiTransport: strings.ToLower(env.getEnv("GEMINI_TRANSPORT", TransportREST)),
		UpstreamTimeout: env.getEnvDuration("UPSTREAM_TIMEOUT", 90*time.Second),
		UpstreamRPS:     env.getEnvFloat("UPSTREAM_RPS", 0),

		OpenAIKey:  env.getEnv("OPENAI_API_KEY", ""),
		AIProvider: env.getEnv("AI_PROVIDER", "openai"),
		AIModel:    env.getEnv("AI_MODEL", "gpt-4o"),
		AIBaseURL:  env.getEnv("AI_BASE_URL", ""),

		RateLimit:              env.getEnvInt("RATE_LIMIT", 20),
		RateLimitWindow:        env.getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitStore:         strings.ToLower(env.getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory)),
		RateLimitSweepInterval: env.getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
		RateLimitReload:        env.getEnvDuration("RATE_LIMIT_RELOAD_INTERVAL", time.Minute),
		BurstRate:              env.getEnv("BURST_RATE", "10-S"),

		RedisURL:    env.getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL: env.getEnv("DATABASE_URL", ""),

		MaxUploadBytes:    int64(env.getEnvInt("MAX_UPLOAD_BYTES", 20<<20)),
		UploadMemoryBytes: int64(env.getEnvInt("UPLOAD_MEMORY_BYTES", 4<<20)),
		TempDir:           env.getEnv("TEMP_DIR", os.TempDir()),

		OpenAIClientID:     env.getEnv("OPENAI_CLIENT_ID", ""),
		OpenAIClientSecret: env.getEnv("OPENAI_CLIENT_SECRET", ""),
		OpenAIRedirectURI:  env.getEnv("OPENAI_REDIRECT_URI", "http://localhost:8080/api/v1/auth/openai/callback"),
		OpenAIAuthURL:      env.getEnv("OPENAI_AUTH_URL", "https://auth.openai.com/oauth/authorize"),
		OpenAITokenURL:     env.getEnv("OPENAI_TOKEN_URL", "https://auth.openai.com/oauth/token"),

		OTELEnabled:  env.getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint: env.getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive, got %d", c.RateLimit)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	switch c.RateLimitStore {
	case RateLimitStoreMemory, RateLimitStoreRedis:
	default:
		return fmt.Errorf("RATE_LIMIT_STORE must be %q or %q, got %q", RateLimitStoreMemory, RateLimitStoreRedis, c.RateLimitStore)
	}
	switch c.GeminiTransport {
	case TransportREST, TransportSDK:
	default:
		return fmt.Errorf("GEMINI_TRANSPORT must be %q or %q, got %q", TransportREST, TransportSDK, c.GeminiTransport)
	}
	if c.UpstreamTimeout <= 0 || c.UpstreamTimeout > 10*time.Minute {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be in (0, 10m], got %s", c.UpstreamTimeout)
	}
	if c.UpstreamRPS < 0 {
		return fmt.Errorf("UPSTREAM_RPS must not be negative")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.UploadMemoryBytes <= 0 {
		return fmt.Errorf("UPLOAD_MEMORY_BYTES must be positive")
	}
	return nil
}

type envSource func(string) string

func (e envSource) getEnv(key, defaultValue string) string {
	if value := e(key); value != "" {
		return value
	}
	return defaultValue
}

func (e envSource) getEnvBool(key string, defaultValue bool) bool {
	if value := e(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (e envSource) getEnvInt(key string, defaultValue int) int {
	if value := e(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (e envSource) getEnvFloat(key string, defaultValue float64) float64 {
	if value := e(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or bare milliseconds ("60000").
func (e envSource) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := e(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
