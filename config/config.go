package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Environment string

	// Event defaults
	EventID             string
	DefaultMaxScanCount int64

	// Order manager
	DedupWindow time.Duration

	// Redemption tokens
	TokenSecret string
	TokenTTL    time.Duration

	// Rate limiting
	RateLimitMax     int64
	RateLimitWindow  time.Duration
	RateLimitBackend string // "memory" or "redis"

	// Redis configuration (shared rate-limit counters)
	RedisURL string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUUID         string
	NotifyChannel      string
	ProviderChannel    string

	// Webhooks
	WebhookSecret string

	// Validation gateway
	EnableMXCheck bool
	MXTimeout     time.Duration

	// Monitoring
	EnableMetrics bool
}

func Load() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Event
		EventID:             getEnv("EVENT_ID", "boulder-fest-2026"),
		DefaultMaxScanCount: getEnvAsInt64("DEFAULT_MAX_SCAN_COUNT", 10),

		// Orders
		DedupWindow: getEnvAsDuration("DEDUP_WINDOW", "60m"),

		// Tokens
		TokenSecret: getEnv("TOKEN_SECRET", "dev-only-secret"),
		TokenTTL:    getEnvAsDuration("TOKEN_TTL", "2160h"), // festival pass lifetime

		// Rate limiting
		RateLimitMax:     getEnvAsInt64("RATE_LIMIT_MAX", 20),
		RateLimitWindow:  getEnvAsDuration("RATE_LIMIT_WINDOW", "15m"),
		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "memory"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "alocubano-server"),
		NotifyChannel:      getEnv("NOTIFY_CHANNEL", "transaction-events"),
		ProviderChannel:    getEnv("PROVIDER_CHANNEL", "payment-notifications"),

		// Webhooks
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),

		// Validation
		EnableMXCheck: getEnvAsBool("ENABLE_MX_CHECK", false),
		MXTimeout:     getEnvAsDuration("MX_TIMEOUT", "3s"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
