package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Streaming feed
	FeedWSURL   string // e.g. "wss://stream.example.com/market"
	FeedAPIURL  string // REST base for the eligibility pre-check
	AccessToken string // supplied by the auth collaborator, not refreshed here

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Subscription: comma-separated instrument tokens, all at SubscribeMode.
	SubscribeTokens string
	SubscribeMode   string

	// Rate-limit cooldown applied when an error frame omits retryAfter.
	RateLimitDefaultCooldown time.Duration

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		FeedWSURL:   mustEnv("FEED_WS_URL"),
		FeedAPIURL:  mustEnv("FEED_API_URL"),
		AccessToken: mustEnv("FEED_ACCESS_TOKEN"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/ticks.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		// Default: NIFTY 50 index token
		SubscribeTokens: getEnv("SUBSCRIBE_TOKENS", "99926000"),
		SubscribeMode:   getEnv("SUBSCRIBE_MODE", "full"),

		RateLimitDefaultCooldown: getDurationEnv("RATE_LIMIT_DEFAULT_COOLDOWN", 60*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// ParseTokens parses the SubscribeTokens string into instrument tokens.
func (c *Config) ParseTokens() []int64 {
	parts := strings.Split(c.SubscribeTokens, ",")
	tokens := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid instrument token: %q", p)
			continue
		}
		tokens = append(tokens, n)
	}
	return tokens
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid duration for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
