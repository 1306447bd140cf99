// Package config builds typed runtime configuration from the environment so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr string

	// HTTP server timeouts. There is deliberately no write timeout knob: the
	// worklist endpoint holds its response open while a scan streams NDJSON
	// candidates, and a write deadline would cut long scans off mid-stream.
	HTTPReadHeaderTimeout time.Duration
	HTTPIdleTimeout       time.Duration

	// PostgresDSN is empty when running against in-memory stores.
	PostgresDSN string

	Redis RedisConfig
	Kafka KafkaConfig

	// ScorerURL points at the external risk-model endpoint. Empty runs the
	// server with the built-in stub scorer (dev mode only).
	ScorerURL string
	// ScorerTimeout bounds the external risk-model call. A timeout is treated
	// the same as the scorer being unavailable.
	ScorerTimeout time.Duration

	// WorklistConcurrency bounds batch fan-out; the risk scorer is the usual
	// bottleneck.
	WorklistConcurrency int

	// Default risk band thresholds, overridable per scheme.
	RiskLowBelow  float64
	RiskHighFrom  float64
	RiskCacheTTL  time.Duration
	ShutdownGrace time.Duration
}

// RedisConfig configures the risk-assessment cache client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the downstream dispatch producer. Topics derive
// from routing targets, so only brokers are configured here.
type KafkaConfig struct {
	Brokers []string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:                  envOr("ARBITER_ADDR", ":8080"),
		HTTPReadHeaderTimeout: envDuration("ARBITER_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		HTTPIdleTimeout:       envDuration("ARBITER_HTTP_IDLE_TIMEOUT", time.Minute),
		PostgresDSN:           os.Getenv("ARBITER_POSTGRES_DSN"),
		ScorerURL:             os.Getenv("ARBITER_SCORER_URL"),
		ScorerTimeout:         envDuration("ARBITER_SCORER_TIMEOUT", 3*time.Second),
		WorklistConcurrency:   envInt("ARBITER_WORKLIST_CONCURRENCY", 8),
		RiskLowBelow:          envFloat("ARBITER_RISK_LOW_BELOW", 0.3),
		RiskHighFrom:          envFloat("ARBITER_RISK_HIGH_FROM", 0.7),
		RiskCacheTTL:          envDuration("ARBITER_RISK_CACHE_TTL", 5*time.Minute),
		ShutdownGrace:         envDuration("ARBITER_SHUTDOWN_GRACE", 10*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("ARBITER_REDIS_URL"),
			PoolSize:     envInt("ARBITER_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ARBITER_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("ARBITER_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("ARBITER_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("ARBITER_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("ARBITER_KAFKA_BROKERS")),
		},
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
