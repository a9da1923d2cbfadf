// Package config loads process configuration from the environment.
//
// The proxy has no settings-persistence layer of its own (that is owned by
// the external shell, per the out-of-scope list); everything here is read
// once at startup via godotenv plus os.Getenv/os.LookupEnv.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/Laisky/zap"
	"github.com/joho/godotenv"

	"github.com/cliproxy/gateway/common/logger"
)

var (
	// Port is the loopback-only listening port. Default 5000.
	Port = 5000

	// RelayTimeout bounds upstream body-transfer requests, in seconds. 0 disables the timeout.
	RelayTimeout = 300

	// ControlTimeout bounds control-plane requests (health, status), in seconds.
	ControlTimeout = 30

	// StreamHealthTimeout bounds stream health checks, in seconds.
	StreamHealthTimeout = 45

	// RelayProxy is an optional upstream HTTP(S) proxy used for all relay traffic.
	RelayProxy = ""

	// MaxRetries bounds the forwarder's failover attempts per request.
	MaxRetries = 3

	// DefaultCostMultiplier is used when a provider does not set meta.cost_multiplier
	// and parsing its value fails.
	DefaultCostMultiplier = "1"

	// DefaultPricingSource is used when a provider does not set meta.pricing_model_source
	// or sets it to a value other than "response"/"request".
	DefaultPricingSource = "response"

	// SqlitePath is the default LogStore/ProviderStore database file.
	SqlitePath = "gateway.db"

	// EnablePrometheusMetrics toggles the /metrics Prometheus exposition endpoint.
	EnablePrometheusMetrics = true

	// OpenTelemetryEnabled toggles the OTel metrics recorder.
	OpenTelemetryEnabled = true
)

// Load populates package-level configuration from a best-effort .env file and
// the process environment. Missing .env is not fatal, matching the teacher's
// own godotenv usage.
func Load() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Logger.Warn("failed to load .env file", zap.Error(err))
	}

	Port = intFromEnv("PROXY_PORT", Port)
	RelayTimeout = intFromEnv("RELAY_TIMEOUT_SECONDS", RelayTimeout)
	ControlTimeout = intFromEnv("CONTROL_TIMEOUT_SECONDS", ControlTimeout)
	StreamHealthTimeout = intFromEnv("STREAM_HEALTH_TIMEOUT_SECONDS", StreamHealthTimeout)
	MaxRetries = intFromEnv("MAX_RETRIES", MaxRetries)
	RelayProxy = stringFromEnv("RELAY_PROXY", RelayProxy)
	DefaultCostMultiplier = stringFromEnv("DEFAULT_COST_MULTIPLIER", DefaultCostMultiplier)
	DefaultPricingSource = stringFromEnv("DEFAULT_PRICING_SOURCE", DefaultPricingSource)
	SqlitePath = stringFromEnv("GATEWAY_SQLITE_PATH", SqlitePath)
	EnablePrometheusMetrics = boolFromEnv("ENABLE_PROMETHEUS_METRICS", EnablePrometheusMetrics)
	OpenTelemetryEnabled = boolFromEnv("ENABLE_OTEL_METRICS", OpenTelemetryEnabled)
}

// RelayTimeoutDuration returns RelayTimeout as a time.Duration, or 0 (no timeout) when RelayTimeout is 0.
func RelayTimeoutDuration() time.Duration {
	if RelayTimeout <= 0 {
		return 0
	}
	return time.Duration(RelayTimeout) * time.Second
}

func intFromEnv(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logger.Logger.Warn("invalid integer env value, using default", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return v
}

func stringFromEnv(key, fallback string) string {
	if raw, ok := os.LookupEnv(key); ok && raw != "" {
		return raw
	}
	return fallback
}

func boolFromEnv(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
