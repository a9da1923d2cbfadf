// Package model holds the data types shared across the proxy core: provider
// configuration, auth strategies, circuit breaker configuration, token usage,
// cost breakdowns, and persisted request logs.
package model

import (
	"encoding/json"
	"strings"
)

// AppFamily identifies which developer CLI protocol a request belongs to.
// It determines which handler endpoint and adapter apply.
type AppFamily string

const (
	AppFamilyClaude AppFamily = "claude"
	AppFamilyCodex  AppFamily = "codex"
	AppFamilyGemini AppFamily = "gemini"
)

// ProviderType is a refined discriminant derived from AppFamily plus a
// provider's configuration (base URL, auth_mode, key shape).
type ProviderType string

const (
	ProviderTypeClaude     ProviderType = "claude"
	ProviderTypeClaudeAuth ProviderType = "claude_auth"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeCodex      ProviderType = "codex"
	ProviderTypeGemini     ProviderType = "gemini"
	ProviderTypeGeminiCli  ProviderType = "gemini_cli"
)

// DetectProviderType implements spec §3's provider_type discriminant. For
// Claude-family providers, a base URL hosted on openrouter.ai outranks
// auth_mode == "bearer_only" (ClaudeAuth), which outranks plain Claude.
// For Gemini-family providers, an OAuth-shaped key (an access token with
// the "ya29." prefix, or a JSON credential blob starting with "{") selects
// GeminiCli over plain Gemini. Codex has no further refinement. authMode
// and apiKey are the values the caller's adapter already resolved (the
// auth strategy name and the key/token ExtractAuth returned).
func DetectProviderType(appType AppFamily, provider Provider, authMode, apiKey string) ProviderType {
	switch appType {
	case AppFamilyClaude:
		settings, _ := DecodeSettings(provider.SettingsConfig)
		base := settings.Env["ANTHROPIC_BASE_URL"]
		if base == "" {
			base = settings.BaseURL
		}
		if base == "" {
			base = settings.BaseURL2
		}
		if strings.Contains(base, "openrouter.ai") {
			return ProviderTypeOpenRouter
		}
		if authMode == string(AuthStrategyClaudeAuth) || authMode == "bearer_only" {
			return ProviderTypeClaudeAuth
		}
		return ProviderTypeClaude
	case AppFamilyGemini:
		if strings.HasPrefix(apiKey, "ya29.") || strings.HasPrefix(apiKey, "{") {
			return ProviderTypeGeminiCli
		}
		return ProviderTypeGemini
	default:
		return ProviderTypeCodex
	}
}

// Provider is consumed read-only from the external ProviderStore.
type Provider struct {
	ID string
	// Name is a human-readable label, used only for logging/status.
	Name string
	// SettingsConfig is the raw JSON blob: {"env": {...}, "auth": {...}, "config": "<toml>", "apiKey": "...", "meta": {...}}.
	SettingsConfig json.RawMessage
	// CostMultiplier is meta.cost_multiplier as a decimal string; "" means unset.
	CostMultiplier string
	// PricingModelSource is meta.pricing_model_source; "" means unset.
	PricingModelSource string
	InFailoverQueue    bool
	SortIndex          int
}

// AuthStrategy selects how AuthInfo is turned into HTTP headers.
type AuthStrategy string

const (
	AuthStrategyAnthropic   AuthStrategy = "anthropic"
	AuthStrategyClaudeAuth  AuthStrategy = "claude_auth"
	AuthStrategyBearer      AuthStrategy = "bearer"
	AuthStrategyGoogle      AuthStrategy = "google"
	AuthStrategyGoogleOAuth AuthStrategy = "google_oauth"
)

// AuthInfo carries the resolved credential and strategy for one request.
type AuthInfo struct {
	APIKey      string
	Strategy    AuthStrategy
	AccessToken string // set only for AuthStrategyGoogleOAuth
}

// CircuitBreakerConfig holds the hot-swappable thresholds for one provider's breaker.
type CircuitBreakerConfig struct {
	FailureThreshold   uint32
	SuccessThreshold   uint32
	TimeoutSeconds     uint64
	ErrorRateThreshold float64
	MinRequests        uint32
}

// DefaultCircuitBreakerConfig matches §3's documented defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:   4,
		SuccessThreshold:   2,
		TimeoutSeconds:     60,
		ErrorRateThreshold: 0.6,
		MinRequests:        10,
	}
}

// ProviderSettings is the decoded shape of Provider.SettingsConfig, tolerant
// of missing fields (every field is optional from the adapters' point of view).
type ProviderSettings struct {
	Env      map[string]string `json:"env"`
	Auth     map[string]string `json:"auth"`
	Config   string            `json:"config"`
	APIKey   string            `json:"apiKey"`
	APIKeySC string            `json:"api_key"`
	BaseURL  string            `json:"base_url"`
	BaseURL2 string            `json:"baseURL"`
	APIEndpoint string         `json:"apiEndpoint"`
	AuthMode string            `json:"auth_mode"`
}

// DecodeSettings parses Provider.SettingsConfig, tolerating an empty blob.
func DecodeSettings(raw json.RawMessage) (ProviderSettings, error) {
	var s ProviderSettings
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, err
	}
	return s, nil
}
