// Package claude implements the Adapter for Anthropic-family providers,
// including the OpenRouter Bearer-auth compatibility path, per spec §4.7.
package claude

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cliproxy/gateway/relay/adaptor"
	"github.com/cliproxy/gateway/relay/model"
)

// Adaptor implements adaptor.Adapter for Claude-family providers.
type Adaptor struct{}

var _ adaptor.Adapter = (*Adaptor)(nil)

func (a *Adaptor) Name() string { return "Claude" }

func (a *Adaptor) ExtractBaseURL(provider model.Provider) (string, error) {
	settings, err := model.DecodeSettings(provider.SettingsConfig)
	if err != nil {
		return "", model.NewConfigError("invalid settings_config", err)
	}

	base := settings.Env["ANTHROPIC_BASE_URL"]
	if base == "" {
		base = settings.BaseURL
	}
	if base == "" {
		base = settings.BaseURL2
	}
	if base == "" {
		return "", model.NewConfigError("provider has no base_url configured", nil)
	}

	return strings.TrimRight(base, "/"), nil
}

func (a *Adaptor) ExtractAuth(provider model.Provider) (model.AuthInfo, error) {
	settings, err := model.DecodeSettings(provider.SettingsConfig)
	if err != nil {
		return model.AuthInfo{}, model.NewConfigError("invalid settings_config", err)
	}

	key := settings.Env["ANTHROPIC_AUTH_TOKEN"]
	if key == "" {
		key = settings.Env["ANTHROPIC_API_KEY"]
	}
	if key == "" {
		key = settings.Env["OPENROUTER_API_KEY"]
	}
	if key == "" {
		key = settings.Env["OPENAI_API_KEY"]
	}
	if key == "" {
		key = settings.APIKey
	}
	if key == "" {
		key = settings.APIKeySC
	}
	if key == "" {
		return model.AuthInfo{}, model.NewConfigError("provider has no API key configured", nil)
	}

	base, _ := a.ExtractBaseURL(provider)
	strategy := model.AuthStrategyAnthropic
	switch {
	case strings.Contains(base, "openrouter.ai"):
		strategy = model.AuthStrategyBearer
	case settings.AuthMode == "bearer_only" || settings.Env["auth_mode"] == "bearer_only":
		strategy = model.AuthStrategyClaudeAuth
	}

	return model.AuthInfo{APIKey: key, Strategy: strategy}, nil
}

// BuildURL composes "{base}/{endpoint}" and, for /v1/messages with no query
// string yet, appends "?beta=true".
func (a *Adaptor) BuildURL(base, endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	url := base + "/" + endpoint
	if strings.Contains(endpoint, "v1/messages") && !strings.Contains(url, "?") {
		url += "?beta=true"
	}
	return url
}

// AddAuthHeaders injects headers by strategy. anthropic-version is set by
// the forwarder and must not be duplicated here.
func (a *Adaptor) AddAuthHeaders(req *http.Request, auth model.AuthInfo) {
	switch auth.Strategy {
	case model.AuthStrategyAnthropic:
		req.Header.Set("Authorization", "Bearer "+auth.APIKey)
		req.Header.Set("x-api-key", auth.APIKey)
	case model.AuthStrategyClaudeAuth, model.AuthStrategyBearer:
		req.Header.Set("Authorization", "Bearer "+auth.APIKey)
	}
}

// NeedsTransform reports true only for Claude's OpenRouter compatibility
// path, gated by a top-level openrouter_compat_mode == true.
func (a *Adaptor) NeedsTransform(provider model.Provider) bool {
	var meta struct {
		OpenRouterCompatMode bool `json:"openrouter_compat_mode"`
	}
	if err := json.Unmarshal(provider.SettingsConfig, &meta); err != nil {
		return false
	}
	return meta.OpenRouterCompatMode
}
