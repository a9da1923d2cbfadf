// Package codex implements the Adapter for OpenAI Codex/Responses-API
// providers, per spec §4.7. Codex providers carry their base URL inside a
// TOML config string rather than a JSON field.
package codex

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/cliproxy/gateway/relay/adaptor"
	"github.com/cliproxy/gateway/relay/model"
)

var baseURLPattern = regexp.MustCompile(`base_url\s*=\s*"([^"]+)"`)

// Adaptor implements adaptor.Adapter for Codex providers.
type Adaptor struct{}

var _ adaptor.Adapter = (*Adaptor)(nil)

func (a *Adaptor) Name() string { return "Codex" }

// ExtractBaseURL reads base_url from the TOML config string via regex, per §4.7.
func (a *Adaptor) ExtractBaseURL(provider model.Provider) (string, error) {
	settings, err := model.DecodeSettings(provider.SettingsConfig)
	if err != nil {
		return "", model.NewConfigError("invalid settings_config", err)
	}

	match := baseURLPattern.FindStringSubmatch(settings.Config)
	if match == nil {
		return "", model.NewConfigError("provider config.toml has no base_url", nil)
	}

	return strings.TrimRight(match[1], "/"), nil
}

func (a *Adaptor) ExtractAuth(provider model.Provider) (model.AuthInfo, error) {
	settings, err := model.DecodeSettings(provider.SettingsConfig)
	if err != nil {
		return model.AuthInfo{}, model.NewConfigError("invalid settings_config", err)
	}

	key := settings.Auth["OPENAI_API_KEY"]
	if key == "" {
		return model.AuthInfo{}, model.NewConfigError("provider has no OPENAI_API_KEY configured", nil)
	}

	return model.AuthInfo{APIKey: key, Strategy: model.AuthStrategyBearer}, nil
}

// BuildURL composes "{base}/{endpoint}" verbatim; Codex has no special
// query-string rule.
func (a *Adaptor) BuildURL(base, endpoint string) string {
	return base + "/" + strings.TrimPrefix(endpoint, "/")
}

func (a *Adaptor) AddAuthHeaders(req *http.Request, auth model.AuthInfo) {
	req.Header.Set("Authorization", "Bearer "+auth.APIKey)
}

// NeedsTransform is always false: Codex is passthrough-only per §4.11.
func (a *Adaptor) NeedsTransform(provider model.Provider) bool {
	return false
}
