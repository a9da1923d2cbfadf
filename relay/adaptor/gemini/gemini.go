// Package gemini implements the Adapter for Gemini-family providers, per
// spec §4.7, including the GoogleOAuth access-token auth path used by the
// Gemini CLI.
package gemini

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cliproxy/gateway/relay/adaptor"
	"github.com/cliproxy/gateway/relay/model"
)

// Adaptor implements adaptor.Adapter for Gemini providers.
type Adaptor struct{}

var _ adaptor.Adapter = (*Adaptor)(nil)

func (a *Adaptor) Name() string { return "Gemini" }

func (a *Adaptor) ExtractBaseURL(provider model.Provider) (string, error) {
	settings, err := model.DecodeSettings(provider.SettingsConfig)
	if err != nil {
		return "", model.NewConfigError("invalid settings_config", err)
	}

	base := settings.Env["GOOGLE_GEMINI_BASE_URL"]
	if base == "" {
		base = settings.BaseURL
	}
	if base == "" {
		base = settings.BaseURL2
	}
	if base == "" {
		base = settings.APIEndpoint
	}
	if base == "" {
		return "", model.NewConfigError("provider has no base_url configured", nil)
	}

	return strings.TrimRight(base, "/"), nil
}

// ExtractAuth resolves the key from env.GEMINI_API_KEY or a top-level key;
// a value starting with "ya29." (an OAuth access token) or "{" (a JSON blob
// holding one) selects GoogleOAuth.
func (a *Adaptor) ExtractAuth(provider model.Provider) (model.AuthInfo, error) {
	settings, err := model.DecodeSettings(provider.SettingsConfig)
	if err != nil {
		return model.AuthInfo{}, model.NewConfigError("invalid settings_config", err)
	}

	key := settings.Env["GEMINI_API_KEY"]
	if key == "" {
		key = settings.APIKey
	}
	if key == "" {
		key = settings.APIKeySC
	}
	if key == "" {
		return model.AuthInfo{}, model.NewConfigError("provider has no API key configured", nil)
	}

	switch {
	case strings.HasPrefix(key, "ya29."):
		return model.AuthInfo{APIKey: key, Strategy: model.AuthStrategyGoogleOAuth, AccessToken: key}, nil
	case strings.HasPrefix(key, "{"):
		var blob struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal([]byte(key), &blob); err != nil || blob.AccessToken == "" {
			return model.AuthInfo{}, model.NewConfigError("malformed oauth credential blob", err)
		}
		return model.AuthInfo{APIKey: key, Strategy: model.AuthStrategyGoogleOAuth, AccessToken: blob.AccessToken}, nil
	default:
		return model.AuthInfo{APIKey: key, Strategy: model.AuthStrategyGoogle}, nil
	}
}

// BuildURL concatenates base and endpoint, then collapses an accidental
// duplicated "/v1beta" or "/v1" prefix into a single occurrence.
func (a *Adaptor) BuildURL(base, endpoint string) string {
	url := base + "/" + strings.TrimPrefix(endpoint, "/")
	for _, prefix := range []string{"/v1beta", "/v1"} {
		doubled := prefix + prefix
		for strings.Contains(url, doubled) {
			url = strings.Replace(url, doubled, prefix, 1)
		}
	}
	return url
}

func (a *Adaptor) AddAuthHeaders(req *http.Request, auth model.AuthInfo) {
	switch auth.Strategy {
	case model.AuthStrategyGoogle:
		req.Header.Set("x-goog-api-key", auth.APIKey)
	case model.AuthStrategyGoogleOAuth:
		req.Header.Set("Authorization", "Bearer "+auth.AccessToken)
		req.Header.Set("x-goog-api-client", "GeminiCLI/1.0")
	}
}

// NeedsTransform is always false: Gemini forwards its native wire format
// verbatim per §4.11.
func (a *Adaptor) NeedsTransform(provider model.Provider) bool {
	return false
}
