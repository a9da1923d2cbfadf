// Package adaptor declares the common Adapter contract implemented by the
// claude, codex, and gemini sub-packages, per spec §4.7.
package adaptor

import (
	"net/http"

	"github.com/cliproxy/gateway/relay/model"
)

// Adapter builds outbound URLs and auth headers for one provider family, and
// optionally transforms request/response bodies when the provider requires
// protocol translation (currently only Claude's OpenRouter compat path).
type Adapter interface {
	Name() string

	// ExtractBaseURL reads the family-specific base-URL field from the
	// provider's settings, stripping any trailing slash. Returns a
	// ConfigError if the value is missing.
	ExtractBaseURL(provider model.Provider) (string, error)

	// ExtractAuth resolves the credential and strategy to use for provider.
	ExtractAuth(provider model.Provider) (model.AuthInfo, error)

	// BuildURL composes the upstream URL from base and endpoint per the
	// family's composition rule.
	BuildURL(base, endpoint string) string

	// AddAuthHeaders injects the strategy-appropriate headers into req.
	AddAuthHeaders(req *http.Request, auth model.AuthInfo)

	// NeedsTransform reports whether requests to provider must be translated
	// between wire formats before forwarding.
	NeedsTransform(provider model.Provider) bool
}
