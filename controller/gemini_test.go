package controller

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliproxy/gateway/relay/model"
)

func TestGeminiModelFromPath(t *testing.T) {
	cases := map[string]string{
		"/v1beta/models/gemini-1.5-pro:generateContent":       "gemini-1.5-pro",
		"/v1beta/models/gemini-1.5-flash:streamGenerateContent": "gemini-1.5-flash",
		"/v1beta/models/gemini-1.5-pro":                        "gemini-1.5-pro",
		"/v1beta/tunedModels":                                  "",
	}
	for path, want := range cases {
		assert.Equal(t, want, geminiModelFromPath(path), path)
	}
}

// TestGeminiForwardModelFallback covers scenario F (§8): when the upstream
// response omits modelVersion, the model name used for logging is recovered
// from the "models/<name>:<action>" URL segment instead.
func TestGeminiForwardModelFallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"candidates":[],"usageMetadata":{"promptTokenCount":10,"totalTokenCount":14}}`))
	}))
	defer upstream.Close()

	deps, logStore := newTestDeps(t, model.AppFamilyGemini, upstream, false)

	c, rec := newTestContext(t, http.MethodPost, "/v1beta/models/gemini-1.5-pro:generateContent", []byte(`{}`))

	deps.GeminiForward(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, logStore.rows, 1)
	assert.Equal(t, "gemini-1.5-pro", logStore.rows[0].Model)
	assert.Equal(t, int64(10), logStore.rows[0].InputTokens)
	assert.Equal(t, int64(4), logStore.rows[0].OutputTokens)
}

// TestGeminiForwardStream covers the streamGenerateContent branch with the
// same fallback, verifying events are relayed verbatim.
func TestGeminiForwardStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("data: {\"usageMetadata\":{\"promptTokenCount\":2,\"totalTokenCount\":6}}\n\n"))
		flusher.Flush()
	}))
	defer upstream.Close()

	deps, logStore := newTestDeps(t, model.AppFamilyGemini, upstream, false)

	c, rec := newTestContext(t, http.MethodPost, "/v1beta/models/gemini-1.5-flash:streamGenerateContent", []byte(`{}`))

	deps.GeminiForward(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, logStore.rows, 1)
	assert.Equal(t, "gemini-1.5-flash", logStore.rows[0].Model)
	assert.Equal(t, int64(2), logStore.rows[0].InputTokens)
}
