package controller

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliproxy/gateway/relay/model"
)

func TestCodexResponsesBatchPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"resp_1","model":"gpt-5-codex","input_tokens":4,"output_tokens":9}`))
	}))
	defer upstream.Close()

	deps, logStore := newTestDeps(t, model.AppFamilyCodex, upstream, false)

	body := []byte(`{"model":"gpt-5-codex","input":"hi"}`)
	c, rec := newTestContext(t, http.MethodPost, "/v1/responses", body)

	deps.CodexResponses(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"resp_1"`)
	require.Len(t, logStore.rows, 1)
	assert.False(t, logStore.rows[0].IsStreaming)
}

func TestCodexChatCompletionsStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
		flusher.Flush()
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer upstream.Close()

	deps, logStore := newTestDeps(t, model.AppFamilyCodex, upstream, false)

	body := []byte(`{"model":"gpt-5-codex","stream":true,"messages":[]}`)
	c, rec := newTestContext(t, http.MethodPost, "/v1/chat/completions", body)

	deps.CodexChatCompletions(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "[DONE]")
	require.Len(t, logStore.rows, 1)
	assert.True(t, logStore.rows[0].IsStreaming)
}
