package controller

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliproxy/gateway/relay/model"
)

// TestClaudeMessagesPassthroughStream covers scenario A (§8): a
// non-transforming provider streams SSE straight through to the client
// verbatim, event-by-event, usage is extracted from the
// message_start/message_delta frames, and cost is computed via the seeded
// pricing row for claude-sonnet-4-5.
func TestClaudeMessagesPassthroughStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		frames := []string{
			"event: message_start\ndata: {\"message\":{\"model\":\"claude-sonnet-4-5\",\"usage\":{\"input_tokens\":12}}}\n\n",
			"event: content_block_start\ndata: {\"index\":0}\n\n",
			"event: content_block_delta\ndata: {\"index\":0,\"delta\":{\"text\":\"hi\"}}\n\n",
			"event: content_block_stop\ndata: {\"index\":0}\n\n",
			"event: message_delta\ndata: {\"usage\":{\"output_tokens\":3}}\n\n",
			"event: message_stop\ndata: {}\n\n",
		}
		for _, f := range frames {
			_, _ = w.Write([]byte(f))
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	deps, logStore := newTestDeps(t, model.AppFamilyClaude, upstream, false)

	body := []byte(`{"model":"claude-sonnet-4-5","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	c, rec := newTestContext(t, http.MethodPost, "/v1/messages", body)

	deps.ClaudeMessages(c)

	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, "event: message_start")
	assert.Contains(t, out, "event: content_block_delta")
	assert.Contains(t, out, "event: message_stop")
	assert.True(t, strings.Count(out, "event: content_block_start") == strings.Count(out, "event: content_block_stop"))

	require.Len(t, logStore.rows, 1)
	assert.Equal(t, int64(12), logStore.rows[0].InputTokens)
	assert.Equal(t, int64(3), logStore.rows[0].OutputTokens)
	assert.True(t, logStore.rows[0].IsStreaming)
	assert.Equal(t, string(model.ProviderTypeClaude), logStore.rows[0].ProviderType)

	// claude-sonnet-4-5 seeded row: $3/M input, $15/M output.
	wantCost := decimal.NewFromInt(12).Mul(decimal.NewFromFloat(3)).Div(decimal.NewFromInt(1_000_000)).
		Add(decimal.NewFromInt(3).Mul(decimal.NewFromFloat(15)).Div(decimal.NewFromInt(1_000_000)))
	gotCost, err := decimal.NewFromString(logStore.rows[0].TotalCostUSD)
	require.NoError(t, err)
	assert.True(t, wantCost.Equal(gotCost), "want %s got %s", wantCost, gotCost)
}

// TestClaudeMessagesBatchPassthrough covers the non-streaming, non-transform
// branch of the four-way dispatch: the response body is relayed unchanged.
func TestClaudeMessagesBatchPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"msg_1","model":"claude-3-5-sonnet","usage":{"input_tokens":5,"output_tokens":7}}`))
	}))
	defer upstream.Close()

	deps, logStore := newTestDeps(t, model.AppFamilyClaude, upstream, false)

	body := []byte(`{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":"hi"}]}`)
	c, rec := newTestContext(t, http.MethodPost, "/v1/messages", body)

	deps.ClaudeMessages(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"msg_1"`)
	require.Len(t, logStore.rows, 1)
	assert.Equal(t, int64(5), logStore.rows[0].InputTokens)
	assert.Equal(t, int64(7), logStore.rows[0].OutputTokens)
	assert.False(t, logStore.rows[0].IsStreaming)
}
