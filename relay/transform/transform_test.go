package transform

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicToOpenAIRequestBasicFields(t *testing.T) {
	body := []byte(`{"model":"claude-opus-4-5","max_tokens":1024,"stream":true,"stop_sequences":["STOP"],"messages":[{"role":"user","content":"Hi"}]}`)
	out, err := AnthropicToOpenAIRequest(body, "openrouter.ai")
	require.NoError(t, err)

	var req OpenAIRequest
	require.NoError(t, json.Unmarshal(out, &req))
	assert.Equal(t, "claude-opus-4-5", req.Model)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 1024, *req.MaxTokens)
	assert.Equal(t, []string{"STOP"}, req.Stop)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
}

func TestAnthropicToOpenAIRequestSystemArrayFlattened(t *testing.T) {
	body := []byte(`{"model":"m","system":[{"type":"text","text":"a"},{"type":"text","text":"b"}],"messages":[]}`)
	out, err := AnthropicToOpenAIRequest(body, "")
	require.NoError(t, err)

	var req OpenAIRequest
	require.NoError(t, json.Unmarshal(out, &req))
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "system", req.Messages[1].Role)
}

func TestAnthropicToOpenAIRequestDropsThinkingBlocks(t *testing.T) {
	body := []byte(`{"model":"m","messages":[{"role":"assistant","content":[{"type":"thinking","text":"secret"},{"type":"text","text":"visible"}]}]}`)
	out, err := AnthropicToOpenAIRequest(body, "")
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")
	assert.Contains(t, string(out), "visible")
}

func TestAnthropicToOpenAIRequestToolResultFlushedAsSeparateMessage(t *testing.T) {
	body := []byte(`{"model":"m","messages":[{"role":"user","content":[{"type":"tool_result","tool_use_id":"call_1","content":"ok"}]}]}`)
	out, err := AnthropicToOpenAIRequest(body, "")
	require.NoError(t, err)

	var req OpenAIRequest
	require.NoError(t, json.Unmarshal(out, &req))
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "tool", req.Messages[0].Role)
	assert.Equal(t, "call_1", req.Messages[0].ToolCallID)
}

func TestAnthropicToOpenAIRequestClampsMaxTokensForDeepseek(t *testing.T) {
	body := []byte(`{"model":"m","max_tokens":100000,"messages":[]}`)
	out, err := AnthropicToOpenAIRequest(body, "api.deepseek.com")
	require.NoError(t, err)

	var req OpenAIRequest
	require.NoError(t, json.Unmarshal(out, &req))
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 8192, *req.MaxTokens)
}

func TestAnthropicToOpenAIRequestDropsBatchTool(t *testing.T) {
	body := []byte(`{"model":"m","messages":[],"tools":[{"name":"batch","type":"BatchTool"},{"name":"real","input_schema":{"type":"object","properties":{"url":{"type":"string","format":"uri"}}}}]}`)
	out, err := AnthropicToOpenAIRequest(body, "")
	require.NoError(t, err)

	var req OpenAIRequest
	require.NoError(t, json.Unmarshal(out, &req))
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "real", req.Tools[0].Function.Name)
	assert.NotContains(t, string(req.Tools[0].Function.Parameters), "format")
}

func TestOpenAIToAnthropicResponseMapsFinishReasonAndUsage(t *testing.T) {
	body := []byte(`{"id":"resp-1","model":"m","choices":[{"message":{"content":"Hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":8,"completion_tokens":2}}`)
	out, err := OpenAIToAnthropicResponse(body)
	require.NoError(t, err)

	var resp AnthropicResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, int64(8), resp.Usage.InputTokens)
	assert.Equal(t, int64(2), resp.Usage.OutputTokens)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "text", resp.Content[0].Type)
}

func TestOpenAIToAnthropicResponseToolCalls(t *testing.T) {
	body := []byte(`{"id":"resp-2","model":"m","choices":[{"message":{"tool_calls":[{"id":"call_1","type":"function","function":{"name":"f","arguments":"{\"x\":1}"}}]},"finish_reason":"tool_calls"}]}`)
	out, err := OpenAIToAnthropicResponse(body)
	require.NoError(t, err)

	var resp AnthropicResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "tool_use", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "tool_use", resp.Content[0].Type)
	assert.Equal(t, "f", resp.Content[0].Name)
}

// TestStreamTranslatorScenarioB exercises spec §8 scenario B literally: an
// OpenRouter-transformed stream with two content deltas and a finish reason.
func TestStreamTranslatorScenarioB(t *testing.T) {
	tr := NewStreamTranslator()
	var all []Event

	all = append(all, tr.Feed([]byte(`{"id":"c1","model":"claude-opus-4-5","choices":[{"delta":{"content":"H"}}]}`))...)
	all = append(all, tr.Feed([]byte(`{"id":"c1","model":"claude-opus-4-5","choices":[{"delta":{"content":"i"}}]}`))...)
	all = append(all, tr.Feed([]byte(`{"id":"c1","model":"claude-opus-4-5","choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":8,"completion_tokens":2}}`))...)
	all = append(all, tr.Close()...)

	require.True(t, len(all) >= 6)
	assert.Equal(t, "message_start", all[0].Event, "T2: first event is message_start")
	assert.Equal(t, "message_stop", all[len(all)-1].Event, "T2: last event is message_stop")

	var names []string
	for _, e := range all {
		names = append(names, e.Event)
	}
	assert.Contains(t, names, "content_block_start")
	assert.Contains(t, names, "content_block_stop")
	assert.Contains(t, names, "message_delta")
}

// TestStreamTranslatorBlockPairingInvariant checks T1: every
// content_block_start has exactly one matching content_block_stop.
func TestStreamTranslatorBlockPairingInvariant(t *testing.T) {
	tr := NewStreamTranslator()
	var all []Event
	all = append(all, tr.Feed([]byte(`{"id":"c1","model":"m","choices":[{"delta":{"reasoning":"think"}}]}`))...)
	all = append(all, tr.Feed([]byte(`{"id":"c1","model":"m","choices":[{"delta":{"content":"answer"}}]}`))...)
	all = append(all, tr.Feed([]byte(`{"id":"c1","model":"m","choices":[{"delta":{},"finish_reason":"stop"}]}`))...)
	all = append(all, tr.Close()...)

	starts, stops := 0, 0
	for _, e := range all {
		switch e.Event {
		case "content_block_start":
			starts++
		case "content_block_stop":
			stops++
		}
	}
	assert.Equal(t, starts, stops, "every content_block_start must be matched by exactly one content_block_stop")
}

func TestStreamTranslatorToolCallSequence(t *testing.T) {
	tr := NewStreamTranslator()
	var all []Event
	all = append(all, tr.Feed([]byte(`{"id":"c1","model":"m","choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"lookup"}}]}}]}`))...)
	all = append(all, tr.Feed([]byte(`{"id":"c1","model":"m","choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"q\":1}"}}]}}]}`))...)
	all = append(all, tr.Feed([]byte(`{"id":"c1","model":"m","choices":[{"delta":{},"finish_reason":"tool_calls"}]}`))...)
	all = append(all, tr.Close()...)

	var sawToolUseStart, sawInputJSONDelta bool
	for _, e := range all {
		if e.Event == "content_block_start" && strings.Contains(string(e.Data), "tool_use") {
			sawToolUseStart = true
		}
		if e.Event == "content_block_delta" && strings.Contains(string(e.Data), "input_json_delta") {
			sawInputJSONDelta = true
		}
	}
	assert.True(t, sawToolUseStart)
	assert.True(t, sawInputJSONDelta)
}
