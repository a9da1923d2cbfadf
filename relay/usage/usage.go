// Package usage implements the family-specific TokenUsage extractors over
// batch JSON bodies and SSE event sequences described in spec §4.2.
package usage

import (
	"encoding/json"

	"github.com/cliproxy/gateway/relay/model"
)

// saturatingSub returns a-b, clamped to 0 on underflow, per §4.2's edge cases.
func saturatingSub(a, b int64) int64 {
	d := a - b
	if d < 0 {
		return 0
	}
	return d
}

// ClaudeBatch extracts TokenUsage from a Claude (Anthropic Messages) batch
// response body. usage.input_tokens is required; cache fields default to 0;
// model is copied from the top-level "model" field.
func ClaudeBatch(body []byte) (model.TokenUsage, bool) {
	var payload struct {
		Model string `json:"model"`
		Usage *struct {
			InputTokens              *int64 `json:"input_tokens"`
			OutputTokens             int64  `json:"output_tokens"`
			CacheReadInputTokens     int64  `json:"cache_read_input_tokens"`
			CacheCreationInputTokens int64  `json:"cache_creation_input_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Usage == nil || payload.Usage.InputTokens == nil {
		return model.TokenUsage{}, false
	}

	return model.TokenUsage{
		InputTokens:         *payload.Usage.InputTokens,
		OutputTokens:        payload.Usage.OutputTokens,
		CacheReadTokens:     payload.Usage.CacheReadInputTokens,
		CacheCreationTokens: payload.Usage.CacheCreationInputTokens,
		Model:               payload.Model,
	}, true
}

// SSEEvent is a minimally parsed server-sent event: its "event:" name and its
// "data:" payload, already isolated from the wire framing by the caller.
type SSEEvent struct {
	Event string
	Data  []byte
}

// ClaudeStream aggregates TokenUsage across a Claude SSE event sequence: it
// reads message_start (input_tokens, cache tokens, top-level model) and
// message_delta (output_tokens; some translated streams carry input_tokens
// here too, used only if message_start omitted it). Returns ok=true iff at
// least one of input/output ended up nonzero.
func ClaudeStream(events []SSEEvent) (model.TokenUsage, bool) {
	var out model.TokenUsage
	var haveInput bool

	for _, ev := range events {
		switch ev.Event {
		case "message_start":
			var payload struct {
				Message struct {
					Model string `json:"model"`
					Usage struct {
						InputTokens              int64 `json:"input_tokens"`
						CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
						CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
					} `json:"usage"`
				} `json:"message"`
			}
			if err := json.Unmarshal(ev.Data, &payload); err == nil {
				out.InputTokens = payload.Message.Usage.InputTokens
				out.CacheReadTokens = payload.Message.Usage.CacheReadInputTokens
				out.CacheCreationTokens = payload.Message.Usage.CacheCreationInputTokens
				out.Model = payload.Message.Model
				haveInput = out.InputTokens != 0
			}
		case "message_delta":
			var payload struct {
				Usage struct {
					OutputTokens int64 `json:"output_tokens"`
					InputTokens  int64 `json:"input_tokens"`
				} `json:"usage"`
			}
			if err := json.Unmarshal(ev.Data, &payload); err == nil {
				if payload.Usage.OutputTokens != 0 {
					out.OutputTokens = payload.Usage.OutputTokens
				}
				if !haveInput && payload.Usage.InputTokens != 0 {
					out.InputTokens = payload.Usage.InputTokens
					haveInput = true
				}
			}
		}
	}

	if out.InputTokens == 0 && out.OutputTokens == 0 {
		return model.TokenUsage{}, false
	}
	return out, true
}

// OpenAIChatBatch extracts TokenUsage from an OpenAI chat-completions batch response.
func OpenAIChatBatch(body []byte) (model.TokenUsage, bool) {
	var payload struct {
		Usage *struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
			PromptTokensDetails *struct {
				CachedTokens int64 `json:"cached_tokens"`
			} `json:"prompt_tokens_details"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Usage == nil {
		return model.TokenUsage{}, false
	}

	out := model.TokenUsage{
		InputTokens:  payload.Usage.PromptTokens,
		OutputTokens: payload.Usage.CompletionTokens,
	}
	if payload.Usage.PromptTokensDetails != nil {
		out.CacheReadTokens = payload.Usage.PromptTokensDetails.CachedTokens
	}
	return out, true
}

// OpenAIChatStream iterates events in reverse and returns the first one
// (i.e. the last in the stream) carrying a non-null "usage" field.
func OpenAIChatStream(events []SSEEvent) (model.TokenUsage, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		var payload struct {
			Usage *struct {
				PromptTokens     int64 `json:"prompt_tokens"`
				CompletionTokens int64 `json:"completion_tokens"`
				PromptTokensDetails *struct {
					CachedTokens int64 `json:"cached_tokens"`
				} `json:"prompt_tokens_details"`
			} `json:"usage"`
		}
		if err := json.Unmarshal(events[i].Data, &payload); err != nil || payload.Usage == nil {
			continue
		}
		out := model.TokenUsage{InputTokens: payload.Usage.PromptTokens, OutputTokens: payload.Usage.CompletionTokens}
		if payload.Usage.PromptTokensDetails != nil {
			out.CacheReadTokens = payload.Usage.PromptTokensDetails.CachedTokens
		}
		return out, true
	}
	return model.TokenUsage{}, false
}

// CodexBatch extracts TokenUsage from a Codex (Responses API) batch body.
// input_tokens/output_tokens are required; cache reads may appear as either
// cache_read_input_tokens or input_tokens_details.cached_tokens. The raw
// input_tokens value is returned unmodified (cache is not pre-subtracted).
func CodexBatch(body []byte) (model.TokenUsage, bool) {
	var payload struct {
		InputTokens          *int64 `json:"input_tokens"`
		OutputTokens         *int64 `json:"output_tokens"`
		CacheReadInputTokens int64  `json:"cache_read_input_tokens"`
		InputTokensDetails   *struct {
			CachedTokens int64 `json:"cached_tokens"`
		} `json:"input_tokens_details"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.InputTokens == nil || payload.OutputTokens == nil {
		return model.TokenUsage{}, false
	}

	cacheRead := payload.CacheReadInputTokens
	if cacheRead == 0 && payload.InputTokensDetails != nil {
		cacheRead = payload.InputTokensDetails.CachedTokens
	}

	return model.TokenUsage{
		InputTokens:     *payload.InputTokens,
		OutputTokens:    *payload.OutputTokens,
		CacheReadTokens: cacheRead,
	}, true
}

// CodexStream scans for the event whose type is "response.completed" and
// parses its response.usage; if absent, falls back to OpenAI-stream rules.
func CodexStream(events []SSEEvent) (model.TokenUsage, bool) {
	for _, ev := range events {
		var envelope struct {
			Type     string `json:"type"`
			Response struct {
				Usage json.RawMessage `json:"usage"`
			} `json:"response"`
		}
		if err := json.Unmarshal(ev.Data, &envelope); err != nil {
			continue
		}
		if envelope.Type == "response.completed" && len(envelope.Response.Usage) > 0 {
			if u, ok := CodexAuto(envelope.Response.Usage); ok {
				return u, true
			}
		}
	}
	return OpenAIChatStream(events)
}

// CodexAuto classifies a raw "usage" object: if it carries prompt_tokens,
// treat it as OpenAI-shaped; else if it carries input_tokens, treat it as
// Codex-shaped.
func CodexAuto(raw json.RawMessage) (model.TokenUsage, bool) {
	var probe struct {
		PromptTokens *int64 `json:"prompt_tokens"`
		InputTokens  *int64 `json:"input_tokens"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return model.TokenUsage{}, false
	}

	if probe.PromptTokens != nil {
		return OpenAIChatBatch(wrapUsage(raw))
	}
	if probe.InputTokens != nil {
		return CodexBatch(raw)
	}
	return model.TokenUsage{}, false
}

func wrapUsage(usage json.RawMessage) []byte {
	out, _ := json.Marshal(struct {
		Usage json.RawMessage `json:"usage"`
	}{Usage: usage})
	return out
}

// GeminiBatch extracts TokenUsage from a Gemini generateContent batch response.
func GeminiBatch(body []byte) (model.TokenUsage, bool) {
	var payload struct {
		UsageMetadata *struct {
			PromptTokenCount     int64 `json:"promptTokenCount"`
			TotalTokenCount      int64 `json:"totalTokenCount"`
			CachedContentTokenCount int64 `json:"cachedContentTokenCount"`
		} `json:"usageMetadata"`
		ModelVersion string `json:"modelVersion"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.UsageMetadata == nil {
		return model.TokenUsage{}, false
	}

	um := payload.UsageMetadata
	return model.TokenUsage{
		InputTokens:     um.PromptTokenCount,
		OutputTokens:    saturatingSub(um.TotalTokenCount, um.PromptTokenCount),
		CacheReadTokens: um.CachedContentTokenCount,
		Model:           payload.ModelVersion,
	}, true
}

// GeminiStream takes the last event carrying a usageMetadata field and
// applies the batch rules to it.
func GeminiStream(events []SSEEvent) (model.TokenUsage, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if u, ok := GeminiBatch(events[i].Data); ok {
			return u, true
		}
	}
	return model.TokenUsage{}, false
}
