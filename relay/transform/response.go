package transform

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
)

// OpenAIResponse is the subset of an OpenAI chat-completions batch response
// this transformer reads.
type OpenAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string           `json:"content"`
			ToolCalls []OpenAIToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// AnthropicResponse is the subset of an Anthropic Messages response body
// this transformer produces.
type AnthropicResponse struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Role       string                 `json:"role"`
	Model      string                 `json:"model"`
	Content    []AnthropicContentBlock `json:"content"`
	StopReason string                 `json:"stop_reason"`
	Usage      AnthropicUsage         `json:"usage"`
}

type AnthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// MapFinishReason implements §4.8's finish_reason mapping.
func MapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	default:
		return reason
	}
}

// OpenAIToAnthropicResponse implements §4.8's batch response conversion.
func OpenAIToAnthropicResponse(body []byte) ([]byte, error) {
	var src OpenAIResponse
	if err := json.Unmarshal(body, &src); err != nil {
		return nil, errors.Wrap(err, "parse openai response")
	}
	if len(src.Choices) == 0 {
		return nil, errors.New("openai response has no choices")
	}
	choice := src.Choices[0]

	var content []AnthropicContentBlock
	if choice.Message.Content != "" {
		content = append(content, AnthropicContentBlock{Type: "text", Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		var input json.RawMessage
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
			input = json.RawMessage("{}")
		}
		content = append(content, AnthropicContentBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	out := AnthropicResponse{
		ID:         src.ID,
		Type:       "message",
		Role:       "assistant",
		Model:      src.Model,
		Content:    content,
		StopReason: MapFinishReason(choice.FinishReason),
		Usage: AnthropicUsage{
			InputTokens:  src.Usage.PromptTokens,
			OutputTokens: src.Usage.CompletionTokens,
		},
	}
	return json.Marshal(out)
}
