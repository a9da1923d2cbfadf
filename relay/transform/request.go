// Package transform implements the Anthropic<->OpenAI Format Transformer
// described in spec §4.8: request conversion, response conversion, and SSE
// stream translation.
package transform

import (
	"encoding/json"
	"strings"

	"github.com/Laisky/errors/v2"
)

// AnthropicRequest is the subset of the Anthropic Messages request body this
// transformer reads and rewrites.
type AnthropicRequest struct {
	Model         string          `json:"model"`
	System        json.RawMessage `json:"system,omitempty"`
	Messages      []AnthropicMessage `json:"messages"`
	MaxTokens     *int            `json:"max_tokens,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	Stream        *bool           `json:"stream,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Tools         []AnthropicTool `json:"tools,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
}

type AnthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type AnthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Source    *AnthropicImageSource `json:"source,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type AnthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type AnthropicTool struct {
	Type        string          `json:"type,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// OpenAIRequest is the subset of an OpenAI chat-completions request body
// this transformer produces.
type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stream      *bool           `json:"stream,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Tools       []OpenAITool    `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
}

type OpenAIMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type OpenAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *OpenAIImageURL `json:"image_url,omitempty"`
}

type OpenAIImageURL struct {
	URL string `json:"url"`
}

type OpenAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function OpenAIToolCallFunc `json:"function"`
}

type OpenAIToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type OpenAITool struct {
	Type     string             `json:"type"`
	Function OpenAIToolFunction `json:"function"`
}

type OpenAIToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// AnthropicToOpenAIRequest implements §4.8's request conversion.
// baseURLHost is the adapter's resolved upstream host, used only for the
// deepseek.com max_tokens clamp.
func AnthropicToOpenAIRequest(body []byte, baseURLHost string) ([]byte, error) {
	var src AnthropicRequest
	if err := json.Unmarshal(body, &src); err != nil {
		return nil, errors.Wrap(err, "parse anthropic request")
	}

	out := OpenAIRequest{
		Model:       src.Model,
		MaxTokens:   src.MaxTokens,
		Temperature: src.Temperature,
		TopP:        src.TopP,
		Stream:      src.Stream,
	}
	if len(src.StopSequences) > 0 {
		out.Stop = src.StopSequences
	}

	for _, sysMsg := range systemMessages(src.System) {
		out.Messages = append(out.Messages, OpenAIMessage{Role: "system", Content: mustMarshalString(sysMsg)})
	}

	for _, m := range src.Messages {
		converted, toolResultMessages, err := convertMessage(m)
		if err != nil {
			return nil, err
		}
		if converted != nil {
			out.Messages = append(out.Messages, *converted)
		}
		out.Messages = append(out.Messages, toolResultMessages...)
	}

	if strings.Contains(baseURLHost, "deepseek.com") && out.MaxTokens != nil {
		clamped := clampInt(*out.MaxTokens, 1, 8192)
		out.MaxTokens = &clamped
	}

	if len(src.Tools) > 0 {
		out.Tools = convertTools(src.Tools)
	}
	out.ToolChoice = src.ToolChoice

	return json.Marshal(out)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// systemMessages flattens Anthropic's system field, which may be a plain
// string or an array of text blocks, into one string per element.
func systemMessages(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil
		}
		return []string{asString}
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.Text)
	}
	return out
}

// convertMessage walks one Anthropic message's content blocks and returns
// the resulting OpenAI message (nil if it ends up empty of both content and
// tool_calls) plus zero or more flushed tool-result messages.
func convertMessage(m AnthropicMessage) (*OpenAIMessage, []OpenAIMessage, error) {
	var blocks []AnthropicContentBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		// content may be a plain string for simple user/assistant turns.
		var text string
		if err2 := json.Unmarshal(m.Content, &text); err2 != nil {
			return nil, nil, errors.Wrap(err, "parse message content")
		}
		return &OpenAIMessage{Role: m.Role, Content: mustMarshalString(text)}, nil, nil
	}

	var textParts []OpenAIContentPart
	var toolCalls []OpenAIToolCall
	var toolResults []OpenAIMessage

	for _, b := range blocks {
		switch b.Type {
		case "text":
			textParts = append(textParts, OpenAIContentPart{Type: "text", Text: b.Text})
		case "image":
			if b.Source != nil && b.Source.Type == "base64" {
				url := "data:" + b.Source.MediaType + ";base64," + b.Source.Data
				textParts = append(textParts, OpenAIContentPart{Type: "image_url", ImageURL: &OpenAIImageURL{URL: url}})
			}
		case "tool_use":
			args := "{}"
			if len(b.Input) > 0 {
				args = string(b.Input)
			}
			toolCalls = append(toolCalls, OpenAIToolCall{
				ID:   b.ID,
				Type: "function",
				Function: OpenAIToolCallFunc{Name: b.Name, Arguments: args},
			})
		case "tool_result":
			content := toolResultContentString(b.Content)
			toolResults = append(toolResults, OpenAIMessage{
				Role:       "tool",
				ToolCallID: b.ToolUseID,
				Content:    mustMarshalString(content),
			})
		case "thinking", "redacted_thinking":
			// dropped per §4.8
		}
	}

	msg := &OpenAIMessage{Role: m.Role, ToolCalls: toolCalls}
	switch {
	case len(textParts) == 1 && textParts[0].Type == "text":
		msg.Content = mustMarshalString(textParts[0].Text)
	case len(textParts) > 0:
		raw, _ := json.Marshal(textParts)
		msg.Content = raw
	default:
		msg.Content = nil
	}

	if len(textParts) == 0 && len(toolCalls) == 0 {
		return nil, toolResults, nil
	}
	return msg, toolResults, nil
}

func toolResultContentString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	return string(raw)
}

func mustMarshalString(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

// convertTools drops any tool with type == "BatchTool" and maps the rest to
// OpenAI's function-tool shape, cleaning each input_schema via cleanSchema.
func convertTools(tools []AnthropicTool) []OpenAITool {
	out := make([]OpenAITool, 0, len(tools))
	for _, t := range tools {
		if t.Type == "BatchTool" {
			continue
		}
		out = append(out, OpenAITool{
			Type: "function",
			Function: OpenAIToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  cleanSchema(t.InputSchema),
			},
		})
	}
	return out
}

// cleanSchema recursively removes format:"uri" fields and recurses into
// properties and items, per §4.8.
func cleanSchema(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	cleaned := cleanSchemaValue(v)
	out, err := json.Marshal(cleaned)
	if err != nil {
		return raw
	}
	return out
}

func cleanSchemaValue(v map[string]any) map[string]any {
	if fmt, ok := v["format"]; ok {
		if s, ok := fmt.(string); ok && s == "uri" {
			delete(v, "format")
		}
	}
	if props, ok := v["properties"].(map[string]any); ok {
		for k, pv := range props {
			if pm, ok := pv.(map[string]any); ok {
				props[k] = cleanSchemaValue(pm)
			}
		}
	}
	if items, ok := v["items"].(map[string]any); ok {
		v["items"] = cleanSchemaValue(items)
	}
	return v
}
