package transform

import (
	"encoding/json"
)

// Event is one translated Anthropic SSE event: a name plus its JSON data
// payload, ready for the caller to frame as "event: <name>\ndata: <json>\n\n".
type Event struct {
	Event string
	Data  []byte
}

// OpenAIChunk is the subset of one OpenAI chat-completions streaming chunk
// this translator reads.
type OpenAIChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

type blockType string

const (
	blockNone    blockType = ""
	blockText    blockType = "text"
	blockThinking blockType = "thinking"
	blockToolUse  blockType = "tool_use"
)

// StreamTranslator implements §4.8's OpenAI SSE → Anthropic SSE state
// machine. It is not safe for concurrent use; one instance per request.
type StreamTranslator struct {
	messageID           string
	model               string
	contentIndex        int
	hasSentMessageStart bool
	currentBlock        blockType
	currentToolCallID   string

	usageInput  int64
	usageOutput int64
}

// NewStreamTranslator constructs an empty translator.
func NewStreamTranslator() *StreamTranslator {
	return &StreamTranslator{currentBlock: blockNone}
}

// Feed parses one OpenAI SSE data payload (the bytes after "data: ",
// excluding the terminal "[DONE]" sentinel, which the caller detects and
// routes to Close instead) and returns zero or more Anthropic events.
func (s *StreamTranslator) Feed(data []byte) []Event {
	var chunk OpenAIChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil
	}

	var events []Event

	if s.messageID == "" {
		s.messageID = chunk.ID
		s.model = chunk.Model
	}

	if !s.hasSentMessageStart && len(chunk.Choices) > 0 {
		events = append(events, s.emitMessageStart())
	}

	if len(chunk.Choices) == 0 {
		return events
	}
	choice := chunk.Choices[0]

	if choice.Delta.Reasoning != "" {
		if s.currentBlock != blockThinking {
			events = append(events, s.openBlock(blockThinking, nil)...)
		}
		events = append(events, s.emitDelta(map[string]any{"type": "thinking_delta", "thinking": choice.Delta.Reasoning}))
	}

	if choice.Delta.Content != "" {
		if s.currentBlock != blockText {
			events = append(events, s.openBlock(blockText, nil)...)
		}
		events = append(events, s.emitDelta(map[string]any{"type": "text_delta", "text": choice.Delta.Content}))
	}

	for _, tc := range choice.Delta.ToolCalls {
		if tc.ID != "" {
			events = append(events, s.closeCurrentBlock()...)
			s.currentToolCallID = tc.ID
		}
		if tc.Function.Name != "" {
			events = append(events, s.openBlock(blockToolUse, map[string]any{"id": s.currentToolCallID, "name": tc.Function.Name})...)
		}
		if tc.Function.Arguments != "" {
			events = append(events, s.emitDelta(map[string]any{"type": "input_json_delta", "partial_json": tc.Function.Arguments}))
		}
	}

	if choice.FinishReason != "" {
		events = append(events, s.closeCurrentBlock()...)
		if chunk.Usage != nil {
			s.usageInput = chunk.Usage.PromptTokens
			s.usageOutput = chunk.Usage.CompletionTokens
		}
		events = append(events, s.emitMessageDelta(MapFinishReason(choice.FinishReason)))
	}

	return events
}

// Close finalizes the stream on the terminal "data: [DONE]" sentinel,
// emitting message_stop per T2.
func (s *StreamTranslator) Close() []Event {
	return []Event{{Event: "message_stop", Data: mustMarshalEvent(map[string]any{"type": "message_stop"})}}
}

func (s *StreamTranslator) emitMessageStart() Event {
	s.hasSentMessageStart = true
	return Event{Event: "message_start", Data: mustMarshalEvent(map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":    s.messageID,
			"type":  "message",
			"role":  "assistant",
			"model": s.model,
			"content": []any{},
			"usage": map[string]any{"input_tokens": 0, "output_tokens": 0},
		},
	})}
}

// openBlock closes any currently open block (T1) and opens a new one at the
// next content_index (T3).
func (s *StreamTranslator) openBlock(bt blockType, extra map[string]any) []Event {
	var events []Event
	events = append(events, s.closeCurrentBlock()...)

	block := map[string]any{"type": string(bt)}
	switch bt {
	case blockText:
		block["text"] = ""
	case blockThinking:
		block["thinking"] = ""
	case blockToolUse:
		for k, v := range extra {
			block[k] = v
		}
		block["input"] = map[string]any{}
	}

	events = append(events, Event{Event: "content_block_start", Data: mustMarshalEvent(map[string]any{
		"type":          "content_block_start",
		"index":         s.contentIndex,
		"content_block": block,
	})})
	s.currentBlock = bt
	return events
}

func (s *StreamTranslator) closeCurrentBlock() []Event {
	if s.currentBlock == blockNone {
		return nil
	}
	ev := Event{Event: "content_block_stop", Data: mustMarshalEvent(map[string]any{
		"type":  "content_block_stop",
		"index": s.contentIndex,
	})}
	s.currentBlock = blockNone
	s.contentIndex++
	return []Event{ev}
}

func (s *StreamTranslator) emitDelta(delta map[string]any) Event {
	return Event{Event: "content_block_delta", Data: mustMarshalEvent(map[string]any{
		"type":  "content_block_delta",
		"index": s.contentIndex,
		"delta": delta,
	})}
}

func (s *StreamTranslator) emitMessageDelta(stopReason string) Event {
	return Event{Event: "message_delta", Data: mustMarshalEvent(map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stopReason},
		"usage": map[string]any{"input_tokens": s.usageInput, "output_tokens": s.usageOutput},
	})}
}

func mustMarshalEvent(v any) []byte {
	raw, _ := json.Marshal(v)
	return raw
}
