// Package rectifier implements the Thinking Rectifier described in spec
// §4.9: it detects upstream errors caused by a stray signature/thinking
// mismatch and strips the offending blocks from the request body so the
// retry succeeds.
package rectifier

import (
	"encoding/json"
	"strings"
)

// Triggered reports whether errBody (the raw upstream error response text,
// nested JSON payloads included) matches any of §4.9's trigger patterns.
// Matching is case-insensitive substring matching.
func Triggered(errBody string) bool {
	lower := strings.ToLower(errBody)

	if containsAll(lower, "invalid", "signature", "thinking", "block") {
		return true
	}
	if strings.Contains(lower, "must start with a thinking block") {
		return true
	}
	if strings.Contains(lower, "expected") && strings.Contains(lower, "found") &&
		(strings.Contains(lower, "thinking") || strings.Contains(lower, "redacted_thinking")) {
		return true
	}
	if strings.Contains(lower, "signature") && strings.Contains(lower, "field required") {
		return true
	}
	return false
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

// Result reports what Rectify changed, so the forwarder can log it and
// avoid retrying past the single rectification attempt (apply at most once
// per request).
type Result struct {
	Applied             bool
	DroppedBlocks       int
	StrippedSignatures  int
	RemovedTopLevelField bool
}

type message struct {
	Role    string            `json:"role"`
	Content []json.RawMessage `json:"content"`
}

// Rectify applies §4.9's algorithm to body and returns the rewritten body
// and a Result describing what changed.
func Rectify(body []byte) ([]byte, Result, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return body, Result{}, err
	}

	var messages []message
	if raw, ok := doc["messages"]; ok {
		if err := json.Unmarshal(raw, &messages); err != nil {
			return body, Result{}, err
		}
	}

	var result Result
	for i := range messages {
		var kept []json.RawMessage
		for _, blockRaw := range messages[i].Content {
			var block map[string]json.RawMessage
			if err := json.Unmarshal(blockRaw, &block); err != nil {
				kept = append(kept, blockRaw)
				continue
			}

			var blockType string
			if t, ok := block["type"]; ok {
				_ = json.Unmarshal(t, &blockType)
			}
			if blockType == "thinking" || blockType == "redacted_thinking" {
				result.DroppedBlocks++
				result.Applied = true
				continue
			}

			if _, hasSignature := block["signature"]; hasSignature {
				delete(block, "signature")
				result.StrippedSignatures++
				result.Applied = true
				rewritten, err := json.Marshal(block)
				if err != nil {
					kept = append(kept, blockRaw)
					continue
				}
				kept = append(kept, rewritten)
				continue
			}

			kept = append(kept, blockRaw)
		}
		messages[i].Content = kept
	}

	if !result.Applied {
		return body, result, nil
	}

	rewritten := make([]json.RawMessage, len(messages))
	for i, m := range messages {
		raw, err := json.Marshal(m)
		if err != nil {
			return body, result, err
		}
		rewritten[i] = raw
	}
	messagesRaw, err := json.Marshal(rewritten)
	if err != nil {
		return body, result, err
	}
	doc["messages"] = messagesRaw

	if removeTopLevelThinking(doc, messages) {
		delete(doc, "thinking")
		result.RemovedTopLevelField = true
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return body, result, err
	}
	return out, result, nil
}

// removeTopLevelThinking implements §4.9's condition 2: the top-level
// thinking field is removed only if thinking.type == "enabled", the last
// assistant message's first remaining content block is neither
// thinking/redacted_thinking, and that message contains a tool_use block.
func removeTopLevelThinking(doc map[string]json.RawMessage, messages []message) bool {
	thinkingRaw, ok := doc["thinking"]
	if !ok {
		return false
	}
	var thinking struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(thinkingRaw, &thinking); err != nil || thinking.Type != "enabled" {
		return false
	}

	var lastAssistant *message
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" {
			lastAssistant = &messages[i]
			break
		}
	}
	if lastAssistant == nil || len(lastAssistant.Content) == 0 {
		return false
	}

	var first map[string]json.RawMessage
	if err := json.Unmarshal(lastAssistant.Content[0], &first); err != nil {
		return false
	}
	var firstType string
	if t, ok := first["type"]; ok {
		_ = json.Unmarshal(t, &firstType)
	}
	if firstType == "thinking" || firstType == "redacted_thinking" {
		return false
	}

	hasToolUse := false
	for _, blockRaw := range lastAssistant.Content {
		var block map[string]json.RawMessage
		if err := json.Unmarshal(blockRaw, &block); err != nil {
			continue
		}
		var blockType string
		if t, ok := block["type"]; ok {
			_ = json.Unmarshal(t, &blockType)
		}
		if blockType == "tool_use" {
			hasToolUse = true
			break
		}
	}
	return hasToolUse
}
