package mc

import (
	"encoding/json"
	"strings"
)

// ChatMessage is one inbound chat line, flattened from the server's JSON
// chat component tree. Sender is empty for system messages, which is what
// auth plugins use for their replies.
type ChatMessage struct {
	Sender string
	Text   string
}

// parseChat decodes a JSON chat component into a ChatMessage. Unknown or
// malformed components degrade to their raw text rather than failing; the
// handshake only ever matches on substrings.
func parseChat(raw string) ChatMessage {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return ChatMessage{Text: raw}
	}

	if m, ok := v.(map[string]any); ok {
		if translate, ok := m["translate"].(string); ok && strings.HasPrefix(translate, "chat.type.") {
			if with, ok := m["with"].([]any); ok && len(with) >= 2 {
				return ChatMessage{
					Sender: flattenComponent(with[0]),
					Text:   flattenComponent(with[1]),
				}
			}
		}
	}

	return ChatMessage{Text: flattenComponent(v)}
}

func flattenComponent(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		var sb strings.Builder
		for _, part := range c {
			sb.WriteString(flattenComponent(part))
		}
		return sb.String()
	case map[string]any:
		var sb strings.Builder
		if text, ok := c["text"].(string); ok {
			sb.WriteString(text)
		}
		if extra, ok := c["extra"].([]any); ok {
			for _, part := range extra {
				sb.WriteString(flattenComponent(part))
			}
		}
		return sb.String()
	default:
		return ""
	}
}
