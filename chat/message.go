package chat

import (
	"github.com/robch/cycod-sub003/tokens"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-requested invocation of a named tool. Arguments is the
// raw JSON string as assembled from streaming fragments; it is not guaranteed
// to be valid JSON until the registry parses it at invocation time.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of executing (or refusing) one tool call.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	Success bool   `json:"success"`
}

// Attachment is a binary part of a user message, typically an image.
type Attachment struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"` // base64 in JSON via encoding/json
}

// Usage records backend-reported token accounting for one turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Message is one turn fragment of a conversation. Assistant messages may
// carry tool calls; tool messages carry the bundled results for the calls of
// the preceding assistant message.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	Usage       *Usage       `json:"usage,omitempty"`
}

// NewSystemMessage returns a system message with the given prompt.
func NewSystemMessage(prompt string) Message {
	return Message{Role: RoleSystem, Content: prompt}
}

// NewUserMessage returns a user message with optional attachments.
func NewUserMessage(text string, attachments ...Attachment) Message {
	return Message{Role: RoleUser, Content: text, Attachments: attachments}
}

// TokenCount returns the approximate token cost of the message: its text
// content plus tool call arguments and tool result contents.
func (m *Message) TokenCount() int {
	count := tokens.Count(m.Content)
	for _, tc := range m.ToolCalls {
		count += tokens.Count(tc.Name) + tokens.Count(tc.Arguments)
	}
	for _, tr := range m.ToolResults {
		count += tokens.Count(tr.Content)
	}
	return count
}

// ReferencesCall reports whether the message carries a tool result for the
// given call id.
func (m *Message) ReferencesCall(callID string) bool {
	for _, tr := range m.ToolResults {
		if tr.CallID == callID {
			return true
		}
	}
	return false
}

// HasToolCalls reports whether the message owns at least one tool call.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}
