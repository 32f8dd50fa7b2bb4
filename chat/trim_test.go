package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("alpha ", n))
}

func totalTokens(msgs []Message) int {
	sum := 0
	for i := range msgs {
		sum += msgs[i].TokenCount()
	}
	return sum
}

func TestTrimUnderBudgetIsNoop(t *testing.T) {
	c := NewConversation()
	c.Clear("system prompt")
	c.AddMessage(NewUserMessage(words(10)))
	c.AddMessage(Message{Role: RoleAssistant, Content: words(10)})

	before := len(c.Messages)
	c.Trim(0, 0, 1000000)
	assert.Equal(t, before, len(c.Messages))
}

func TestTrimZeroCeilingsAreUnbounded(t *testing.T) {
	c := NewConversation()
	c.Clear("system prompt")
	for i := 0; i < 20; i++ {
		c.AddMessage(NewUserMessage(words(200)))
	}

	c.Trim(0, 0, 0)
	assert.Len(t, c.Messages, 21)
}

func TestTrimRemovesOldestFirst(t *testing.T) {
	c := NewConversation()
	c.Clear("sys")
	c.AddMessage(NewUserMessage("oldest " + words(50)))
	c.AddMessage(Message{Role: RoleAssistant, Content: words(50)})
	c.AddMessage(NewUserMessage("newest " + words(5)))

	// A ceiling just under the current total forces exactly one removal.
	c.Trim(0, 0, totalTokens(c.Messages)-1)

	require.True(t, len(c.Messages) < 4)
	assert.Equal(t, RoleSystem, c.Messages[0].Role)
	assert.Contains(t, c.Messages[len(c.Messages)-1].Content, "newest")
	for _, m := range c.Messages {
		assert.NotContains(t, m.Content, "oldest")
	}
}

func TestTrimNeverRemovesSystemOrNewest(t *testing.T) {
	c := NewConversation()
	c.Clear("sys")
	c.AddMessage(NewUserMessage(words(500)))

	// Unsatisfiable: only the system message and the newest message exist.
	c.Trim(0, 0, 1)

	require.Len(t, c.Messages, 2)
	assert.Equal(t, RoleSystem, c.Messages[0].Role)
	assert.Equal(t, RoleUser, c.Messages[1].Role)
}

func TestTrimRemovesAssistantWithItsToolMessages(t *testing.T) {
	c := NewConversation()
	c.Clear("sys")
	c.AddMessage(Message{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "c1", Name: "search", Arguments: `{"q":"x"}`}},
	})
	c.AddMessage(Message{
		Role:        RoleTool,
		ToolResults: []ToolResult{{CallID: "c1", Content: words(100), Success: true}},
	})
	c.AddMessage(NewUserMessage("follow up"))
	c.AddMessage(Message{Role: RoleAssistant, Content: "done"})

	c.Trim(0, 0, totalTokens(c.Messages)-1)

	// The call and its result leave together.
	for _, m := range c.Messages {
		assert.False(t, m.HasToolCalls())
		assert.Empty(t, m.ToolResults)
	}
	assert.Equal(t, "done", c.Messages[len(c.Messages)-1].Content)
}

func TestTrimToolMessageNeverOrphaned(t *testing.T) {
	c := NewConversation()
	c.Clear("sys")
	c.AddMessage(NewUserMessage(words(40)))
	c.AddMessage(Message{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "c1", Name: "read_file", Arguments: `{"path":"a"}`}},
	})
	c.AddMessage(Message{
		Role:        RoleTool,
		ToolResults: []ToolResult{{CallID: "c1", Content: words(40), Success: true}},
	})
	c.AddMessage(Message{Role: RoleAssistant, Content: words(40)})
	c.AddMessage(NewUserMessage("tail"))

	// Repeatedly tighten the ceiling; pairing must hold at every step.
	for target := totalTokens(c.Messages) - 1; target > 0; target /= 2 {
		c.Trim(0, 0, target)
		calls := make(map[string]bool)
		for _, m := range c.Messages {
			for _, tc := range m.ToolCalls {
				calls[tc.ID] = true
			}
		}
		for _, m := range c.Messages {
			for _, tr := range m.ToolResults {
				assert.True(t, calls[tr.CallID], "tool result %s lost its call", tr.CallID)
			}
		}
	}
}

func TestTrimPromptCeilingCountsOnlyUserMessages(t *testing.T) {
	c := NewConversation()
	c.Clear("sys")
	c.AddMessage(NewUserMessage(words(100)))
	c.AddMessage(Message{Role: RoleAssistant, Content: words(500)})
	c.AddMessage(NewUserMessage("tail"))

	var promptSum int
	for i := range c.Messages {
		if c.Messages[i].Role == RoleUser {
			promptSum += c.Messages[i].TokenCount()
		}
	}

	// The assistant message is heavy but only user tokens count here, so a
	// generous prompt ceiling leaves everything in place.
	c.Trim(promptSum+10, 0, 0)
	assert.Len(t, c.Messages, 4)

	// A tight prompt ceiling removes the old user message and nothing else.
	c.Trim(promptSum-1, 0, 0)
	assert.Len(t, c.Messages, 3)
	assert.Equal(t, RoleAssistant, c.Messages[1].Role)
}
