package chat

// Conversation owns the in-memory transcript, the persistent user messages
// that survive a Clear, and the title metadata.
type Conversation struct {
	Messages []Message

	persistentUserMessages []Message

	title       string
	titleLocked bool
}

// NewConversation returns an empty conversation with default metadata.
func NewConversation() *Conversation {
	return &Conversation{}
}

// AddMessage appends a message to the transcript without trimming.
func (c *Conversation) AddMessage(msg Message) {
	c.Messages = append(c.Messages, msg)
}

// AddUserMessage appends a user message and trims the transcript to the given
// ceilings. A ceiling of 0 means unbounded.
func (c *Conversation) AddUserMessage(msg Message, maxPromptTokens, maxToolTokens, maxChatTokens int) {
	c.Messages = append(c.Messages, msg)
	c.Trim(maxPromptTokens, maxToolTokens, maxChatTokens)
}

// AddPersistentUserMessage appends a user message that is re-injected after
// every Clear, then trims both collections independently.
func (c *Conversation) AddPersistentUserMessage(msg Message, maxPromptTokens, maxToolTokens, maxChatTokens int) {
	c.persistentUserMessages = append(c.persistentUserMessages, msg)
	c.persistentUserMessages = trimMessages(c.persistentUserMessages, maxPromptTokens, maxToolTokens, maxChatTokens)
	c.AddUserMessage(msg, maxPromptTokens, maxToolTokens, maxChatTokens)
}

// Clear resets the transcript to the system prompt followed by the persistent
// user messages. Title metadata is untouched.
func (c *Conversation) Clear(systemPrompt string) {
	c.Messages = c.Messages[:0]
	c.Messages = append(c.Messages, NewSystemMessage(systemPrompt))
	c.Messages = append(c.Messages, c.persistentUserMessages...)
}

// ApplyHistory merges loaded messages into the conversation. A loaded
// transcript that carries its own system message replaces the in-memory
// transcript; one without is appended. Dangling tool calls are repaired
// afterwards since history files may have been hand-edited or truncated.
func (c *Conversation) ApplyHistory(msgs []Message) {
	replace := false
	for _, m := range msgs {
		if m.Role == RoleSystem {
			replace = true
			break
		}
	}
	if replace {
		c.Messages = append([]Message(nil), msgs...)
	} else {
		c.Messages = append(c.Messages, msgs...)
	}
	c.FixDanglingToolCalls()
}

// FixDanglingToolCalls removes tool results whose call id has no matching
// request in any surviving assistant message, dropping tool messages that end
// up with nothing left in them.
func (c *Conversation) FixDanglingToolCalls() {
	known := make(map[string]bool)
	for _, m := range c.Messages {
		for _, tc := range m.ToolCalls {
			known[tc.ID] = true
		}
	}

	kept := c.Messages[:0]
	for _, m := range c.Messages {
		if m.Role != RoleTool {
			kept = append(kept, m)
			continue
		}
		var results []ToolResult
		for _, tr := range m.ToolResults {
			if known[tr.CallID] {
				results = append(results, tr)
			}
		}
		if len(results) == 0 && m.Content == "" {
			continue
		}
		m.ToolResults = results
		kept = append(kept, m)
	}
	c.Messages = kept
}

// Title returns the current title, which may be empty.
func (c *Conversation) Title() string {
	return c.title
}

// TitleLocked reports whether the title is pinned against generated updates.
func (c *Conversation) TitleLocked() bool {
	return c.titleLocked
}

// SetUserTitle sets the title and locks it against generated updates.
func (c *Conversation) SetUserTitle(title string) {
	c.title = title
	c.titleLocked = true
}

// SetGeneratedTitle sets the title only when it is not locked. A locked title
// makes this a silent no-op; the background generator has no way (and no
// need) to distinguish the two outcomes.
func (c *Conversation) SetGeneratedTitle(title string) {
	if c.titleLocked {
		return
	}
	c.title = title
}

// LockTitle pins the current title.
func (c *Conversation) LockTitle() { c.titleLocked = true }

// UnlockTitle allows generated titles again.
func (c *Conversation) UnlockTitle() { c.titleLocked = false }

// NeedsTitleGeneration reports whether a background title generation would be
// useful: no title yet, not locked, and at least one assistant message to
// summarize.
func (c *Conversation) NeedsTitleGeneration() bool {
	if c.title != "" || c.titleLocked {
		return false
	}
	for _, m := range c.Messages {
		if m.Role == RoleAssistant {
			return true
		}
	}
	return false
}
