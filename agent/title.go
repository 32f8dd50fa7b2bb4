package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/robch/cycod-sub003/chat"
	"github.com/robch/cycod-sub003/llm"
)

// TitleCategory is the notification category for background title work.
const TitleCategory = "title"

const titleSystemPrompt = "You generate short titles for chat conversations. " +
	"Reply with only the title: at most eight words, no quotes, no trailing punctuation."

// GenerateTitle runs one background title generation. It is safe to call
// from a goroutine: the category's state machine admits a single generation
// at a time, and a deferred reset recovers the machine if this task bails
// out before reaching its completion call.
//
// The transcript is read to build the prompt but only mutated through
// SetGeneratedTitle, which is itself a no-op when the user has locked the
// title.
func (a *Agent) GenerateTitle(ctx context.Context) {
	machine := a.Notifications.Machine(TitleCategory)
	if !machine.TryStartGeneration() {
		return
	}
	defer func() {
		if machine.State() != GenerationIdle {
			machine.Reset()
		}
	}()

	prompt := buildTitlePrompt(a.Conversation.Messages)
	if prompt == "" {
		a.Notifications.FailGeneration(TitleCategory, "nothing to summarize yet")
		return
	}

	request := []chat.Message{
		chat.NewSystemMessage(titleSystemPrompt),
		chat.NewUserMessage(prompt),
	}

	var sb strings.Builder
	err := a.Client.StreamChat(ctx, request, nil, func(d llm.Delta) {
		sb.WriteString(d.Text)
	})
	if err != nil {
		a.Notifications.FailGeneration(TitleCategory, fmt.Sprintf("title generation failed: %v", err))
		return
	}

	title := sanitizeTitle(sb.String())
	if title == "" {
		a.Notifications.FailGeneration(TitleCategory, "title generation returned nothing usable")
		return
	}

	a.Notifications.RememberOldTitle(a.Conversation.Title())
	a.Conversation.SetGeneratedTitle(title)
	a.Notifications.CompleteGeneration(TitleCategory, title, FormatUpdatedTo)
}

// buildTitlePrompt condenses the first few exchanges into a summarization
// request.
func buildTitlePrompt(messages []chat.Message) string {
	const maxMessages = 6
	const maxPerMessage = 500

	var sb strings.Builder
	taken := 0
	for _, m := range messages {
		if taken >= maxMessages {
			break
		}
		if m.Role != chat.RoleUser && m.Role != chat.RoleAssistant {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		if len(text) > maxPerMessage {
			text = text[:maxPerMessage]
		}
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, text)
		taken++
	}
	if sb.Len() == 0 {
		return ""
	}
	return "Write a title for this conversation:\n\n" + sb.String()
}

// sanitizeTitle collapses the model's reply to a single clean line.
func sanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.Trim(title, `"'`)
	title = strings.TrimRight(title, ".!")
	const maxLen = 120
	if len(title) > maxLen {
		title = title[:maxLen]
	}
	return strings.TrimSpace(title)
}
