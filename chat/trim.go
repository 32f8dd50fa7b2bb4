package chat

// Trim drops the oldest eligible messages until all three ceilings are
// satisfied. The prompt ceiling bounds the summed token cost of user
// messages, the tool ceiling bounds tool messages, and the chat ceiling
// bounds the whole transcript. A ceiling of 0 is unbounded.
//
// Removal is by atomic unit: an assistant message that owns tool calls is
// removed together with every tool message referencing those calls, so
// call/result pairing is never broken. The leading system message and the
// unit containing the newest message are never removed; if the ceilings are
// unsatisfiable under those constraints the transcript is left over budget.
func (c *Conversation) Trim(maxPromptTokens, maxToolTokens, maxChatTokens int) {
	c.Messages = trimMessages(c.Messages, maxPromptTokens, maxToolTokens, maxChatTokens)
}

func trimMessages(msgs []Message, maxPromptTokens, maxToolTokens, maxChatTokens int) []Message {
	for overBudget(msgs, maxPromptTokens, maxToolTokens, maxChatTokens) {
		next, removed := removeOldestUnit(msgs)
		if !removed {
			break
		}
		msgs = next
	}
	return msgs
}

func overBudget(msgs []Message, maxPromptTokens, maxToolTokens, maxChatTokens int) bool {
	var promptSum, toolSum, total int
	for i := range msgs {
		cost := msgs[i].TokenCount()
		total += cost
		switch msgs[i].Role {
		case RoleUser:
			promptSum += cost
		case RoleTool:
			toolSum += cost
		}
	}
	if maxPromptTokens > 0 && promptSum > maxPromptTokens {
		return true
	}
	if maxToolTokens > 0 && toolSum > maxToolTokens {
		return true
	}
	if maxChatTokens > 0 && total > maxChatTokens {
		return true
	}
	return false
}

// removeOldestUnit removes the oldest removable unit and reports whether a
// removal happened.
func removeOldestUnit(msgs []Message) ([]Message, bool) {
	start := 0
	if len(msgs) > 0 && msgs[0].Role == RoleSystem {
		start = 1
	}
	last := len(msgs) - 1

	for i := start; i < len(msgs); i++ {
		if msgs[i].Role == RoleTool && hasCallOwner(msgs, i) {
			// Removed as part of its assistant's unit, never alone.
			continue
		}
		unit := removalUnit(msgs, i)
		if unit[len(unit)-1] == last {
			// Tail window: the newest exchange stays.
			continue
		}
		return removeIndexes(msgs, unit), true
	}
	return msgs, false
}

// removalUnit returns the sorted indexes removed together with msgs[i]: the
// message itself plus, for an assistant message owning tool calls, every
// later tool message referencing those calls.
func removalUnit(msgs []Message, i int) []int {
	unit := []int{i}
	if msgs[i].Role != RoleAssistant || !msgs[i].HasToolCalls() {
		return unit
	}
	ids := make(map[string]bool, len(msgs[i].ToolCalls))
	for _, tc := range msgs[i].ToolCalls {
		ids[tc.ID] = true
	}
	for j := i + 1; j < len(msgs); j++ {
		if msgs[j].Role != RoleTool {
			continue
		}
		for _, tr := range msgs[j].ToolResults {
			if ids[tr.CallID] {
				unit = append(unit, j)
				break
			}
		}
	}
	return unit
}

// hasCallOwner reports whether any earlier assistant message owns a call that
// the tool message at index i answers.
func hasCallOwner(msgs []Message, i int) bool {
	for j := 0; j < i; j++ {
		if msgs[j].Role != RoleAssistant {
			continue
		}
		for _, tc := range msgs[j].ToolCalls {
			if msgs[i].ReferencesCall(tc.ID) {
				return true
			}
		}
	}
	return false
}

func removeIndexes(msgs []Message, indexes []int) []Message {
	drop := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		drop[i] = true
	}
	kept := make([]Message, 0, len(msgs)-len(indexes))
	for i := range msgs {
		if !drop[i] {
			kept = append(kept, msgs[i])
		}
	}
	return kept
}
