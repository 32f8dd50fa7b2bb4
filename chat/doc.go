// Package chat holds the conversation model: messages with text, attachment,
// tool-call and tool-result parts; the Conversation that owns the transcript
// and its title metadata; the token-budget trimmer; and the JSON history
// read/write contract.
//
// Trimming preserves two invariants regardless of the ceilings it is given:
// the leading system message survives, and no tool result outlives the
// assistant message that requested it.
package chat
