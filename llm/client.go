package llm

import (
	"context"

	"github.com/robch/cycod-sub003/chat"
	"github.com/robch/cycod-sub003/tools"
)

// FinishReason is the backend's reason for ending a turn.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
)

// FunctionCallDelta is one streamed fragment of a tool call. Name may be
// empty on continuation fragments; ArgsFragment is concatenated by the
// consumer. Done marks the end of this call's fragments.
type FunctionCallDelta struct {
	CallID       string
	Name         string
	ArgsFragment string
	Done         bool
}

// Delta is one streamed fragment of a model turn. At most one of the payload
// fields is set.
type Delta struct {
	Text         string
	FunctionCall *FunctionCallDelta
	Usage        *chat.Usage
	FinishReason FinishReason
}

// StreamHandler consumes deltas in emission order.
type StreamHandler func(Delta)

// Client is the chat backend boundary. StreamChat sends the transcript and
// tool definitions, invoking onDelta for every fragment until the turn
// finishes or ctx is cancelled. Transport retry policy, auth refresh, and
// network timeouts live behind this interface; a mid-stream error surfaces
// only once the backend has given up.
type Client interface {
	StreamChat(ctx context.Context, messages []chat.Message, availableTools []tools.Tool, onDelta StreamHandler) error
}

// ScriptedClient replays canned delta sequences, one sequence per StreamChat
// call. It serves tests and running without a configured backend.
type ScriptedClient struct {
	Turns [][]Delta
	turn  int

	// Requests records the message snapshot of every StreamChat call.
	Requests [][]chat.Message
}

func (s *ScriptedClient) StreamChat(ctx context.Context, messages []chat.Message, availableTools []tools.Tool, onDelta StreamHandler) error {
	s.Requests = append(s.Requests, append([]chat.Message(nil), messages...))
	if s.turn >= len(s.Turns) {
		onDelta(Delta{Text: "(no scripted response)"})
		onDelta(Delta{FinishReason: FinishStop})
		return nil
	}
	deltas := s.Turns[s.turn]
	s.turn++
	for _, d := range deltas {
		if err := ctx.Err(); err != nil {
			return err
		}
		onDelta(d)
	}
	return nil
}
