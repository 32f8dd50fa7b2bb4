package agent

import (
	"github.com/robch/cycod-sub003/chat"
	"github.com/robch/cycod-sub003/llm"
)

// FunctionCallDetector assembles complete tool calls out of partial,
// possibly interleaved streaming fragments. Arguments are concatenated as
// they arrive; a call becomes ready when the backend signals the end of that
// call, or, failing an explicit marker, when the turn's finish reason
// arrives.
type FunctionCallDetector struct {
	order []string
	calls map[string]*pendingCall
}

type pendingCall struct {
	call  chat.ToolCall
	ready bool
}

// NewFunctionCallDetector returns an empty detector.
func NewFunctionCallDetector() *FunctionCallDetector {
	return &FunctionCallDetector{calls: make(map[string]*pendingCall)}
}

// CheckForFunctionCall consumes one streaming delta, merging any function
// call fragment it carries into the in-progress record for that call id.
func (d *FunctionCallDetector) CheckForFunctionCall(delta llm.Delta) {
	if fc := delta.FunctionCall; fc != nil && fc.CallID != "" {
		p, ok := d.calls[fc.CallID]
		if !ok {
			p = &pendingCall{call: chat.ToolCall{ID: fc.CallID}}
			d.calls[fc.CallID] = p
			d.order = append(d.order, fc.CallID)
		}
		// Backends sometimes omit the name on continuation fragments but
		// never change it, so the first non-empty name wins.
		if p.call.Name == "" && fc.Name != "" {
			p.call.Name = fc.Name
		}
		p.call.Arguments += fc.ArgsFragment
		if fc.Done {
			p.ready = true
		}
	}

	if delta.FinishReason != "" {
		for _, p := range d.calls {
			p.ready = true
		}
	}
}

// HasFunctionCalls reports whether at least one ready call is pending.
func (d *FunctionCallDetector) HasFunctionCalls() bool {
	for _, p := range d.calls {
		if p.ready {
			return true
		}
	}
	return false
}

// GetReadyToCallFunctionCalls returns the ready calls in first-seen order
// without removing them; the caller clears the detector after consuming them
// so a retry cannot re-execute the same batch.
func (d *FunctionCallDetector) GetReadyToCallFunctionCalls() []chat.ToolCall {
	var ready []chat.ToolCall
	for _, id := range d.order {
		if p := d.calls[id]; p.ready {
			ready = append(ready, p.call)
		}
	}
	return ready
}

// Clear discards all in-progress and ready state.
func (d *FunctionCallDetector) Clear() {
	d.order = nil
	d.calls = make(map[string]*pendingCall)
}
