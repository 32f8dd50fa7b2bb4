// Package agent provides the conversation orchestration core for cycod.
//
// This package contains the shared machinery between interaction front-ends:
// the Agent type and its processing loop, the streaming function-call
// detector, the tool approval policy, and the background-generation
// bookkeeping (state machines plus the notification queue).
//
// # Architecture
//
// The package is organized into five main components:
//
//   - Agent (agent.go): the orchestration loop. Streams one model turn,
//     feeds every delta to the detector, gates assembled calls through the
//     approval policy, executes them against the tool registry, and loops
//     until the model produces a plain answer.
//   - FunctionCallDetector (detector.go): accumulates streaming fragments
//     into complete, invocable tool-call records.
//   - ApprovalPolicy (approval.go): session-scoped approve/deny sets with
//     name, wildcard, and category granularity, falling back to an injected
//     single-keystroke prompt.
//   - GenerationStateMachine (genstate.go): a mutex-guarded state machine
//     that admits one background generation per category at a time.
//   - NotificationManager (notify.go): a FIFO queue of user-facing notices,
//     drained by the front-end immediately before it renders the next
//     assistant turn.
//
// # Usage
//
// To create and drive an agent:
//
//	a, err := agent.New(cfg, conversation, client, registry,
//	    approval, notifications, toolset, verbosity)
//	if err != nil {
//	    // handle error
//	}
//
//	callbacks := agent.ProcessCallbacks{
//	    OnAssistantDelta: func(text string) {
//	        // stream text fragments as they arrive
//	    },
//	    OnAssistantMessage: func(message string) {
//	        // handle committed assistant messages
//	    },
//	    OnToolCall: func(call chat.ToolCall) {
//	        // observe tool execution requests
//	    },
//	    OnToolResult: func(call chat.ToolCall, result chat.ToolResult) {
//	        // observe executed, failed, or denied results
//	    },
//	    OnMessagesUpdated: func(messages []chat.Message) {
//	        // persist or log the transcript
//	    },
//	}
//
//	err = a.ProcessUserInput(ctx, "user message", nil, callbacks)
//
// # Concurrency
//
// The processing loop is single-threaded per agent: it suspends only at
// "await next delta" and "await tool execution" points, and tools run one at
// a time in the order the backend emitted them. Concurrency exists only in
// background generation (GenerateTitle), which races with the loop over the
// mutex-protected notification queue and the conversation's title fields,
// nothing else.
//
// # Callbacks
//
// The ProcessCallbacks structure allows interaction front-ends to customize
// how agent events are handled, so the same core loop serves the terminal
// CLI and any future surface without knowing how either renders.
package agent
