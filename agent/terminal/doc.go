// Package terminal implements the interactive command-line mode for cycod.
//
// It reads user lines from stdin, streams agent responses to stdout as they
// arrive, and renders queued notifications immediately before each assistant
// turn so background results (like a regenerated title) appear exactly once.
// It also serves as the approval surface: when the policy cannot decide a
// tool call on its own, the terminal shows the call and blocks for a single
// approval keystroke.
//
// # Usage
//
//	term := terminal.New(historyPath)
//	approval := agent.NewApprovalPolicy(cfg.Approval, term)
//
//	a, err := agent.New(cfg, conversation, client, registry,
//	    approval, notifications, toolset, verbosity)
//	if err != nil {
//	    // handle error
//	}
//
//	term.Bind(a)
//	err = term.Run(ctx, initialPrompt)
//
// # Commands
//
//   - /quit, /exit: end the session (the transcript is saved first)
//   - /clear: reset the transcript to the system prompt plus persistent
//     user messages
//   - /save [path]: write the transcript to a history file
//   - /attach <path>: queue a file as an attachment on the next message
//   - /title, /title <text>, /title regen, /title revert, /title unlock,
//     /title status: view and manage the conversation title
//
// # Interrupts
//
// Ctrl-C during a turn cancels that turn's backend stream. Text streamed so
// far is kept as the assistant's (incomplete) answer rather than discarded;
// the session itself keeps running.
package terminal
