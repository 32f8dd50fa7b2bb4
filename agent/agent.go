package agent

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/robch/cycod-sub003/chat"
	"github.com/robch/cycod-sub003/config"
	"github.com/robch/cycod-sub003/errors"
	"github.com/robch/cycod-sub003/llm"
	"github.com/robch/cycod-sub003/tools"
)

// ToolVerbosity controls how much tool activity the front-end displays.
type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// ProcessCallbacks let a front-end observe a turn as it unfolds. Any field
// may be nil.
type ProcessCallbacks struct {
	// OnAssistantDelta receives each streamed text fragment.
	OnAssistantDelta func(text string)
	// OnAssistantMessage receives each committed assistant message's text.
	OnAssistantMessage func(message string)
	// OnToolCall fires before a call is resolved and executed.
	OnToolCall func(call chat.ToolCall)
	// OnToolResult fires with the executed, failed, or denied result.
	OnToolResult func(call chat.ToolCall, result chat.ToolResult)
	// OnMessagesUpdated fires with the full transcript after every mutation,
	// for persistence or trajectory logging.
	OnMessagesUpdated func(messages []chat.Message)
	// OnWarning receives non-fatal conditions worth telling the user about.
	OnWarning func(warning string)
}

func (cb *ProcessCallbacks) assistantDelta(text string) {
	if cb.OnAssistantDelta != nil {
		cb.OnAssistantDelta(text)
	}
}

func (cb *ProcessCallbacks) assistantMessage(message string) {
	if cb.OnAssistantMessage != nil {
		cb.OnAssistantMessage(message)
	}
}

func (cb *ProcessCallbacks) toolCall(call chat.ToolCall) {
	if cb.OnToolCall != nil {
		cb.OnToolCall(call)
	}
}

func (cb *ProcessCallbacks) toolResult(call chat.ToolCall, result chat.ToolResult) {
	if cb.OnToolResult != nil {
		cb.OnToolResult(call, result)
	}
}

func (cb *ProcessCallbacks) messagesUpdated(messages []chat.Message) {
	if cb.OnMessagesUpdated != nil {
		cb.OnMessagesUpdated(messages)
	}
}

func (cb *ProcessCallbacks) warning(warning string) {
	if cb.OnWarning != nil {
		cb.OnWarning(warning)
	}
}

// Agent drives the conversation loop: stream a model turn, assemble tool
// calls, gate them through approval, execute, and re-enter until the model
// produces a plain answer. One Agent serves one conversation; the loop is
// single-threaded, with concurrency only in background generation.
type Agent struct {
	Config         *config.Config
	Conversation   *chat.Conversation
	Client         llm.Client
	Registry       *tools.Registry
	Approval       *ApprovalPolicy
	Notifications  *NotificationManager
	AvailableTools []tools.Tool
	Verbosity      ToolVerbosity
}

// New creates an agent with explicit collaborators; nothing is reached
// through package-level state, so tests can run several agents in isolation.
func New(cfg *config.Config, conv *chat.Conversation, client llm.Client, registry *tools.Registry,
	approval *ApprovalPolicy, notifications *NotificationManager, toolset string, verbosity ToolVerbosity) (*Agent, error) {

	ts, err := cfg.GetToolset(toolset)
	if err != nil {
		return nil, err
	}
	active, err := registry.Active(ts)
	if err != nil {
		return nil, err
	}

	return &Agent{
		Config:         cfg,
		Conversation:   conv,
		Client:         client,
		Registry:       registry,
		Approval:       approval,
		Notifications:  notifications,
		AvailableTools: active,
		Verbosity:      verbosity,
	}, nil
}

// ProcessUserInput runs one full user turn: append the user message, then
// loop streaming model turns and executing requested tools until the model
// needs no more of them.
//
// Cancellation preserves whatever streamed text has accumulated as the
// turn's assistant content; tool calls not yet issued when cancellation
// fires get synthesized failed results so call/result pairing holds. A
// backend stream failure is fatal to the turn and propagates after the
// partial transcript has been committed.
func (a *Agent) ProcessUserInput(ctx context.Context, text string, attachments []chat.Attachment, cb ProcessCallbacks) error {
	budget := a.Config.TokenBudget
	a.Conversation.AddUserMessage(chat.NewUserMessage(text, attachments...),
		budget.MaxPromptTokens, budget.MaxToolTokens, budget.MaxChatTokens)
	cb.messagesUpdated(a.Conversation.Messages)

	for {
		detector := NewFunctionCallDetector()
		var sb strings.Builder
		var usage *chat.Usage

		streamErr := a.Client.StreamChat(ctx, a.Conversation.Messages, a.AvailableTools, func(d llm.Delta) {
			detector.CheckForFunctionCall(d)
			if d.Text != "" {
				sb.WriteString(d.Text)
				cb.assistantDelta(d.Text)
			}
			if d.Usage != nil {
				usage = d.Usage
			}
		})

		if streamErr != nil {
			if sb.Len() > 0 {
				a.Conversation.AddMessage(chat.Message{Role: chat.RoleAssistant, Content: sb.String(), Usage: usage})
				cb.messagesUpdated(a.Conversation.Messages)
			}
			if stderrors.Is(streamErr, context.Canceled) {
				cb.warning("turn interrupted; partial response kept")
				return nil
			}
			return errors.Wrapf(streamErr, "chat backend stream failed")
		}

		if !detector.HasFunctionCalls() {
			a.Conversation.AddMessage(chat.Message{Role: chat.RoleAssistant, Content: sb.String(), Usage: usage})
			a.Conversation.Trim(budget.MaxPromptTokens, budget.MaxToolTokens, budget.MaxChatTokens)
			cb.assistantMessage(sb.String())
			cb.messagesUpdated(a.Conversation.Messages)
			if a.Conversation.NeedsTitleGeneration() {
				go a.GenerateTitle(context.Background())
			}
			return nil
		}

		calls := detector.GetReadyToCallFunctionCalls()
		a.Conversation.AddMessage(chat.Message{
			Role:      chat.RoleAssistant,
			Content:   sb.String(),
			ToolCalls: calls,
			Usage:     usage,
		})
		cb.messagesUpdated(a.Conversation.Messages)
		if sb.Len() > 0 {
			cb.assistantMessage(sb.String())
		}

		// Tools run one at a time, in the order the backend emitted the
		// calls, so result ordering stays deterministic.
		results := make([]chat.ToolResult, 0, len(calls))
		interrupted := false
		for _, call := range calls {
			cb.toolCall(call)

			if interrupted || ctx.Err() != nil {
				interrupted = true
				result := chat.ToolResult{CallID: call.ID, Content: "Tool call cancelled before execution", Success: false}
				results = append(results, result)
				cb.toolResult(call, result)
				continue
			}

			result := a.runToolCall(ctx, call)
			results = append(results, result)
			cb.toolResult(call, result)
		}

		a.Conversation.AddMessage(chat.Message{Role: chat.RoleTool, ToolResults: results})
		detector.Clear()
		a.Conversation.Trim(budget.MaxPromptTokens, budget.MaxToolTokens, budget.MaxChatTokens)
		cb.messagesUpdated(a.Conversation.Messages)

		if interrupted {
			cb.warning("turn interrupted during tool execution")
			return nil
		}
	}
}

// runToolCall resolves approval and executes one call. Every failure mode,
// including denial, comes back as a failed result; one bad call never aborts
// the batch.
func (a *Agent) runToolCall(ctx context.Context, call chat.ToolCall) chat.ToolResult {
	category := a.Registry.Classify(call.Name)
	if !a.Approval.Resolve(call, category) {
		return DenialResult(call)
	}

	output, err := a.Registry.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		return chat.ToolResult{CallID: call.ID, Content: err.Error(), Success: false}
	}
	return chat.ToolResult{CallID: call.ID, Content: output, Success: true}
}
