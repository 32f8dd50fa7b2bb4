package agent

import (
	"github.com/robch/cycod-sub003/chat"
	"github.com/robch/cycod-sub003/config"
	"github.com/robch/cycod-sub003/tools"
)

// DenialMessage is the tool result content synthesized for a refused call.
// The model always receives a result for every call it requested.
const DenialMessage = "User did not approve function call"

// ApprovalUI is the interactive surface the policy falls back to when no
// session or config rule decides a call. PromptKey blocks for one keystroke.
type ApprovalUI interface {
	PromptKey() (rune, error)
	ShowRequest(name, arguments string, category tools.Category)
	ShowHelp()
}

// ApprovalPolicy decides whether a tool call may execute. Two session-scoped
// sets hold names, the wildcard "*", and the category tokens "read", "write",
// "run". They are seeded from config defaults on first use, mutated only by
// explicit user decisions, and never persisted back.
type ApprovalPolicy struct {
	seed   config.Approval
	seeded bool

	approved map[string]bool
	denied   map[string]bool

	ui ApprovalUI
}

// NewApprovalPolicy creates a policy seeded from the config defaults. ui may
// be nil, in which case undecided calls are denied.
func NewApprovalPolicy(seed config.Approval, ui ApprovalUI) *ApprovalPolicy {
	return &ApprovalPolicy{
		seed:     seed,
		approved: make(map[string]bool),
		denied:   make(map[string]bool),
		ui:       ui,
	}
}

func (p *ApprovalPolicy) ensureSeeded() {
	if p.seeded {
		return
	}
	for _, name := range p.seed.AutoApprove {
		p.approved[name] = true
	}
	for _, name := range p.seed.AutoDeny {
		p.denied[name] = true
	}
	p.seeded = true
}

// ShouldAutoApprove reports whether the call is approved without prompting:
// exact name first, then wildcard, then category tokens.
func (p *ApprovalPolicy) ShouldAutoApprove(name string, category tools.Category) bool {
	p.ensureSeeded()
	return decide(p.approved, name, category)
}

// ShouldDeny reports whether the call is refused without prompting.
func (p *ApprovalPolicy) ShouldDeny(name string, category tools.Category) bool {
	p.ensureSeeded()
	return decide(p.denied, name, category)
}

// decide applies the evaluation order: exact name, wildcard, category token.
// Category tokens subsume narrower categories: a "run" grant covers Write and
// Read, a "write" grant covers Read. Unknown tools match only by exact name
// or wildcard.
func decide(set map[string]bool, name string, category tools.Category) bool {
	if set[name] {
		return true
	}
	if set["*"] {
		return true
	}
	switch category {
	case tools.CategoryRead:
		return set["read"] || set["write"] || set["run"]
	case tools.CategoryWrite:
		return set["write"] || set["run"]
	case tools.CategoryRun:
		return set["run"]
	default:
		return false
	}
}

// Resolve gates one call: deny rules win, then approve rules, then the
// interactive prompt. The prompt is a single-keystroke state machine:
// Enter or 'Y' approves and remembers for the session, 'y' approves once,
// 'N' or end-of-input denies and remembers, 'n' denies once, '?' shows help
// and re-prompts, anything else re-prompts.
func (p *ApprovalPolicy) Resolve(call chat.ToolCall, category tools.Category) bool {
	if p.ShouldDeny(call.Name, category) {
		return false
	}
	if p.ShouldAutoApprove(call.Name, category) {
		return true
	}
	if p.ui == nil {
		return false
	}

	p.ui.ShowRequest(call.Name, call.Arguments, category)
	for {
		key, err := p.ui.PromptKey()
		if err != nil {
			p.denied[call.Name] = true
			return false
		}
		switch key {
		case '\r', '\n', 'Y':
			p.approved[call.Name] = true
			return true
		case 'y':
			return true
		case 'N':
			p.denied[call.Name] = true
			return false
		case 'n':
			return false
		case '?':
			p.ui.ShowHelp()
		}
	}
}

// DenialResult synthesizes the failed tool result for a refused call.
func DenialResult(call chat.ToolCall) chat.ToolResult {
	return chat.ToolResult{CallID: call.ID, Content: DenialMessage, Success: false}
}
