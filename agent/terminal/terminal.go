package terminal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/robch/cycod-sub003/agent"
	"github.com/robch/cycod-sub003/chat"
	"github.com/robch/cycod-sub003/errors"
	"github.com/robch/cycod-sub003/tools"
)

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	warnColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed)
	okColor     = color.New(color.FgGreen)
	toolColor   = color.New(color.FgMagenta)
)

// Terminal handles the interactive CLI mode for the agent.
type Terminal struct {
	agent    *agent.Agent
	in       *bufio.Reader
	savePath string

	// attachments queued by /attach for the next user message
	pendingAttachments []chat.Attachment
}

// New creates a new Terminal. savePath, when non-empty, is where the
// transcript is persisted after every turn and on exit.
//
// The terminal doubles as the approval UI, so it is created before the
// agent; call Bind once the agent exists.
func New(savePath string) *Terminal {
	return &Terminal{
		in:       bufio.NewReader(os.Stdin),
		savePath: savePath,
	}
}

// Bind attaches the agent this terminal drives.
func (t *Terminal) Bind(a *agent.Agent) {
	t.agent = a
}

// AttachFile queues a file as an attachment for the next user message.
func (t *Terminal) AttachFile(path string) error {
	return t.attach(path)
}

// Run starts the interactive session. An initial prompt from the command
// line is processed first; afterwards lines are read until EOF or an exit
// command.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	if initialPrompt != "" {
		if err := t.processTurn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	for {
		promptColor.Print("You: ")
		line, err := t.in.ReadString('\n')
		if err != nil {
			// EOF ends the session
			break
		}

		userInput := strings.TrimSpace(line)
		if userInput == "" {
			continue
		}
		if userInput == "/quit" || userInput == "/exit" {
			break
		}
		if strings.HasPrefix(userInput, "/") {
			t.runCommand(userInput)
			continue
		}

		if err := t.processTurn(ctx, userInput); err != nil {
			errColor.Printf("Error: %v\n", err)
		}
	}

	return t.persist()
}

// processTurn handles a single user input turn. A keyboard interrupt cancels
// the in-flight stream for this turn only; the partial response is kept.
func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	attachments := t.pendingAttachments
	t.pendingAttachments = nil

	streaming := false
	callbacks := agent.ProcessCallbacks{
		OnAssistantDelta: func(text string) {
			if !streaming {
				t.drainNotifications()
				fmt.Print("cycod: ")
				streaming = true
			}
			fmt.Print(text)
		},
		OnAssistantMessage: func(message string) {
			if streaming {
				fmt.Println()
				streaming = false
				return
			}
			t.drainNotifications()
			fmt.Printf("cycod: %s\n", message)
		},
		OnToolCall: func(call chat.ToolCall) {
			if streaming {
				fmt.Println()
				streaming = false
			}
			switch t.agent.Verbosity {
			case agent.ToolVerbosityAll:
				toolColor.Printf("cycod wants to call tool `%s` with args: %s\n", call.Name, call.Arguments)
			case agent.ToolVerbosityInfo:
				toolColor.Printf("cycod wants to call tool `%s`\n", call.Name)
			}
		},
		OnToolResult: func(call chat.ToolCall, result chat.ToolResult) {
			if t.agent.Verbosity != agent.ToolVerbosityAll {
				return
			}
			if result.Success {
				toolColor.Printf("Tool `%s` output: %s\n", call.Name, result.Content)
			} else {
				errColor.Printf("Tool `%s` failed: %s\n", call.Name, result.Content)
			}
		},
		OnMessagesUpdated: func(messages []chat.Message) {
			if err := t.persist(); err != nil {
				warnColor.Printf("Warning: failed to save chat history: %v\n", err)
			}
		},
		OnWarning: func(warning string) {
			if streaming {
				fmt.Println()
				streaming = false
			}
			warnColor.Printf("Warning: %s\n", warning)
		},
	}

	err := t.agent.ProcessUserInput(turnCtx, userInput, attachments, callbacks)
	if streaming {
		fmt.Println()
	}
	if err != nil {
		// Best effort: keep whatever partial transcript exists before the
		// error is surfaced.
		if saveErr := t.persist(); saveErr != nil {
			warnColor.Printf("Warning: failed to save partial transcript: %v\n", saveErr)
		}
	}
	return err
}

// drainNotifications prints every queued notice, immediately before the next
// assistant turn is rendered.
func (t *Terminal) drainNotifications() {
	for _, n := range t.agent.Notifications.GetAndClearPending() {
		switch n.Format {
		case agent.FormatUpdatedTo:
			okColor.Printf("[%s updated to: %q]\n", n.Category, n.Content)
		case agent.FormatStatus:
			fmt.Printf("[%s: %s]\n", n.Category, n.Content)
		case agent.FormatSuccess:
			okColor.Printf("[%s]\n", n.Content)
		case agent.FormatError:
			errColor.Printf("[%s]\n", n.Content)
		default:
			fmt.Printf("[%s]\n", n.Content)
		}
	}
}

// runCommand dispatches a slash command.
func (t *Terminal) runCommand(input string) {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/clear":
		t.agent.Conversation.Clear(t.agent.Config.SystemPrompt)
		fmt.Println("Conversation cleared.")
	case "/save":
		path := rest
		if path == "" {
			path = t.savePath
		}
		if path == "" {
			errColor.Println("No history path configured; use /save <path>.")
			return
		}
		md := chat.Metadata{Title: t.agent.Conversation.Title(), TitleLocked: t.agent.Conversation.TitleLocked()}
		if err := chat.Save(path, md, t.agent.Conversation.Messages); err != nil {
			errColor.Printf("Error: %v\n", err)
			return
		}
		okColor.Printf("Saved to %s\n", path)
	case "/attach":
		if rest == "" {
			errColor.Println("Usage: /attach <path>")
			return
		}
		if err := t.attach(rest); err != nil {
			errColor.Printf("Error: %v\n", err)
			return
		}
		okColor.Printf("Attached %s to the next message.\n", rest)
	case "/title":
		t.runTitleCommand(rest)
	default:
		errColor.Printf("Unknown command %s\n", cmd)
	}
}

// runTitleCommand handles the /title subcommands: view, set, regen, revert,
// unlock, status.
func (t *Terminal) runTitleCommand(rest string) {
	conv := t.agent.Conversation
	notifications := t.agent.Notifications

	switch rest {
	case "":
		// Viewing the title consumes any stale "title updated" notice.
		notifications.ClearPendingOfType(agent.TitleCategory)
		if conv.Title() == "" {
			fmt.Println("No title yet.")
		} else {
			fmt.Printf("Title: %s\n", conv.Title())
		}
	case "regen":
		go t.agent.GenerateTitle(context.Background())
		fmt.Println("Regenerating title in the background.")
	case "revert":
		old, ok := notifications.OldTitle()
		if !ok {
			errColor.Println("No previous title to revert to.")
			return
		}
		conv.UnlockTitle()
		conv.SetGeneratedTitle(old)
		notifications.ClearOldTitle()
		okColor.Printf("Title reverted to %q\n", old)
	case "unlock":
		conv.UnlockTitle()
		fmt.Println("Title unlocked; generated titles may replace it again.")
	case "status":
		fmt.Println(notifications.Machine(agent.TitleCategory).GetStatusDescription())
	default:
		notifications.RememberOldTitle(conv.Title())
		conv.SetUserTitle(rest)
		okColor.Printf("Title set to %q\n", rest)
	}
}

// attach queues a file as an attachment for the next user message.
func (t *Terminal) attach(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "could not read attachment '%s'", path)
	}
	t.pendingAttachments = append(t.pendingAttachments, chat.Attachment{
		MimeType: mimeTypeFor(path),
		Data:     data,
	})
	return nil
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// persist writes the transcript and metadata to the configured history path.
func (t *Terminal) persist() error {
	if t.savePath == "" {
		return nil
	}
	md := chat.Metadata{Title: t.agent.Conversation.Title(), TitleLocked: t.agent.Conversation.TitleLocked()}
	return chat.Save(t.savePath, md, t.agent.Conversation.Messages)
}

// PromptKey blocks for one approval keystroke. Input is line-buffered, so
// the first rune of the entered line is the keystroke; a bare Enter maps to
// the newline rune.
func (t *Terminal) PromptKey() (rune, error) {
	line, err := t.in.ReadString('\n')
	if err != nil {
		return 0, err
	}
	trimmed := strings.TrimRight(line, "\r\n")
	if trimmed == "" {
		return '\n', nil
	}
	return rune(trimmed[0]), nil
}

// ShowRequest displays a pending tool call awaiting approval.
func (t *Terminal) ShowRequest(name, arguments string, category tools.Category) {
	warnColor.Printf("cycod wants to call `%s` (%s) with args: %s\n", name, category, arguments)
	fmt.Print("Allow? [Y=session, y=once, N=never, n=not now, ?=help] ")
}

// ShowHelp explains the approval keys and re-prompts.
func (t *Terminal) ShowHelp() {
	fmt.Println("  Enter/Y  approve for the rest of this session")
	fmt.Println("  y        approve this call only")
	fmt.Println("  N        deny for the rest of this session")
	fmt.Println("  n        deny this call only")
	fmt.Print("Allow? ")
}
