package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/robch/cycod-sub003/agent"
	"github.com/robch/cycod-sub003/agent/terminal"
	"github.com/robch/cycod-sub003/chat"
	"github.com/robch/cycod-sub003/config"
	"github.com/robch/cycod-sub003/llm"
	"github.com/robch/cycod-sub003/tools"
)

// stringList collects repeatable flag values.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var images stringList
	chatHistoryFlag := flag.String("chat-history", "", "Chat history file serving as both input and output")
	inputHistoryFlag := flag.String("input-chat-history", "", "Chat history file to load")
	outputHistoryFlag := flag.String("output-chat-history", "", "Chat history file to save to")
	continueFlag := flag.Bool("continue", false, "Continue the most recent chat history")
	trimTargetFlag := flag.Int("trim-token-target", 0, "Token ceiling for the whole transcript (0 = use config)")
	toolsetFlag := flag.String("t", "", "Toolset to use (defaults to 'default')")
	toolVerbosityFlag := flag.String("tool-verbosity", "none", "Tool verbosity level: 'none', 'info', or 'all'")
	systemPromptFlag := flag.String("system-prompt", "", "Override the system prompt")
	flag.Var(&images, "image", "Attach an image to the initial prompt (repeatable)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}
	if *systemPromptFlag != "" {
		cfg.SystemPrompt = *systemPromptFlag
	}
	if *trimTargetFlag > 0 {
		cfg.TokenBudget.MaxChatTokens = *trimTargetFlag
	}

	var verbosity agent.ToolVerbosity
	switch *toolVerbosityFlag {
	case "none":
		verbosity = agent.ToolVerbosityNone
	case "info":
		verbosity = agent.ToolVerbosityInfo
	case "all":
		verbosity = agent.ToolVerbosityAll
	default:
		fmt.Fprintf(os.Stderr, "Invalid tool verbosity '%s'. Must be 'none', 'info', or 'all'.\n", *toolVerbosityFlag)
		os.Exit(1)
	}

	inputPath, outputPath, err := resolveHistoryPaths(*chatHistoryFlag, *inputHistoryFlag, *outputHistoryFlag, *continueFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving chat history: %+v\n", err)
		os.Exit(1)
	}

	conv := chat.NewConversation()
	conv.Clear(cfg.SystemPrompt)

	if inputPath != "" && chat.Exists(inputPath) {
		md, msgs, err := chat.Load(inputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading chat history '%s': %+v\n", inputPath, err)
			os.Exit(1)
		}
		// Files without metadata get the defaults: no title, unlocked.
		if md != nil && md.Title != "" {
			conv.SetGeneratedTitle(md.Title)
			if md.TitleLocked {
				conv.LockTitle()
			}
		}
		conv.ApplyHistory(msgs)
		fmt.Printf("Loaded chat history from %s\n", inputPath)
	}

	client := newLLMClient(cfg)

	registry := tools.NewRegistry(cfg, func(warning string) {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	})
	defer registry.Close()

	notifications := agent.NewNotificationManager()
	term := terminal.New(outputPath)
	approval := agent.NewApprovalPolicy(cfg.Approval, term)

	cycodAgent, err := agent.New(cfg, conv, client, registry, approval, notifications, *toolsetFlag, verbosity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing agent: %+v\n", err)
		os.Exit(1)
	}
	term.Bind(cycodAgent)

	for _, path := range images {
		if err := term.AttachFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error attaching '%s': %+v\n", path, err)
			os.Exit(1)
		}
	}

	initialPrompt := strings.Join(flag.Args(), " ")
	fmt.Println("cycod is ready. Type your prompt.")
	if err := term.Run(context.Background(), initialPrompt); err != nil {
		fmt.Fprintf(os.Stderr, "Agent stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

// resolveHistoryPaths maps the history flags onto an input path (may be
// empty: start fresh) and an output path (always set). --chat-history serves
// both roles; --continue picks the most recent file in the default history
// directory.
func resolveHistoryPaths(chatHistory, inputHistory, outputHistory string, cont bool) (string, string, error) {
	if chatHistory != "" {
		return chatHistory, chatHistory, nil
	}

	input := inputHistory
	if cont && input == "" {
		dir, err := chat.DefaultHistoryDir()
		if err != nil {
			return "", "", err
		}
		latest, err := chat.LatestHistoryPath(dir)
		if err == nil {
			input = latest
		}
		// No previous history is not an error; --continue just starts fresh.
	}

	output := outputHistory
	if output == "" {
		if input != "" {
			output = input
		} else {
			dir, err := chat.DefaultHistoryDir()
			if err != nil {
				return "", "", err
			}
			output = chat.NewHistoryPath(dir)
		}
	}
	return input, output, nil
}

// newLLMClient constructs the configured chat backend, falling back to the
// scripted client when none is configured.
func newLLMClient(cfg *config.Config) llm.Client {
	ctx := context.Background()
	var client llm.Client
	var err error

	switch cfg.LLMClient {
	case "openai":
		client, err = llm.NewOpenAIClient(ctx, cfg.Model)
	case "anthropic":
		client, err = llm.NewAnthropicClient(ctx, cfg.Model)
	case "gemini":
		client, err = llm.NewGeminiClient(ctx, cfg.Model)
	case "bedrock":
		client, err = llm.NewBedrockClient(ctx, cfg.Model)
	default:
		fmt.Fprintln(os.Stderr, "Warning: no LLM client configured; using a scripted stand-in.")
		return &llm.ScriptedClient{}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s client: %+v\n", cfg.LLMClient, err)
		os.Exit(1)
	}
	return client
}
