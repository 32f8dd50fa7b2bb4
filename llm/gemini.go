package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/robch/cycod-sub003/chat"
	"github.com/robch/cycod-sub003/errors"
	"github.com/robch/cycod-sub003/tools"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiClient is a streaming client for the Google Gemini API.
type GeminiClient struct {
	model   *genai.GenerativeModel
	callSeq int
}

// NewGeminiClient creates a new GeminiClient. It requires the GEMINI_API_KEY
// environment variable to be set.
func NewGeminiClient(ctx context.Context, modelName string) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiClient{model: client.GenerativeModel(modelName)}, nil
}

// StreamChat streams one model turn. Gemini delivers function calls whole
// rather than as fragments and assigns no call ids, so each call is emitted
// as a single already-complete fragment under a synthesized id.
func (g *GeminiClient) StreamChat(ctx context.Context, messages []chat.Message, availableTools []tools.Tool, onDelta StreamHandler) error {
	history, systemPrompt := convertMessagesToGemini(messages)
	if len(history) == 0 {
		return errors.New("no messages to send to Gemini")
	}
	if systemPrompt != "" {
		g.model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	g.model.Tools = convertToolsToGemini(availableTools)

	last := history[len(history)-1]
	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]

	iter := chatSession.SendMessageStream(ctx, last.Parts...)
	sawFunctionCall := false

	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "Gemini stream failed")
		}
		if resp.UsageMetadata != nil {
			onDelta(Delta{Usage: &chat.Usage{
				InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
				OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			}})
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				onDelta(Delta{Text: string(v)})
			case genai.FunctionCall:
				sawFunctionCall = true
				g.callSeq++
				args, err := json.Marshal(v.Args)
				if err != nil {
					args = []byte("{}")
				}
				onDelta(Delta{FunctionCall: &FunctionCallDelta{
					CallID:       fmt.Sprintf("call_%d_%s", g.callSeq, v.Name),
					Name:         v.Name,
					ArgsFragment: string(args),
					Done:         true,
				}})
			}
		}
	}

	if sawFunctionCall {
		onDelta(Delta{FinishReason: FinishToolCalls})
	} else {
		onDelta(Delta{FinishReason: FinishStop})
	}
	return nil
}

// convertMessagesToGemini converts our internal message format to Gemini's.
// Tool results become FunctionResponse parts keyed by function name, which
// Gemini uses in place of call ids.
func convertMessagesToGemini(messages []chat.Message) ([]*genai.Content, string) {
	callNames := make(map[string]string)
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			callNames[tc.ID] = tc.Name
		}
	}

	var contents []*genai.Content
	var systemPrompt string
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			systemPrompt = msg.Content
		case chat.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]interface{}
				if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
					args = map[string]interface{}{}
				}
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case chat.RoleTool:
			var parts []genai.Part
			for _, tr := range msg.ToolResults {
				parts = append(parts, genai.FunctionResponse{
					Name: callNames[tr.CallID],
					Response: map[string]interface{}{
						"result":  tr.Content,
						"success": tr.Success,
					},
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})
		default:
			parts := []genai.Part{genai.Text(msg.Content)}
			for _, att := range msg.Attachments {
				parts = append(parts, genai.Blob{MIMEType: att.MimeType, Data: att.Data})
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})
		}
	}
	return contents, systemPrompt
}

// convertToolsToGemini converts our Tool interface to Gemini's
// FunctionDeclaration format.
func convertToolsToGemini(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, t := range ts {
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}
