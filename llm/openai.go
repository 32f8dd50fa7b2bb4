package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/robch/cycod-sub003/chat"
	"github.com/robch/cycod-sub003/errors"
	"github.com/robch/cycod-sub003/tools"
)

// OpenAIClient is a streaming client for the OpenAI Chat Completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAIClient. It requires the OPENAI_API_KEY
// environment variable to be set and honors OPENAI_BASE_URL for compatible
// providers.
func NewOpenAIClient(ctx context.Context, modelName string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	c := openai.NewClient(options...)
	return &OpenAIClient{client: &c, model: modelName}, nil
}

// StreamChat streams one model turn, emitting text, tool-call fragments,
// usage counters, and the finish reason as deltas.
func (o *OpenAIClient) StreamChat(ctx context.Context, messages []chat.Message, availableTools []tools.Tool, onDelta StreamHandler) error {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertMessagesToOpenAI(messages),
		Tools:    convertToolsToOpenAI(availableTools),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	// Continuation fragments key tool calls by index, not id.
	indexToCall := make(map[int64]string)

	for stream.Next() {
		chunk := stream.Current()

		if chunk.Usage.TotalTokens > 0 {
			onDelta(Delta{Usage: &chat.Usage{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
			}})
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			onDelta(Delta{Text: choice.Delta.Content})
		}

		for _, tc := range choice.Delta.ToolCalls {
			callID := tc.ID
			if callID == "" {
				callID = indexToCall[tc.Index]
			} else {
				indexToCall[tc.Index] = callID
			}
			if callID == "" {
				continue
			}
			onDelta(Delta{FunctionCall: &FunctionCallDelta{
				CallID:       callID,
				Name:         tc.Function.Name,
				ArgsFragment: tc.Function.Arguments,
			}})
		}

		if choice.FinishReason != "" {
			onDelta(Delta{FinishReason: mapOpenAIFinishReason(choice.FinishReason)})
		}
	}

	if err := stream.Err(); err != nil {
		return errors.Wrapf(err, "OpenAI stream failed")
	}
	return nil
}

func mapOpenAIFinishReason(reason string) FinishReason {
	switch reason {
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishStop
	}
}

// convertMessagesToOpenAI converts our internal message format to OpenAI's.
// A tool message bundling several results becomes one OpenAI tool message per
// call id, since that is what the API expects.
func convertMessagesToOpenAI(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		case chat.RoleAssistant:
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				assistantMessage.ToolCalls = append(assistantMessage.ToolCalls, openai.ChatCompletionMessageToolCallUnion{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case chat.RoleTool:
			for _, tr := range msg.ToolResults {
				chatMessages = append(chatMessages, openai.ToolMessage(tr.Content, tr.CallID))
			}
		case chat.RoleUser:
			fallthrough
		default:
			if len(msg.Attachments) == 0 {
				chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
				continue
			}
			parts := []openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(msg.Content),
			}
			for _, att := range msg.Attachments {
				dataURL := fmt.Sprintf("data:%s;base64,%s", att.MimeType, base64.StdEncoding.EncodeToString(att.Data))
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}))
			}
			chatMessages = append(chatMessages, openai.UserMessage(parts))
		}
	}
	return chatMessages
}

// convertToolsToOpenAI converts our Tool interface to the OpenAI tool format.
func convertToolsToOpenAI(ts []tools.Tool) []openai.ChatCompletionToolUnionParam {
	if len(ts) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, t := range ts {
		// A generic object schema; the model infers the arguments from the
		// tool description.
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": map[string]any{},
		}
		openAITools = append(openAITools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  params,
		}))
	}
	return openAITools
}
