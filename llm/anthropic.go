package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/robch/cycod-sub003/chat"
	"github.com/robch/cycod-sub003/errors"
	"github.com/robch/cycod-sub003/tools"
)

// AnthropicClient is a streaming client for the Anthropic API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a new AnthropicClient. It requires the
// ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicClient(ctx context.Context, modelName string) (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &AnthropicClient{client: &client, model: modelName}, nil
}

// StreamChat streams one model turn. Tool-call fragments arrive as a
// content_block_start carrying id and name followed by input_json deltas;
// the content_block_stop is forwarded as the per-call end marker.
func (a *AnthropicClient) StreamChat(ctx context.Context, messages []chat.Message, availableTools []tools.Tool, onDelta StreamHandler) error {
	anthropicMessages, systemPrompt := convertMessagesToAnthropic(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages:  anthropicMessages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	for _, t := range availableTools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name(),
			Description: anthropic.String(t.Description()),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{},
			},
		}})
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	indexToCall := make(map[int64]string)
	sawToolUse := false

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				indexToCall[ev.Index] = block.ID
				sawToolUse = true
				onDelta(Delta{FunctionCall: &FunctionCallDelta{
					CallID: block.ID,
					Name:   block.Name,
				}})
			}
		case anthropic.ContentBlockDeltaEvent:
			switch d := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				onDelta(Delta{Text: d.Text})
			case anthropic.InputJSONDelta:
				if callID, ok := indexToCall[ev.Index]; ok {
					onDelta(Delta{FunctionCall: &FunctionCallDelta{
						CallID:       callID,
						ArgsFragment: d.PartialJSON,
					}})
				}
			}
		case anthropic.ContentBlockStopEvent:
			if callID, ok := indexToCall[ev.Index]; ok {
				onDelta(Delta{FunctionCall: &FunctionCallDelta{CallID: callID, Done: true}})
			}
		case anthropic.MessageDeltaEvent:
			if ev.Usage.OutputTokens > 0 {
				onDelta(Delta{Usage: &chat.Usage{
					InputTokens:  int(ev.Usage.InputTokens),
					OutputTokens: int(ev.Usage.OutputTokens),
				}})
			}
		case anthropic.MessageStopEvent:
			if sawToolUse {
				onDelta(Delta{FinishReason: FinishToolCalls})
			} else {
				onDelta(Delta{FinishReason: FinishStop})
			}
		}
	}

	if err := stream.Err(); err != nil {
		return errors.Wrapf(err, "Anthropic stream failed")
	}
	return nil
}

// convertMessagesToAnthropic converts our internal message format to
// Anthropic's. The system prompt is lifted out; tool results ride in a
// user-role message, one tool_result block per call.
func convertMessagesToAnthropic(messages []chat.Message) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			systemPrompt = msg.Content
		case chat.RoleUser:
			blocks := []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(msg.Content),
			}
			for _, att := range msg.Attachments {
				blocks = append(blocks, anthropic.NewImageBlockBase64(att.MimeType, base64.StdEncoding.EncodeToString(att.Data)))
			}
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(blocks...))
		case chat.RoleAssistant:
			var contentItems []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				contentItems = append(contentItems, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{Text: msg.Content},
				})
			}
			for _, tc := range msg.ToolCalls {
				contentItems = append(contentItems, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						Type:  "tool_use",
						ID:    tc.ID,
						Name:  tc.Name,
						Input: json.RawMessage(tc.Arguments),
					},
				})
			}
			if len(contentItems) == 0 {
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: contentItems,
			})
		case chat.RoleTool:
			var contentItems []anthropic.ContentBlockParamUnion
			for _, tr := range msg.ToolResults {
				contentItems = append(contentItems, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: tr.CallID,
						IsError:   anthropic.Bool(!tr.Success),
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: tr.Content},
						}},
					},
				})
			}
			if len(contentItems) == 0 {
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: contentItems,
			})
		}
	}

	return anthropicMessages, systemPrompt
}
