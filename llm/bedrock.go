package llm

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/robch/cycod-sub003/chat"
	"github.com/robch/cycod-sub003/errors"
	"github.com/robch/cycod-sub003/tools"
)

// BedrockClient is a streaming client for Anthropic models on AWS Bedrock.
type BedrockClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockClient creates a new BedrockClient. It requires AWS credentials
// to be configured in the environment.
func NewBedrockClient(ctx context.Context, modelID string) (*BedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// bedrockStreamEvent is the Anthropic-on-Bedrock frame carried inside a
// response stream chunk.
type bedrockStreamEvent struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// StreamChat streams one model turn through InvokeModelWithResponseStream,
// decoding the Anthropic event frames out of each chunk.
func (b *BedrockClient) StreamChat(ctx context.Context, messages []chat.Message, availableTools []tools.Tool, onDelta StreamHandler) error {
	body, err := createBedrockRequest(messages, availableTools)
	if err != nil {
		return errors.Wrapf(err, "failed to create Bedrock request")
	}

	out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to invoke Bedrock model")
	}
	stream := out.GetStream()
	defer stream.Close()

	indexToCall := make(map[int]string)

	for event := range stream.Events() {
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		var ev bedrockStreamEvent
		if err := json.Unmarshal(chunk.Value.Bytes, &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "content_block_start":
			if ev.ContentBlock.Type == "tool_use" {
				indexToCall[ev.Index] = ev.ContentBlock.ID
				onDelta(Delta{FunctionCall: &FunctionCallDelta{
					CallID: ev.ContentBlock.ID,
					Name:   ev.ContentBlock.Name,
				}})
			}
		case "content_block_delta":
			switch ev.Delta.Type {
			case "text_delta":
				onDelta(Delta{Text: ev.Delta.Text})
			case "input_json_delta":
				if callID, ok := indexToCall[ev.Index]; ok {
					onDelta(Delta{FunctionCall: &FunctionCallDelta{
						CallID:       callID,
						ArgsFragment: ev.Delta.PartialJSON,
					}})
				}
			}
		case "content_block_stop":
			if callID, ok := indexToCall[ev.Index]; ok {
				onDelta(Delta{FunctionCall: &FunctionCallDelta{CallID: callID, Done: true}})
			}
		case "message_delta":
			if ev.Usage.OutputTokens > 0 {
				onDelta(Delta{Usage: &chat.Usage{
					InputTokens:  ev.Usage.InputTokens,
					OutputTokens: ev.Usage.OutputTokens,
				}})
			}
			if ev.Delta.StopReason != "" {
				onDelta(Delta{FinishReason: mapBedrockStopReason(ev.Delta.StopReason)})
			}
		}
	}

	if err := stream.Err(); err != nil {
		return errors.Wrapf(err, "Bedrock stream failed")
	}
	return nil
}

func mapBedrockStopReason(reason string) FinishReason {
	switch reason {
	case "tool_use":
		return FinishToolCalls
	case "max_tokens":
		return FinishLength
	default:
		return FinishStop
	}
}

// createBedrockRequest builds the Anthropic-on-Bedrock JSON request body.
func createBedrockRequest(messages []chat.Message, availableTools []tools.Tool) ([]byte, error) {
	bedrockMessages, systemPrompt := convertMessagesToBedrock(messages)

	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          bedrockMessages,
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	if len(availableTools) > 0 {
		var toolDefs []map[string]interface{}
		for _, t := range availableTools {
			toolDefs = append(toolDefs, map[string]interface{}{
				"name":        t.Name(),
				"description": t.Description(),
				"input_schema": map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			})
		}
		request["tools"] = toolDefs
	}
	return json.Marshal(request)
}

// convertMessagesToBedrock converts our internal message format to the
// Anthropic message maps Bedrock accepts.
func convertMessagesToBedrock(messages []chat.Message) ([]map[string]interface{}, string) {
	var bedrockMessages []map[string]interface{}
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			systemPrompt = msg.Content
		case chat.RoleUser:
			bedrockMessages = append(bedrockMessages, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": msg.Content},
				},
			})
		case chat.RoleAssistant:
			var blocks []map[string]interface{}
			if msg.Content != "" {
				blocks = append(blocks, map[string]interface{}{
					"type": "text", "text": msg.Content,
				})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": json.RawMessage(tc.Arguments),
				})
			}
			if len(blocks) == 0 {
				continue
			}
			bedrockMessages = append(bedrockMessages, map[string]interface{}{
				"role":    "assistant",
				"content": blocks,
			})
		case chat.RoleTool:
			var blocks []map[string]interface{}
			for _, tr := range msg.ToolResults {
				blocks = append(blocks, map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": tr.CallID,
					"content":     tr.Content,
					"is_error":    !tr.Success,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			bedrockMessages = append(bedrockMessages, map[string]interface{}{
				"role":    "user",
				"content": blocks,
			})
		}
	}

	return bedrockMessages, systemPrompt
}
