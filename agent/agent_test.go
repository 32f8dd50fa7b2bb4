package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robch/cycod-sub003/chat"
	"github.com/robch/cycod-sub003/config"
	"github.com/robch/cycod-sub003/llm"
	"github.com/robch/cycod-sub003/tools"
)

// echoTool returns its arguments and counts executions.
type echoTool struct {
	executions int
}

func (e *echoTool) Name() string              { return "echo" }
func (e *echoTool) Description() string       { return "Echoes its arguments back." }
func (e *echoTool) Category() tools.Category  { return tools.CategoryRead }
func (e *echoTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	e.executions++
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// failingClient emits its deltas and then fails the stream.
type failingClient struct {
	deltas []llm.Delta
	err    error
}

func (f *failingClient) StreamChat(ctx context.Context, messages []chat.Message, availableTools []tools.Tool, onDelta llm.StreamHandler) error {
	for _, d := range f.deltas {
		onDelta(d)
	}
	return f.err
}

func newTestAgent(t *testing.T, client llm.Client, approval config.Approval) (*Agent, *echoTool) {
	t.Helper()
	cfg := &config.Config{SystemPrompt: "sys"}
	registry := tools.NewRegistry(cfg, nil)
	echo := &echoTool{}
	registry.Register(echo)

	conv := chat.NewConversation()
	conv.Clear(cfg.SystemPrompt)
	// A preset title keeps the background title goroutine out of these tests.
	conv.SetGeneratedTitle("preset")

	a, err := New(cfg, conv, client, registry, NewApprovalPolicy(approval, nil),
		NewNotificationManager(), "", ToolVerbosityNone)
	require.NoError(t, err)
	return a, echo
}

func TestProcessUserInputPlainAnswer(t *testing.T) {
	client := &llm.ScriptedClient{Turns: [][]llm.Delta{{
		{Text: "Hello "},
		{Text: "there."},
		{Usage: &chat.Usage{InputTokens: 10, OutputTokens: 3}},
		{FinishReason: llm.FinishStop},
	}}}
	a, _ := newTestAgent(t, client, config.Approval{})

	var committed string
	var streamed string
	err := a.ProcessUserInput(context.Background(), "hi", nil, ProcessCallbacks{
		OnAssistantDelta:   func(text string) { streamed += text },
		OnAssistantMessage: func(message string) { committed = message },
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there.", streamed)
	assert.Equal(t, "Hello there.", committed)

	msgs := a.Conversation.Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, chat.RoleUser, msgs[1].Role)
	assert.Equal(t, "Hello there.", msgs[2].Content)
	require.NotNil(t, msgs[2].Usage)
	assert.Equal(t, 10, msgs[2].Usage.InputTokens)
}

func TestProcessUserInputToolRoundTrip(t *testing.T) {
	client := &llm.ScriptedClient{Turns: [][]llm.Delta{
		{
			{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", Name: "echo"}},
			{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", ArgsFragment: `{"q":`}},
			{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", ArgsFragment: `"cats"}`, Done: true}},
			{FinishReason: llm.FinishToolCalls},
		},
		{
			{Text: "All done."},
			{FinishReason: llm.FinishStop},
		},
	}}
	a, echo := newTestAgent(t, client, config.Approval{AutoApprove: []string{"*"}})

	var results []chat.ToolResult
	err := a.ProcessUserInput(context.Background(), "echo cats", nil, ProcessCallbacks{
		OnToolResult: func(call chat.ToolCall, result chat.ToolResult) { results = append(results, result) },
	})
	require.NoError(t, err)

	assert.Equal(t, 1, echo.executions)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.JSONEq(t, `{"q":"cats"}`, results[0].Content)

	// Transcript: system, user, assistant with call, tool result, final assistant.
	msgs := a.Conversation.Messages
	require.Len(t, msgs, 5)
	assert.True(t, msgs[2].HasToolCalls())
	assert.Equal(t, "c1", msgs[3].ToolResults[0].CallID)
	assert.Equal(t, "All done.", msgs[4].Content)

	// The second model request saw the tool result.
	require.Len(t, client.Requests, 2)
	second := client.Requests[1]
	assert.Equal(t, chat.RoleTool, second[len(second)-1].Role)
}

func TestProcessUserInputDeniedCallStillAnswersModel(t *testing.T) {
	client := &llm.ScriptedClient{Turns: [][]llm.Delta{
		{
			{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", Name: "echo", ArgsFragment: "{}", Done: true}},
			{FinishReason: llm.FinishToolCalls},
		},
		{
			{Text: "Understood, skipping that."},
			{FinishReason: llm.FinishStop},
		},
	}}
	a, echo := newTestAgent(t, client, config.Approval{AutoDeny: []string{"echo"}})

	var results []chat.ToolResult
	err := a.ProcessUserInput(context.Background(), "echo something", nil, ProcessCallbacks{
		OnToolResult: func(call chat.ToolCall, result chat.ToolResult) { results = append(results, result) },
	})
	require.NoError(t, err)

	assert.Zero(t, echo.executions, "denied tools never execute")
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, DenialMessage, results[0].Content)

	// The denial travelled back to the model as a failed result.
	require.Len(t, client.Requests, 2)
	second := client.Requests[1]
	last := second[len(second)-1]
	require.Equal(t, chat.RoleTool, last.Role)
	assert.Equal(t, DenialMessage, last.ToolResults[0].Content)
}

func TestProcessUserInputMultipleCallsRunInOrder(t *testing.T) {
	client := &llm.ScriptedClient{Turns: [][]llm.Delta{
		{
			{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", Name: "echo", ArgsFragment: `{"n":1}`, Done: true}},
			{FunctionCall: &llm.FunctionCallDelta{CallID: "c2", Name: "echo", ArgsFragment: `{"n":2}`, Done: true}},
			{FinishReason: llm.FinishToolCalls},
		},
		{
			{Text: "Both done."},
			{FinishReason: llm.FinishStop},
		},
	}}
	a, echo := newTestAgent(t, client, config.Approval{AutoApprove: []string{"*"}})

	var order []string
	err := a.ProcessUserInput(context.Background(), "run both", nil, ProcessCallbacks{
		OnToolCall: func(call chat.ToolCall) { order = append(order, call.ID) },
	})
	require.NoError(t, err)

	assert.Equal(t, 2, echo.executions)
	assert.Equal(t, []string{"c1", "c2"}, order)

	// Both results land in a single tool message.
	msgs := a.Conversation.Messages
	require.Len(t, msgs[3].ToolResults, 2)
	assert.Equal(t, "c1", msgs[3].ToolResults[0].CallID)
	assert.Equal(t, "c2", msgs[3].ToolResults[1].CallID)
}

func TestProcessUserInputStreamFailureCommitsPartialText(t *testing.T) {
	client := &failingClient{
		deltas: []llm.Delta{{Text: "partial answer"}},
		err:    fmt.Errorf("connection reset"),
	}
	a, _ := newTestAgent(t, client, config.Approval{})

	err := a.ProcessUserInput(context.Background(), "hi", nil, ProcessCallbacks{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	msgs := a.Conversation.Messages
	assert.Equal(t, "partial answer", msgs[len(msgs)-1].Content)
}

func TestProcessUserInputCancellationKeepsPartialText(t *testing.T) {
	client := &failingClient{
		deltas: []llm.Delta{{Text: "partial answer"}},
		err:    context.Canceled,
	}
	a, _ := newTestAgent(t, client, config.Approval{})

	var warned string
	err := a.ProcessUserInput(context.Background(), "hi", nil, ProcessCallbacks{
		OnWarning: func(warning string) { warned = warning },
	})
	require.NoError(t, err, "cancellation is not an error")
	assert.NotEmpty(t, warned)

	msgs := a.Conversation.Messages
	assert.Equal(t, "partial answer", msgs[len(msgs)-1].Content)
}

func TestProcessUserInputCancelledBatchSynthesizesResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// This client ignores ctx, so the cancellation is first observed at tool
	// execution time rather than mid-stream.
	client := &failingClient{deltas: []llm.Delta{
		{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", Name: "echo", ArgsFragment: "{}", Done: true}},
		{FunctionCall: &llm.FunctionCallDelta{CallID: "c2", Name: "echo", ArgsFragment: "{}", Done: true}},
		{FinishReason: llm.FinishToolCalls},
	}}
	a, echo := newTestAgent(t, client, config.Approval{AutoApprove: []string{"*"}})

	err := a.ProcessUserInput(ctx, "run both", nil, ProcessCallbacks{})
	require.NoError(t, err)

	assert.Zero(t, echo.executions)
	msgs := a.Conversation.Messages
	last := msgs[len(msgs)-1]
	require.Equal(t, chat.RoleTool, last.Role)
	require.Len(t, last.ToolResults, 2)
	for _, tr := range last.ToolResults {
		assert.False(t, tr.Success)
	}
}
