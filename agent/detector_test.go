package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robch/cycod-sub003/llm"
)

func TestDetectorAssemblesFragmentedCall(t *testing.T) {
	d := NewFunctionCallDetector()

	d.CheckForFunctionCall(llm.Delta{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", Name: "search"}})
	assert.False(t, d.HasFunctionCalls(), "call is not ready before its end marker")

	d.CheckForFunctionCall(llm.Delta{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", ArgsFragment: `{"q":`}})
	d.CheckForFunctionCall(llm.Delta{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", ArgsFragment: `"cats"}`, Done: true}})

	require.True(t, d.HasFunctionCalls())
	calls := d.GetReadyToCallFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Equal(t, "search", calls[0].Name)
	assert.Equal(t, `{"q":"cats"}`, calls[0].Arguments)
}

func TestDetectorInterleavedCallsKeepStreamOrder(t *testing.T) {
	d := NewFunctionCallDetector()

	d.CheckForFunctionCall(llm.Delta{FunctionCall: &llm.FunctionCallDelta{CallID: "a", Name: "first"}})
	d.CheckForFunctionCall(llm.Delta{FunctionCall: &llm.FunctionCallDelta{CallID: "b", Name: "second"}})
	d.CheckForFunctionCall(llm.Delta{FunctionCall: &llm.FunctionCallDelta{CallID: "b", ArgsFragment: "{}", Done: true}})
	d.CheckForFunctionCall(llm.Delta{FunctionCall: &llm.FunctionCallDelta{CallID: "a", ArgsFragment: "{}", Done: true}})

	calls := d.GetReadyToCallFunctionCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "first", calls[0].Name)
	assert.Equal(t, "second", calls[1].Name)
}

func TestDetectorFinishReasonMarksAllReady(t *testing.T) {
	d := NewFunctionCallDetector()

	d.CheckForFunctionCall(llm.Delta{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", Name: "search", ArgsFragment: "{}"}})
	assert.False(t, d.HasFunctionCalls())

	d.CheckForFunctionCall(llm.Delta{FinishReason: llm.FinishToolCalls})
	assert.True(t, d.HasFunctionCalls())

	// A Done marker after the finish reason changes nothing.
	d.CheckForFunctionCall(llm.Delta{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", Done: true}})
	assert.Len(t, d.GetReadyToCallFunctionCalls(), 1)
}

func TestDetectorContinuationFragmentsOmitName(t *testing.T) {
	d := NewFunctionCallDetector()

	d.CheckForFunctionCall(llm.Delta{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", Name: "write_file"}})
	d.CheckForFunctionCall(llm.Delta{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", Name: "", ArgsFragment: "{}", Done: true}})

	calls := d.GetReadyToCallFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "write_file", calls[0].Name)
}

func TestDetectorGetDoesNotConsume(t *testing.T) {
	d := NewFunctionCallDetector()
	d.CheckForFunctionCall(llm.Delta{FunctionCall: &llm.FunctionCallDelta{CallID: "c1", Name: "search", Done: true}})

	assert.Len(t, d.GetReadyToCallFunctionCalls(), 1)
	assert.Len(t, d.GetReadyToCallFunctionCalls(), 1)

	d.Clear()
	assert.False(t, d.HasFunctionCalls())
	assert.Empty(t, d.GetReadyToCallFunctionCalls())
}

func TestDetectorIgnoresTextDeltas(t *testing.T) {
	d := NewFunctionCallDetector()
	d.CheckForFunctionCall(llm.Delta{Text: "thinking out loud"})
	assert.False(t, d.HasFunctionCalls())
}
