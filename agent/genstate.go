package agent

import (
	"fmt"
	"sync"
	"time"
)

// GenerationState is the lifecycle state of one background generation task.
type GenerationState int

const (
	GenerationIdle GenerationState = iota
	GenerationRunning
	GenerationCompletedWithSuccess
	GenerationCompletedWithFailure
)

func (s GenerationState) String() string {
	switch s {
	case GenerationIdle:
		return "idle"
	case GenerationRunning:
		return "generating"
	case GenerationCompletedWithSuccess:
		return "completed"
	case GenerationCompletedWithFailure:
		return "failed"
	default:
		return "unknown"
	}
}

// GenerationStateMachine tracks one asynchronous background generation task.
// All transitions are mutex-guarded; illegal transitions return false and
// have no side effects, since they only occur when two callers raced and one
// lost.
type GenerationStateMachine struct {
	mu        sync.Mutex
	state     GenerationState
	startedAt time.Time
	lastError string
}

// NewGenerationStateMachine returns a machine in the Idle state.
func NewGenerationStateMachine() *GenerationStateMachine {
	return &GenerationStateMachine{}
}

// TryStartGeneration transitions Idle to Generating, recording the start
// time. It returns false from any other state, which is the sole mechanism
// preventing two concurrent generations of the same category.
func (g *GenerationStateMachine) TryStartGeneration() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GenerationIdle {
		return false
	}
	g.state = GenerationRunning
	g.startedAt = time.Now()
	g.lastError = ""
	return true
}

// MarkCompleted transitions Generating to CompletedWithSuccess. Legal only
// from Generating.
func (g *GenerationStateMachine) MarkCompleted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GenerationRunning {
		return false
	}
	g.state = GenerationCompletedWithSuccess
	return true
}

// MarkFailed transitions Generating to CompletedWithFailure, recording the
// message. Legal only from Generating.
func (g *GenerationStateMachine) MarkFailed(message string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GenerationRunning {
		return false
	}
	g.state = GenerationCompletedWithFailure
	g.lastError = message
	return true
}

// Reset unconditionally returns the machine to Idle. This is both the normal
// post-completion step and the recovery path when a task crashed without
// reaching its completion call.
func (g *GenerationStateMachine) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = GenerationIdle
	g.startedAt = time.Time{}
	g.lastError = ""
}

// State returns the current state.
func (g *GenerationStateMachine) State() GenerationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// GetStatusDescription returns a human-readable summary of the state and
// elapsed time. Not used for control flow.
func (g *GenerationStateMachine) GetStatusDescription() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case GenerationRunning:
		return fmt.Sprintf("generating (%s elapsed)", time.Since(g.startedAt).Round(time.Second))
	case GenerationCompletedWithFailure:
		return fmt.Sprintf("failed: %s", g.lastError)
	default:
		return g.state.String()
	}
}
