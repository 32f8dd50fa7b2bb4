package agent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationLifecycle(t *testing.T) {
	g := NewGenerationStateMachine()
	assert.Equal(t, GenerationIdle, g.State())

	require.True(t, g.TryStartGeneration())
	assert.Equal(t, GenerationRunning, g.State())

	require.True(t, g.MarkCompleted())
	assert.Equal(t, GenerationCompletedWithSuccess, g.State())

	g.Reset()
	assert.Equal(t, GenerationIdle, g.State())
}

func TestGenerationIllegalTransitions(t *testing.T) {
	g := NewGenerationStateMachine()

	assert.False(t, g.MarkCompleted(), "cannot complete from idle")
	assert.False(t, g.MarkFailed("x"), "cannot fail from idle")

	require.True(t, g.TryStartGeneration())
	assert.False(t, g.TryStartGeneration(), "cannot start while running")

	require.True(t, g.MarkFailed("backend unavailable"))
	assert.False(t, g.MarkCompleted(), "cannot complete after failure")
	assert.Contains(t, g.GetStatusDescription(), "backend unavailable")
}

func TestTryStartGenerationIsExclusive(t *testing.T) {
	g := NewGenerationStateMachine()

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- g.TryStartGeneration()
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one caller may start a generation")
}
