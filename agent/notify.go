package agent

import (
	"sync"
	"time"
)

// NotificationFormat selects how a notification is rendered.
type NotificationFormat int

const (
	FormatPlain NotificationFormat = iota
	FormatUpdatedTo
	FormatStatus
	FormatSuccess
	FormatError
)

// Notification is one queued user-facing notice.
type Notification struct {
	Category  string
	Content   string
	Format    NotificationFormat
	CreatedAt time.Time
}

// NotificationManager holds a FIFO queue of pending notices plus one
// generation state machine per category. The main loop drains the queue
// immediately before rendering each assistant turn, so notices appear exactly
// once. A one-slot memory of the previous title supports a single-level
// revert.
type NotificationManager struct {
	mu       sync.Mutex
	pending  []Notification
	machines map[string]*GenerationStateMachine

	oldTitle    string
	oldTitleSet bool
}

// NewNotificationManager returns an empty manager.
func NewNotificationManager() *NotificationManager {
	return &NotificationManager{
		machines: make(map[string]*GenerationStateMachine),
	}
}

// Machine returns the state machine for a category, creating it on first
// use.
func (n *NotificationManager) Machine(category string) *GenerationStateMachine {
	n.mu.Lock()
	defer n.mu.Unlock()
	m, ok := n.machines[category]
	if !ok {
		m = NewGenerationStateMachine()
		n.machines[category] = m
	}
	return m
}

// SetPending enqueues a notice.
func (n *NotificationManager) SetPending(category, content string, format NotificationFormat) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, Notification{
		Category:  category,
		Content:   content,
		Format:    format,
		CreatedAt: time.Now(),
	})
}

// CompleteGeneration marks the category's generation successful and enqueues
// the notice. The Completed state is immediately reset to Idle, so it is
// never externally observable; it exists to make the transition atomic and to
// assert that a generation was actually running. Returns false when no
// generation was running, in which case nothing is enqueued.
func (n *NotificationManager) CompleteGeneration(category, content string, format NotificationFormat) bool {
	m := n.Machine(category)
	if !m.MarkCompleted() {
		return false
	}
	n.SetPending(category, content, format)
	m.Reset()
	return true
}

// FailGeneration is the failure counterpart of CompleteGeneration, enqueuing
// an error-formatted notice.
func (n *NotificationManager) FailGeneration(category, errorMessage string) bool {
	m := n.Machine(category)
	if !m.MarkFailed(errorMessage) {
		return false
	}
	n.SetPending(category, errorMessage, FormatError)
	m.Reset()
	return true
}

// GetAndClearPending drains the whole queue in FIFO order.
func (n *NotificationManager) GetAndClearPending() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.pending
	n.pending = nil
	return out
}

// ClearPendingOfType removes queued notices of one category without touching
// the others, for when the user explicitly views or edits that category.
func (n *NotificationManager) ClearPendingOfType(category string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	kept := n.pending[:0]
	for _, notice := range n.pending {
		if notice.Category != category {
			kept = append(kept, notice)
		}
	}
	n.pending = kept
}

// RememberOldTitle stores the previous title for a single-level revert.
func (n *NotificationManager) RememberOldTitle(title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.oldTitle = title
	n.oldTitleSet = true
}

// OldTitle returns the remembered title, if any.
func (n *NotificationManager) OldTitle() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.oldTitle, n.oldTitleSet
}

// ClearOldTitle empties the one-slot revert memory.
func (n *NotificationManager) ClearOldTitle() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.oldTitle = ""
	n.oldTitleSet = false
}
