// Package pending implements the FIFO approval queue the Controller drains
// before accepting ordinary chat input, grounded on the original
// supervisor's core/pending.py PendingActionManager.
package pending

import (
	"sync"

	"github.com/google/uuid"

	"github.com/agentctl/controller/internal/events"
)

// Action is one queued approval request awaiting a human response.
type Action struct {
	ID   string
	Type string
	Msg  map[string]any
}

// Manager is a per-tab FIFO queue of pending Actions. It is not safe to
// share a single Manager across tabs; the Controller keeps one per
// WorkflowState.
type Manager struct {
	mu      sync.Mutex
	items   []*Action
	emitter *events.Emitter
}

// NewManager returns an empty Manager that emits "pending_added" on emitter
// whenever Add is called, mirroring pending.py's constructor contract.
func NewManager(emitter *events.Emitter) *Manager {
	return &Manager{emitter: emitter}
}

// Add appends a new Action to the tail of the queue and returns its
// generated ID. If msg["response"] is unset it is normalized to nil, same
// as the original's `msg.setdefault("response", None)`.
func (m *Manager) Add(actionType string, msg map[string]any) string {
	if msg == nil {
		msg = make(map[string]any)
	}
	if _, ok := msg["response"]; !ok {
		msg["response"] = nil
	}

	action := &Action{
		ID:   uuid.NewString(),
		Type: actionType,
		Msg:  msg,
	}

	m.mu.Lock()
	m.items = append(m.items, action)
	m.mu.Unlock()

	if m.emitter != nil {
		m.emitter.Emit("pending_added", action)
	}
	return action.ID
}

// Pop removes and returns the Action at the head of the queue. The second
// result is false when the queue is empty.
func (m *Manager) Pop() (*Action, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return nil, false
	}
	head := m.items[0]
	m.items = m.items[1:]
	return head, true
}

// HasPending reports whether any Action is queued.
func (m *Manager) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items) > 0
}

// Len reports the current queue depth, for metrics and introspection.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
