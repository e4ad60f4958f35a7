package propsync

import (
	"sync"

	"github.com/agentstation/propsync/pkg/reconcile"
)

// Hook function types for field events
type (
	// FieldAddedHook is called when a field is written into a header for the first time
	FieldAddedHook func(doc string, change reconcile.FieldChange)

	// FieldUpdatedHook is called when a header field is overwritten with a new value
	FieldUpdatedHook func(doc string, change reconcile.FieldChange)

	// FieldRemovedHook is called when a field is removed from a header
	FieldRemovedHook func(doc string, change reconcile.FieldChange)
)

// Hooks registers callbacks for applied changes. Dry runs trigger nothing.
type Hooks interface {
	OnFieldAdded(fn FieldAddedHook)
	OnFieldUpdated(fn FieldUpdatedHook)
	OnFieldRemoved(fn FieldRemovedHook)
}

// hooks manages event callbacks for header changes
type hooks struct {
	mu             sync.RWMutex
	onFieldAdded   []FieldAddedHook
	onFieldUpdated []FieldUpdatedHook
	onFieldRemoved []FieldRemovedHook
}

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

// OnFieldAdded registers a callback for when fields are added
func (h *hooks) OnFieldAdded(fn FieldAddedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onFieldAdded = append(h.onFieldAdded, fn)
}

// OnFieldUpdated registers a callback for when fields are updated
func (h *hooks) OnFieldUpdated(fn FieldUpdatedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onFieldUpdated = append(h.onFieldUpdated, fn)
}

// OnFieldRemoved registers a callback for when fields are removed
func (h *hooks) OnFieldRemoved(fn FieldRemovedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onFieldRemoved = append(h.onFieldRemoved, fn)
}

// triggerDecision calls the hooks for every change of an applied decision
func (h *hooks) triggerDecision(doc string, d *reconcile.Decision) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, change := range d.Changes() {
		switch change.Type {
		case reconcile.ChangeTypeAdd:
			for _, hook := range h.onFieldAdded {
				hook(doc, change)
			}
		case reconcile.ChangeTypeUpdate:
			for _, hook := range h.onFieldUpdated {
				hook(doc, change)
			}
		case reconcile.ChangeTypeRemove:
			for _, hook := range h.onFieldRemoved {
				hook(doc, change)
			}
		}
	}
}
