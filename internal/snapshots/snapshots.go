// Package snapshots stores the per-document extraction snapshots that let
// the reconciler tell removed inline fields apart from header fields the
// user wrote by hand.
package snapshots

import (
	"context"
	"slices"
	"sync"

	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/reconcile"
)

// Store persists snapshots keyed by document identity.
type Store interface {
	// Get returns the snapshot of doc, or nil and no error when none exists.
	Get(ctx context.Context, doc string) (*reconcile.Snapshot, error)
	// Put replaces the snapshot of doc.
	Put(ctx context.Context, doc string, snap reconcile.Snapshot) error
	// Delete drops the snapshot of doc. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context, doc string) error
	// Rename moves the snapshot of from to to, replacing any snapshot at to.
	Rename(ctx context.Context, from, to string) error
	// Documents lists the documents that have a snapshot, sorted.
	Documents(ctx context.Context) ([]string, error)
	// Close releases the store.
	Close() error
}

// Memory is an in-process Store. The zero value is not usable; call NewMemory.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]reconcile.Snapshot
	closed bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]reconcile.Snapshot)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, doc string) (*reconcile.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.ErrClosed
	}
	snap, ok := m.items[doc]
	if !ok {
		return nil, nil
	}
	snap.Keys = slices.Clone(snap.Keys)
	return &snap, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, doc string, snap reconcile.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.ErrClosed
	}
	snap.Keys = slices.Clone(snap.Keys)
	m.items[doc] = snap
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, doc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.ErrClosed
	}
	delete(m.items, doc)
	return nil
}

// Rename implements Store.
func (m *Memory) Rename(_ context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.ErrClosed
	}
	snap, ok := m.items[from]
	if !ok {
		return nil
	}
	delete(m.items, from)
	m.items[to] = snap
	return nil
}

// Documents implements Store.
func (m *Memory) Documents(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.ErrClosed
	}
	docs := make([]string, 0, len(m.items))
	for doc := range m.items {
		docs = append(docs, doc)
	}
	slices.Sort(docs)
	return docs, nil
}

// Len returns the number of stored snapshots.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
