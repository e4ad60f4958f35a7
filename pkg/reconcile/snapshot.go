package reconcile

import (
	"slices"
	"time"
)

// Snapshot is the set of field keys a document produced in its last
// successful cycle. Keys are stored without the header prefix.
type Snapshot struct {
	Keys      []string  `json:"keys" yaml:"keys"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewSnapshot returns a snapshot of keys taken now.
func NewSnapshot(keys []string) Snapshot {
	return Snapshot{
		Keys:      slices.Clone(keys),
		UpdatedAt: time.Now().UTC(),
	}
}

// Empty reports whether s is nil or holds no key.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Keys) == 0
}

// Has reports whether key is part of the snapshot.
func (s *Snapshot) Has(key string) bool {
	return s != nil && slices.Contains(s.Keys, key)
}
