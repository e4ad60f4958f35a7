package reconcile

import (
	"fmt"
	"io"
	"strings"

	"github.com/agentstation/propsync/pkg/fields"
	"github.com/agentstation/propsync/pkg/merge"
)

// ChangeType represents the type of change.
type ChangeType string

const (
	// ChangeTypeAdd indicates a field new to the header.
	ChangeTypeAdd ChangeType = "add"
	// ChangeTypeUpdate indicates a header field whose value differs.
	ChangeTypeUpdate ChangeType = "update"
	// ChangeTypeRemove indicates a header field whose inline source vanished.
	ChangeTypeRemove ChangeType = "remove"
)

// FieldChange represents a change to one header entry.
type FieldChange struct {
	Key   string       `json:"key" yaml:"key"`                       // Header key written or removed, prefix included
	Field string       `json:"field" yaml:"field"`                   // Inline key that caused the change
	Path  []string     `json:"path,omitempty" yaml:"path,omitempty"` // Nesting path when unflattened; Path[0] == Key for new keys
	Type  ChangeType   `json:"type" yaml:"type"`                     // Type of change
	Old   fields.Value `json:"old" yaml:"old"`                       // Value in the header before the change
	New   fields.Value `json:"new" yaml:"new"`                       // Value written (nested under Path[1:] for unflattened keys)
}

// Nested reports whether the change targets a value below the top level.
func (c FieldChange) Nested() bool {
	return len(c.Path) > 1
}

// Summary provides summary statistics for a decision.
type Summary struct {
	Added     int `json:"added" yaml:"added"`
	Updated   int `json:"updated" yaml:"updated"`
	Removed   int `json:"removed" yaml:"removed"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
	Ignored   int `json:"ignored" yaml:"ignored"`
	Folded    int `json:"folded" yaml:"folded"`
	Total     int `json:"total" yaml:"total"`
}

// Decision is the outcome of one reconciliation cycle.
type Decision struct {
	Upserts   []FieldChange `json:"upserts" yaml:"upserts"`     // Fields to add or update, in extraction order
	Removals  []FieldChange `json:"removals" yaml:"removals"`   // Header entries to delete
	Unchanged []string      `json:"unchanged" yaml:"unchanged"` // Inline keys already in sync
	Ignored   []string      `json:"ignored" yaml:"ignored"`     // Inline keys skipped by the ignore rules
	Folded    []string      `json:"folded" yaml:"folded"`       // Inline keys dropped as duplicates

	// Vanished lists every snapshot key without an inline source this cycle.
	// Removals holds the subset still present in the header.
	Vanished []string `json:"vanished,omitempty" yaml:"vanished,omitempty"`

	// Snapshot replaces the stored snapshot when non-nil. A cycle without any
	// field leaves the previous snapshot in place.
	Snapshot *Snapshot `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`

	Summary Summary `json:"summary" yaml:"summary"`
}

func summarize(d *Decision) Summary {
	s := Summary{
		Removed:   len(d.Removals),
		Unchanged: len(d.Unchanged),
		Ignored:   len(d.Ignored),
		Folded:    len(d.Folded),
	}
	for _, c := range d.Upserts {
		if c.Type == ChangeTypeAdd {
			s.Added++
		} else {
			s.Updated++
		}
	}
	s.Total = s.Added + s.Updated + s.Removed
	return s
}

// NeedsWrite reports whether the header must be rewritten.
func (d *Decision) NeedsWrite() bool {
	return d != nil && (len(d.Upserts) > 0 || len(d.Removals) > 0)
}

// HasChanges is an alias of NeedsWrite.
func (d *Decision) HasChanges() bool {
	return d.NeedsWrite()
}

// Changes returns upserts followed by removals.
func (d *Decision) Changes() []FieldChange {
	out := make([]FieldChange, 0, len(d.Upserts)+len(d.Removals))
	out = append(out, d.Upserts...)
	return append(out, d.Removals...)
}

// Apply performs the decision on header in place. Nested upserts are deep
// merged into the value already stored so sibling keys survive.
func (d *Decision) Apply(header *fields.Map) {
	for _, c := range d.Upserts {
		if c.Nested() {
			old, _ := header.Get(c.Key)
			header.Set(c.Key, merge.Values(old, c.New))
			continue
		}
		header.Set(c.Key, c.New.Clone())
	}

	for _, c := range d.Removals {
		if !c.Nested() {
			header.Delete(c.Key)
			continue
		}
		if v, ok := header.Get(c.Key); ok && v.Kind() == fields.KindMap {
			pruned := v.Map().Clone()
			if removePath(pruned, c.Path[1:]) && pruned.Len() == 0 {
				header.Delete(c.Key)
			} else {
				header.Set(c.Key, fields.MapValue(pruned))
			}
		}
	}
}

// removePath deletes the leaf at path and prunes mappings it leaves empty.
func removePath(m *fields.Map, path []string) bool {
	if len(path) == 1 {
		return m.Delete(path[0])
	}
	child, ok := m.Get(path[0])
	if !ok || child.Kind() != fields.KindMap {
		return false
	}
	removed := removePath(child.Map(), path[1:])
	if removed && child.Map().Len() == 0 {
		m.Delete(path[0])
	}
	return removed
}

// String returns a human-readable summary of the decision.
func (d *Decision) String() string {
	if !d.NeedsWrite() {
		return "No changes detected"
	}

	var parts []string
	if d.Summary.Added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", d.Summary.Added))
	}
	if d.Summary.Updated > 0 {
		parts = append(parts, fmt.Sprintf("%d updated", d.Summary.Updated))
	}
	if d.Summary.Removed > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", d.Summary.Removed))
	}
	return fmt.Sprintf("Fields: %s (Total: %d changes)", strings.Join(parts, ", "), d.Summary.Total)
}

// Print writes a detailed, human-readable view of the decision to w.
func (d *Decision) Print(w io.Writer) {
	_, _ = fmt.Fprintln(w, d.String())
	if !d.NeedsWrite() {
		return
	}
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, c := range d.Upserts {
		switch c.Type {
		case ChangeTypeAdd:
			_, _ = fmt.Fprintf(w, "  + %s: %s\n", c.Key, c.New)
		default:
			_, _ = fmt.Fprintf(w, "  ~ %s: %s → %s\n", c.Key, c.Old, c.New)
		}
	}
	for _, c := range d.Removals {
		_, _ = fmt.Fprintf(w, "  - %s\n", strings.Join(c.Path, "."))
	}
}
