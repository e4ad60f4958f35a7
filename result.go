package propsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/propsync/pkg/reconcile"
)

// Exclusion reasons.
const (
	ExclusionPath   = "path"
	ExclusionHeader = "header"
)

// Result represents the outcome of one reconciliation cycle.
type Result struct {
	Document string `json:"document" yaml:"document"` // Document identity
	RunID    string `json:"run_id" yaml:"run_id"`     // Identifier tagged on every log line of the cycle

	// Decision is nil when the document was excluded before deciding
	Decision *reconcile.Decision `json:"decision,omitempty" yaml:"decision,omitempty"`

	Written bool `json:"written" yaml:"written"` // Whether the header was rewritten
	DryRun  bool `json:"dry_run" yaml:"dry_run"` // Whether writing was disabled

	// Exclusion state
	Excluded         bool   `json:"excluded" yaml:"excluded"`
	ExcludedBy       string `json:"excluded_by,omitempty" yaml:"excluded_by,omitempty"`             // ExclusionPath or ExclusionHeader
	ExclusionPattern string `json:"exclusion_pattern,omitempty" yaml:"exclusion_pattern,omitempty"` // Matching path pattern or header key

	// Snapshot is the key set recorded for the next cycle, nil when none
	Snapshot *reconcile.Snapshot `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`

	Duration time.Duration `json:"duration" yaml:"duration"`
}

// HasChanges returns true if the cycle decided to change the header.
func (r *Result) HasChanges() bool {
	return r != nil && r.Decision.NeedsWrite()
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	if r.Excluded {
		return fmt.Sprintf("%s: excluded by %s (%s)", r.Document, r.ExcludedBy, r.ExclusionPattern)
	}
	if !r.HasChanges() {
		return fmt.Sprintf("%s: No changes", r.Document)
	}

	s := r.Decision.Summary
	summary := fmt.Sprintf("%s: %d added, %d updated, %d removed", r.Document, s.Added, s.Updated, s.Removed)
	if r.DryRun {
		summary += " (Dry run)"
	}
	return summary
}

// Totals aggregates a batch of results.
type Totals struct {
	Documents int `json:"documents" yaml:"documents"`
	Changed   int `json:"changed" yaml:"changed"`
	Written   int `json:"written" yaml:"written"`
	Excluded  int `json:"excluded" yaml:"excluded"`
	Added     int `json:"added" yaml:"added"`
	Updated   int `json:"updated" yaml:"updated"`
	Removed   int `json:"removed" yaml:"removed"`
}

// Total sums results, skipping nil entries.
func Total(results []*Result) Totals {
	var t Totals
	for _, r := range results {
		if r == nil {
			continue
		}
		t.Documents++
		if r.Excluded {
			t.Excluded++
			continue
		}
		if r.Written {
			t.Written++
		}
		if !r.HasChanges() {
			continue
		}
		t.Changed++
		t.Added += r.Decision.Summary.Added
		t.Updated += r.Decision.Summary.Updated
		t.Removed += r.Decision.Summary.Removed
	}
	return t
}

// String returns a one-line summary of the totals.
func (t Totals) String() string {
	if t.Changed == 0 {
		return fmt.Sprintf("%d documents, no changes", t.Documents)
	}
	parts := []string{
		fmt.Sprintf("%d added", t.Added),
		fmt.Sprintf("%d updated", t.Updated),
		fmt.Sprintf("%d removed", t.Removed),
	}
	return fmt.Sprintf("%d of %d documents changed: %s", t.Changed, t.Documents, strings.Join(parts, ", "))
}
