// Package reconcile decides, per document, which inline-derived fields must
// be written into or removed from the structured header.
//
// A Reconciler is built once per settings generation and is safe for
// concurrent use; Decide is pure and never mutates its inputs.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/agentstation/propsync/pkg/fields"
	"github.com/agentstation/propsync/pkg/merge"
	"github.com/agentstation/propsync/pkg/normalize"
	"github.com/agentstation/propsync/pkg/rules"
)

// Reconciler computes reconciliation decisions.
type Reconciler interface {
	// Decide compares freshly coerced fields against the stored header and
	// the previous snapshot.
	Decide(in Input) *Decision
}

// Input is one cycle's view of a document.
type Input struct {
	// Current holds the coerced inline fields, in extraction order.
	Current *fields.Map
	// Previous is the snapshot of the last cycle, nil on the first run.
	Previous *Snapshot
	// Existing is the structured header, nil when the document has none.
	Existing *fields.Map
}

type reconciler struct {
	ignore    *rules.RuleSet
	keys      *normalize.Normalizer
	values    *normalize.Normalizer
	prefix    string
	separator string
}

// Option configures a Reconciler.
type Option func(*reconciler) error

// New creates a Reconciler. Without options keys and values compare under
// the default profile, nothing is ignored and keys are written unprefixed.
func New(opts ...Option) (Reconciler, error) {
	r := &reconciler{
		keys:   normalize.New(normalize.Default),
		values: normalize.New(normalize.Default),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Option Functions
// ================

// WithIgnore sets the rule set of keys that are never synchronized.
func WithIgnore(rs *rules.RuleSet) Option {
	return func(r *reconciler) error {
		r.ignore = rs
		return nil
	}
}

// WithKeyNormalizer sets the normalizer for key equivalence and duplicate folding.
func WithKeyNormalizer(n *normalize.Normalizer) Option {
	return func(r *reconciler) error {
		if n == nil {
			return fmt.Errorf("key normalizer cannot be nil")
		}
		r.keys = n
		return nil
	}
}

// WithValueNormalizer sets the normalizer for string value equality.
func WithValueNormalizer(n *normalize.Normalizer) Option {
	return func(r *reconciler) error {
		if n == nil {
			return fmt.Errorf("value normalizer cannot be nil")
		}
		r.values = n
		return nil
	}
}

// WithPrefix sets the prefix prepended to every key written to the header.
func WithPrefix(prefix string) Option {
	return func(r *reconciler) error {
		if prefix != "" && strings.TrimSpace(prefix) == "" {
			return fmt.Errorf("prefix cannot be blank")
		}
		r.prefix = prefix
		return nil
	}
}

// WithUnflatten enables nesting of keys joined by separator.
func WithUnflatten(separator string) Option {
	return func(r *reconciler) error {
		if strings.TrimSpace(separator) == "" {
			return fmt.Errorf("unflatten separator cannot be blank")
		}
		if strings.Contains(separator, ".") {
			return fmt.Errorf("unflatten separator cannot contain a dot")
		}
		r.separator = separator
		return nil
	}
}

// Decide implements Reconciler.
func (r *reconciler) Decide(in Input) *Decision {
	d := &Decision{}
	current, dropped := FoldDuplicates(in.Current, r.keys)
	d.Folded = dropped

	var keys []string
	present := make(map[string]struct{})
	current.Range(func(key string, v fields.Value) bool {
		if r.ignore.Matches(key) {
			d.Ignored = append(d.Ignored, key)
			return true
		}
		if v.IsNull() {
			return true
		}
		keys = append(keys, key)
		present[r.keys.Normalize(key)] = struct{}{}

		if change, changed := r.upsert(key, v, in.Existing); changed {
			d.Upserts = append(d.Upserts, change)
		} else {
			d.Unchanged = append(d.Unchanged, key)
		}
		return true
	})

	if !in.Previous.Empty() {
		for _, key := range in.Previous.Keys {
			if _, ok := present[r.keys.Normalize(key)]; ok {
				continue
			}
			if r.ignore.Matches(key) {
				continue
			}
			d.Vanished = append(d.Vanished, key)
			if change, ok := r.removal(key, in.Existing); ok {
				d.Removals = append(d.Removals, change)
			}
		}
	}

	if len(keys) > 0 {
		snap := NewSnapshot(keys)
		d.Snapshot = &snap
	}
	d.Summary = summarize(d)
	return d
}

// upsert compares one field with the header and reports the change it needs.
func (r *reconciler) upsert(key string, v fields.Value, existing *fields.Map) (FieldChange, bool) {
	path := r.path(key)
	target, value := merge.Nest(path, v)

	headerKey, old, found := r.lookup(target, existing)
	if !found {
		return FieldChange{Key: target, Field: key, Path: path, Type: ChangeTypeAdd, New: value}, true
	}

	if len(path) > 1 {
		if fields.Covers(old, value, r.values) {
			return FieldChange{}, false
		}
	} else if fields.Equal(old, value, r.values) {
		return FieldChange{}, false
	}
	return FieldChange{Key: headerKey, Field: key, Path: path, Type: ChangeTypeUpdate, Old: old, New: value}, true
}

// removal finds the header entry a vanished field left behind. A field whose
// header entry is already gone produces nothing, so a removal is never
// proposed twice.
func (r *reconciler) removal(key string, existing *fields.Map) (FieldChange, bool) {
	path := r.path(key)
	headerKey, old, found := r.lookup(path[0], existing)
	if !found {
		return FieldChange{}, false
	}

	if len(path) > 1 {
		leaf, ok := lookupPath(old, path[1:])
		if !ok {
			return FieldChange{}, false
		}
		old = leaf
	}
	return FieldChange{Key: headerKey, Field: key, Path: path, Type: ChangeTypeRemove, Old: old}, true
}

// path splits key for unflattening and prefixes its first segment.
func (r *reconciler) path(key string) []string {
	var path []string
	if r.separator != "" {
		path = merge.SplitKey(key, r.separator)
	} else {
		path = []string{key}
	}
	out := make([]string, len(path))
	copy(out, path)
	out[0] = r.prefix + out[0]
	return out
}

// lookup finds the first header key equivalent to key. Ignored header keys
// never match.
func (r *reconciler) lookup(key string, existing *fields.Map) (string, fields.Value, bool) {
	if v, ok := existing.Get(key); ok && !r.ignore.Matches(key) {
		return key, v, true
	}
	var (
		found   string
		value   fields.Value
		matched bool
	)
	existing.Range(func(hk string, v fields.Value) bool {
		if r.ignore.Matches(hk) || !rules.KeysMatch(hk, key, r.keys) {
			return true
		}
		found, value, matched = hk, v, true
		return false
	})
	return found, value, matched
}

func lookupPath(v fields.Value, path []string) (fields.Value, bool) {
	for _, segment := range path {
		if v.Kind() != fields.KindMap {
			return fields.Value{}, false
		}
		next, ok := v.Map().Get(segment)
		if !ok {
			return fields.Value{}, false
		}
		v = next
	}
	return v, true
}
