// Package merge combines nested header values without losing sibling keys.
package merge

import (
	"strings"

	"github.com/agentstation/propsync/pkg/fields"
)

// Maps deep-merges source into target and returns a new mapping. Keys only
// in target are kept, keys only in source are appended, and keys present on
// both sides merge recursively when both values are mappings. Anything else
// is replaced by the source value; lists are never concatenated. Neither
// input is modified. A nil side yields a copy of the other.
func Maps(target, source *fields.Map) *fields.Map {
	switch {
	case target == nil && source == nil:
		return nil
	case target == nil:
		return source.Clone()
	case source == nil:
		return target.Clone()
	}

	out := target.Clone()
	source.Range(func(k string, sv fields.Value) bool {
		tv, ok := out.Get(k)
		if ok && tv.Kind() == fields.KindMap && sv.Kind() == fields.KindMap {
			out.Set(k, fields.MapValue(Maps(tv.Map(), sv.Map())))
			return true
		}
		out.Set(k, sv.Clone())
		return true
	})
	return out
}

// Values is Maps lifted to values: null on either side yields the other,
// two mappings merge, anything else returns source.
func Values(target, source fields.Value) fields.Value {
	switch {
	case target.IsNull():
		return source.Clone()
	case source.IsNull():
		return target.Clone()
	case target.Kind() == fields.KindMap && source.Kind() == fields.KindMap:
		return fields.MapValue(Maps(target.Map(), source.Map()))
	default:
		return source.Clone()
	}
}

// SplitKey splits key on sep, dropping empty segments. A key without the
// separator yields a single segment.
func SplitKey(key, sep string) []string {
	if sep == "" || !strings.Contains(key, sep) {
		return []string{key}
	}
	parts := strings.Split(key, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{key}
	}
	return out
}

// Nest wraps v in one mapping per leading path segment:
// Nest([a b c], v) is {a: {b: {c: v}}}. The first segment is returned as the
// top-level key.
func Nest(path []string, v fields.Value) (string, fields.Value) {
	for i := len(path) - 1; i > 0; i-- {
		m := fields.NewMap()
		m.Set(path[i], v)
		v = fields.MapValue(m)
	}
	return path[0], v
}

// Unflatten turns separator-joined keys into nested mappings, merging
// entries that share a prefix. An intermediate segment that already holds a
// non-mapping value is replaced by a mapping.
func Unflatten(m *fields.Map, sep string) *fields.Map {
	out := fields.NewMap()
	m.Range(func(k string, v fields.Value) bool {
		key, nested := Nest(SplitKey(k, sep), v)
		existing, ok := out.Get(key)
		if ok && existing.Kind() == fields.KindMap && nested.Kind() == fields.KindMap {
			out.Set(key, fields.MapValue(Maps(existing.Map(), nested.Map())))
			return true
		}
		out.Set(key, nested)
		return true
	})
	return out
}
