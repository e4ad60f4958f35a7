package fields

import "github.com/agentstation/propsync/pkg/normalize"

// Equal reports whether a and b denote the same header value. Strings compare
// through n (exactly when n is nil), numeric-like values compare as numbers,
// and lists and mappings compare element by element.
func Equal(a, b Value, n *normalize.Normalizer) bool {
	if a.kind == KindString && b.kind == KindString {
		if n == nil {
			return a.str == b.str
		}
		return n.Equal(a.str, b.str)
	}
	if af, ok := AsNumber(a); ok {
		if bf, ok := AsNumber(b); ok {
			return af == bf
		}
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindNumber:
		return a.num == b.num
	case KindBool:
		return a.b == b.b
	case KindLink:
		return a.link == b.link
	case KindDuration:
		return a.dur == b.dur
	case KindHTML, KindFunction, KindWidget:
		return a.str == b.str
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i], n) {
				return false
			}
		}
		return true
	case KindMap:
		if a.m.Len() != b.m.Len() {
			return false
		}
		equal := true
		a.m.Range(func(k string, av Value) bool {
			bv, ok := b.m.Get(k)
			equal = ok && Equal(av, bv, n)
			return equal
		})
		return equal
	}
	return false
}

// Covers reports whether existing already contains everything incoming would
// contribute when merged into it: for mappings every incoming entry must be
// covered by the entry under the same key, for anything else Equal decides.
func Covers(existing, incoming Value, n *normalize.Normalizer) bool {
	if incoming.kind != KindMap || existing.kind != KindMap {
		return Equal(existing, incoming, n)
	}
	covered := true
	incoming.m.Range(func(k string, iv Value) bool {
		ev, ok := existing.m.Get(k)
		covered = ok && Covers(ev, iv, n)
		return covered
	})
	return covered
}
