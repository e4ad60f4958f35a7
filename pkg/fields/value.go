// Package fields defines the value model shared by extraction, coercion and
// reconciliation: a closed set of value kinds, an insertion-ordered mapping,
// and the equality rules used to decide whether a header value is stale.
package fields

import (
	"strconv"
	"strings"
)

// Kind enumerates the value variants.
type Kind uint8

// Value kinds. HTML, Function and Widget only appear at the extraction
// boundary; the coercer turns them into storable values or drops them.
const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindLink
	KindDuration
	KindList
	KindMap
	KindHTML
	KindFunction
	KindWidget
)

var kindNames = [...]string{
	KindNull:     "null",
	KindString:   "string",
	KindNumber:   "number",
	KindBool:     "bool",
	KindLink:     "link",
	KindDuration: "duration",
	KindList:     "list",
	KindMap:      "map",
	KindHTML:     "html",
	KindFunction: "function",
	KindWidget:   "widget",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Link is a reference to another document.
type Link struct {
	Path    string `json:"path" yaml:"path"`
	Subpath string `json:"subpath,omitempty" yaml:"subpath,omitempty"`
	Display string `json:"display,omitempty" yaml:"display,omitempty"`
}

// Render returns the generic [[path#subpath|display]] form, leaving out
// empty segments.
func (l Link) Render() string {
	var b strings.Builder
	b.WriteString("[[")
	b.WriteString(l.Path)
	if l.Subpath != "" {
		b.WriteByte('#')
		b.WriteString(l.Subpath)
	}
	if strings.TrimSpace(l.Display) != "" {
		b.WriteByte('|')
		b.WriteString(l.Display)
	}
	b.WriteString("]]")
	return b.String()
}

// Duration is a calendar time span split into components.
type Duration struct {
	Years        int64 `json:"years,omitempty" yaml:"years,omitempty"`
	Months       int64 `json:"months,omitempty" yaml:"months,omitempty"`
	Weeks        int64 `json:"weeks,omitempty" yaml:"weeks,omitempty"`
	Days         int64 `json:"days,omitempty" yaml:"days,omitempty"`
	Hours        int64 `json:"hours,omitempty" yaml:"hours,omitempty"`
	Minutes      int64 `json:"minutes,omitempty" yaml:"minutes,omitempty"`
	Seconds      int64 `json:"seconds,omitempty" yaml:"seconds,omitempty"`
	Milliseconds int64 `json:"milliseconds,omitempty" yaml:"milliseconds,omitempty"`
}

// IsZero reports whether every component is zero.
func (d Duration) IsZero() bool {
	return d == Duration{}
}

// Value is a tagged union over the kinds above. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	link Link
	dur  Duration
	list []Value
	m    *Map
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// LinkValue wraps a link.
func LinkValue(l Link) Value { return Value{kind: KindLink, link: l} }

// DurationValue wraps a duration.
func DurationValue(d Duration) Value { return Value{kind: KindDuration, dur: d} }

// List returns a list value holding items.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// MapValue wraps an ordered mapping. A nil map becomes an empty one.
func MapValue(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

// HTML returns a markup fragment value.
func HTML(markup string) Value { return Value{kind: KindHTML, str: markup} }

// Function returns an executable fragment value; desc is kept for diagnostics.
func Function(desc string) Value { return Value{kind: KindFunction, str: desc} }

// Widget returns a rendered widget value; desc is kept for diagnostics.
func Widget(desc string) Value { return Value{kind: KindWidget, str: desc} }

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsStorable reports whether v may be written to a header as is.
func (v Value) IsStorable() bool {
	switch v.kind {
	case KindHTML, KindFunction, KindWidget, KindLink, KindDuration:
		return false
	case KindList:
		for _, item := range v.list {
			if !item.IsStorable() {
				return false
			}
		}
	}
	return true
}

// Str returns the text of a string, HTML, function or widget value.
func (v Value) Str() string { return v.str }

// Num returns the number of a numeric value.
func (v Value) Num() float64 { return v.num }

// Truth returns the boolean of a bool value.
func (v Value) Truth() bool { return v.b }

// Link returns the link of a link value.
func (v Value) Link() Link { return v.link }

// Duration returns the duration of a duration value.
func (v Value) Duration() Duration { return v.dur }

// Items returns the elements of a list value. The slice must not be modified.
func (v Value) Items() []Value { return v.list }

// Map returns the mapping of a map value, or nil.
func (v Value) Map() *Map { return v.m }

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Clone()
		}
		return Value{kind: KindList, list: items}
	case KindMap:
		return Value{kind: KindMap, m: v.m.Clone()}
	default:
		return v
	}
}

// String renders v for humans: logs, tables and diffs.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString, KindHTML:
		return v.str
	case KindNumber:
		return FormatNumber(v.num)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindLink:
		return v.link.Render()
	case KindDuration:
		return "duration"
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		parts := make([]string, 0, v.m.Len())
		v.m.Range(func(k string, item Value) bool {
			parts = append(parts, k+": "+item.String())
			return true
		})
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "<" + v.kind.String() + ">"
	}
}

// Raw is one inline field as delivered by an extractor: the key, its
// evaluated value, and the source text it was read from.
type Raw struct {
	Key    string
	Value  Value
	Source string
}
