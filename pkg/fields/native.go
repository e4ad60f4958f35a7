package fields

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-yaml"
)

// FromNative converts a decoded YAML or JSON value into a Value. Mappings
// decoded as yaml.MapSlice keep their order; plain Go maps are sorted by key.
func FromNative(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case *Map:
		return MapValue(t)
	case Link:
		return LinkValue(t)
	case Duration:
		return DurationValue(t)
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Number(float64(t))
	case int8:
		return Number(float64(t))
	case int16:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint8:
		return Number(float64(t))
	case uint16:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case float32:
		return Number(float64(t))
	case float64:
		return Number(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return String(t.Format(time.DateOnly))
		}
		return String(t.Format(time.RFC3339))
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromNative(item)
		}
		return List(items...)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return List(items...)
	case []Value:
		return List(t...)
	case yaml.MapSlice:
		m := NewMap()
		for _, item := range t {
			m.Set(fmt.Sprint(item.Key), FromNative(item.Value))
		}
		return MapValue(m)
	case map[string]any:
		m := NewMap()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			m.Set(k, FromNative(t[k]))
		}
		return MapValue(m)
	case map[any]any:
		m := NewMap()
		keys := make([]string, 0, len(t))
		byKey := make(map[string]any, len(t))
		for k, item := range t {
			s := fmt.Sprint(k)
			keys = append(keys, s)
			byKey[s] = item
		}
		sort.Strings(keys)
		for _, k := range keys {
			m.Set(k, FromNative(byKey[k]))
		}
		return MapValue(m)
	case fmt.Stringer:
		return String(t.String())
	default:
		return String(fmt.Sprint(t))
	}
}

// Native converts v into plain Go values suitable for YAML or JSON encoding.
// Mappings become yaml.MapSlice so key order survives a round trip. Integral
// numbers become int64. Links render to their generic text form.
func (v Value) Native() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString, KindHTML, KindFunction, KindWidget:
		return v.str
	case KindNumber:
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1<<53 {
			return int64(v.num)
		}
		return v.num
	case KindBool:
		return v.b
	case KindLink:
		return v.link.Render()
	case KindDuration:
		return v.dur
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Native()
		}
		return out
	case KindMap:
		return v.m.Native()
	default:
		return nil
	}
}

// Native converts m into an ordered yaml.MapSlice.
func (m *Map) Native() yaml.MapSlice {
	out := make(yaml.MapSlice, 0, m.Len())
	m.Range(func(k string, v Value) bool {
		out = append(out, yaml.MapItem{Key: k, Value: v.Native()})
		return true
	})
	return out
}

// MarshalYAML implements yaml.InterfaceMarshaler.
func (v Value) MarshalYAML() (any, error) {
	return v.Native(), nil
}

// MarshalYAML implements yaml.InterfaceMarshaler.
func (m *Map) MarshalYAML() (any, error) {
	return m.Native(), nil
}

// MarshalJSON encodes v with mapping order preserved.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindMap:
		return v.m.MarshalJSON()
	case KindList:
		return json.Marshal(v.list)
	default:
		return json.Marshal(v.Native())
	}
}

// MarshalJSON encodes m as a JSON object in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	var err error
	m.Range(func(k string, v Value) bool {
		if len(buf) > 1 {
			buf = append(buf, ',')
		}
		var kb, vb []byte
		if kb, err = json.Marshal(k); err != nil {
			return false
		}
		if vb, err = v.MarshalJSON(); err != nil {
			return false
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return append(buf, '}'), nil
}
