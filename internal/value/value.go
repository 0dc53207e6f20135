// Package value implements the engine's tagged Value sum type: null,
// bool, int64, float64, string, bytes, ordered-map, and list. The store
// treats Value opaquely; façades (and internal/jsonval, for the JSON
// primitive's document tree) assert the variant they expect and surface
// a typed decode error otherwise.
package value

import "fmt"

// Kind discriminates the Value variants.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Map is an order-preserving associative container: insertion order is
// part of its observable state and survives Keys()/iteration.
type Map struct {
	keys   []string
	values map[string]Value
}

// NewMap returns an empty, order-preserving map.
func NewMap() *Map {
	return &Map{values: make(map[string]Value)}
}

// Set inserts or updates key. Updating an existing key does not change
// its position in iteration order; inserting a new key appends it.
func (m *Map) Set(k string, v Value) {
	if _, exists := m.values[k]; !exists {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

// Get returns the value at k and whether it was present.
func (m *Map) Get(k string) (Value, bool) {
	v, ok := m.values[k]
	return v, ok
}

// Delete removes key k, preserving the relative order of the remainder.
func (m *Map) Delete(k string) bool {
	if _, ok := m.values[k]; !ok {
		return false
	}
	delete(m.values, k)
	for i, existing := range m.keys {
		if existing == k {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys of m in insertion order. The returned slice must
// not be mutated by the caller.
func (m *Map) Keys() []string { return m.keys }

// Len reports the number of entries in m.
func (m *Map) Len() int { return len(m.keys) }

// Clone returns a deep copy of m.
func (m *Map) Clone() *Map {
	out := &Map{
		keys:   append([]string(nil), m.keys...),
		values: make(map[string]Value, len(m.values)),
	}
	for k, v := range m.values {
		out.values[k] = v.Clone()
	}
	return out
}

// List is an ordered sequence of values.
type List struct {
	items []Value
}

// NewList returns a list wrapping items (no copy).
func NewList(items ...Value) *List {
	return &List{items: items}
}

func (l *List) Len() int { return len(l.items) }

func (l *List) At(i int) (Value, bool) {
	if i < 0 || i >= len(l.items) {
		return Value{}, false
	}
	return l.items[i], true
}

func (l *List) Set(i int, v Value) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}
	l.items[i] = v
	return true
}

func (l *List) Append(v Value) { l.items = append(l.items, v) }

// Delete removes the element at index i, shifting subsequent elements down.
func (l *List) Delete(i int) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return true
}

// Items returns the underlying slice. The caller must not retain it past
// further mutation of l.
func (l *List) Items() []Value { return l.items }

func (l *List) Clone() *List {
	out := make([]Value, len(l.items))
	for i, v := range l.items {
		out[i] = v.Clone()
	}
	return &List{items: out}
}

// Value is the tagged sum type itself. Only one of the typed fields is
// meaningful, selected by Kind; this mirrors the teacher's preference for
// explicit discriminated structs (e.g. Command{Op, Data} in
// pkg/manager/fsm.go) over an interface{}-based sum, so callers get
// compile-time field access instead of runtime type assertions for the
// scalar cases.
type Value struct {
	Kind Kind

	boolV   bool
	intV    int64
	floatV  float64
	stringV string
	bytesV  []byte
	mapV    *Map
	listV   *List
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

func Bool(b bool) Value    { return Value{Kind: KindBool, boolV: b} }
func Int64(i int64) Value  { return Value{Kind: KindInt64, intV: i} }
func Float64(f float64) Value { return Value{Kind: KindFloat64, floatV: f} }
func String(s string) Value { return Value{Kind: KindString, stringV: s} }
func Bytes(b []byte) Value  { return Value{Kind: KindBytes, bytesV: b} }
func MapValue(m *Map) Value { return Value{Kind: KindMap, mapV: m} }
func ListValue(l *List) Value { return Value{Kind: KindList, listV: l} }

// ErrWrongKind is returned by the As* accessors when Kind does not match.
type ErrWrongKind struct {
	Want Kind
	Got  Kind
}

func (e *ErrWrongKind) Error() string {
	return fmt.Sprintf("value: expected %s, got %s", e.Want, e.Got)
}

func (v Value) AsBool() (bool, error) {
	if v.Kind != KindBool {
		return false, &ErrWrongKind{Want: KindBool, Got: v.Kind}
	}
	return v.boolV, nil
}

func (v Value) AsInt64() (int64, error) {
	if v.Kind != KindInt64 {
		return 0, &ErrWrongKind{Want: KindInt64, Got: v.Kind}
	}
	return v.intV, nil
}

func (v Value) AsFloat64() (float64, error) {
	if v.Kind != KindFloat64 {
		return 0, &ErrWrongKind{Want: KindFloat64, Got: v.Kind}
	}
	return v.floatV, nil
}

func (v Value) AsString() (string, error) {
	if v.Kind != KindString {
		return "", &ErrWrongKind{Want: KindString, Got: v.Kind}
	}
	return v.stringV, nil
}

func (v Value) AsBytes() ([]byte, error) {
	if v.Kind != KindBytes {
		return nil, &ErrWrongKind{Want: KindBytes, Got: v.Kind}
	}
	return v.bytesV, nil
}

func (v Value) AsMap() (*Map, error) {
	if v.Kind != KindMap {
		return nil, &ErrWrongKind{Want: KindMap, Got: v.Kind}
	}
	return v.mapV, nil
}

func (v Value) AsList() (*List, error) {
	if v.Kind != KindList {
		return nil, &ErrWrongKind{Want: KindList, Got: v.Kind}
	}
	return v.listV, nil
}

// Clone deep-copies v. Scalars are copied by value; maps/lists recurse.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindMap:
		return MapValue(v.mapV.Clone())
	case KindList:
		return ListValue(v.listV.Clone())
	case KindBytes:
		b := append([]byte(nil), v.bytesV...)
		return Bytes(b)
	default:
		return v
	}
}

// Equal performs a deep structural comparison. Only tests call it; the
// CAS path compares versions, not values.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolV == b.boolV
	case KindInt64:
		return a.intV == b.intV
	case KindFloat64:
		return a.floatV == b.floatV
	case KindString:
		return a.stringV == b.stringV
	case KindBytes:
		if len(a.bytesV) != len(b.bytesV) {
			return false
		}
		for i := range a.bytesV {
			if a.bytesV[i] != b.bytesV[i] {
				return false
			}
		}
		return true
	case KindList:
		if a.listV.Len() != b.listV.Len() {
			return false
		}
		for i := 0; i < a.listV.Len(); i++ {
			av, _ := a.listV.At(i)
			bv, _ := b.listV.At(i)
			if !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindMap:
		if a.mapV.Len() != b.mapV.Len() {
			return false
		}
		for _, k := range a.mapV.Keys() {
			av, _ := a.mapV.Get(k)
			bv, ok := b.mapV.Get(k)
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
