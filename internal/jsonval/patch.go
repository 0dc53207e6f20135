package jsonval

import (
	"errors"
	"fmt"

	"github.com/stratadb-labs/strata-core-sub010/internal/value"
)

// ErrPathNotFound is returned when navigating a path that does not exist
// in the document.
var ErrPathNotFound = errors.New("jsonval: path not found")

// ErrInvalidIndex is returned when an array-index segment is applied to a
// non-array value, or the index is out of bounds for a Set or Delete
// (InvalidOperation). An out-of-bounds index on Get reports ErrPathNotFound.
var ErrInvalidIndex = errors.New("jsonval: invalid array index")

// ErrInvalidKey is returned when an object-key segment is applied to a
// non-object value.
var ErrInvalidKey = errors.New("jsonval: path segment requires an object")

// Get navigates root along p and returns the value found there.
func Get(root Value, p Path) (Value, error) {
	cur := root
	for i, seg := range p.Segments {
		switch seg.Kind {
		case SegmentKey:
			m, err := cur.AsMap()
			if err != nil {
				return Value{}, fmt.Errorf("%w: %s", ErrInvalidKey, partialPath(p, i+1))
			}
			v, ok := m.Get(seg.Key)
			if !ok {
				return Value{}, fmt.Errorf("%w: %s", ErrPathNotFound, partialPath(p, i+1))
			}
			cur = v
		case SegmentIndex:
			l, err := cur.AsList()
			if err != nil {
				return Value{}, fmt.Errorf("%w: %s", ErrInvalidIndex, partialPath(p, i+1))
			}
			v, ok := l.At(seg.Index)
			if !ok {
				return Value{}, fmt.Errorf("%w: %s", ErrPathNotFound, partialPath(p, i+1))
			}
			cur = v
		}
	}
	return cur, nil
}

func partialPath(p Path, n int) string {
	return Path{Segments: p.Segments[:n]}.String()
}

// Set returns a copy of root with the value at p replaced by v, creating
// intermediate objects/arrays as needed (objects only — arrays are never
// auto-extended past their current length; indexing past the end is an
// error). Setting at the root path replaces the whole document.
func Set(root Value, p Path, v Value) (Value, error) {
	if p.IsRoot() {
		return v, nil
	}
	return setAt(root, p.Segments, v)
}

func setAt(cur Value, segs []Segment, v Value) (Value, error) {
	seg := segs[0]
	rest := segs[1:]

	switch seg.Kind {
	case SegmentKey:
		var m *Map
		switch cur.Kind {
		case KindMap:
			m = cloneMap(cur)
		case KindNull:
			m = value.NewMap()
		default:
			return Value{}, fmt.Errorf("%w: cannot set key %q on a %s", ErrInvalidKey, seg.Key, cur.Kind)
		}
		existing, _ := m.Get(seg.Key)
		if len(rest) == 0 {
			m.Set(seg.Key, v)
		} else {
			updated, err := setAt(existing, rest, v)
			if err != nil {
				return Value{}, err
			}
			m.Set(seg.Key, updated)
		}
		return value.MapValue(m), nil

	case SegmentIndex:
		if cur.Kind != KindList {
			return Value{}, fmt.Errorf("%w: cannot index into a %s", ErrInvalidIndex, cur.Kind)
		}
		l := cloneList(cur)
		if seg.Index < 0 || seg.Index >= l.Len() {
			return Value{}, fmt.Errorf("%w: index %d out of range (len %d)", ErrInvalidIndex, seg.Index, l.Len())
		}
		if len(rest) == 0 {
			l.Set(seg.Index, v)
		} else {
			existing, _ := l.At(seg.Index)
			updated, err := setAt(existing, rest, v)
			if err != nil {
				return Value{}, err
			}
			l.Set(seg.Index, updated)
		}
		return value.ListValue(l), nil
	}
	return Value{}, fmt.Errorf("jsonval: unreachable segment kind")
}

// Delete returns a copy of root with the value at p removed: an object
// key is removed from its map, an array element is removed and
// subsequent elements shift down. Deleting the root path is rejected —
// callers that mean "delete the whole document" should use the KV-level
// delete on the document's key, not a JSON path delete.
func Delete(root Value, p Path) (Value, error) {
	if p.IsRoot() {
		return Value{}, fmt.Errorf("jsonval: cannot delete the document root via a path delete")
	}
	return deleteAt(root, p.Segments)
}

func deleteAt(cur Value, segs []Segment) (Value, error) {
	seg := segs[0]
	rest := segs[1:]

	switch seg.Kind {
	case SegmentKey:
		m, err := cur.AsMap()
		if err != nil {
			return Value{}, fmt.Errorf("%w: cannot delete key %q from a %s", ErrInvalidKey, seg.Key, cur.Kind)
		}
		m = cloneMap(cur)
		if len(rest) == 0 {
			if !m.Delete(seg.Key) {
				return Value{}, fmt.Errorf("%w: %s", ErrPathNotFound, seg.Key)
			}
		} else {
			existing, ok := m.Get(seg.Key)
			if !ok {
				return Value{}, fmt.Errorf("%w: %s", ErrPathNotFound, seg.Key)
			}
			updated, err := deleteAt(existing, rest)
			if err != nil {
				return Value{}, err
			}
			m.Set(seg.Key, updated)
		}
		return value.MapValue(m), nil

	case SegmentIndex:
		if cur.Kind != KindList {
			return Value{}, fmt.Errorf("%w: cannot index into a %s", ErrInvalidIndex, cur.Kind)
		}
		l := cloneList(cur)
		if seg.Index < 0 || seg.Index >= l.Len() {
			return Value{}, fmt.Errorf("%w: index %d out of range (len %d)", ErrInvalidIndex, seg.Index, l.Len())
		}
		if len(rest) == 0 {
			l.Delete(seg.Index)
		} else {
			existing, _ := l.At(seg.Index)
			updated, err := deleteAt(existing, rest)
			if err != nil {
				return Value{}, err
			}
			l.Set(seg.Index, updated)
		}
		return value.ListValue(l), nil
	}
	return Value{}, fmt.Errorf("jsonval: unreachable segment kind")
}

func cloneMap(v Value) *Map {
	if v.Kind != KindMap {
		return value.NewMap()
	}
	m, _ := v.AsMap()
	return m.Clone()
}

func cloneList(v Value) *List {
	l, _ := v.AsList()
	return l.Clone()
}
