// Package jsonval implements the JSON document value model: a recursively
// tagged value tree (reusing internal/value's Map/List so JSON objects
// keep insertion order), a path language over that tree, patch
// application, and size/depth/array limits.
package jsonval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SegmentKind discriminates a Path segment: a field name into an object,
// or a non-negative index into an array.
type SegmentKind uint8

const (
	SegmentKey SegmentKind = iota
	SegmentIndex
)

// Segment is one step of a Path.
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

// Path is an ordered sequence of segments; the empty Path denotes the
// document root.
type Path struct {
	Segments []Segment
}

// Root is the empty path.
func Root() Path { return Path{} }

// ErrEmptyKeySegment is returned when parsing a path with an empty object
// key segment.
var ErrEmptyKeySegment = errors.New("jsonval: empty key segment")

// ErrPathTooLong is returned when a parsed path exceeds MaxPathSegments.
var ErrPathTooLong = errors.New("jsonval: path exceeds maximum segment count")

// ParsePath parses a dotted/bracketed path string such as "$.a.b[2].c"
// or "a.b[2].c" (a leading "$" root marker is optional and stripped).
// Empty string or "$" alone parses to the root path.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return Root(), nil
	}

	var segs []Segment
	for _, rawField := range splitTopLevel(s) {
		key, indices, err := splitKeyAndIndices(rawField)
		if err != nil {
			return Path{}, err
		}
		if key != "" {
			segs = append(segs, Segment{Kind: SegmentKey, Key: key})
		}
		for _, idx := range indices {
			segs = append(segs, Segment{Kind: SegmentIndex, Index: idx})
		}
	}

	if len(segs) > MaxPathSegments {
		return Path{}, fmt.Errorf("%w: %d > %d", ErrPathTooLong, len(segs), MaxPathSegments)
	}
	return Path{Segments: segs}, nil
}

// splitTopLevel splits on '.' that is not inside a '[...]' group.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case '.':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// splitKeyAndIndices parses one field like "items[0][3]" into its
// object-key part ("items") and trailing array indices ([0, 3]).
func splitKeyAndIndices(field string) (string, []int, error) {
	bracket := strings.IndexByte(field, '[')
	if bracket == -1 {
		if field == "" {
			return "", nil, ErrEmptyKeySegment
		}
		return field, nil, nil
	}

	key := field[:bracket]
	rest := field[bracket:]

	var indices []int
	for len(rest) > 0 {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("jsonval: malformed path segment %q", field)
		}
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			return "", nil, fmt.Errorf("jsonval: unterminated index in %q", field)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil || n < 0 {
			return "", nil, fmt.Errorf("jsonval: invalid array index in %q", field)
		}
		indices = append(indices, n)
		rest = rest[end+1:]
	}
	if key == "" && bracket == 0 {
		// "[0]" with no preceding key is fine (root-level array index);
		// only a key segment ("foo.") being empty is rejected, which
		// splitTopLevel/ParsePath already guard via the field == "" check
		// in the no-bracket branch above.
	}
	return key, indices, nil
}

// String renders p back into dotted/bracketed form, rooted at "$".
func (p Path) String() string {
	var b strings.Builder
	b.WriteByte('$')
	for _, seg := range p.Segments {
		switch seg.Kind {
		case SegmentKey:
			b.WriteByte('.')
			b.WriteString(seg.Key)
		case SegmentIndex:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// IsRoot reports whether p is the empty path.
func (p Path) IsRoot() bool { return len(p.Segments) == 0 }

// isPrefixOf reports whether p is a segment-wise prefix of other
// (including the case p == other).
func (p Path) isPrefixOf(other Path) bool {
	if len(p.Segments) > len(other.Segments) {
		return false
	}
	for i, seg := range p.Segments {
		if seg != other.Segments[i] {
			return false
		}
	}
	return true
}

// Overlap reports whether two paths overlap: one is a prefix of the
// other (equal, ancestor, or descendant). Distinct sibling keys, distinct
// array indices, and disjoint subtrees do not overlap.
func Overlap(a, b Path) bool {
	return a.isPrefixOf(b) || b.isPrefixOf(a)
}
