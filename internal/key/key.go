// Package key implements the canonical identity, ordering, and prefix
// scoping rules of the storage engine.
//
// A Key is the tuple (Namespace, TypeTag, user key bytes). Keys are
// encoded so that, among keys sharing a namespace, byte-lexical order on
// the encoded form matches (TypeTag, user key) order, and so that
// PrefixFor(namespace, tag) is a strict byte prefix of every encoded key
// sharing that namespace and tag. Namespace fields are length-prefixed,
// so across namespaces a shorter field sorts before a longer one
// regardless of its bytes; that is not lexical string order. That
// property is what lets internal/store do prefix scans with a plain
// sorted-map range instead of a secondary index.
package key

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// TypeTag is the single-byte discriminator identifying which primitive
// owns a key.
type TypeTag byte

// Reserved tag ranges. 0x01..0x0F are current primitives,
// 0x10..0x1F are JSON/extensions, 0x50..0x5F are vector.
const (
	TagKV               TypeTag = 0x01
	TagEvent            TypeTag = 0x02
	TagState            TypeTag = 0x03
	TagTrace            TypeTag = 0x04
	TagRun              TypeTag = 0x05
	TagJSON             TypeTag = 0x11
	TagVectorCollection TypeTag = 0x50
	TagVectorRecord     TypeTag = 0x51
	TagVectorIndex      TypeTag = 0x52
)

// ErrUnknownTag is returned when decoding a key whose tag byte falls
// outside any range this engine understands.
var ErrUnknownTag = errors.New("key: unknown type tag")

// KnownTag reports whether tag is one this engine's façades can decode.
func KnownTag(tag TypeTag) bool {
	switch tag {
	case TagKV, TagEvent, TagState, TagTrace, TagRun,
		TagJSON,
		TagVectorCollection, TagVectorRecord, TagVectorIndex:
		return true
	default:
		return false
	}
}

// Namespace scopes every key to a tenant/app/agent/run tuple.
// RunID is a UUID string; the other fields are bounded, operator-chosen
// strings (tenant/app/agent names). Namespace values are immutable once
// constructed — callers must build a new Namespace rather than mutate one
// that has already been used to derive keys.
type Namespace struct {
	Tenant string
	App    string
	Agent  string
	RunID  string
}

// Key is the full canonical identity of a stored value: namespace, type
// tag, and the façade-chosen user key bytes within that (namespace, tag)
// scope.
type Key struct {
	Namespace Namespace
	Tag       TypeTag
	UserKey   []byte
}

// maxFieldLen bounds each namespace string field so length-prefixed
// encoding never overflows a single byte length. 255 keeps the
// varint-free encoding simple and is generous for tenant/app/agent
// identifiers.
const maxFieldLen = 255

// encodeField appends a length-prefixed copy of s to buf.
func encodeField(buf []byte, s string) ([]byte, error) {
	if len(s) > maxFieldLen {
		return nil, fmt.Errorf("key: namespace field exceeds %d bytes", maxFieldLen)
	}
	buf = append(buf, byte(len(s)))
	buf = append(buf, s...)
	return buf, nil
}

// encodeNamespace produces the length-prefixed encoding of n. Because
// every field is length-prefixed, the encoding of one namespace is never
// a byte-prefix of the encoding of a different namespace with a
// differently-split but textually overlapping field — this is what makes
// PrefixFor safe to use for run-cascade deletes.
func encodeNamespace(n Namespace) ([]byte, error) {
	buf := make([]byte, 0, 4+len(n.Tenant)+len(n.App)+len(n.Agent)+len(n.RunID))
	var err error
	for _, f := range []string{n.Tenant, n.App, n.Agent, n.RunID} {
		buf, err = encodeField(buf, f)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Encode returns the canonical byte encoding of k. For keys with the same
// Namespace, lexical order over Encode(k) matches (Tag, UserKey) order;
// namespaces compare field by field, length prefix first.
func Encode(k Key) ([]byte, error) {
	nsBytes, err := encodeNamespace(k.Namespace)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nsBytes)+1+len(k.UserKey))
	out = append(out, nsBytes...)
	out = append(out, byte(k.Tag))
	out = append(out, k.UserKey...)
	return out, nil
}

// KeyFor builds a Key from its parts and validates field lengths.
func KeyFor(ns Namespace, tag TypeTag, userKey []byte) (Key, error) {
	if _, err := encodeNamespace(ns); err != nil {
		return Key{}, err
	}
	return Key{Namespace: ns, Tag: tag, UserKey: userKey}, nil
}

// PrefixFor returns the byte prefix shared by every encoded key in the
// given namespace, optionally narrowed to a single type tag. Passing a
// nil tag (via PrefixForNamespace) scopes to the whole run; passing a tag
// scopes to one primitive's keyspace within that run.
func PrefixFor(ns Namespace, tag TypeTag) ([]byte, error) {
	nsBytes, err := encodeNamespace(ns)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nsBytes)+1)
	out = append(out, nsBytes...)
	out = append(out, byte(tag))
	return out, nil
}

// PrefixForNamespace returns the byte prefix shared by every key whose
// namespace is ns, regardless of type tag. Used to scope a run's cascade
// delete across every primitive sharing that namespace.
func PrefixForNamespace(ns Namespace) ([]byte, error) {
	return encodeNamespace(ns)
}

// Decode parses a previously-Encoded key back into its structured form.
// Returns ErrUnknownTag wrapped with the offending byte if the tag is
// outside any range this engine recognizes.
func Decode(b []byte) (Key, error) {
	ns, rest, err := decodeNamespace(b)
	if err != nil {
		return Key{}, err
	}
	if len(rest) < 1 {
		return Key{}, fmt.Errorf("key: truncated encoding, missing type tag")
	}
	tag := TypeTag(rest[0])
	if !KnownTag(tag) {
		return Key{}, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, byte(tag))
	}
	userKey := append([]byte(nil), rest[1:]...)
	return Key{Namespace: ns, Tag: tag, UserKey: userKey}, nil
}

func decodeNamespace(b []byte) (Namespace, []byte, error) {
	var fields [4]string
	for i := range fields {
		if len(b) < 1 {
			return Namespace{}, nil, fmt.Errorf("key: truncated namespace encoding")
		}
		n := int(b[0])
		b = b[1:]
		if len(b) < n {
			return Namespace{}, nil, fmt.Errorf("key: truncated namespace field")
		}
		fields[i] = string(b[:n])
		b = b[n:]
	}
	return Namespace{Tenant: fields[0], App: fields[1], Agent: fields[2], RunID: fields[3]}, b, nil
}

// ExtractUserKey returns the user-chosen key bytes embedded in an
// already-decoded Key.
func ExtractUserKey(k Key) []byte {
	return k.UserKey
}

// ShardHash hashes a RunID to a deterministic 64-bit value used to route
// a namespace to one of the sharded store's shards. Exposed here, rather
// than inside internal/store, so recovery and façade code that needs to
// reason about shard routing without an open store handle (e.g.
// pre-sizing per-shard buffers) can do so.
func ShardHash(runID string) uint64 {
	return xxhash.Sum64String(runID)
}

// Uint64LE / PutUint64LE are little-endian uint64 helpers in the byte
// order the WAL and checkpoint formats use. internal/wal and
// internal/store call encoding/binary directly rather than these.
func Uint64LE(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
func PutUint64LE(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
