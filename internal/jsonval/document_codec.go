package jsonval

import (
	"encoding/binary"
	"fmt"
)

// MarshalDocument encodes a full Document (tree plus version/timestamp
// metadata) into the bytes stored under its key. DocID is not encoded:
// it is the caller's key, already known from the lookup that produced
// these bytes.
func MarshalDocument(d Document) ([]byte, error) {
	tree, err := Marshal(d.Value)
	if err != nil {
		return nil, fmt.Errorf("jsonval: marshal document tree: %w", err)
	}

	buf := make([]byte, 0, 24+len(tree))
	buf = appendU64(buf, d.Version)
	buf = appendI64(buf, d.CreatedAt)
	buf = appendI64(buf, d.UpdatedAt)
	buf = appendU32(buf, uint32(len(tree)))
	buf = append(buf, tree...)
	return buf, nil
}

// UnmarshalDocument is the inverse of MarshalDocument. DocID is left
// empty; callers that have it (from the lookup key) fill it in.
func UnmarshalDocument(data []byte) (Document, error) {
	if len(data) < 28 {
		return Document{}, fmt.Errorf("jsonval: truncated document header")
	}
	version := binary.LittleEndian.Uint64(data[0:8])
	createdAt := int64(binary.LittleEndian.Uint64(data[8:16]))
	updatedAt := int64(binary.LittleEndian.Uint64(data[16:24]))
	treeLen := binary.LittleEndian.Uint32(data[24:28])

	rest := data[28:]
	if uint32(len(rest)) < treeLen {
		return Document{}, fmt.Errorf("jsonval: truncated document tree")
	}

	v, err := Unmarshal(rest[:treeLen])
	if err != nil {
		return Document{}, fmt.Errorf("jsonval: unmarshal document tree: %w", err)
	}

	return Document{
		Value:     v,
		Version:   version,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendI64(buf []byte, v int64) []byte {
	return appendU64(buf, uint64(v))
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
