package store

import (
	"encoding/binary"
	"fmt"
)

// EncodeVersionedValue serializes vv for checkpoint persistence. The
// format is flat and fixed-field, matching the WAL's own record codec
// style rather than a generic reflection-based encoding.
func EncodeVersionedValue(vv VersionedValue) []byte {
	buf := make([]byte, 0, 25+len(vv.Value))
	var tmp [8]byte

	binary.LittleEndian.PutUint64(tmp[:], vv.Version)
	buf = append(buf, tmp[:]...)

	binary.LittleEndian.PutUint64(tmp[:], uint64(vv.CommitUnix))
	buf = append(buf, tmp[:]...)

	binary.LittleEndian.PutUint64(tmp[:], uint64(vv.TTLUnix))
	buf = append(buf, tmp[:]...)

	if vv.Tombstone {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(vv.Value)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, vv.Value...)
	return buf
}

// DecodeVersionedValue is the inverse of EncodeVersionedValue.
func DecodeVersionedValue(data []byte) (VersionedValue, error) {
	if len(data) < 29 {
		return VersionedValue{}, fmt.Errorf("store: truncated versioned value")
	}
	version := binary.LittleEndian.Uint64(data[0:8])
	commitUnix := int64(binary.LittleEndian.Uint64(data[8:16]))
	ttlUnix := int64(binary.LittleEndian.Uint64(data[16:24]))
	tombstone := data[24] == 1
	valueLen := binary.LittleEndian.Uint32(data[25:29])

	rest := data[29:]
	if uint32(len(rest)) < valueLen {
		return VersionedValue{}, fmt.Errorf("store: truncated versioned value payload")
	}

	var value []byte
	if valueLen > 0 {
		value = append([]byte(nil), rest[:valueLen]...)
	}

	return VersionedValue{
		Value:      value,
		Version:    version,
		CommitUnix: commitUnix,
		TTLUnix:    ttlUnix,
		Tombstone:  tombstone,
	}, nil
}
