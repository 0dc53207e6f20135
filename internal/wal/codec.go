package wal

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Payload encoding is a flat little-endian binary format: strings and
// byte slices are length-prefixed with a u32, fixed-width fields are
// written in declaration order. There is no self-describing schema
// beyond the RecordTag; a tag's payload shape is fixed once shipped, and
// new record kinds are added as new tags rather than by versioning an
// existing one.

func putString(buf []byte, s string) []byte {
	buf = putU32(buf, uint32(len(s)))
	return append(buf, s...)
}

func putBytes(buf []byte, b []byte) []byte {
	buf = putU32(buf, uint32(len(b)))
	return append(buf, b...)
}

func putU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putI64(buf []byte, v int64) []byte {
	return putU64(buf, uint64(v))
}

type reader struct {
	b []byte
}

func (r *reader) readString() (string, error) {
	b, err := r.readBytes()
	return string(b), err
}

func (r *reader) readBytes() ([]byte, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	if uint32(len(r.b)) < n {
		return nil, fmt.Errorf("%w: truncated byte field", ErrCorruptRecord)
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out, nil
}

func (r *reader) readU32() (uint32, error) {
	if len(r.b) < 4 {
		return 0, fmt.Errorf("%w: truncated u32 field", ErrCorruptRecord)
	}
	v := binary.LittleEndian.Uint32(r.b[:4])
	r.b = r.b[4:]
	return v, nil
}

func (r *reader) readU64() (uint64, error) {
	if len(r.b) < 8 {
		return 0, fmt.Errorf("%w: truncated u64 field", ErrCorruptRecord)
	}
	v := binary.LittleEndian.Uint64(r.b[:8])
	r.b = r.b[8:]
	return v, nil
}

func (r *reader) readI64() (int64, error) {
	v, err := r.readU64()
	return int64(v), err
}

func (r *reader) readStringSlice() ([]string, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := r.readString()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (r *reader) readFloat32Slice() ([]float32, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		bits, err := r.readU32()
		if err != nil {
			return nil, err
		}
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

func putFloat32Slice(buf []byte, fs []float32) []byte {
	buf = putU32(buf, uint32(len(fs)))
	for _, f := range fs {
		buf = putU32(buf, math.Float32bits(f))
	}
	return buf
}

func encodeBeginTxn(r BeginTxn) []byte {
	buf := make([]byte, 0, 32+len(r.TxnID)+len(r.RunID))
	buf = putString(buf, r.TxnID)
	buf = putString(buf, r.RunID)
	buf = putI64(buf, r.TimestampUnixNano)
	return buf
}

func decodeBeginTxn(payload []byte) (BeginTxn, error) {
	r := &reader{b: payload}
	var out BeginTxn
	var err error
	if out.TxnID, err = r.readString(); err != nil {
		return BeginTxn{}, err
	}
	if out.RunID, err = r.readString(); err != nil {
		return BeginTxn{}, err
	}
	if out.TimestampUnixNano, err = r.readI64(); err != nil {
		return BeginTxn{}, err
	}
	return out, nil
}

func encodeWrite(r Write) []byte {
	buf := make([]byte, 0, 64+len(r.RunID)+len(r.Key)+len(r.Value))
	buf = putString(buf, r.RunID)
	buf = putBytes(buf, r.Key)
	buf = putBytes(buf, r.Value)
	buf = putU64(buf, r.Version)
	buf = putI64(buf, r.CommitUnix)
	buf = putI64(buf, r.TTLUnix)
	return buf
}

func decodeWrite(payload []byte) (Write, error) {
	r := &reader{b: payload}
	var out Write
	var err error
	if out.RunID, err = r.readString(); err != nil {
		return Write{}, err
	}
	if out.Key, err = r.readBytes(); err != nil {
		return Write{}, err
	}
	if out.Value, err = r.readBytes(); err != nil {
		return Write{}, err
	}
	if out.Version, err = r.readU64(); err != nil {
		return Write{}, err
	}
	if out.CommitUnix, err = r.readI64(); err != nil {
		return Write{}, err
	}
	if out.TTLUnix, err = r.readI64(); err != nil {
		return Write{}, err
	}
	return out, nil
}

func encodeDelete(r Delete) []byte {
	buf := make([]byte, 0, 48+len(r.RunID)+len(r.Key))
	buf = putString(buf, r.RunID)
	buf = putBytes(buf, r.Key)
	buf = putU64(buf, r.Version)
	buf = putI64(buf, r.CommitUnix)
	return buf
}

func decodeDelete(payload []byte) (Delete, error) {
	r := &reader{b: payload}
	var out Delete
	var err error
	if out.RunID, err = r.readString(); err != nil {
		return Delete{}, err
	}
	if out.Key, err = r.readBytes(); err != nil {
		return Delete{}, err
	}
	if out.Version, err = r.readU64(); err != nil {
		return Delete{}, err
	}
	if out.CommitUnix, err = r.readI64(); err != nil {
		return Delete{}, err
	}
	return out, nil
}

func encodeCommitTxn(r CommitTxn) []byte {
	buf := make([]byte, 0, 16+len(r.TxnID)+len(r.RunID))
	buf = putString(buf, r.TxnID)
	buf = putString(buf, r.RunID)
	return buf
}

func decodeCommitTxn(payload []byte) (CommitTxn, error) {
	r := &reader{b: payload}
	var out CommitTxn
	var err error
	if out.TxnID, err = r.readString(); err != nil {
		return CommitTxn{}, err
	}
	if out.RunID, err = r.readString(); err != nil {
		return CommitTxn{}, err
	}
	return out, nil
}

func encodeAbortTxn(r AbortTxn) []byte {
	buf := make([]byte, 0, 16+len(r.TxnID)+len(r.RunID))
	buf = putString(buf, r.TxnID)
	buf = putString(buf, r.RunID)
	return buf
}

func decodeAbortTxn(payload []byte) (AbortTxn, error) {
	r := &reader{b: payload}
	var out AbortTxn
	var err error
	if out.TxnID, err = r.readString(); err != nil {
		return AbortTxn{}, err
	}
	if out.RunID, err = r.readString(); err != nil {
		return AbortTxn{}, err
	}
	return out, nil
}

func encodeCheckpoint(r Checkpoint) []byte {
	buf := make([]byte, 0, 32+len(r.SnapshotID))
	buf = putString(buf, r.SnapshotID)
	buf = putU64(buf, r.Version)
	buf = putU32(buf, uint32(len(r.ActiveRuns)))
	for _, run := range r.ActiveRuns {
		buf = putString(buf, run)
	}
	return buf
}

func decodeCheckpoint(payload []byte) (Checkpoint, error) {
	r := &reader{b: payload}
	var out Checkpoint
	var err error
	if out.SnapshotID, err = r.readString(); err != nil {
		return Checkpoint{}, err
	}
	if out.Version, err = r.readU64(); err != nil {
		return Checkpoint{}, err
	}
	if out.ActiveRuns, err = r.readStringSlice(); err != nil {
		return Checkpoint{}, err
	}
	return out, nil
}

func encodeVectorInsert(r VectorInsert) []byte {
	buf := make([]byte, 0, 32+len(r.RunID)+len(r.CollectionID)+4*len(r.Embedding))
	buf = putString(buf, r.RunID)
	buf = putString(buf, r.CollectionID)
	buf = putU64(buf, r.VectorID)
	buf = putFloat32Slice(buf, r.Embedding)
	buf = putU64(buf, r.Version)
	return buf
}

func decodeVectorInsert(payload []byte) (VectorInsert, error) {
	r := &reader{b: payload}
	var out VectorInsert
	var err error
	if out.RunID, err = r.readString(); err != nil {
		return VectorInsert{}, err
	}
	if out.CollectionID, err = r.readString(); err != nil {
		return VectorInsert{}, err
	}
	if out.VectorID, err = r.readU64(); err != nil {
		return VectorInsert{}, err
	}
	if out.Embedding, err = r.readFloat32Slice(); err != nil {
		return VectorInsert{}, err
	}
	if out.Version, err = r.readU64(); err != nil {
		return VectorInsert{}, err
	}
	return out, nil
}

func encodeVectorUpdate(r VectorUpdate) []byte {
	buf := make([]byte, 0, 32+len(r.RunID)+len(r.CollectionID)+4*len(r.Embedding))
	buf = putString(buf, r.RunID)
	buf = putString(buf, r.CollectionID)
	buf = putU64(buf, r.VectorID)
	buf = putFloat32Slice(buf, r.Embedding)
	buf = putU64(buf, r.Version)
	return buf
}

func decodeVectorUpdate(payload []byte) (VectorUpdate, error) {
	r := &reader{b: payload}
	var out VectorUpdate
	var err error
	if out.RunID, err = r.readString(); err != nil {
		return VectorUpdate{}, err
	}
	if out.CollectionID, err = r.readString(); err != nil {
		return VectorUpdate{}, err
	}
	if out.VectorID, err = r.readU64(); err != nil {
		return VectorUpdate{}, err
	}
	if out.Embedding, err = r.readFloat32Slice(); err != nil {
		return VectorUpdate{}, err
	}
	if out.Version, err = r.readU64(); err != nil {
		return VectorUpdate{}, err
	}
	return out, nil
}

func encodeVectorDelete(r VectorDelete) []byte {
	buf := make([]byte, 0, 32+len(r.RunID)+len(r.CollectionID))
	buf = putString(buf, r.RunID)
	buf = putString(buf, r.CollectionID)
	buf = putU64(buf, r.VectorID)
	buf = putU64(buf, r.Version)
	return buf
}

func decodeVectorDelete(payload []byte) (VectorDelete, error) {
	r := &reader{b: payload}
	var out VectorDelete
	var err error
	if out.RunID, err = r.readString(); err != nil {
		return VectorDelete{}, err
	}
	if out.CollectionID, err = r.readString(); err != nil {
		return VectorDelete{}, err
	}
	if out.VectorID, err = r.readU64(); err != nil {
		return VectorDelete{}, err
	}
	if out.Version, err = r.readU64(); err != nil {
		return VectorDelete{}, err
	}
	return out, nil
}
