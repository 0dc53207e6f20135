package stratadb

import (
	"encoding/binary"

	"github.com/stratadb-labs/strata-core-sub010/internal/jsonval"
	"github.com/stratadb-labs/strata-core-sub010/internal/key"
	"github.com/stratadb-labs/strata-core-sub010/internal/txn"
)

// TraceStore is the append-only trace-record primitive: each Record call
// assigns the next strictly-increasing sequence number within its run and
// namespace, the same scheme EventLog uses, kept as a separate type tag
// so a run's execution trace and its application-level event log never
// share a keyspace.
type TraceStore struct {
	db *Database
}

// TraceStore returns a TraceStore projection over db.
func (db *Database) TraceStore() TraceStore { return TraceStore{db: db} }

func traceKey(ns Namespace, userKey []byte) ([]byte, error) {
	k, err := key.KeyFor(ns, key.TagTrace, userKey)
	if err != nil {
		return nil, err
	}
	return key.Encode(k)
}

// Record appends span to ns's trace, returning the sequence number it
// was assigned.
func (s TraceStore) Record(ns Namespace, span Value) (uint64, error) {
	encoded, err := jsonval.Marshal(span)
	if err != nil {
		return 0, err
	}
	metaKey, err := traceKey(ns, []byte{eventMetaMarker})
	if err != nil {
		return 0, err
	}

	var seq uint64
	err = s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		raw, found, err := ctx.Get(metaKey)
		if err != nil {
			return err
		}
		if found {
			seq = binary.BigEndian.Uint64(raw)
		}
		seq++

		recKey, err := traceKey(ns, eventRecordUserKey(seq))
		if err != nil {
			return err
		}
		if err := ctx.Put(recKey, encoded, 0); err != nil {
			return err
		}

		var counterBuf [8]byte
		binary.BigEndian.PutUint64(counterBuf[:], seq)
		return ctx.Put(metaKey, counterBuf[:], 0)
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// List returns every span recorded in ns's trace, in ascending sequence
// order. Fast-path read: no transaction context is allocated.
func (s TraceStore) List(ns Namespace) ([]Value, error) {
	prefix, err := key.PrefixFor(ns, key.TagTrace)
	if err != nil {
		return nil, err
	}
	recordPrefix := append(append([]byte(nil), prefix...), eventRecordMarker)

	shardHash := key.ShardHash(ns.RunID)
	entries := s.db.store.ScanPrefix(shardHash, string(recordPrefix), s.db.store.CurrentVersion())

	out := make([]Value, 0, len(entries))
	for _, e := range entries {
		v, err := jsonval.Unmarshal(e.Value.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
