package stratadb

import (
	"encoding/binary"

	"github.com/stratadb-labs/strata-core-sub010/internal/jsonval"
	"github.com/stratadb-labs/strata-core-sub010/internal/key"
	"github.com/stratadb-labs/strata-core-sub010/internal/txn"
)

// EventLog is the append-only event primitive: every Append assigns the
// next strictly-increasing sequence number within its run and namespace,
// and List replays them back in that order.
//
// Sequence numbers are tracked in a reserved metadata record sharing the
// primitive's own type tag rather than a dedicated tag, so the
// append-and-bump-counter pair lands in one commit with no separate
// namespace to keep consistent.
type EventLog struct {
	db *Database
}

// EventLog returns an EventLog projection over db.
func (db *Database) EventLog() EventLog { return EventLog{db: db} }

const (
	eventMetaMarker   byte = 0x00 // sequence counter
	eventRecordMarker byte = 0x01 // an appended event, followed by an 8-byte big-endian seq
)

func eventKey(ns Namespace, userKey []byte) ([]byte, error) {
	k, err := key.KeyFor(ns, key.TagEvent, userKey)
	if err != nil {
		return nil, err
	}
	return key.Encode(k)
}

func eventRecordUserKey(seq uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = eventRecordMarker
	binary.BigEndian.PutUint64(buf[1:], seq)
	return buf
}

// Append stores event as the next sequence entry in ns's log, returning
// the sequence number it was assigned.
func (s EventLog) Append(ns Namespace, event Value) (uint64, error) {
	encoded, err := jsonval.Marshal(event)
	if err != nil {
		return 0, err
	}
	metaKey, err := eventKey(ns, []byte{eventMetaMarker})
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

		recKey, err := eventKey(ns, eventRecordUserKey(seq))
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

// List returns every event appended to ns's log, in ascending sequence
// order. This is a fast-path read over the current snapshot, not a
// transaction: a log replay does not need read-set bookkeeping.
func (s EventLog) List(ns Namespace) ([]Value, error) {
	prefix, err := key.PrefixFor(ns, key.TagEvent)
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
