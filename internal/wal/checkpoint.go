package wal

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/stratadb-labs/strata-core-sub010/pkg/log"
)

// Checkpoint files are full-state snapshots of the sharded store.
// Recovery installs one before replaying the WAL; records at or below
// the checkpoint's version are still replayed and leave the store
// unchanged. They are backed by bbolt rather than a hand-rolled page
// format: a checkpoint is written once and read once (at recovery), so
// bbolt's transactional single-file KV store is a natural fit, the same
// role it plays for warren's cluster state in pkg/storage/boltdb.go.
var (
	bucketMeta    = []byte("meta")
	bucketEntries = []byte("entries")

	metaKeyVersion = []byte("version")
)

// CheckpointEntry is one (encoded key, encoded VersionedValue) pair
// persisted in a checkpoint file.
type CheckpointEntry struct {
	EncodedKey []byte
	Value      []byte // caller-supplied encoding of internal/store.VersionedValue
}

// WriteCheckpoint creates (or overwrites) a checkpoint file at path
// containing version and entries.
func WriteCheckpoint(path string, version uint64, entries []CheckpointEntry) error {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return fmt.Errorf("wal: open checkpoint %s: %w", path, err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		entriesBucket, err := tx.CreateBucketIfNotExists(bucketEntries)
		if err != nil {
			return err
		}
		if err := entriesBucket.ForEach(func(k, _ []byte) error {
			return entriesBucket.Delete(k)
		}); err != nil {
			return err
		}

		if err := meta.Put(metaKeyVersion, putU64(nil, version)); err != nil {
			return err
		}
		for _, e := range entries {
			if err := entriesBucket.Put(e.EncodedKey, e.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadCheckpoint loads a previously written checkpoint file in full, as
// the recovery procedure requires. A missing file reports version 0 and
// no entries, meaning recovery must replay the entire log.
func ReadCheckpoint(path string) (version uint64, entries []CheckpointEntry, err error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true})
	if err != nil {
		log.WithComponent("wal").Debug().Str("path", path).Msg("no checkpoint file; replaying full log")
		return 0, nil, nil
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return nil
		}
		if raw := meta.Get(metaKeyVersion); raw != nil {
			r := &reader{b: raw}
			v, rerr := r.readU64()
			if rerr != nil {
				return rerr
			}
			version = v
		}

		entriesBucket := tx.Bucket(bucketEntries)
		if entriesBucket == nil {
			return nil
		}
		return entriesBucket.ForEach(func(k, v []byte) error {
			entries = append(entries, CheckpointEntry{
				EncodedKey: append([]byte(nil), k...),
				Value:      append([]byte(nil), v...),
			})
			return nil
		})
	})
	if err != nil {
		return 0, nil, fmt.Errorf("wal: read checkpoint %s: %w", path, err)
	}
	return version, entries, nil
}
