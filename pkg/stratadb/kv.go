package stratadb

import (
	"time"

	"github.com/stratadb-labs/strata-core-sub010/internal/jsonval"
	"github.com/stratadb-labs/strata-core-sub010/internal/key"
	"github.com/stratadb-labs/strata-core-sub010/internal/txn"
)

// KVStore is the key-value primitive: one versioned Value per
// (namespace, user key). It is a stateless projection over Database —
// every write method lowers onto a *txn.Context for a one-shot implicit
// transaction; Get reads the store directly, and GetCtx reads through a
// caller-supplied transaction.
type KVStore struct {
	db *Database
}

// KV returns a KVStore projection over db.
func (db *Database) KV() KVStore { return KVStore{db: db} }

func kvKey(ns Namespace, userKey string) ([]byte, error) {
	k, err := key.KeyFor(ns, key.TagKV, []byte(userKey))
	if err != nil {
		return nil, err
	}
	return key.Encode(k)
}

// Get reads the current value at userKey, or (_, false, nil) if absent.
// This is a fast-path read (§4.4.5): it takes a fresh snapshot and reads
// directly through the sharded store rather than allocating a
// transaction context, since a standalone read needs no read-set
// bookkeeping.
func (s KVStore) Get(ns Namespace, userKey string) (Value, bool, error) {
	encKey, err := kvKey(ns, userKey)
	if err != nil {
		return Value{}, false, err
	}
	shardHash := key.ShardHash(ns.RunID)
	vv, found := s.db.store.Get(shardHash, string(encKey), s.db.store.CurrentVersion())
	if !found {
		return Value{}, false, nil
	}
	v, err := jsonval.Unmarshal(vv.Value)
	if err != nil {
		return Value{}, false, err
	}
	return v, true, nil
}

// GetCtx is the explicit-transaction form of Get, for callers composing
// a multi-primitive transaction via Database.Begin.
func (s KVStore) GetCtx(ctx *txn.Context, encKey []byte) (Value, bool, error) {
	raw, found, err := ctx.Get(encKey)
	if err != nil || !found {
		return Value{}, false, err
	}
	v, err := jsonval.Unmarshal(raw)
	if err != nil {
		return Value{}, false, err
	}
	return v, true, nil
}

// EncodeKey builds the encoded store key for (ns, userKey), for callers
// that want to batch their own GetCtx reads and ctx.Put/ctx.Delete
// writes inside an explicit transaction.
func (s KVStore) EncodeKey(ns Namespace, userKey string) ([]byte, error) {
	return kvKey(ns, userKey)
}

// Set writes v under userKey. A positive ttl is stored with the value as
// its expiry time (0 means none); no read path checks it, so the value
// stays readable after that time.
func (s KVStore) Set(ns Namespace, userKey string, v Value, ttl time.Duration) error {
	encKey, err := kvKey(ns, userKey)
	if err != nil {
		return err
	}
	encoded, err := jsonval.Marshal(v)
	if err != nil {
		return err
	}
	var ttlUnix int64
	if ttl > 0 {
		ttlUnix = time.Now().Add(ttl).UnixNano()
	}
	return s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		return ctx.Put(encKey, encoded, ttlUnix)
	})
}

// Delete removes userKey, installing a tombstone.
func (s KVStore) Delete(ns Namespace, userKey string) error {
	encKey, err := kvKey(ns, userKey)
	if err != nil {
		return err
	}
	return s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		return ctx.Delete(encKey)
	})
}

// CompareAndSwap writes v under userKey only if userKey's committed
// version is still exactly expectedVersion at commit time; otherwise the
// transaction aborts with ErrVersionConflict.
func (s KVStore) CompareAndSwap(ns Namespace, userKey string, expectedVersion uint64, v Value) error {
	encKey, err := kvKey(ns, userKey)
	if err != nil {
		return err
	}
	encoded, err := jsonval.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		return ctx.CompareAndSwap(encKey, expectedVersion, encoded, 0)
	})
}
