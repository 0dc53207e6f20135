package stratadb

import (
	"github.com/stratadb-labs/strata-core-sub010/internal/jsonval"
	"github.com/stratadb-labs/strata-core-sub010/internal/key"
	"github.com/stratadb-labs/strata-core-sub010/internal/txn"
)

// StateCell is the CAS-guarded single-value primitive: unlike KVStore's
// plain Set, the expected caller pattern is Get (to learn the current
// version) followed by CompareAndSwap, so concurrent writers to the same
// cell detect each other rather than silently clobbering.
type StateCell struct {
	db *Database
}

// StateCell returns a StateCell projection over db.
func (db *Database) StateCell() StateCell { return StateCell{db: db} }

func stateKey(ns Namespace, userKey string) ([]byte, error) {
	k, err := key.KeyFor(ns, key.TagState, []byte(userKey))
	if err != nil {
		return nil, err
	}
	return key.Encode(k)
}

// Get reads the current value and version at userKey. A cell that has
// never been written reports (_, 0, false, nil).
func (s StateCell) Get(ns Namespace, userKey string) (Value, uint64, bool, error) {
	encKey, err := stateKey(ns, userKey)
	if err != nil {
		return Value{}, 0, false, err
	}
	shardHash := key.ShardHash(ns.RunID)
	vv, found := s.db.store.Get(shardHash, string(encKey), s.db.store.CurrentVersion())
	if !found {
		return Value{}, 0, false, nil
	}
	v, err := jsonval.Unmarshal(vv.Value)
	if err != nil {
		return Value{}, 0, false, err
	}
	return v, vv.Version, true, nil
}

// Set writes v under userKey unconditionally, superseding whatever
// version (if any) was there before.
func (s StateCell) Set(ns Namespace, userKey string, v Value) error {
	encKey, err := stateKey(ns, userKey)
	if err != nil {
		return err
	}
	encoded, err := jsonval.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		return ctx.Put(encKey, encoded, 0)
	})
}

// CompareAndSwap writes v under userKey only if userKey's committed
// version is still exactly expectedVersion (0 meaning "never written";
// a deleted cell keeps its tombstone's version, so 0 does not match
// it); otherwise the transaction aborts with ErrVersionConflict.
func (s StateCell) CompareAndSwap(ns Namespace, userKey string, expectedVersion uint64, v Value) error {
	encKey, err := stateKey(ns, userKey)
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

// Delete removes userKey, installing a tombstone.
func (s StateCell) Delete(ns Namespace, userKey string) error {
	encKey, err := stateKey(ns, userKey)
	if err != nil {
		return err
	}
	return s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		return ctx.Delete(encKey)
	})
}
