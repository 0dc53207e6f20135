package stratadb

import (
	"time"

	"github.com/stratadb-labs/strata-core-sub010/internal/jsonval"
	"github.com/stratadb-labs/strata-core-sub010/internal/key"
	"github.com/stratadb-labs/strata-core-sub010/internal/txn"
)

// JsonStore is the JSON-document primitive: each (namespace, docID) owns
// one recursively-tagged value tree, edited at path granularity so that
// concurrent writes to disjoint subtrees of the same document do not
// spuriously conflict at commit (internal/txn's path-overlap check).
type JsonStore struct {
	db *Database
}

// JsonStore returns a JsonStore projection over db.
func (db *Database) JsonStore() JsonStore { return JsonStore{db: db} }

func jsonDocKey(ns Namespace, docID string) ([]byte, error) {
	k, err := key.KeyFor(ns, key.TagJSON, []byte(docID))
	if err != nil {
		return nil, err
	}
	return key.Encode(k)
}

// Get reads the value at path within docID. This is a fast-path read:
// it loads the document from the current snapshot directly rather than
// through a transaction context, since a standalone read needs no
// path-read bookkeeping.
func (s JsonStore) Get(ns Namespace, docID string, path Path) (Value, error) {
	encKey, err := jsonDocKey(ns, docID)
	if err != nil {
		return Value{}, err
	}
	shardHash := key.ShardHash(ns.RunID)
	vv, found := s.db.store.Get(shardHash, string(encKey), s.db.store.CurrentVersion())
	if !found {
		return Value{}, &txn.OpError{Kind: txn.KindNotFound, Key: docID, Message: "document not found"}
	}
	doc, err := jsonval.UnmarshalDocument(vv.Value)
	if err != nil {
		return Value{}, err
	}
	return jsonval.Get(doc.Value, path)
}

// Set writes value at path within docID, creating the document if it
// does not yet exist and path is the root.
func (s JsonStore) Set(ns Namespace, docID string, path Path, value Value) error {
	encKey, err := jsonDocKey(ns, docID)
	if err != nil {
		return err
	}
	return s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		return ctx.JSONSet(encKey, path, value, time.Now().Unix())
	})
}

// Delete removes path within docID.
func (s JsonStore) Delete(ns Namespace, docID string, path Path) error {
	encKey, err := jsonDocKey(ns, docID)
	if err != nil {
		return err
	}
	return s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		return ctx.JSONDelete(encKey, path, time.Now().Unix())
	})
}
