package txn

import (
	"github.com/stratadb-labs/strata-core-sub010/internal/jsonval"
	"github.com/stratadb-labs/strata-core-sub010/internal/key"
)

// writeOp is one buffered write, keyed by its encoded key string.
type writeOp struct {
	value   []byte
	ttlUnix int64
}

// casOp is a compare-and-swap entry: the commit only succeeds if Key's
// committed version still equals ExpectedVersion at validation time.
type casOp struct {
	expectedVersion uint64
	value           []byte
	ttlUnix         int64
}

// jsonPathRead records that a transaction observed a document at a
// given version and then read (or is about to write through) a
// specific path within it. versionAtRead is the document's committed
// version the first time this transaction touched it, reported in the
// stale-read error at commit (the check itself compares committed
// path-write versions against the transaction's start version).
type jsonPathRead struct {
	path           jsonval.Path
	versionAtRead  uint64
}

type jsonPathWrite struct {
	path jsonval.Path
}

// Context is one transaction's working set: everything it has read or
// intends to write, accumulated against a fixed snapshot version and
// validated/applied atomically by Coordinator.Commit.
//
// A Context is single-goroutine use: the spec's transactions are not
// meant to be shared across concurrent callers, so no internal locking
// is done beyond what the underlying Store already provides for reads.
type Context struct {
	coord *Coordinator

	TxnID        string
	RunID        string
	startVersion uint64
	shardHash    uint64

	closed bool

	reads   map[string]uint64 // encoded key -> version observed at read time
	writes  map[string]writeOp
	deletes map[string]bool
	cas     map[string]casOp

	// docCache holds the in-transaction working copy of every JSON
	// document this transaction has touched, keyed by its encoded key.
	// Successive json_get/json_set/json_delete calls against the same
	// document operate on the cached copy so that reads observe this
	// transaction's own uncommitted writes.
	docCache map[string]*cachedDoc

	jsonPathReads  map[string][]jsonPathRead
	jsonPathWrites map[string][]jsonPathWrite

	// jsonDirty holds, in encounter order, the encoded keys of every
	// document this transaction modified. Final encoding (with the
	// commit version stamped in) happens in Coordinator.apply, once a
	// version has been minted — not here, since no version exists yet
	// at JSONSet/JSONDelete time.
	jsonDirty []string
}

type cachedDoc struct {
	doc         jsonval.Document
	versionRead uint64 // 0 if the document did not exist at read time
	existed     bool
	dirty       bool // true once JSONSet/JSONDelete has modified this document
}

func newContext(coord *Coordinator, txnID, runID string, startVersion uint64) *Context {
	return &Context{
		coord:        coord,
		TxnID:        txnID,
		RunID:        runID,
		startVersion: startVersion,
		shardHash:    key.ShardHash(runID),
		reads:        make(map[string]uint64),
		writes:       make(map[string]writeOp),
		deletes:      make(map[string]bool),
		cas:          make(map[string]casOp),
	}
}

func (c *Context) checkOpen() error {
	if c.closed {
		return newErr(KindInvalidOperation, "", "transaction %s is already committed or aborted", c.TxnID)
	}
	return nil
}

// Get reads encodedKey through the transaction's snapshot, preferring a
// value this same transaction has already buffered (read-your-own-writes)
// over the snapshot. Every snapshot read is recorded into the read set
// for commit-time validation.
func (c *Context) Get(encodedKey []byte) ([]byte, bool, error) {
	if err := c.checkOpen(); err != nil {
		return nil, false, err
	}
	k := string(encodedKey)

	if c.deletes[k] {
		return nil, false, nil
	}
	if w, ok := c.writes[k]; ok {
		return w.value, true, nil
	}

	vv, ok := c.coord.store.Get(c.shardHash, k, c.startVersion)
	if !ok {
		c.reads[k] = 0
		return nil, false, nil
	}
	c.reads[k] = vv.Version
	return vv.Value, true, nil
}

// VersionOf reports the version this transaction observed the last time
// it read or buffered a write for encodedKey, for façades that need to
// build a CAS call from a prior Get.
func (c *Context) VersionOf(encodedKey []byte) uint64 {
	k := string(encodedKey)
	if v, ok := c.reads[k]; ok {
		return v
	}
	return c.coord.store.VersionAt(c.shardHash, k)
}

// Put buffers a versioned write of value under encodedKey, with an
// optional TTL (0 meaning none). It takes effect only if the
// transaction commits.
func (c *Context) Put(encodedKey []byte, value []byte, ttlUnix int64) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	k := string(encodedKey)
	delete(c.deletes, k)
	c.writes[k] = writeOp{value: value, ttlUnix: ttlUnix}
	return nil
}

// Delete buffers a tombstone install for encodedKey.
func (c *Context) Delete(encodedKey []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	k := string(encodedKey)
	delete(c.writes, k)
	c.deletes[k] = true
	return nil
}

// CompareAndSwap buffers a write that is only allowed to commit if
// encodedKey's committed version is still exactly expectedVersion at
// validation time — first-committer-wins at key granularity, made
// explicit rather than relying solely on the implicit read-set check.
func (c *Context) CompareAndSwap(encodedKey []byte, expectedVersion uint64, value []byte, ttlUnix int64) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	k := string(encodedKey)
	delete(c.deletes, k)
	delete(c.writes, k)
	c.cas[k] = casOp{expectedVersion: expectedVersion, value: value, ttlUnix: ttlUnix}
	return nil
}

// loadDoc returns the cached working copy of the JSON document at
// encodedKey, loading it from the snapshot (or this transaction's own
// prior writes) on first touch.
func (c *Context) loadDoc(encodedKey []byte) (*cachedDoc, error) {
	k := string(encodedKey)
	if c.docCache == nil {
		c.docCache = make(map[string]*cachedDoc)
	}
	if cd, ok := c.docCache[k]; ok {
		return cd, nil
	}

	raw, found, err := c.Get(encodedKey)
	if err != nil {
		return nil, err
	}
	if !found {
		cd := &cachedDoc{existed: false}
		c.docCache[k] = cd
		return cd, nil
	}

	doc, err := jsonval.UnmarshalDocument(raw)
	if err != nil {
		return nil, wrapErr(KindSerialization, k, err, "decode json document")
	}
	// versionRead is the store's global commit version for this key, not
	// the document's own embedded Version field: it lives in the same
	// global version space as jsonCommitEntry.version, against which
	// stale-read errors report it.
	cd := &cachedDoc{doc: doc, versionRead: c.reads[k], existed: true}
	c.docCache[k] = cd
	return cd, nil
}

func (c *Context) recordPathRead(encodedKey string, p jsonval.Path, versionAtRead uint64) {
	if c.jsonPathReads == nil {
		c.jsonPathReads = make(map[string][]jsonPathRead)
	}
	c.jsonPathReads[encodedKey] = append(c.jsonPathReads[encodedKey], jsonPathRead{path: p, versionAtRead: versionAtRead})
}

func (c *Context) recordPathWrite(encodedKey string, p jsonval.Path) {
	if c.jsonPathWrites == nil {
		c.jsonPathWrites = make(map[string][]jsonPathWrite)
	}
	c.jsonPathWrites[encodedKey] = append(c.jsonPathWrites[encodedKey], jsonPathWrite{path: p})
}

// JSONGet reads the value at path within the document stored at
// encodedKey, recording a path-level read for the stale-read check at
// commit.
func (c *Context) JSONGet(encodedKey []byte, path jsonval.Path) (jsonval.Value, error) {
	if err := c.checkOpen(); err != nil {
		return jsonval.Value{}, err
	}
	cd, err := c.loadDoc(encodedKey)
	if err != nil {
		return jsonval.Value{}, err
	}
	if !cd.existed {
		return jsonval.Value{}, newErr(KindNotFound, string(encodedKey), "document not found")
	}
	c.recordPathRead(string(encodedKey), path, cd.versionRead)

	v, err := jsonval.Get(cd.doc.Value, path)
	if err != nil {
		return jsonval.Value{}, wrapErr(KindInvalidOperation, string(encodedKey), err, "json path get")
	}
	return v, nil
}

// JSONSet writes value at path within the document stored at
// encodedKey, creating the document if it does not yet exist and path
// is root. The edit happens against this transaction's cached copy; it
// becomes visible to the store only on commit.
func (c *Context) JSONSet(encodedKey []byte, path jsonval.Path, value jsonval.Value, nowUnix int64) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	cd, err := c.loadDoc(encodedKey)
	if err != nil {
		return err
	}
	if !cd.existed {
		if !path.IsRoot() {
			return newErr(KindNotFound, string(encodedKey), "document not found")
		}
		cd.doc = jsonval.Document{Value: value, CreatedAt: nowUnix, UpdatedAt: nowUnix}
		cd.existed = true
	} else {
		updated, err := jsonval.Set(cd.doc.Value, path, value)
		if err != nil {
			return wrapErr(KindInvalidOperation, string(encodedKey), err, "json path set")
		}
		cd.doc.Value = updated
		cd.doc.UpdatedAt = nowUnix
	}
	if err := jsonval.ValidateTree(cd.doc.Value); err != nil {
		return wrapErr(KindInvalidOperation, string(encodedKey), err, "document exceeds size/shape limits")
	}

	c.recordPathWrite(string(encodedKey), path)
	return c.bufferDoc(encodedKey, cd)
}

// JSONDelete removes path within the document stored at encodedKey.
func (c *Context) JSONDelete(encodedKey []byte, path jsonval.Path, nowUnix int64) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	cd, err := c.loadDoc(encodedKey)
	if err != nil {
		return err
	}
	if !cd.existed {
		return newErr(KindNotFound, string(encodedKey), "document not found")
	}
	updated, err := jsonval.Delete(cd.doc.Value, path)
	if err != nil {
		return wrapErr(KindInvalidOperation, string(encodedKey), err, "json path delete")
	}
	cd.doc.Value = updated
	cd.doc.UpdatedAt = nowUnix

	c.recordPathWrite(string(encodedKey), path)
	return c.bufferDoc(encodedKey, cd)
}

func (c *Context) bufferDoc(encodedKey []byte, cd *cachedDoc) error {
	k := string(encodedKey)
	if !cd.dirty {
		cd.dirty = true
		c.jsonDirty = append(c.jsonDirty, k)
	}
	delete(c.deletes, k)
	return nil
}

// finalizeJSONWrites stamps version/nowUnix into every dirty document's
// metadata and encodes it, returning the bytes the coordinator installs
// alongside the rest of the write set. Called once, after a commit
// version has been minted.
func (c *Context) finalizeJSONWrites(version uint64, nowUnix int64) (map[string][]byte, error) {
	if len(c.jsonDirty) == 0 {
		return nil, nil
	}
	out := make(map[string][]byte, len(c.jsonDirty))
	for _, k := range c.jsonDirty {
		cd := c.docCache[k]
		cd.doc.Version = version
		if cd.doc.CreatedAt == 0 {
			cd.doc.CreatedAt = nowUnix
		}
		cd.doc.UpdatedAt = nowUnix
		encoded, err := jsonval.MarshalDocument(cd.doc)
		if err != nil {
			return nil, wrapErr(KindSerialization, k, err, "encode json document")
		}
		out[k] = encoded
	}
	return out, nil
}

// readSetKeys, writeSetKeys, and similar accessors below expose the
// transaction's accumulated sets to the coordinator's commit
// validation, without requiring commit logic to live inside Context
// itself.
func (c *Context) readSetKeys() map[string]uint64   { return c.reads }
func (c *Context) writeSetKeys() map[string]writeOp { return c.writes }
func (c *Context) deleteSetKeys() map[string]bool   { return c.deletes }
func (c *Context) casSetKeys() map[string]casOp     { return c.cas }
