// Package txn implements the transaction coordinator: snapshot-isolated
// read/write transactions over the sharded store, first-committer-wins
// validation at key granularity, and path-granularity conflict tracking
// for JSON documents so that disjoint edits to the same document do not
// spuriously conflict.
package txn

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stratadb-labs/strata-core-sub010/internal/jsonval"
	"github.com/stratadb-labs/strata-core-sub010/internal/key"
	"github.com/stratadb-labs/strata-core-sub010/internal/store"
	"github.com/stratadb-labs/strata-core-sub010/internal/wal"
	"github.com/stratadb-labs/strata-core-sub010/pkg/log"
	"github.com/stratadb-labs/strata-core-sub010/pkg/metrics"
)

// jsonCommitEntry is one committed transaction's path-write footprint
// against a single document, kept only long enough for conflict
// detection against transactions whose snapshot predates it.
type jsonCommitEntry struct {
	version uint64
	paths   []jsonval.Path
}

// Coordinator serializes commits per run (so unrelated runs never
// contend with each other) and owns the bridge between a Context's
// buffered effects, the WAL, and the sharded store.
type Coordinator struct {
	store *store.Store
	log   *wal.WAL

	runLocksMu sync.Mutex
	runLocks   map[string]*sync.Mutex

	jsonLogMu sync.Mutex
	jsonLog   map[string][]jsonCommitEntry // encoded doc key -> committed path-write history

	zlog zerolog.Logger
}

// New constructs a Coordinator over an already-open store and WAL.
func New(st *store.Store, w *wal.WAL) *Coordinator {
	return &Coordinator{
		store:    st,
		log:      w,
		runLocks: make(map[string]*sync.Mutex),
		jsonLog:  make(map[string][]jsonCommitEntry),
		zlog:     log.WithComponent("txn-coordinator"),
	}
}

func (co *Coordinator) lockFor(runID string) *sync.Mutex {
	co.runLocksMu.Lock()
	defer co.runLocksMu.Unlock()
	l, ok := co.runLocks[runID]
	if !ok {
		l = &sync.Mutex{}
		co.runLocks[runID] = l
	}
	return l
}

// Begin opens a new transaction context against the store's current
// committed version as its read snapshot.
func (co *Coordinator) Begin(runID string) *Context {
	startVersion := co.store.CurrentVersion()
	return newContext(co, uuid.New().String(), runID, startVersion)
}

// Abort discards ctx's buffered effects without touching the store. It
// is always safe to call, including after a failed Commit.
func (co *Coordinator) Abort(ctx *Context) error {
	if ctx.closed {
		return nil
	}
	ctx.closed = true
	if co.log != nil {
		_ = co.log.AppendAbortTxn(wal.AbortTxn{TxnID: ctx.TxnID, RunID: ctx.RunID})
	}
	metrics.CommitsTotal.WithLabelValues("aborted").Inc()
	return nil
}

// Commit validates ctx's read/write/CAS/JSON-path sets against the
// store's current state and, if nothing conflicts, installs every
// buffered effect at one new global version and appends the matching
// WAL record group. Returns a *OpError with a conflict Kind
// (WriteConflict/VersionConflict/JsonPathConflict/JsonStaleRead) without
// mutating anything if validation fails; ctx remains usable for a retry
// only via a fresh Begin, since this ctx is marked closed either way.
func (co *Coordinator) Commit(ctx *Context) (version uint64, err error) {
	if err := ctx.checkOpen(); err != nil {
		return 0, err
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitLatency)

	runLock := co.lockFor(ctx.RunID)
	runLock.Lock()
	defer runLock.Unlock()

	jsonDocKeys := make(map[string]bool, len(ctx.jsonPathReads)+len(ctx.jsonPathWrites))
	for k := range ctx.jsonPathReads {
		jsonDocKeys[k] = true
	}
	for k := range ctx.jsonPathWrites {
		jsonDocKeys[k] = true
	}

	if err := co.validateKeyReads(ctx, jsonDocKeys); err != nil {
		ctx.closed = true
		metrics.CommitsTotal.WithLabelValues("aborted").Inc()
		metrics.ConflictsTotal.WithLabelValues(string(err.Kind)).Inc()
		return 0, err
	}
	if err := co.validateCAS(ctx); err != nil {
		ctx.closed = true
		metrics.CommitsTotal.WithLabelValues("aborted").Inc()
		metrics.ConflictsTotal.WithLabelValues(string(err.Kind)).Inc()
		return 0, err
	}
	if err := co.validateJSON(ctx); err != nil {
		ctx.closed = true
		metrics.CommitsTotal.WithLabelValues("aborted").Inc()
		metrics.ConflictsTotal.WithLabelValues(string(err.Kind)).Inc()
		return 0, err
	}

	v := co.store.NextVersion()
	nowUnix := time.Now().UnixNano()

	jsonWrites, jerr := ctx.finalizeJSONWrites(v, nowUnix)
	if jerr != nil {
		ctx.closed = true
		return 0, jerr
	}

	if err := co.writeLog(ctx, v, nowUnix, jsonWrites); err != nil {
		ctx.closed = true
		return 0, err
	}

	co.apply(ctx, v, nowUnix, jsonWrites)
	co.recordJSONCommits(ctx, v)

	ctx.closed = true
	metrics.CommitsTotal.WithLabelValues("committed").Inc()
	metrics.GlobalVersion.Set(float64(v))
	co.zlog.Debug().Str("txn_id", ctx.TxnID).Str("run_id", ctx.RunID).Uint64("version", v).
		Int("shard", co.store.ShardFor(ctx.shardHash)).Msg("transaction committed")
	return v, nil
}

func (co *Coordinator) validateKeyReads(ctx *Context, jsonDocKeys map[string]bool) *OpError {
	for k, vAtRead := range ctx.reads {
		if jsonDocKeys[k] {
			continue
		}
		current := co.store.VersionAt(ctx.shardHash, k)
		if current != vAtRead {
			return newErr(KindWriteConflict, k, "key changed since this transaction's snapshot (read v%d, now v%d)", vAtRead, current)
		}
	}
	return nil
}

func (co *Coordinator) validateCAS(ctx *Context) *OpError {
	for k, op := range ctx.cas {
		current := co.store.VersionAt(ctx.shardHash, k)
		if current != op.expectedVersion {
			return newErr(KindVersionConflict, k, "compare-and-swap expected v%d, found v%d", op.expectedVersion, current)
		}
	}
	return nil
}

func (co *Coordinator) validateJSON(ctx *Context) *OpError {
	if len(ctx.jsonPathReads) == 0 && len(ctx.jsonPathWrites) == 0 {
		return nil
	}

	if err := validateIntraTxnJSON(ctx); err != nil {
		return err
	}

	co.jsonLogMu.Lock()
	defer co.jsonLogMu.Unlock()

	for docKey, reads := range ctx.jsonPathReads {
		entries := co.jsonLog[docKey]
		for _, entry := range entries {
			if entry.version <= ctx.startVersion {
				continue
			}
			for _, r := range reads {
				for _, committedPath := range entry.paths {
					if jsonval.Overlap(r.path, committedPath) {
						return newErr(KindJSONStaleRead, docKey, "path %s was read at v%d but changed by a transaction committed at v%d", r.path.String(), r.versionAtRead, entry.version)
					}
				}
			}
		}
	}

	for docKey, writes := range ctx.jsonPathWrites {
		entries := co.jsonLog[docKey]
		for _, entry := range entries {
			if entry.version <= ctx.startVersion {
				continue
			}
			for _, w := range writes {
				for _, committedPath := range entry.paths {
					if jsonval.Overlap(w.path, committedPath) {
						return newErr(KindJSONPathConflict, docKey, "path %s conflicts with a concurrent write committed at v%d", w.path.String(), entry.version)
					}
				}
			}
		}
	}
	return nil
}

// validateIntraTxnJSON checks a transaction's own buffered JSON path
// operations against each other, per-document: two writes whose paths
// overlap, or a read whose path overlaps a write, both conflict even
// though neither has committed yet — e.g. json_set($.a, ...) followed by
// json_set($.a.b, ...) in the same transaction touches the same subtree
// twice and must not silently let the second write win.
func validateIntraTxnJSON(ctx *Context) *OpError {
	for docKey, writes := range ctx.jsonPathWrites {
		for i := 0; i < len(writes); i++ {
			for j := i + 1; j < len(writes); j++ {
				if jsonval.Overlap(writes[i].path, writes[j].path) {
					return newErr(KindJSONPathConflict, docKey, "paths %s and %s overlap within the same transaction", writes[i].path.String(), writes[j].path.String())
				}
			}
		}
		for _, r := range ctx.jsonPathReads[docKey] {
			for _, w := range writes {
				if jsonval.Overlap(r.path, w.path) {
					return newErr(KindJSONPathConflict, docKey, "read path %s overlaps write path %s within the same transaction", r.path.String(), w.path.String())
				}
			}
		}
	}
	return nil
}

func (co *Coordinator) writeLog(ctx *Context, v uint64, nowUnix int64, jsonWrites map[string][]byte) *OpError {
	if co.log == nil {
		return nil
	}
	if err := co.log.AppendBeginTxn(wal.BeginTxn{TxnID: ctx.TxnID, RunID: ctx.RunID, TimestampUnixNano: nowUnix}); err != nil {
		return wrapErr(KindStorage, "", err, "append begin record")
	}
	for k, w := range ctx.writes {
		if err := co.log.AppendWrite(wal.Write{RunID: ctx.RunID, Key: []byte(k), Value: w.value, Version: v, CommitUnix: nowUnix, TTLUnix: w.ttlUnix}); err != nil {
			return wrapErr(KindStorage, k, err, "append write record")
		}
	}
	for k, encoded := range jsonWrites {
		if err := co.log.AppendWrite(wal.Write{RunID: ctx.RunID, Key: []byte(k), Value: encoded, Version: v, CommitUnix: nowUnix}); err != nil {
			return wrapErr(KindStorage, k, err, "append json write record")
		}
	}
	for k := range ctx.deletes {
		if err := co.log.AppendDelete(wal.Delete{RunID: ctx.RunID, Key: []byte(k), Version: v, CommitUnix: nowUnix}); err != nil {
			return wrapErr(KindStorage, k, err, "append delete record")
		}
	}
	for k, op := range ctx.cas {
		if err := co.log.AppendWrite(wal.Write{RunID: ctx.RunID, Key: []byte(k), Value: op.value, Version: v, CommitUnix: nowUnix, TTLUnix: op.ttlUnix}); err != nil {
			return wrapErr(KindStorage, k, err, "append cas write record")
		}
	}
	if err := co.log.AppendCommitTxn(wal.CommitTxn{TxnID: ctx.TxnID, RunID: ctx.RunID}); err != nil {
		return wrapErr(KindStorage, "", err, "append commit record")
	}
	return nil
}

func (co *Coordinator) apply(ctx *Context, v uint64, nowUnix int64, jsonWrites map[string][]byte) {
	for k, w := range ctx.writes {
		co.store.PutWithVersion(ctx.shardHash, k, w.value, v, nowUnix, w.ttlUnix)
	}
	for k, encoded := range jsonWrites {
		co.store.PutWithVersion(ctx.shardHash, k, encoded, v, nowUnix, 0)
	}
	for k := range ctx.deletes {
		co.store.DeleteWithVersion(ctx.shardHash, k, v, nowUnix)
	}
	for k, op := range ctx.cas {
		co.store.PutWithVersion(ctx.shardHash, k, op.value, v, nowUnix, op.ttlUnix)
	}
}

func (co *Coordinator) recordJSONCommits(ctx *Context, v uint64) {
	if len(ctx.jsonPathWrites) == 0 {
		return
	}
	co.jsonLogMu.Lock()
	defer co.jsonLogMu.Unlock()
	for docKey, writes := range ctx.jsonPathWrites {
		paths := make([]jsonval.Path, len(writes))
		for i, w := range writes {
			paths[i] = w.path
		}
		co.jsonLog[docKey] = append(co.jsonLog[docKey], jsonCommitEntry{version: v, paths: paths})
	}
}

// PruneJSONLog drops committed path-write history entries at or below
// minActiveStartVersion: the oldest snapshot version any currently open
// transaction could still need to validate against. Database.Prune calls
// it when its own caller asks; nothing runs it in the background, and
// between calls the per-document commit log keeps growing.
func (co *Coordinator) PruneJSONLog(minActiveStartVersion uint64) {
	co.jsonLogMu.Lock()
	defer co.jsonLogMu.Unlock()
	for docKey, entries := range co.jsonLog {
		kept := entries[:0]
		for _, e := range entries {
			if e.version > minActiveStartVersion {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(co.jsonLog, docKey)
		} else {
			co.jsonLog[docKey] = append([]jsonCommitEntry(nil), kept...)
		}
	}
}

// EncodeKey is a convenience re-export so façades building keys for
// Context calls do not need a separate import of internal/key solely
// for Encode.
func EncodeKey(k key.Key) ([]byte, error) { return key.Encode(k) }
