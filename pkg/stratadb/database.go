package stratadb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stratadb-labs/strata-core-sub010/internal/recovery"
	"github.com/stratadb-labs/strata-core-sub010/internal/store"
	"github.com/stratadb-labs/strata-core-sub010/internal/txn"
	"github.com/stratadb-labs/strata-core-sub010/internal/wal"
	"github.com/stratadb-labs/strata-core-sub010/pkg/log"
	"github.com/stratadb-labs/strata-core-sub010/pkg/metrics"
)

// Durability selects WAL durability mode. It mirrors internal/wal.Durability
// one-for-one; the duplicate exists because embedders outside this module
// cannot import an internal package to name the type themselves.
type Durability int

const (
	// Volatile skips the WAL entirely: commits complete on in-memory
	// install only and do not survive a crash.
	Volatile Durability = iota
	// Buffered queues records in memory and flushes on a timer or once
	// MaxPendingWrites is reached.
	Buffered
	// Strict fsyncs every record before Commit returns.
	Strict
)

func (d Durability) toWAL() wal.Durability { return wal.Durability(d) }

const (
	walFileName        = "wal.log"
	checkpointFileName = "checkpoint.db"
)

// Options configures Open. DataDir holds the WAL file and, once
// Checkpoint or a prior session wrote one, the checkpoint file — both
// live at fixed names within it so a reopen always finds them.
type Options struct {
	DataDir          string
	Durability       Durability
	ShardCount       int           // 0 uses internal/store's default (64)
	FlushInterval    time.Duration // Buffered only; 0 uses the WAL's default (50ms)
	MaxPendingWrites int           // Buffered only; 0 uses the WAL's default (256)
}

// Database is the opened engine handle: the sharded store, the
// write-ahead log, the transaction coordinator, and the live vector
// collection registry, wired together the way internal/txn and
// internal/recovery expect a caller to wire them.
type Database struct {
	mu sync.Mutex

	checkpointPath string

	store   *store.Store
	log     *wal.WAL
	coord   *txn.Coordinator
	vectors *vectorRegistry

	closed bool
	zlog   zerolog.Logger
}

// Open recovers DataDir's prior state (if any) from its checkpoint and
// WAL, then reopens the WAL for further appends under the requested
// durability mode. A DataDir that does not yet exist is created and
// treated as a fresh, empty database.
func Open(opts Options) (*Database, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("stratadb: open: DataDir is required")
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("stratadb: create data dir: %w", err)
	}

	walPath := filepath.Join(opts.DataDir, walFileName)
	checkpointPath := filepath.Join(opts.DataDir, checkpointFileName)

	st := store.Open(opts.ShardCount, 0)
	vectors := newVectorRegistry()

	result, err := recovery.Run(st, vectors, walPath, checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("stratadb: recover: %w", err)
	}
	vectors.reconcileConfigs(st)

	w, err := wal.Open(wal.Options{
		Path:             walPath,
		Durability:       opts.Durability.toWAL(),
		FlushInterval:    opts.FlushInterval,
		MaxPendingWrites: opts.MaxPendingWrites,
	})
	if err != nil {
		return nil, fmt.Errorf("stratadb: open wal: %w", err)
	}

	db := &Database{
		checkpointPath: checkpointPath,
		store:          st,
		log:            w,
		coord:          txn.New(st, w),
		vectors:        vectors,
		zlog:           log.WithComponent("stratadb"),
	}

	db.zlog.Info().
		Uint64("recovered_version", result.FinalVersion).
		Int("records_applied", result.RecordsApplied).
		Int("discarded_txns", result.DiscardedTxns).
		Msg("database opened")

	metrics.RegisterComponent("store", true, "")
	metrics.RegisterComponent("wal", true, "")
	return db, nil
}

// Begin opens a new explicit transaction scoped to runID. Callers must
// eventually Commit or Abort it. Do is the convenience wrapper for the
// common single-shot ("implicit transaction") case.
func (db *Database) Begin(runID string) *txn.Context {
	return db.coord.Begin(runID)
}

// Commit validates and installs ctx's buffered effects. See
// internal/txn.Coordinator.Commit for the full conflict taxonomy.
func (db *Database) Commit(ctx *txn.Context) (uint64, error) {
	return db.coord.Commit(ctx)
}

// Abort discards ctx's buffered effects without touching the store.
func (db *Database) Abort(ctx *txn.Context) error {
	return db.coord.Abort(ctx)
}

// Do runs fn inside a fresh transaction scoped to runID, committing on a
// nil return and aborting (then returning fn's error) otherwise. Every
// façade's single-call convenience method is built on this.
func (db *Database) Do(runID string, fn func(ctx *txn.Context) error) error {
	ctx := db.coord.Begin(runID)
	if err := fn(ctx); err != nil {
		_ = db.coord.Abort(ctx)
		return err
	}
	_, err := db.coord.Commit(ctx)
	return err
}

// Checkpoint writes a full-state snapshot of the store to the data
// directory's checkpoint file, which a future Open installs before
// replaying the WAL (records at or below the checkpoint's version are
// replayed too and leave the store unchanged). Safe to call while the
// database is otherwise in use: a checkpoint taken mid-flight is allowed
// to miss or race a concurrent commit, since recovery always replays the
// WAL on top of it and installation is idempotent either way.
func (db *Database) Checkpoint() error {
	version := db.store.CurrentVersion()
	live := db.store.AllLiveEntries()
	entries := make([]wal.CheckpointEntry, 0, len(live))
	for _, e := range live {
		entries = append(entries, wal.CheckpointEntry{
			EncodedKey: []byte(e.EncodedKey),
			Value:      store.EncodeVersionedValue(e.Value),
		})
	}
	if err := wal.WriteCheckpoint(db.checkpointPath, version, entries); err != nil {
		return fmt.Errorf("stratadb: checkpoint: %w", err)
	}
	db.zlog.Info().Uint64("version", version).Int("entries", len(entries)).Msg("checkpoint written")
	return nil
}

// Prune reclaims superseded store history, expired tombstones, and
// per-document JSON conflict-log history below minActiveVersion — the
// oldest start_version among any transaction the caller knows to still
// be open. The engine does not track open transactions itself (a
// Context is owned entirely by its caller), so callers that hold
// long-lived transactions are responsible for passing a safe bound;
// passing Stats().GlobalVersion is safe only when no transaction
// outlives the call that retrieved it.
func (db *Database) Prune(minActiveVersion uint64) {
	db.store.Prune(minActiveVersion)
	db.coord.PruneJSONLog(minActiveVersion)
}

// Close flushes and closes the WAL. It does not write a checkpoint;
// callers that want a fast next Open should call Checkpoint first.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	if err := db.log.Close(); err != nil {
		metrics.RegisterComponent("wal", false, err.Error())
		return fmt.Errorf("stratadb: close wal: %w", err)
	}
	metrics.RegisterComponent("wal", false, "closed")
	return nil
}

// Stats reports point-in-time engine introspection, grounded on the
// teacher's pkg/metrics.Collector pattern of polling live state on
// demand rather than maintaining a push-based aggregate.
type Stats struct {
	GlobalVersion   uint64
	ShardCount      int
	VectorHeapSizes map[string]int
}

func (db *Database) Stats() Stats {
	return Stats{
		GlobalVersion:   db.store.CurrentVersion(),
		ShardCount:      db.store.ShardCount(),
		VectorHeapSizes: db.vectors.sizes(),
	}
}
