// Package store implements the sharded, versioned in-memory store: a
// concurrent mapping from internal/key.Key to a versioned value, with
// snapshot reads, versioned writes, and ordered prefix scans.
//
// The concurrency shape is grounded on Jekaa-go-mvcc-map's version/clone
// design (copy-on-write "current version" swapped under a narrow commit
// lock) but generalized from one global version to S independent shards
// keyed by run ID, so that each run's commits only contend with that
// run's own writes. Each key's versions sit behind a short per-entry
// mutex that readers and writers both take; a reader can wait for the
// duration of one version install on the same key.
package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/stratadb-labs/strata-core-sub010/pkg/log"
)

// VersionedValue is the (value, version, commit_timestamp, optional_ttl)
// tuple stored for each live key. Version 0 is reserved to mean "never
// existed"; Tombstone marks a versioned delete marker rather than
// absence.
type VersionedValue struct {
	Value      []byte // façade-opaque encoded value; see internal/txn for the encode/decode boundary
	Version    uint64
	CommitUnix int64 // commit_timestamp, unix nanos
	TTLUnix    int64 // 0 means "no TTL"; otherwise unix nanos of expiry
	Tombstone  bool
}

// DefaultShardCount is the default number of shards: a power of two,
// configurable at Open time.
const DefaultShardCount = 64

// entry is the per-key slot kept inside a shard: the live VersionedValue
// plus a tail of superseded versions retained only until no snapshot can
// still reach them. Most keys never accumulate a tail in steady state;
// Prune reclaims one once every snapshot that could observe it is gone.
type entry struct {
	mu      sync.Mutex
	live    VersionedValue
	history []VersionedValue // strictly older versions, newest first
}

// shard owns a disjoint slice of the keyspace (by hashed run ID). The
// map mutex only guards inserting brand-new keys/entries; once an entry
// exists, reads and writes against it go through entry.mu, which is held
// only long enough to install one version — writes serialize per shard
// at apply time, not for the whole commit.
type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func newShard() *shard {
	return &shard{entries: make(map[string]*entry)}
}

func (s *shard) getOrCreate(k string) *entry {
	s.mu.RLock()
	e, ok := s.entries[k]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[k]; ok {
		return e
	}
	e = &entry{}
	s.entries[k] = e
	return e
}

func (s *shard) get(k string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[k]
	return e, ok
}

// Store is the sharded versioned store. It has no background goroutines
// of its own — tombstone/version pruning is driven externally (by
// recovery/GC callers) via Prune.
type Store struct {
	shards     []*shard
	shardCount uint64

	globalVersion atomic.Uint64
}

// Open constructs a Store with shardCount shards (rounded up to the next
// power of two if it is not already one) and a global version counter
// starting at startVersion — callers restoring from a checkpoint or WAL
// pass in the version recovery computed, so the counter resumes at the
// maximum committed version seen.
func Open(shardCount int, startVersion uint64) *Store {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	shardCount = nextPowerOfTwo(shardCount)

	s := &Store{
		shards:     make([]*shard, shardCount),
		shardCount: uint64(shardCount),
	}
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	s.globalVersion.Store(startVersion)
	return s
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// ShardFor returns the shard index a given shard-hash routes to.
func (s *Store) ShardFor(hash uint64) int {
	return int(hash & (s.shardCount - 1))
}

// ShardCount reports the number of shards the store was opened with.
func (s *Store) ShardCount() int { return int(s.shardCount) }

// CurrentVersion returns the current global version counter value.
func (s *Store) CurrentVersion() uint64 {
	return s.globalVersion.Load()
}

// NextVersion atomically increments and returns the new global version.
// Only the transaction coordinator, at its commit serialization point,
// should call this.
func (s *Store) NextVersion() uint64 {
	return s.globalVersion.Add(1)
}

// ObserveVersion advances the global counter to at least v without
// necessarily incrementing by exactly one — used by recovery, which
// installs versions verbatim from the WAL/checkpoint rather than minting
// new ones.
func (s *Store) ObserveVersion(v uint64) {
	for {
		cur := s.globalVersion.Load()
		if v <= cur {
			return
		}
		if s.globalVersion.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Get reads the version of k visible at snapshotVersion: the newest
// VersionedValue with Version <= snapshotVersion. A tombstone at or below
// the snapshot surfaces as "absent" (ok=false).
func (s *Store) Get(shardHash uint64, encodedKey string, snapshotVersion uint64) (VersionedValue, bool) {
	sh := s.shards[s.ShardFor(shardHash)]
	e, ok := sh.get(encodedKey)
	if !ok {
		return VersionedValue{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	vv, ok := visibleVersion(e, snapshotVersion)
	if !ok || vv.Tombstone {
		return VersionedValue{}, false
	}
	return vv, true
}

// visibleVersion scans live+history (newest-first) for the newest version
// whose Version <= snapshotVersion.
func visibleVersion(e *entry, snapshotVersion uint64) (VersionedValue, bool) {
	if e.live.Version != 0 && e.live.Version <= snapshotVersion {
		return e.live, true
	}
	for _, vv := range e.history {
		if vv.Version <= snapshotVersion {
			return vv, true
		}
	}
	return VersionedValue{}, false
}

// PutWithVersion installs VersionedValue{v, ...} for k iff no existing
// version on k is already >= v; otherwise it is a no-op. This idempotence
// is what makes WAL replay safe to re-run.
func (s *Store) PutWithVersion(shardHash uint64, encodedKey string, val []byte, v uint64, commitUnix int64, ttlUnix int64) {
	s.installVersion(shardHash, encodedKey, VersionedValue{
		Value:      val,
		Version:    v,
		CommitUnix: commitUnix,
		TTLUnix:    ttlUnix,
	})
}

// DeleteWithVersion installs a tombstone at version v under the same
// idempotence rule as PutWithVersion. A tombstone counts as a write for
// conflict detection just like any other version.
func (s *Store) DeleteWithVersion(shardHash uint64, encodedKey string, v uint64, commitUnix int64) {
	s.installVersion(shardHash, encodedKey, VersionedValue{
		Version:    v,
		CommitUnix: commitUnix,
		Tombstone:  true,
	})
}

func (s *Store) installVersion(shardHash uint64, encodedKey string, vv VersionedValue) {
	sh := s.shards[s.ShardFor(shardHash)]
	e := sh.getOrCreate(encodedKey)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.live.Version >= vv.Version {
		// Either a true duplicate replay, or a genuinely stale install —
		// both are no-ops per the idempotence rule.
		log.WithShard(s.ShardFor(shardHash)).Debug().
			Uint64("incoming_version", vv.Version).Uint64("live_version", e.live.Version).
			Msg("skipped stale or duplicate install")
		return
	}
	if e.live.Version != 0 {
		e.history = append([]VersionedValue{e.live}, e.history...)
	}
	e.live = vv
	s.ObserveVersion(vv.Version)
}

// InstallFromCheckpoint installs vv verbatim, the same idempotent
// install path PutWithVersion/DeleteWithVersion use. Recovery calls this
// once per checkpoint entry before WAL replay begins, so any WAL record
// at or below the checkpoint's version is a no-op when replayed.
func (s *Store) InstallFromCheckpoint(shardHash uint64, encodedKey string, vv VersionedValue) {
	s.installVersion(shardHash, encodedKey, vv)
}

// VersionAt returns the committed version of encodedKey at the moment
// this call is made, or 0 if the key has never been written (tombstones
// count: a deleted key's VersionAt is the tombstone's version, not 0).
func (s *Store) VersionAt(shardHash uint64, encodedKey string) uint64 {
	sh := s.shards[s.ShardFor(shardHash)]
	e, ok := sh.get(encodedKey)
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live.Version
}

// ScanEntry pairs a decoded-ready encoded key with its visible version,
// for prefix scans.
type ScanEntry struct {
	EncodedKey string
	Value      VersionedValue
}

// AllLiveEntries returns every live (non-tombstone) key across all shards
// at their current version, for full-state checkpoint writing. Unlike
// ScanPrefix it is not scoped to one shard's snapshot-consistent view: a
// checkpoint taken while commits are still landing is allowed to be
// fuzzy, since recovery always replays the WAL on top of it and
// PutWithVersion's idempotence makes any inconsistency self-healing.
func (s *Store) AllLiveEntries() []ScanEntry {
	var out []ScanEntry
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, e := range sh.entries {
			e.mu.Lock()
			if !e.live.Tombstone && e.live.Version != 0 {
				out = append(out, ScanEntry{EncodedKey: k, Value: e.live})
			}
			e.mu.Unlock()
		}
		sh.mu.RUnlock()
	}
	return out
}

// ScanPrefix returns, in lexical key order, every live (non-tombstone) key
// within shardHash's shard whose encoded form starts with prefix and whose
// visible version is <= snapshotVersion.
//
// Prefix scans are scoped to a single shard because every key sharing a
// namespace hashes to the same shard by construction; callers scanning
// across shards (e.g. a tag-only prefix spanning many runs) must call
// ScanPrefix once per shard and merge — the run-scoped façades never need
// to, since a run's keys live in exactly one shard.
func (s *Store) ScanPrefix(shardHash uint64, prefix string, snapshotVersion uint64) []ScanEntry {
	sh := s.shards[s.ShardFor(shardHash)]

	sh.mu.RLock()
	matched := make([]string, 0, len(sh.entries))
	for k := range sh.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			matched = append(matched, k)
		}
	}
	sh.mu.RUnlock()

	sort.Strings(matched)

	out := make([]ScanEntry, 0, len(matched))
	for _, k := range matched {
		e, ok := sh.get(k)
		if !ok {
			continue
		}
		e.mu.Lock()
		vv, ok := visibleVersion(e, snapshotVersion)
		e.mu.Unlock()
		if !ok || vv.Tombstone {
			continue
		}
		out = append(out, ScanEntry{EncodedKey: k, Value: vv})
	}
	return out
}

