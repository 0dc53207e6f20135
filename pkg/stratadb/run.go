package stratadb

import (
	"time"

	"github.com/google/uuid"

	"github.com/stratadb-labs/strata-core-sub010/internal/jsonval"
	"github.com/stratadb-labs/strata-core-sub010/internal/key"
	"github.com/stratadb-labs/strata-core-sub010/internal/runlifecycle"
	"github.com/stratadb-labs/strata-core-sub010/internal/txn"
)

// runIndexShard is the reserved pseudo run ID every secondary-index entry
// (by status, by tag, by parent) is written under, regardless of which
// run it describes. Index entries need a fixed, predictable shard to
// live in so that ListByStatus/ListByTag/ListByParent can prefix-scan one
// shard instead of fanning out across every shard in the store. Run IDs
// that Create generates are UUIDs and cannot collide with it; a
// caller-supplied run ID is not checked, so a run named "_runindex"
// would share this namespace.
const runIndexShard = "_runindex"

// RunRecord is the run-index's own metadata: identity, lifecycle status,
// ancestry, free-form tags/metadata an embedder attaches, and the
// timestamps/error a run accrues over its lifetime.
type RunRecord struct {
	RunID        string
	Parent       string // empty means no parent
	Status       RunStatus
	CreatedAt    int64
	UpdatedAt    int64
	CompletedAt  int64 // 0 means not yet reached a terminal status
	Tags         []string
	UserMetadata map[string]string
	Error        string // empty means none recorded
}

// RunOptions carries the optional fields Create accepts beyond the bare
// namespace: a parent run for hierarchical agent workflows, and the
// tags/user_metadata an embedder wants indexed or carried alongside the
// record.
type RunOptions struct {
	Parent       string
	Tags         []string
	UserMetadata map[string]string
}

// RunIndex is the run-lifecycle primitive: one record per run tracking
// its status (validated against internal/runlifecycle's state machine)
// plus the by-status/by-tag/by-parent secondary indexes spec.md's run
// index names, and the single entry point for tearing down everything a
// run owns across every other primitive.
type RunIndex struct {
	db *Database
}

// RunIndex returns a RunIndex projection over db.
func (db *Database) RunIndex() RunIndex { return RunIndex{db: db} }

func runKey(ns Namespace) ([]byte, error) {
	k, err := key.KeyFor(ns, key.TagRun, []byte(ns.RunID))
	if err != nil {
		return nil, err
	}
	return key.Encode(k)
}

// indexNamespace returns the fixed-shard namespace every secondary-index
// entry for ns's (tenant, app, agent) scope is stored under.
func indexNamespace(ns Namespace) Namespace {
	return Namespace{Tenant: ns.Tenant, App: ns.App, Agent: ns.Agent, RunID: runIndexShard}
}

func statusIndexKey(ns Namespace, status RunStatus, runID string) ([]byte, error) {
	k, err := key.KeyFor(indexNamespace(ns), key.TagRun, []byte("status:"+string(status)+":"+runID))
	if err != nil {
		return nil, err
	}
	return key.Encode(k)
}

func tagIndexKey(ns Namespace, tag string, runID string) ([]byte, error) {
	k, err := key.KeyFor(indexNamespace(ns), key.TagRun, []byte("tag:"+tag+":"+runID))
	if err != nil {
		return nil, err
	}
	return key.Encode(k)
}

func parentIndexKey(ns Namespace, parentRunID string, runID string) ([]byte, error) {
	k, err := key.KeyFor(indexNamespace(ns), key.TagRun, []byte("parent:"+parentRunID+":"+runID))
	if err != nil {
		return nil, err
	}
	return key.Encode(k)
}

func runRecordValue(rec RunRecord) Value {
	m := NewValueMap()
	m.Set("run_id", StringValue(rec.RunID))
	m.Set("parent", StringValue(rec.Parent))
	m.Set("status", StringValue(string(rec.Status)))
	m.Set("created_at", Int64Value(rec.CreatedAt))
	m.Set("updated_at", Int64Value(rec.UpdatedAt))
	m.Set("completed_at", Int64Value(rec.CompletedAt))
	m.Set("error", StringValue(rec.Error))

	tags := NewValueList()
	for _, t := range rec.Tags {
		tags.Append(StringValue(t))
	}
	m.Set("tags", ListValue(tags))

	meta := NewValueMap()
	for _, k := range sortedKeys(rec.UserMetadata) {
		meta.Set(k, StringValue(rec.UserMetadata[k]))
	}
	m.Set("user_metadata", MapValue(meta))

	return MapValue(m)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func runRecordFromValue(v Value) (RunRecord, error) {
	m, err := v.AsMap()
	if err != nil {
		return RunRecord{}, err
	}
	runID, _ := m.Get("run_id")
	parent, _ := m.Get("parent")
	status, _ := m.Get("status")
	createdAt, _ := m.Get("created_at")
	updatedAt, _ := m.Get("updated_at")
	completedAt, _ := m.Get("completed_at")
	runErr, _ := m.Get("error")

	rid, _ := runID.AsString()
	pid, _ := parent.AsString()
	st, _ := status.AsString()
	ca, _ := createdAt.AsInt64()
	ua, _ := updatedAt.AsInt64()
	coa, _ := completedAt.AsInt64()
	em, _ := runErr.AsString()

	rec := RunRecord{
		RunID: rid, Parent: pid, Status: RunStatus(st),
		CreatedAt: ca, UpdatedAt: ua, CompletedAt: coa, Error: em,
	}

	if tagsVal, ok := m.Get("tags"); ok {
		if l, err := tagsVal.AsList(); err == nil {
			for _, item := range l.Items() {
				if s, err := item.AsString(); err == nil {
					rec.Tags = append(rec.Tags, s)
				}
			}
		}
	}
	if metaVal, ok := m.Get("user_metadata"); ok {
		if mm, err := metaVal.AsMap(); err == nil && mm.Len() > 0 {
			rec.UserMetadata = make(map[string]string, mm.Len())
			for _, k := range mm.Keys() {
				if val, ok := mm.Get(k); ok {
					if s, err := val.AsString(); err == nil {
						rec.UserMetadata[k] = s
					}
				}
			}
		}
	}
	return rec, nil
}

// putIndexEntries writes one index entry per (category, value) pair
// under the fixed index shard, in its own transaction: index entries
// belong to a different shard than the run's own metadata (hashed off
// runIndexShard rather than the run's own run_id), so they cannot share
// a transaction with the run-record write, which is scoped to the run's
// own shard. This mirrors the spec's allowance that the index-maintaining
// cascade runs as "a bounded set of per-shard transactions" rather than
// one single cross-shard commit.
func (s RunIndex) putIndexEntries(ns Namespace, rec RunRecord) error {
	encodedRunID, err := jsonval.Marshal(StringValue(rec.RunID))
	if err != nil {
		return err
	}
	return s.db.Do(runIndexShard, func(ctx *txn.Context) error {
		statusKey, err := statusIndexKey(ns, rec.Status, rec.RunID)
		if err != nil {
			return err
		}
		if err := ctx.Put(statusKey, encodedRunID, 0); err != nil {
			return err
		}
		if rec.Parent != "" {
			parentKey, err := parentIndexKey(ns, rec.Parent, rec.RunID)
			if err != nil {
				return err
			}
			if err := ctx.Put(parentKey, encodedRunID, 0); err != nil {
				return err
			}
		}
		for _, tag := range rec.Tags {
			tagKey, err := tagIndexKey(ns, tag, rec.RunID)
			if err != nil {
				return err
			}
			if err := ctx.Put(tagKey, encodedRunID, 0); err != nil {
				return err
			}
		}
		return nil
	})
}

// deleteIndexEntries removes every index entry rec currently has —
// mirror image of putIndexEntries, called both from UpdateStatus (to
// drop the stale status entry before writing the new one) and Delete
// (full teardown).
func (s RunIndex) deleteIndexEntries(ns Namespace, rec RunRecord) error {
	return s.db.Do(runIndexShard, func(ctx *txn.Context) error {
		statusKey, err := statusIndexKey(ns, rec.Status, rec.RunID)
		if err != nil {
			return err
		}
		if err := ctx.Delete(statusKey); err != nil {
			return err
		}
		if rec.Parent != "" {
			parentKey, err := parentIndexKey(ns, rec.Parent, rec.RunID)
			if err != nil {
				return err
			}
			if err := ctx.Delete(parentKey); err != nil {
				return err
			}
		}
		for _, tag := range rec.Tags {
			tagKey, err := tagIndexKey(ns, tag, rec.RunID)
			if err != nil {
				return err
			}
			if err := ctx.Delete(tagKey); err != nil {
				return err
			}
		}
		return nil
	})
}

// Create registers a new run in the Active status. If runID is empty, a
// fresh UUID is generated. Returns ErrAlreadyExists if the run is already
// present.
func (s RunIndex) Create(ns Namespace) (string, error) {
	return s.CreateWithOptions(ns, RunOptions{})
}

// CreateWithOptions is Create with the parent/tags/user_metadata fields
// spec.md's Run tuple names. Every tag and the parent (if set) get a
// secondary-index entry; status gets one unconditionally.
func (s RunIndex) CreateWithOptions(ns Namespace, opts RunOptions) (string, error) {
	if ns.RunID == "" {
		ns.RunID = uuid.New().String()
	}
	encKey, err := runKey(ns)
	if err != nil {
		return "", err
	}
	now := time.Now().Unix()
	rec := RunRecord{
		RunID: ns.RunID, Parent: opts.Parent, Status: StatusActive,
		CreatedAt: now, UpdatedAt: now,
		Tags: opts.Tags, UserMetadata: opts.UserMetadata,
	}
	encoded, err := jsonval.Marshal(runRecordValue(rec))
	if err != nil {
		return "", err
	}
	err = s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		if _, found, err := ctx.Get(encKey); err != nil {
			return err
		} else if found {
			return &txn.OpError{Kind: txn.KindAlreadyExists, Key: ns.RunID, Message: "run already exists"}
		}
		return ctx.Put(encKey, encoded, 0)
	})
	if err != nil {
		return "", err
	}
	if err := s.putIndexEntries(ns, rec); err != nil {
		return "", err
	}
	return ns.RunID, nil
}

// Get returns ns.RunID's current RunRecord.
func (s RunIndex) Get(ns Namespace) (RunRecord, bool, error) {
	encKey, err := runKey(ns)
	if err != nil {
		return RunRecord{}, false, err
	}
	shardHash := key.ShardHash(ns.RunID)
	vv, found := s.db.store.Get(shardHash, string(encKey), s.db.store.CurrentVersion())
	if !found {
		return RunRecord{}, false, nil
	}
	v, err := jsonval.Unmarshal(vv.Value)
	if err != nil {
		return RunRecord{}, false, err
	}
	rec, err := runRecordFromValue(v)
	if err != nil {
		return RunRecord{}, false, err
	}
	return rec, true, nil
}

// marksCompletion reports whether reaching status should stamp
// completed_at: Completed, Failed, and Cancelled all mark the run as done
// executing, distinct from runlifecycle.IsTerminal (which only Archived
// satisfies, since Completed/Failed/Cancelled can still transition to
// Archived).
func marksCompletion(status RunStatus) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// UpdateStatus transitions ns.RunID to newStatus, rejecting the change
// with ErrInvalidTransition if internal/runlifecycle's state machine does
// not allow it from the run's current status. The by-status index entry
// moves from the old status to the new one as part of the same call.
func (s RunIndex) UpdateStatus(ns Namespace, newStatus RunStatus) error {
	encKey, err := runKey(ns)
	if err != nil {
		return err
	}
	var oldRec, newRec RunRecord
	err = s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		raw, found, err := ctx.Get(encKey)
		if err != nil {
			return err
		}
		if !found {
			return &txn.OpError{Kind: txn.KindNotFound, Key: ns.RunID, Message: "run not found"}
		}
		v, err := jsonval.Unmarshal(raw)
		if err != nil {
			return err
		}
		rec, err := runRecordFromValue(v)
		if err != nil {
			return err
		}
		if err := runlifecycle.Validate(runlifecycle.Status(rec.Status), runlifecycle.Status(newStatus)); err != nil {
			return &txn.OpError{Kind: txn.KindInvalidTransition, Key: ns.RunID, Message: err.Error(), Cause: err}
		}
		oldRec = rec
		newRec = rec
		newRec.Status = newStatus
		newRec.UpdatedAt = time.Now().Unix()
		if marksCompletion(newStatus) && newRec.CompletedAt == 0 {
			newRec.CompletedAt = newRec.UpdatedAt
		}
		encoded, err := jsonval.Marshal(runRecordValue(newRec))
		if err != nil {
			return err
		}
		return ctx.Put(encKey, encoded, 0)
	})
	if err != nil {
		return err
	}
	if oldRec.Status == newRec.Status {
		return nil
	}
	// Move the status index entry: old status' entry is only this run's
	// to drop (tags/parent are unaffected by a status change).
	if err := s.db.Do(runIndexShard, func(ctx *txn.Context) error {
		oldKey, err := statusIndexKey(ns, oldRec.Status, ns.RunID)
		if err != nil {
			return err
		}
		if err := ctx.Delete(oldKey); err != nil {
			return err
		}
		newKey, err := statusIndexKey(ns, newRec.Status, ns.RunID)
		if err != nil {
			return err
		}
		encodedRunID, err := jsonval.Marshal(StringValue(ns.RunID))
		if err != nil {
			return err
		}
		return ctx.Put(newKey, encodedRunID, 0)
	}); err != nil {
		return err
	}
	return nil
}

// Delete tears down every key any primitive has written under ns.RunID's
// namespace, across every type tag, plus any vector heaps the run's
// collections own, plus this run's by-status/by-tag/by-parent secondary
// index entries. This is the cascading delete the spec requires: once a
// run is gone, nothing addressable by its RunID — including through an
// index — survives a subsequent Prune.
func (s RunIndex) Delete(ns Namespace) error {
	rec, found, err := s.Get(ns)
	if err != nil {
		return err
	}

	prefix, err := key.PrefixForNamespace(ns)
	if err != nil {
		return err
	}
	shardHash := key.ShardHash(ns.RunID)
	entries := s.db.store.ScanPrefix(shardHash, string(prefix), s.db.store.CurrentVersion())

	err = s.db.Do(ns.RunID, func(ctx *txn.Context) error {
		for _, e := range entries {
			if err := ctx.Delete([]byte(e.EncodedKey)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.db.vectors.deleteRun(ns.RunID)

	if found {
		if err := s.deleteIndexEntries(ns, rec); err != nil {
			return err
		}
	}
	return nil
}

// ListByStatus returns the run IDs currently indexed under status within
// ns's (tenant, app, agent) scope.
func (s RunIndex) ListByStatus(ns Namespace, status RunStatus) ([]string, error) {
	return s.scanIndex(ns, "status:"+string(status)+":")
}

// ListByTag returns the run IDs currently indexed under tag within ns's
// (tenant, app, agent) scope.
func (s RunIndex) ListByTag(ns Namespace, tag string) ([]string, error) {
	return s.scanIndex(ns, "tag:"+tag+":")
}

// ListByParent returns the run IDs whose parent is parentRunID within
// ns's (tenant, app, agent) scope.
func (s RunIndex) ListByParent(ns Namespace, parentRunID string) ([]string, error) {
	return s.scanIndex(ns, "parent:"+parentRunID+":")
}

func (s RunIndex) scanIndex(ns Namespace, category string) ([]string, error) {
	idxNS := indexNamespace(ns)
	tagPrefix, err := key.PrefixFor(idxNS, key.TagRun)
	if err != nil {
		return nil, err
	}
	fullPrefix := string(tagPrefix) + category

	shardHash := key.ShardHash(idxNS.RunID)
	entries := s.db.store.ScanPrefix(shardHash, fullPrefix, s.db.store.CurrentVersion())

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		v, err := jsonval.Unmarshal(e.Value.Value)
		if err != nil {
			continue
		}
		runID, err := v.AsString()
		if err != nil {
			continue
		}
		out = append(out, runID)
	}
	return out, nil
}
