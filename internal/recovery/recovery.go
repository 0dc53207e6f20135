// Package recovery rebuilds the sharded store and vector heaps from a
// checkpoint plus the write-ahead log, the only path by which the
// engine's in-memory state is reconstructed after a crash or restart.
package recovery

import (
	"errors"
	"fmt"
	"io"

	"github.com/stratadb-labs/strata-core-sub010/internal/key"
	"github.com/stratadb-labs/strata-core-sub010/internal/store"
	"github.com/stratadb-labs/strata-core-sub010/internal/wal"
	"github.com/stratadb-labs/strata-core-sub010/pkg/log"
	"github.com/stratadb-labs/strata-core-sub010/pkg/metrics"
)

// pendingTxn buffers one in-flight transaction's effects until its
// CommitTxn record is seen. A transaction whose buffer is still open at
// AbortTxn, at a later BeginTxn for the same run, at end of log, or at
// the first CRC failure is discarded: none of its effects were durably
// committed.
type pendingTxn struct {
	writes  []wal.Write
	deletes []wal.Delete
	vInsert []wal.VectorInsert
	vUpdate []wal.VectorUpdate
	vDelete []wal.VectorDelete
}

// VectorSink receives replayed vector-heap effects. The caller (the
// database façade, which owns the collection->heap mapping) supplies an
// implementation; recovery itself has no notion of which collections
// exist.
type VectorSink interface {
	InsertWithID(collectionID string, id uint64, embedding []float32, version uint64) error
	Update(collectionID string, id uint64, embedding []float32, version uint64) error
	Delete(collectionID string, id uint64, version uint64) error
}

// Result summarizes one recovery run.
type Result struct {
	RecordsApplied    int
	DiscardedTxns     int
	CheckpointVersion uint64
	FinalVersion      uint64
}

// Run loads checkpointPath (if present) into st, then replays all of
// walPath on top of it, applying every committed
// transaction's buffered writes/deletes/vector effects to st and vectors
// respectively. It follows the procedure: buffer per run ID, apply only
// on CommitTxn, discard on AbortTxn or an unterminated buffer at EOF or
// at the first corrupt record (a truncated tail, not a fatal error).
func Run(st *store.Store, vectors VectorSink, walPath, checkpointPath string) (Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RecoveryReplayDuration)

	logger := log.WithComponent("recovery")

	var res Result

	if checkpointPath != "" {
		version, entries, err := wal.ReadCheckpoint(checkpointPath)
		if err != nil {
			return res, fmt.Errorf("recovery: load checkpoint: %w", err)
		}
		res.CheckpointVersion = version
		for _, e := range entries {
			vv, err := store.DecodeVersionedValue(e.Value)
			if err != nil {
				return res, fmt.Errorf("recovery: decode checkpoint entry: %w", err)
			}
			k, err := key.Decode(e.EncodedKey)
			if err != nil {
				return res, fmt.Errorf("recovery: decode checkpoint key: %w", err)
			}
			shardHash := key.ShardHash(k.Namespace.RunID)
			st.InstallFromCheckpoint(shardHash, string(e.EncodedKey), vv)
		}
		st.ObserveVersion(version)
		logger.Info().Uint64("checkpoint_version", version).Int("entries", len(entries)).Msg("checkpoint loaded")
	}

	// Records at or below the checkpoint's version are not explicitly
	// skipped during replay: PutWithVersion/DeleteWithVersion's own
	// idempotence rule already makes re-applying them a no-op once the
	// checkpoint install has set each key's live version at or above
	// theirs.
	r, err := wal.OpenReader(walPath)
	if err != nil {
		return res, fmt.Errorf("recovery: open wal: %w", err)
	}
	defer r.Close()

	pending := make(map[string]*pendingTxn)
	maxVersion := res.CheckpointVersion

	for {
		tag, payload, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, wal.ErrCorruptRecord) {
			logger.Warn().Int("discarded_txns", len(pending)).Msg("wal tail truncated; stopping replay")
			break
		}
		if err != nil {
			return res, fmt.Errorf("recovery: read wal record: %w", err)
		}

		if tag == wal.TagBeginTxn {
			// The run's previous transaction never reached CommitTxn or
			// AbortTxn (a crash or a failed append before its CommitTxn):
			// discard it rather than merge it into the one starting here.
			if b, derr := wal.DecodeBeginTxn(payload); derr == nil {
				if _, open := pending[b.RunID]; open {
					delete(pending, b.RunID)
					res.DiscardedTxns++
				}
			}
		}

		if err := applyRecord(pending, tag, payload); err != nil {
			return res, fmt.Errorf("recovery: decode wal record: %w", err)
		}

		if tag == wal.TagCommitTxn {
			commit, err := wal.DecodeCommitTxn(payload)
			if err != nil {
				return res, fmt.Errorf("recovery: decode commit record: %w", err)
			}
			txn, ok := pending[commit.RunID]
			if !ok {
				continue
			}
			applied, v := installTxn(st, vectors, txn)
			res.RecordsApplied += applied
			if v > maxVersion {
				maxVersion = v
			}
			log.WithRunID(commit.RunID).Debug().Uint64("version", v).Int("effects", applied).
				Msg("replayed committed transaction")
			delete(pending, commit.RunID)
		} else if tag == wal.TagAbortTxn {
			abort, err := wal.DecodeAbortTxn(payload)
			if err != nil {
				return res, fmt.Errorf("recovery: decode abort record: %w", err)
			}
			if _, ok := pending[abort.RunID]; ok {
				delete(pending, abort.RunID)
				res.DiscardedTxns++
			}
		}
	}

	// Anything still buffered at end-of-log never saw a CommitTxn: an
	// incomplete transaction, discarded per the replay contract.
	res.DiscardedTxns += len(pending)

	if maxVersion > res.CheckpointVersion {
		st.ObserveVersion(maxVersion)
	}
	res.FinalVersion = st.CurrentVersion()
	metrics.GlobalVersion.Set(float64(res.FinalVersion))
	metrics.RecoveryRecordsApplied.Add(float64(res.RecordsApplied))

	logger.Info().
		Int("records_applied", res.RecordsApplied).
		Int("discarded_txns", res.DiscardedTxns).
		Uint64("final_version", res.FinalVersion).
		Msg("recovery complete")

	return res, nil
}

// applyRecord buffers a record's effect against its owning run. Every
// effect record (Write, Delete, Vector*) carries RunID rather than
// TxnID, and the coordinator holds a per-run lock for the entire commit
// call, so at most one transaction per run is ever in flight at a time:
// bucketing every record type, including BeginTxn/CommitTxn/AbortTxn
// (which do carry both IDs), by RunID alone is therefore sufficient and
// avoids a buffer split across two keys that would never be reunited.
func applyRecord(pending map[string]*pendingTxn, tag wal.RecordTag, payload []byte) error {
	switch tag {
	case wal.TagBeginTxn:
		b, err := wal.DecodeBeginTxn(payload)
		if err != nil {
			return err
		}
		ensureTxn(pending, b.RunID)
	case wal.TagWrite:
		w, err := wal.DecodeWrite(payload)
		if err != nil {
			return err
		}
		t := ensureTxnForRun(pending, w.RunID)
		t.writes = append(t.writes, w)
	case wal.TagDelete:
		d, err := wal.DecodeDelete(payload)
		if err != nil {
			return err
		}
		t := ensureTxnForRun(pending, d.RunID)
		t.deletes = append(t.deletes, d)
	case wal.TagVectorInsert:
		v, err := wal.DecodeVectorInsert(payload)
		if err != nil {
			return err
		}
		t := ensureTxnForRun(pending, v.RunID)
		t.vInsert = append(t.vInsert, v)
	case wal.TagVectorUpdate:
		v, err := wal.DecodeVectorUpdate(payload)
		if err != nil {
			return err
		}
		t := ensureTxnForRun(pending, v.RunID)
		t.vUpdate = append(t.vUpdate, v)
	case wal.TagVectorDelete:
		v, err := wal.DecodeVectorDelete(payload)
		if err != nil {
			return err
		}
		t := ensureTxnForRun(pending, v.RunID)
		t.vDelete = append(t.vDelete, v)
	case wal.TagCommitTxn, wal.TagAbortTxn, wal.TagCheckpoint:
		// Handled by the caller (commit/abort) or ignored (an in-log
		// checkpoint marker carries no replay-time effect beyond what a
		// separate checkpoint file load already applied).
	}
	return nil
}

// ensureTxn returns (creating if absent) the pending buffer bucketed by
// runID. ensureTxnForRun is just a descriptive alias for call sites that
// only ever have a RunID in hand.
func ensureTxn(pending map[string]*pendingTxn, runID string) *pendingTxn {
	t, ok := pending[runID]
	if !ok {
		t = &pendingTxn{}
		pending[runID] = t
	}
	return t
}

func ensureTxnForRun(pending map[string]*pendingTxn, runID string) *pendingTxn {
	return ensureTxn(pending, runID)
}

// installTxn applies every buffered effect of a committed transaction to
// st and vectors, returning the count of records applied and the
// highest version among them.
func installTxn(st *store.Store, vectors VectorSink, t *pendingTxn) (applied int, maxVersion uint64) {
	for _, w := range t.writes {
		shardHash := key.ShardHash(w.RunID)
		st.PutWithVersion(shardHash, string(w.Key), w.Value, w.Version, w.CommitUnix, w.TTLUnix)
		applied++
		if w.Version > maxVersion {
			maxVersion = w.Version
		}
	}
	for _, d := range t.deletes {
		shardHash := key.ShardHash(d.RunID)
		st.DeleteWithVersion(shardHash, string(d.Key), d.Version, d.CommitUnix)
		applied++
		if d.Version > maxVersion {
			maxVersion = d.Version
		}
	}
	if vectors != nil {
		for _, v := range t.vInsert {
			_ = vectors.InsertWithID(v.CollectionID, v.VectorID, v.Embedding, v.Version)
			applied++
			if v.Version > maxVersion {
				maxVersion = v.Version
			}
		}
		for _, v := range t.vUpdate {
			_ = vectors.Update(v.CollectionID, v.VectorID, v.Embedding, v.Version)
			applied++
			if v.Version > maxVersion {
				maxVersion = v.Version
			}
		}
		for _, v := range t.vDelete {
			_ = vectors.Delete(v.CollectionID, v.VectorID, v.Version)
			applied++
			if v.Version > maxVersion {
				maxVersion = v.Version
			}
		}
	}
	return applied, maxVersion
}
