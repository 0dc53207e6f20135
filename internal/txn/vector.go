package txn

import (
	"time"

	"github.com/google/uuid"

	"github.com/stratadb-labs/strata-core-sub010/internal/vector"
	"github.com/stratadb-labs/strata-core-sub010/internal/wal"
	"github.com/stratadb-labs/strata-core-sub010/pkg/metrics"
)

// Vector heap mutations bypass the read/write-set OCC path entirely: a
// heap's own mutex already serializes concurrent inserts/updates/deletes
// against it, so there is no read set whose staleness needs checking.
// What the coordinator still owns is version assignment and WAL
// durability, so a vector mutation and its WAL record share the same
// global version space as ordinary key/value commits and replay
// correctly through internal/recovery.
//
// Recovery buffers every effect record by RunID and flushes the buffer on
// CommitTxn/AbortTxn, so each vector mutation still brackets its own
// effect record with a BeginTxn/CommitTxn pair of its own, even though it
// never goes through Begin/Commit: without that bracket the mutation's
// buffered effect would sit unflushed until some unrelated later
// transaction on the same run happened to commit or abort, and would be
// discarded entirely if none ever did.

// VectorInsert mints a commit version, inserts embedding into heap, logs
// the effect, and returns the assigned vector ID and commit version.
func (co *Coordinator) VectorInsert(runID, collectionID string, heap *vector.Heap, embedding []float32) (vector.VectorID, uint64, error) {
	runLock := co.lockFor(runID)
	runLock.Lock()
	defer runLock.Unlock()

	id, err := heap.Insert(embedding)
	if err != nil {
		return 0, 0, wrapErr(KindDimensionMismatch, "", err, "vector insert")
	}

	v := co.store.NextVersion()
	if co.log != nil {
		txnID := uuid.New().String()
		if err := co.log.AppendBeginTxn(wal.BeginTxn{TxnID: txnID, RunID: runID, TimestampUnixNano: time.Now().UnixNano()}); err != nil {
			return 0, 0, wrapErr(KindStorage, "", err, "append vector insert begin record")
		}
		if err := co.log.AppendVectorInsert(wal.VectorInsert{
			RunID: runID, CollectionID: collectionID, VectorID: uint64(id), Embedding: embedding, Version: v,
		}); err != nil {
			return 0, 0, wrapErr(KindStorage, "", err, "append vector insert record")
		}
		if err := co.log.AppendCommitTxn(wal.CommitTxn{TxnID: txnID, RunID: runID}); err != nil {
			return 0, 0, wrapErr(KindStorage, "", err, "append vector insert commit record")
		}
	}
	metrics.VectorHeapSize.WithLabelValues(collectionID).Set(float64(heap.Len()))
	return id, v, nil
}

// VectorUpdate overwrites the embedding stored at id in place. Returns
// (false, version, nil) if id is not live in the heap — mirrors
// vector.Heap.Update's own semantics for "missing" rather than treating
// it as CollectionNotFound, since the caller has already resolved
// collectionID to heap.
func (co *Coordinator) VectorUpdate(runID, collectionID string, heap *vector.Heap, id vector.VectorID, embedding []float32) (bool, uint64, error) {
	runLock := co.lockFor(runID)
	runLock.Lock()
	defer runLock.Unlock()

	ok, err := heap.Update(id, embedding)
	if err != nil {
		return false, 0, wrapErr(KindDimensionMismatch, "", err, "vector update")
	}
	if !ok {
		return false, 0, nil
	}

	v := co.store.NextVersion()
	if co.log != nil {
		txnID := uuid.New().String()
		if err := co.log.AppendBeginTxn(wal.BeginTxn{TxnID: txnID, RunID: runID, TimestampUnixNano: time.Now().UnixNano()}); err != nil {
			return false, 0, wrapErr(KindStorage, "", err, "append vector update begin record")
		}
		if err := co.log.AppendVectorUpdate(wal.VectorUpdate{
			RunID: runID, CollectionID: collectionID, VectorID: uint64(id), Embedding: embedding, Version: v,
		}); err != nil {
			return false, 0, wrapErr(KindStorage, "", err, "append vector update record")
		}
		if err := co.log.AppendCommitTxn(wal.CommitTxn{TxnID: txnID, RunID: runID}); err != nil {
			return false, 0, wrapErr(KindStorage, "", err, "append vector update commit record")
		}
	}
	return true, v, nil
}

// VectorDelete removes id from heap. Returns (false, version, nil) if id
// was not live.
func (co *Coordinator) VectorDelete(runID, collectionID string, heap *vector.Heap, id vector.VectorID) (bool, uint64, error) {
	runLock := co.lockFor(runID)
	runLock.Lock()
	defer runLock.Unlock()

	if !heap.Delete(id) {
		return false, 0, nil
	}

	v := co.store.NextVersion()
	if co.log != nil {
		txnID := uuid.New().String()
		if err := co.log.AppendBeginTxn(wal.BeginTxn{TxnID: txnID, RunID: runID, TimestampUnixNano: time.Now().UnixNano()}); err != nil {
			return false, 0, wrapErr(KindStorage, "", err, "append vector delete begin record")
		}
		if err := co.log.AppendVectorDelete(wal.VectorDelete{
			RunID: runID, CollectionID: collectionID, VectorID: uint64(id), Version: v,
		}); err != nil {
			return false, 0, wrapErr(KindStorage, "", err, "append vector delete record")
		}
		if err := co.log.AppendCommitTxn(wal.CommitTxn{TxnID: txnID, RunID: runID}); err != nil {
			return false, 0, wrapErr(KindStorage, "", err, "append vector delete commit record")
		}
	}
	metrics.VectorHeapSize.WithLabelValues(collectionID).Set(float64(heap.Len()))
	return true, v, nil
}
