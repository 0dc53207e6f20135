package recovery_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core-sub010/internal/key"
	"github.com/stratadb-labs/strata-core-sub010/internal/recovery"
	"github.com/stratadb-labs/strata-core-sub010/internal/store"
	"github.com/stratadb-labs/strata-core-sub010/internal/wal"
)

func encodedKey(t *testing.T, runID, userKey string) []byte {
	t.Helper()
	k, err := key.KeyFor(key.Namespace{Tenant: "t", App: "a", Agent: "g", RunID: runID}, key.TagKV, []byte(userKey))
	require.NoError(t, err)
	b, err := key.Encode(k)
	require.NoError(t, err)
	return b
}

func TestRecoveryAppliesCommittedTransactionOnly(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "strata.wal")

	w, err := wal.Open(wal.Options{Path: walPath, Durability: wal.Strict})
	require.NoError(t, err)

	k1 := encodedKey(t, "run-1", "foo")
	require.NoError(t, w.AppendBeginTxn(wal.BeginTxn{TxnID: "committed", RunID: "run-1"}))
	require.NoError(t, w.AppendWrite(wal.Write{RunID: "run-1", Key: k1, Value: []byte("bar"), Version: 1, CommitUnix: 10}))
	require.NoError(t, w.AppendCommitTxn(wal.CommitTxn{TxnID: "committed", RunID: "run-1"}))

	k2 := encodedKey(t, "run-1", "orphan")
	require.NoError(t, w.AppendBeginTxn(wal.BeginTxn{TxnID: "uncommitted", RunID: "run-1"}))
	require.NoError(t, w.AppendWrite(wal.Write{RunID: "run-1", Key: k2, Value: []byte("ghost"), Version: 2, CommitUnix: 20}))
	// No CommitTxn for "uncommitted": end of log leaves it buffered and discarded.
	require.NoError(t, w.Close())

	st := store.Open(8, 0)
	res, err := recovery.Run(st, nil, walPath, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsApplied)
	assert.Equal(t, 1, res.DiscardedTxns)
	assert.Equal(t, uint64(1), res.FinalVersion)

	shardHash := key.ShardHash("run-1")
	vv, ok := st.Get(shardHash, string(k1), 100)
	require.True(t, ok)
	assert.Equal(t, []byte("bar"), vv.Value)

	_, ok = st.Get(shardHash, string(k2), 100)
	assert.False(t, ok, "uncommitted transaction's write must not be visible")
}

func TestRecoveryAppliesAbortTxnDiscard(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "strata.wal")

	w, err := wal.Open(wal.Options{Path: walPath, Durability: wal.Strict})
	require.NoError(t, err)

	k1 := encodedKey(t, "run-2", "foo")
	require.NoError(t, w.AppendBeginTxn(wal.BeginTxn{TxnID: "t1", RunID: "run-2"}))
	require.NoError(t, w.AppendWrite(wal.Write{RunID: "run-2", Key: k1, Value: []byte("v1"), Version: 1, CommitUnix: 10}))
	require.NoError(t, w.AppendAbortTxn(wal.AbortTxn{TxnID: "t1", RunID: "run-2"}))
	require.NoError(t, w.Close())

	st := store.Open(8, 0)
	res, err := recovery.Run(st, nil, walPath, "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.RecordsApplied)
	assert.Equal(t, 1, res.DiscardedTxns)

	_, ok := st.Get(key.ShardHash("run-2"), string(k1), 100)
	assert.False(t, ok)
}

func TestRecoverySkipsRecordsAtOrBelowCheckpointVersion(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "strata.wal")
	checkpointPath := filepath.Join(dir, "checkpoint.db")

	k1 := encodedKey(t, "run-3", "foo")
	vv := store.VersionedValue{Value: []byte("from-checkpoint"), Version: 5, CommitUnix: 1}
	require.NoError(t, wal.WriteCheckpoint(checkpointPath, 5, []wal.CheckpointEntry{
		{EncodedKey: k1, Value: store.EncodeVersionedValue(vv)},
	}))

	w, err := wal.Open(wal.Options{Path: walPath, Durability: wal.Strict})
	require.NoError(t, err)
	require.NoError(t, w.AppendBeginTxn(wal.BeginTxn{TxnID: "t1", RunID: "run-3"}))
	require.NoError(t, w.AppendWrite(wal.Write{RunID: "run-3", Key: k1, Value: []byte("stale-replay"), Version: 5, CommitUnix: 1}))
	require.NoError(t, w.AppendCommitTxn(wal.CommitTxn{TxnID: "t1", RunID: "run-3"}))
	require.NoError(t, w.Close())

	st := store.Open(8, 0)
	res, err := recovery.Run(st, nil, walPath, checkpointPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.CheckpointVersion)
	assert.Equal(t, uint64(5), res.FinalVersion)

	got, ok := st.Get(key.ShardHash("run-3"), string(k1), 100)
	require.True(t, ok)
	assert.Equal(t, []byte("from-checkpoint"), got.Value, "replaying a record already covered by the checkpoint must not override it")
}

func TestRecoveryWithMissingWalAndCheckpointIsEmpty(t *testing.T) {
	dir := t.TempDir()
	st := store.Open(8, 0)
	res, err := recovery.Run(st, nil, filepath.Join(dir, "none.wal"), "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.RecordsApplied)
	assert.Equal(t, uint64(0), res.FinalVersion)
}
