package wal_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core-sub010/internal/wal"
)

func TestStrictAppendAndReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.wal")

	w, err := wal.Open(wal.Options{Path: path, Durability: wal.Strict})
	require.NoError(t, err)

	require.NoError(t, w.AppendBeginTxn(wal.BeginTxn{TxnID: "t1", RunID: "r1", TimestampUnixNano: 1}))
	require.NoError(t, w.AppendWrite(wal.Write{RunID: "r1", Key: []byte("k1"), Value: []byte("v1"), Version: 1, CommitUnix: 100}))
	require.NoError(t, w.AppendCommitTxn(wal.CommitTxn{TxnID: "t1", RunID: "r1"}))
	require.NoError(t, w.Close())

	r, err := wal.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	tag, payload, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, wal.TagBeginTxn, tag)
	begin, err := wal.DecodeBeginTxn(payload)
	require.NoError(t, err)
	assert.Equal(t, "t1", begin.TxnID)

	tag, payload, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, wal.TagWrite, tag)
	write, err := wal.DecodeWrite(payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("k1"), write.Key)
	assert.Equal(t, uint64(1), write.Version)

	tag, payload, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, wal.TagCommitTxn, tag)
	commit, err := wal.DecodeCommitTxn(payload)
	require.NoError(t, err)
	assert.Equal(t, "t1", commit.TxnID)

	_, _, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestMissingLogFileReadsAsEmpty(t *testing.T) {
	r, err := wal.OpenReader(filepath.Join(t.TempDir(), "does-not-exist.wal"))
	require.NoError(t, err)
	_, _, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTruncatedTailReportsCorruptRecordNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.wal")

	w, err := wal.Open(wal.Options{Path: path, Durability: wal.Strict})
	require.NoError(t, err)
	require.NoError(t, w.AppendCommitTxn(wal.CommitTxn{TxnID: "t1", RunID: "r1"}))
	require.NoError(t, w.Close())

	// Simulate a crash mid-record: truncate off the last few bytes.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-2))

	r, err := wal.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, _, err = r.Next()
	assert.ErrorIs(t, err, wal.ErrCorruptRecord)
}

func TestVolatileModeNeverWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.wal")

	w, err := wal.Open(wal.Options{Path: path, Durability: wal.Volatile})
	require.NoError(t, err)
	require.NoError(t, w.AppendCommitTxn(wal.CommitTxn{TxnID: "t1", RunID: "r1"}))
	require.NoError(t, w.Close())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestBufferedModeFlushesOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.wal")

	w, err := wal.Open(wal.Options{Path: path, Durability: wal.Buffered})
	require.NoError(t, err)
	require.NoError(t, w.AppendCommitTxn(wal.CommitTxn{TxnID: "t1", RunID: "r1"}))
	require.NoError(t, w.Close(), "close must flush and fsync buffered records")

	r, err := wal.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	tag, _, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, wal.TagCommitTxn, tag)
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.db")

	entries := []wal.CheckpointEntry{
		{EncodedKey: []byte("a"), Value: []byte("va")},
		{EncodedKey: []byte("b"), Value: []byte("vb")},
	}
	require.NoError(t, wal.WriteCheckpoint(path, 42, entries))

	version, got, err := wal.ReadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), version)
	assert.Len(t, got, 2)
}

func TestReadMissingCheckpointReturnsZeroVersion(t *testing.T) {
	version, entries, err := wal.ReadCheckpoint(filepath.Join(t.TempDir(), "none.db"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)
	assert.Nil(t, entries)
}
