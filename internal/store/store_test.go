package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core-sub010/internal/store"
)

func TestPutWithVersionIdempotent(t *testing.T) {
	s := store.Open(4, 0)

	s.PutWithVersion(0, "k1", []byte("v1"), 5, 100, 0)
	s.PutWithVersion(0, "k1", []byte("stale"), 5, 100, 0) // same version: no-op
	s.PutWithVersion(0, "k1", []byte("older"), 3, 50, 0)  // older version: no-op

	vv, ok := s.Get(0, "k1", 10)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), vv.Value)
	assert.Equal(t, uint64(5), vv.Version)
}

func TestMonotoneVersionsPerKey(t *testing.T) {
	s := store.Open(4, 0)
	s.PutWithVersion(0, "k1", []byte("v1"), 1, 0, 0)
	s.PutWithVersion(0, "k1", []byte("v2"), 2, 0, 0)
	s.PutWithVersion(0, "k1", []byte("v3"), 3, 0, 0)

	v1, ok := s.Get(0, "k1", 1)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v1.Value)

	v2, ok := s.Get(0, "k1", 2)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v2.Value)

	v3, ok := s.Get(0, "k1", 3)
	require.True(t, ok)
	assert.Equal(t, []byte("v3"), v3.Value)
}

func TestSnapshotDoesNotSeeFutureVersions(t *testing.T) {
	s := store.Open(4, 0)
	s.PutWithVersion(0, "k1", []byte("v1"), 1, 0, 0)

	snapVersion := s.CurrentVersion()
	assert.Equal(t, uint64(1), snapVersion)

	s.PutWithVersion(0, "k1", []byte("v2"), 2, 0, 0)

	vv, ok := s.Get(0, "k1", snapVersion)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), vv.Value, "snapshot must not observe the later commit")
}

func TestTombstoneHidesKeyButCountsAsVersion(t *testing.T) {
	s := store.Open(4, 0)
	s.PutWithVersion(0, "k1", []byte("v1"), 1, 0, 0)
	s.DeleteWithVersion(0, "k1", 2, 0)

	_, ok := s.Get(0, "k1", 2)
	assert.False(t, ok, "tombstoned key must read as absent")

	assert.Equal(t, uint64(2), s.VersionAt(0, "k1"))
}

func TestMissingKeyReturnsAbsent(t *testing.T) {
	s := store.Open(4, 0)
	_, ok := s.Get(0, "nope", 100)
	assert.False(t, ok)
}

func TestScanPrefixLexicalOrderAndTombstoneSkip(t *testing.T) {
	s := store.Open(1, 0) // single shard: every key below hashes to shard 0
	s.PutWithVersion(0, "run/a", []byte("1"), 1, 0, 0)
	s.PutWithVersion(0, "run/c", []byte("3"), 2, 0, 0)
	s.PutWithVersion(0, "run/b", []byte("2"), 3, 0, 0)
	s.PutWithVersion(0, "other/z", []byte("9"), 4, 0, 0)
	s.DeleteWithVersion(0, "run/c", 5, 0)

	entries := s.ScanPrefix(0, "run/", 10)
	require.Len(t, entries, 2)
	assert.Equal(t, "run/a", entries[0].EncodedKey)
	assert.Equal(t, "run/b", entries[1].EncodedKey)
}

func TestScanPrefixHonorsSnapshotVersion(t *testing.T) {
	s := store.Open(1, 0)
	s.PutWithVersion(0, "run/a", []byte("1"), 1, 0, 0)
	snapVersion := s.CurrentVersion()
	s.PutWithVersion(0, "run/b", []byte("2"), 2, 0, 0)

	entries := s.ScanPrefix(0, "run/", snapVersion)
	require.Len(t, entries, 1)
	assert.Equal(t, "run/a", entries[0].EncodedKey)
}

func TestGlobalVersionMonotonicAfterObserve(t *testing.T) {
	s := store.Open(4, 10)
	assert.Equal(t, uint64(10), s.CurrentVersion())

	s.ObserveVersion(5) // lower: must not regress
	assert.Equal(t, uint64(10), s.CurrentVersion())

	s.ObserveVersion(20)
	assert.Equal(t, uint64(20), s.CurrentVersion())
}

func TestPruneKeepsLiveVersionAndReclaimsOldHistory(t *testing.T) {
	s := store.Open(1, 0)
	s.PutWithVersion(0, "k1", []byte("v1"), 1, 0, 0)
	s.PutWithVersion(0, "k1", []byte("v2"), 2, 0, 0)
	s.PutWithVersion(0, "k1", []byte("v3"), 3, 0, 0)

	_, dropped := s.Prune(3)
	assert.Equal(t, 2, dropped, "versions 1 and 2 are superseded and below the min snapshot")

	vv, ok := s.Get(0, "k1", 3)
	require.True(t, ok)
	assert.Equal(t, []byte("v3"), vv.Value)
}

func TestShardForIsStableForSameHash(t *testing.T) {
	s := store.Open(8, 0)
	h := uint64(12345)
	assert.Equal(t, s.ShardFor(h), s.ShardFor(h))
}
