package stratadb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core-sub010/pkg/stratadb"
)

func TestKVSetThenGetRoundTrips(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.KV().Set(ns("run-1"), "foo", stratadb.Int64Value(42), 0))

	v, found, err := db.KV().Get(ns("run-1"), "foo")
	require.NoError(t, err)
	require.True(t, found)
	i, err := v.AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(42), i)
}

func TestKVGetOnMissingKeyReportsNotFound(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	_, found, err := db.KV().Get(ns("run-1"), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKVDeleteRemovesKey(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.KV().Set(ns("run-1"), "foo", stratadb.StringValue("bar"), 0))
	require.NoError(t, db.KV().Delete(ns("run-1"), "foo"))

	_, found, err := db.KV().Get(ns("run-1"), "foo")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKVCompareAndSwapRejectsStaleVersion(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.KV().Set(ns("run-1"), "foo", stratadb.StringValue("v1"), 0))

	err := db.KV().CompareAndSwap(ns("run-1"), "foo", 999, stratadb.StringValue("v2"))
	require.ErrorIs(t, err, stratadb.ErrVersionConflict)
}

func TestKVCompareAndSwapSucceedsWithCorrectExpectedVersion(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.KV().Set(ns("run-1"), "foo", stratadb.StringValue("v1"), 0))

	ctx := db.Begin("run-1")
	encKey, err := db.KV().EncodeKey(ns("run-1"), "foo")
	require.NoError(t, err)
	committedVersion := ctx.VersionOf(encKey)
	require.NoError(t, db.Abort(ctx))

	require.NoError(t, db.KV().CompareAndSwap(ns("run-1"), "foo", committedVersion, stratadb.StringValue("v2")))

	v, found, err := db.KV().Get(ns("run-1"), "foo")
	require.NoError(t, err)
	require.True(t, found)
	s, err := v.AsString()
	require.NoError(t, err)
	assert.Equal(t, "v2", s)
}

func TestKVIsolatedAcrossNamespaces(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.KV().Set(ns("run-1"), "foo", stratadb.StringValue("run1"), 0))
	require.NoError(t, db.KV().Set(ns("run-2"), "foo", stratadb.StringValue("run2"), 0))

	v1, _, err := db.KV().Get(ns("run-1"), "foo")
	require.NoError(t, err)
	s1, _ := v1.AsString()
	assert.Equal(t, "run1", s1)

	v2, _, err := db.KV().Get(ns("run-2"), "foo")
	require.NoError(t, err)
	s2, _ := v2.AsString()
	assert.Equal(t, "run2", s2)
}
