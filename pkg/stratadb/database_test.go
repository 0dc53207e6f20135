package stratadb_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core-sub010/pkg/stratadb"
)

func openDB(t *testing.T, durability stratadb.Durability) *stratadb.Database {
	t.Helper()
	dir := t.TempDir()
	db, err := stratadb.Open(stratadb.Options{DataDir: dir, Durability: durability})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ns(runID string) stratadb.Namespace {
	return stratadb.Namespace{Tenant: "t", App: "a", Agent: "g", RunID: runID}
}

func TestOpenOnFreshDirStartsAtVersionZero(t *testing.T) {
	db := openDB(t, stratadb.Strict)
	assert.Equal(t, uint64(0), db.Stats().GlobalVersion)
}

func TestWritesSurviveCloseAndReopen(t *testing.T) {
	dir := t.TempDir()
	opts := stratadb.Options{DataDir: dir, Durability: stratadb.Strict}

	db, err := stratadb.Open(opts)
	require.NoError(t, err)
	require.NoError(t, db.KV().Set(ns("run-1"), "foo", stratadb.StringValue("bar"), 0))
	require.NoError(t, db.Close())

	db2, err := stratadb.Open(opts)
	require.NoError(t, err)
	defer db2.Close()

	v, found, err := db2.KV().Get(ns("run-1"), "foo")
	require.NoError(t, err)
	require.True(t, found)
	s, err := v.AsString()
	require.NoError(t, err)
	assert.Equal(t, "bar", s)
}

func TestRecoveryDiscardsUncommittedWritesAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	opts := stratadb.Options{DataDir: dir, Durability: stratadb.Strict}

	db, err := stratadb.Open(opts)
	require.NoError(t, err)
	require.NoError(t, db.KV().Set(ns("run-1"), "committed", stratadb.StringValue("v1"), 0))

	ctx := db.Begin("run-1")
	key, err := db.KV().EncodeKey(ns("run-1"), "orphan")
	require.NoError(t, err)
	require.NoError(t, ctx.Put(key, []byte("ghost"), 0))
	// Deliberately never committed or aborted; Close still flushes the WAL.
	require.NoError(t, db.Close())

	db2, err := stratadb.Open(opts)
	require.NoError(t, err)
	defer db2.Close()

	_, found, err := db2.KV().Get(ns("run-1"), "committed")
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = db2.KV().Get(ns("run-1"), "orphan")
	require.NoError(t, err)
	assert.False(t, found, "a write without a matching commit must not survive recovery")
}

func TestCheckpointThenReopenKeepsCheckpointedValue(t *testing.T) {
	dir := t.TempDir()
	opts := stratadb.Options{DataDir: dir, Durability: stratadb.Strict}

	db, err := stratadb.Open(opts)
	require.NoError(t, err)
	require.NoError(t, db.KV().Set(ns("run-1"), "foo", stratadb.StringValue("v1"), 0))
	require.NoError(t, db.Checkpoint())
	require.NoError(t, db.Close())

	db2, err := stratadb.Open(opts)
	require.NoError(t, err)
	defer db2.Close()

	v, found, err := db2.KV().Get(ns("run-1"), "foo")
	require.NoError(t, err)
	require.True(t, found)
	s, err := v.AsString()
	require.NoError(t, err)
	assert.Equal(t, "v1", s)
}

func TestOpenCreatesMissingDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	db, err := stratadb.Open(stratadb.Options{DataDir: dir})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, uint64(0), db.Stats().GlobalVersion)
}
