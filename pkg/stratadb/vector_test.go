package stratadb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core-sub010/pkg/stratadb"
)

func TestVectorInsertThenGetRoundTrips(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.VectorStore().CreateCollection(ns("run-1"), "memories", 3, stratadb.MetricCosine))

	_, err := db.VectorStore().Insert(ns("run-1"), "memories", "m1", []float32{1, 2, 3}, stratadb.StringValue("note"))
	require.NoError(t, err)

	embedding, meta, err := db.VectorStore().Get(ns("run-1"), "memories", "m1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, embedding)
	s, err := meta.AsString()
	require.NoError(t, err)
	assert.Equal(t, "note", s)
}

func TestVectorInsertRejectsWrongDimension(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.VectorStore().CreateCollection(ns("run-1"), "memories", 3, stratadb.MetricCosine))

	_, err := db.VectorStore().Insert(ns("run-1"), "memories", "m1", []float32{1, 2}, stratadb.NullValue())
	require.Error(t, err)
}

func TestVectorCreateCollectionTwiceFails(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.VectorStore().CreateCollection(ns("run-1"), "memories", 3, stratadb.MetricCosine))
	err := db.VectorStore().CreateCollection(ns("run-1"), "memories", 3, stratadb.MetricCosine)
	require.ErrorIs(t, err, stratadb.ErrAlreadyExists)
}

func TestVectorOperationOnUnknownCollectionFails(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	_, err := db.VectorStore().Insert(ns("run-1"), "missing", "m1", []float32{1, 2, 3}, stratadb.NullValue())
	require.ErrorIs(t, err, stratadb.ErrCollectionNotFound)
}

func TestVectorUpdateOverwritesEmbedding(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.VectorStore().CreateCollection(ns("run-1"), "memories", 2, stratadb.MetricCosine))
	_, err := db.VectorStore().Insert(ns("run-1"), "memories", "m1", []float32{1, 1}, stratadb.NullValue())
	require.NoError(t, err)

	require.NoError(t, db.VectorStore().Update(ns("run-1"), "memories", "m1", []float32{9, 9}))

	embedding, _, err := db.VectorStore().Get(ns("run-1"), "memories", "m1")
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 9}, embedding)
}

func TestVectorDeleteRemovesEntryAndRecord(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.VectorStore().CreateCollection(ns("run-1"), "memories", 2, stratadb.MetricCosine))
	_, err := db.VectorStore().Insert(ns("run-1"), "memories", "m1", []float32{1, 1}, stratadb.NullValue())
	require.NoError(t, err)

	require.NoError(t, db.VectorStore().Delete(ns("run-1"), "memories", "m1"))

	_, _, err = db.VectorStore().Get(ns("run-1"), "memories", "m1")
	require.ErrorIs(t, err, stratadb.ErrNotFound)
}

func TestVectorIterReturnsAscendingIDOrder(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.VectorStore().CreateCollection(ns("run-1"), "memories", 1, stratadb.MetricCosine))
	_, err := db.VectorStore().Insert(ns("run-1"), "memories", "m1", []float32{1}, stratadb.NullValue())
	require.NoError(t, err)
	_, err = db.VectorStore().Insert(ns("run-1"), "memories", "m2", []float32{2}, stratadb.NullValue())
	require.NoError(t, err)

	entries, err := db.VectorStore().Iter(ns("run-1"), "memories")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Less(t, entries[0].ID, entries[1].ID)
}

func TestVectorHeapSurvivesRecoveryWithoutExplicitTransaction(t *testing.T) {
	dir := t.TempDir()
	opts := stratadb.Options{DataDir: dir, Durability: stratadb.Strict}

	db, err := stratadb.Open(opts)
	require.NoError(t, err)
	require.NoError(t, db.VectorStore().CreateCollection(ns("run-1"), "memories", 2, stratadb.MetricCosine))
	_, err = db.VectorStore().Insert(ns("run-1"), "memories", "m1", []float32{4, 5}, stratadb.NullValue())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := stratadb.Open(opts)
	require.NoError(t, err)
	defer db2.Close()

	embedding, _, err := db2.VectorStore().Get(ns("run-1"), "memories", "m1")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5}, embedding)
}
