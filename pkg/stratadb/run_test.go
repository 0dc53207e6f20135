package stratadb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core-sub010/pkg/stratadb"
)

func TestRunCreateAssignsRunIDWhenEmpty(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	runID, err := db.RunIndex().Create(stratadb.Namespace{Tenant: "t", App: "a", Agent: "g"})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	rec, found, err := db.RunIndex().Get(ns(runID))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, stratadb.StatusActive, rec.Status)
}

func TestRunCreateTwiceFails(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	_, err := db.RunIndex().Create(ns("run-1"))
	require.NoError(t, err)
	_, err = db.RunIndex().Create(ns("run-1"))
	require.ErrorIs(t, err, stratadb.ErrAlreadyExists)
}

func TestRunUpdateStatusRejectsIllegalTransition(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	_, err := db.RunIndex().Create(ns("run-1"))
	require.NoError(t, err)
	require.NoError(t, db.RunIndex().UpdateStatus(ns("run-1"), stratadb.StatusCompleted))

	err = db.RunIndex().UpdateStatus(ns("run-1"), stratadb.StatusActive)
	require.ErrorIs(t, err, stratadb.ErrInvalidTransition)
}

func TestRunUpdateStatusAllowsLegalTransition(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	_, err := db.RunIndex().Create(ns("run-1"))
	require.NoError(t, err)
	require.NoError(t, db.RunIndex().UpdateStatus(ns("run-1"), stratadb.StatusPaused))

	rec, found, err := db.RunIndex().Get(ns("run-1"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, stratadb.StatusPaused, rec.Status)
}

func TestRunDeleteCascadesAcrossPrimitives(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	_, err := db.RunIndex().Create(ns("run-1"))
	require.NoError(t, err)
	require.NoError(t, db.KV().Set(ns("run-1"), "foo", stratadb.StringValue("bar"), 0))
	_, err = db.EventLog().Append(ns("run-1"), stratadb.StringValue("event"))
	require.NoError(t, err)

	require.NoError(t, db.RunIndex().Delete(ns("run-1")))

	_, found, err := db.RunIndex().Get(ns("run-1"))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = db.KV().Get(ns("run-1"), "foo")
	require.NoError(t, err)
	assert.False(t, found)

	events, err := db.EventLog().List(ns("run-1"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRunDeleteCascadesVectorCollections(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	_, err := db.RunIndex().Create(ns("run-1"))
	require.NoError(t, err)
	require.NoError(t, db.VectorStore().CreateCollection(ns("run-1"), "memories", 2, stratadb.MetricCosine))
	_, err = db.VectorStore().Insert(ns("run-1"), "memories", "m1", []float32{1, 1}, stratadb.NullValue())
	require.NoError(t, err)

	require.NoError(t, db.RunIndex().Delete(ns("run-1")))

	_, _, err = db.VectorStore().Get(ns("run-1"), "memories", "m1")
	require.ErrorIs(t, err, stratadb.ErrCollectionNotFound, "the heap itself must be torn down, not just the KV record")
}
