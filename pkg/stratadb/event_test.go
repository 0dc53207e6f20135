package stratadb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core-sub010/pkg/stratadb"
)

func TestEventAppendAssignsIncreasingSequence(t *testing.T) {
	db := openDB(t, stratadb.Volatile)

	seq1, err := db.EventLog().Append(ns("run-1"), stratadb.StringValue("first"))
	require.NoError(t, err)
	seq2, err := db.EventLog().Append(ns("run-1"), stratadb.StringValue("second"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), seq1)
	assert.Equal(t, uint64(2), seq2)
}

func TestEventListReturnsAppendOrder(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	_, err := db.EventLog().Append(ns("run-1"), stratadb.StringValue("first"))
	require.NoError(t, err)
	_, err = db.EventLog().Append(ns("run-1"), stratadb.StringValue("second"))
	require.NoError(t, err)

	events, err := db.EventLog().List(ns("run-1"))
	require.NoError(t, err)
	require.Len(t, events, 2)

	first, _ := events[0].AsString()
	second, _ := events[1].AsString()
	assert.Equal(t, "first", first)
	assert.Equal(t, "second", second)
}

func TestEventListOnEmptyLogIsEmpty(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	events, err := db.EventLog().List(ns("run-1"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventSequencesAreIsolatedPerRun(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	_, err := db.EventLog().Append(ns("run-1"), stratadb.StringValue("a"))
	require.NoError(t, err)
	seq, err := db.EventLog().Append(ns("run-2"), stratadb.StringValue("b"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq, "run-2's counter must not be affected by run-1's appends")
}
