package stratadb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core-sub010/pkg/stratadb"
)

func TestTraceRecordAssignsIncreasingSequence(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	seq1, err := db.TraceStore().Record(ns("run-1"), stratadb.StringValue("span-a"))
	require.NoError(t, err)
	seq2, err := db.TraceStore().Record(ns("run-1"), stratadb.StringValue("span-b"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), seq1)
	assert.Equal(t, uint64(2), seq2)
}

func TestTraceAndEventKeyspacesDoNotCollide(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	_, err := db.EventLog().Append(ns("run-1"), stratadb.StringValue("event"))
	require.NoError(t, err)
	_, err = db.TraceStore().Record(ns("run-1"), stratadb.StringValue("span"))
	require.NoError(t, err)

	events, err := db.EventLog().List(ns("run-1"))
	require.NoError(t, err)
	spans, err := db.TraceStore().List(ns("run-1"))
	require.NoError(t, err)

	require.Len(t, events, 1)
	require.Len(t, spans, 1)
	ev, _ := events[0].AsString()
	sp, _ := spans[0].AsString()
	assert.Equal(t, "event", ev)
	assert.Equal(t, "span", sp)
}
