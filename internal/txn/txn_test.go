package txn_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core-sub010/internal/jsonval"
	"github.com/stratadb-labs/strata-core-sub010/internal/key"
	"github.com/stratadb-labs/strata-core-sub010/internal/store"
	"github.com/stratadb-labs/strata-core-sub010/internal/txn"
	"github.com/stratadb-labs/strata-core-sub010/internal/value"
	"github.com/stratadb-labs/strata-core-sub010/internal/wal"
)

func newCoordinator(t *testing.T) *txn.Coordinator {
	t.Helper()
	st := store.Open(8, 0)
	w, err := wal.Open(wal.Options{Durability: wal.Volatile})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return txn.New(st, w)
}

func kvKey(t *testing.T, runID, userKey string) []byte {
	t.Helper()
	k, err := key.KeyFor(key.Namespace{Tenant: "t", App: "a", Agent: "g", RunID: runID}, key.TagKV, []byte(userKey))
	require.NoError(t, err)
	b, err := key.Encode(k)
	require.NoError(t, err)
	return b
}

func jsonKey(t *testing.T, runID, docID string) []byte {
	t.Helper()
	k, err := key.KeyFor(key.Namespace{Tenant: "t", App: "a", Agent: "g", RunID: runID}, key.TagJSON, []byte(docID))
	require.NoError(t, err)
	b, err := key.Encode(k)
	require.NoError(t, err)
	return b
}

func TestPutThenCommitIsVisibleToNextTransaction(t *testing.T) {
	co := newCoordinator(t)
	k := kvKey(t, "run-1", "foo")

	ctx1 := co.Begin("run-1")
	require.NoError(t, ctx1.Put(k, []byte("bar"), 0))
	_, err := co.Commit(ctx1)
	require.NoError(t, err)

	ctx2 := co.Begin("run-1")
	val, found, err := ctx2.Get(k)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("bar"), val)
}

func TestReadYourOwnWritesWithinTransaction(t *testing.T) {
	co := newCoordinator(t)
	k := kvKey(t, "run-1", "foo")

	ctx := co.Begin("run-1")
	require.NoError(t, ctx.Put(k, []byte("staged"), 0))
	val, found, err := ctx.Get(k)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("staged"), val)
}

func TestConcurrentWriteAfterReadCausesWriteConflict(t *testing.T) {
	co := newCoordinator(t)
	k := kvKey(t, "run-1", "foo")

	setup := co.Begin("run-1")
	require.NoError(t, setup.Put(k, []byte("v0"), 0))
	_, err := co.Commit(setup)
	require.NoError(t, err)

	ctx1 := co.Begin("run-1")
	_, _, err = ctx1.Get(k)
	require.NoError(t, err)

	ctx2 := co.Begin("run-1")
	_, _, err = ctx2.Get(k)
	require.NoError(t, err)
	require.NoError(t, ctx2.Put(k, []byte("from-ctx2"), 0))
	_, err = co.Commit(ctx2)
	require.NoError(t, err)

	require.NoError(t, ctx1.Put(k, []byte("from-ctx1"), 0))
	_, err = co.Commit(ctx1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, txn.WriteConflict))
}

func TestCompareAndSwapFailsOnStaleVersion(t *testing.T) {
	co := newCoordinator(t)
	k := kvKey(t, "run-1", "foo")

	ctx := co.Begin("run-1")
	require.NoError(t, ctx.CompareAndSwap(k, 0, []byte("v1"), 0))
	_, err := co.Commit(ctx)
	require.NoError(t, err)

	ctx2 := co.Begin("run-1")
	require.NoError(t, ctx2.CompareAndSwap(k, 0, []byte("v2"), 0)) // stale: key is now at a nonzero version
	_, err = co.Commit(ctx2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, txn.VersionConflict))
}

func TestDeleteThenGetIsNotFound(t *testing.T) {
	co := newCoordinator(t)
	k := kvKey(t, "run-1", "foo")

	ctx := co.Begin("run-1")
	require.NoError(t, ctx.Put(k, []byte("v1"), 0))
	_, err := co.Commit(ctx)
	require.NoError(t, err)

	ctx2 := co.Begin("run-1")
	require.NoError(t, ctx2.Delete(k))
	_, err = co.Commit(ctx2)
	require.NoError(t, err)

	ctx3 := co.Begin("run-1")
	_, found, err := ctx3.Get(k)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAbortDiscardsBufferedWrites(t *testing.T) {
	co := newCoordinator(t)
	k := kvKey(t, "run-1", "foo")

	ctx := co.Begin("run-1")
	require.NoError(t, ctx.Put(k, []byte("never-committed"), 0))
	require.NoError(t, co.Abort(ctx))

	ctx2 := co.Begin("run-1")
	_, found, err := ctx2.Get(k)
	require.NoError(t, err)
	assert.False(t, found)
}

func newDoc(t *testing.T, m map[string]string) jsonval.Value {
	t.Helper()
	mv := value.NewMap()
	for k, v := range m {
		mv.Set(k, value.String(v))
	}
	return value.MapValue(mv)
}

func TestDisjointJSONPathWritesDoNotConflict(t *testing.T) {
	co := newCoordinator(t)
	dk := jsonKey(t, "run-1", "doc1")

	setup := co.Begin("run-1")
	require.NoError(t, setup.JSONSet(dk, jsonval.Root(), newDoc(t, map[string]string{"a": "1", "b": "2"}), 100))
	_, err := co.Commit(setup)
	require.NoError(t, err)

	ctx1 := co.Begin("run-1")
	pathA, err := jsonval.ParsePath("a")
	require.NoError(t, err)
	require.NoError(t, ctx1.JSONSet(dk, pathA, value.String("1-updated"), 200))

	ctx2 := co.Begin("run-1")
	pathB, err := jsonval.ParsePath("b")
	require.NoError(t, err)
	require.NoError(t, ctx2.JSONSet(dk, pathB, value.String("2-updated"), 200))

	_, err = co.Commit(ctx1)
	require.NoError(t, err)
	_, err = co.Commit(ctx2)
	require.NoError(t, err, "disjoint path writes to the same document must not conflict")
}

func TestOverlappingJSONPathWritesConflict(t *testing.T) {
	co := newCoordinator(t)
	dk := jsonKey(t, "run-1", "doc1")

	setup := co.Begin("run-1")
	require.NoError(t, setup.JSONSet(dk, jsonval.Root(), newDoc(t, map[string]string{"a": "1"}), 100))
	_, err := co.Commit(setup)
	require.NoError(t, err)

	pathA, err := jsonval.ParsePath("a")
	require.NoError(t, err)

	ctx1 := co.Begin("run-1")
	require.NoError(t, ctx1.JSONSet(dk, pathA, value.String("from-ctx1"), 200))

	ctx2 := co.Begin("run-1")
	require.NoError(t, ctx2.JSONSet(dk, pathA, value.String("from-ctx2"), 200))

	_, err = co.Commit(ctx1)
	require.NoError(t, err)

	_, err = co.Commit(ctx2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, txn.JSONPathConflict))
}

func TestOverlappingJSONPathWritesWithinSameTransactionConflict(t *testing.T) {
	co := newCoordinator(t)
	dk := jsonKey(t, "run-1", "doc1")

	setup := co.Begin("run-1")
	require.NoError(t, setup.JSONSet(dk, jsonval.Root(), newDoc(t, map[string]string{"a": "1"}), 100))
	_, err := co.Commit(setup)
	require.NoError(t, err)

	pathA, err := jsonval.ParsePath("a")
	require.NoError(t, err)
	pathAB, err := jsonval.ParsePath("a.b")
	require.NoError(t, err)

	ctx := co.Begin("run-1")
	require.NoError(t, ctx.JSONSet(dk, pathA, newDoc(t, map[string]string{"x": "1"}), 200))
	require.NoError(t, ctx.JSONSet(dk, pathAB, value.String("42"), 200))

	_, err = co.Commit(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, txn.JSONPathConflict))
}

func TestJSONStaleReadDetectedWhenReadPathChangesUnderneath(t *testing.T) {
	co := newCoordinator(t)
	dk := jsonKey(t, "run-1", "doc1")

	setup := co.Begin("run-1")
	require.NoError(t, setup.JSONSet(dk, jsonval.Root(), newDoc(t, map[string]string{"a": "1"}), 100))
	_, err := co.Commit(setup)
	require.NoError(t, err)

	pathA, err := jsonval.ParsePath("a")
	require.NoError(t, err)

	reader := co.Begin("run-1")
	_, err = reader.JSONGet(dk, pathA)
	require.NoError(t, err)

	writer := co.Begin("run-1")
	require.NoError(t, writer.JSONSet(dk, pathA, value.String("changed"), 200))
	_, err = co.Commit(writer)
	require.NoError(t, err)

	// reader now commits a write elsewhere in the doc, but its earlier
	// read of path "a" is stale relative to writer's committed change.
	pathC, perr := jsonval.ParsePath("c")
	require.NoError(t, perr)
	require.NoError(t, reader.JSONSet(dk, pathC, value.String("new-field"), 300))
	_, err = co.Commit(reader)
	require.Error(t, err)
	assert.True(t, errors.Is(err, txn.JSONStaleRead))
}

func TestJSONGetOnMissingDocumentIsNotFound(t *testing.T) {
	co := newCoordinator(t)
	dk := jsonKey(t, "run-1", "missing")

	ctx := co.Begin("run-1")
	_, err := ctx.JSONGet(dk, jsonval.Root())
	require.Error(t, err)
	assert.True(t, errors.Is(err, txn.NotFound))
}
