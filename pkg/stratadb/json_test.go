package stratadb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core-sub010/pkg/stratadb"
)

func TestJsonSetAtRootCreatesDocument(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	doc := stratadb.MapValue(stratadb.NewValueMap())
	require.NoError(t, db.JsonStore().Set(ns("run-1"), "doc-1", stratadb.RootPath(), doc))

	v, err := db.JsonStore().Get(ns("run-1"), "doc-1", stratadb.RootPath())
	require.NoError(t, err)
	m, err := v.AsMap()
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestJsonSetAtNestedPathThenGet(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.JsonStore().Set(ns("run-1"), "doc-1", stratadb.RootPath(), stratadb.MapValue(stratadb.NewValueMap())))

	path, err := stratadb.ParsePath("profile.name")
	require.NoError(t, err)
	require.NoError(t, db.JsonStore().Set(ns("run-1"), "doc-1", path, stratadb.StringValue("alice")))

	v, err := db.JsonStore().Get(ns("run-1"), "doc-1", path)
	require.NoError(t, err)
	s, err := v.AsString()
	require.NoError(t, err)
	assert.Equal(t, "alice", s)
}

func TestJsonGetOnMissingDocumentIsNotFound(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	_, err := db.JsonStore().Get(ns("run-1"), "missing-doc", stratadb.RootPath())
	require.ErrorIs(t, err, stratadb.ErrNotFound)
}

func TestJsonDeletePathRemovesField(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.JsonStore().Set(ns("run-1"), "doc-1", stratadb.RootPath(), stratadb.MapValue(stratadb.NewValueMap())))

	path, err := stratadb.ParsePath("name")
	require.NoError(t, err)
	require.NoError(t, db.JsonStore().Set(ns("run-1"), "doc-1", path, stratadb.StringValue("bob")))
	require.NoError(t, db.JsonStore().Delete(ns("run-1"), "doc-1", path))

	root, err := db.JsonStore().Get(ns("run-1"), "doc-1", stratadb.RootPath())
	require.NoError(t, err)
	m, err := root.AsMap()
	require.NoError(t, err)
	_, found := m.Get("name")
	assert.False(t, found)
}

func TestJsonDisjointPathWritesBothPersist(t *testing.T) {
	db := openDB(t, stratadb.Volatile)
	require.NoError(t, db.JsonStore().Set(ns("run-1"), "doc-1", stratadb.RootPath(), stratadb.MapValue(stratadb.NewValueMap())))

	pathA, err := stratadb.ParsePath("a")
	require.NoError(t, err)
	pathB, err := stratadb.ParsePath("b")
	require.NoError(t, err)

	require.NoError(t, db.JsonStore().Set(ns("run-1"), "doc-1", pathA, stratadb.Int64Value(1)))
	require.NoError(t, db.JsonStore().Set(ns("run-1"), "doc-1", pathB, stratadb.Int64Value(2)))

	root, err := db.JsonStore().Get(ns("run-1"), "doc-1", stratadb.RootPath())
	require.NoError(t, err)
	m, err := root.AsMap()
	require.NoError(t, err)
	av, _ := m.Get("a")
	bv, _ := m.Get("b")
	ai, _ := av.AsInt64()
	bi, _ := bv.AsInt64()
	assert.Equal(t, int64(1), ai)
	assert.Equal(t, int64(2), bi)
}
