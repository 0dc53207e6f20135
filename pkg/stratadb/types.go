package stratadb

import (
	"github.com/stratadb-labs/strata-core-sub010/internal/jsonval"
	"github.com/stratadb-labs/strata-core-sub010/internal/key"
	"github.com/stratadb-labs/strata-core-sub010/internal/runlifecycle"
	"github.com/stratadb-labs/strata-core-sub010/internal/txn"
	"github.com/stratadb-labs/strata-core-sub010/internal/value"
	"github.com/stratadb-labs/strata-core-sub010/internal/vector"
)

// Namespace scopes every key a façade writes to a tenant/app/agent/run
// tuple. It is an alias of internal/key.Namespace, exported here since an
// embedder cannot import an internal package to name the type itself.
type Namespace = key.Namespace

// Value is the engine's tagged value type: null, bool, int64, float64,
// string, bytes, ordered-map, or list. Every façade that stores or
// returns arbitrary data (KVStore, EventLog, StateCell, TraceStore, and
// the JSON tree JsonStore walks) uses this vocabulary.
type Value = value.Value
type Kind = value.Kind
type ValueMap = value.Map
type ValueList = value.List

func NullValue() Value                { return value.Null() }
func BoolValue(b bool) Value          { return value.Bool(b) }
func Int64Value(i int64) Value        { return value.Int64(i) }
func Float64Value(f float64) Value    { return value.Float64(f) }
func StringValue(s string) Value      { return value.String(s) }
func BytesValue(b []byte) Value       { return value.Bytes(b) }
func MapValue(m *ValueMap) Value      { return value.MapValue(m) }
func ListValue(l *ValueList) Value    { return value.ListValue(l) }
func NewValueMap() *ValueMap          { return value.NewMap() }
func NewValueList(items ...Value) *ValueList { return value.NewList(items...) }

// Path is a JSON document path: an ordered sequence of object-key and
// array-index segments, used by JsonStore's Get/Set/Delete.
type Path = jsonval.Path

// ParsePath parses a dotted/bracketed path string such as "a.b[2].c"
// ("$" root marker optional) into a Path.
func ParsePath(s string) (Path, error) { return jsonval.ParsePath(s) }

// RootPath is the empty path, denoting a JSON document's root.
func RootPath() Path { return jsonval.Root() }

// VectorID identifies one embedding within a vector collection.
type VectorID = vector.VectorID

// DistanceMetric names a vector collection's configured similarity
// function. The engine stores embeddings and serves exact lookups;
// computing distances with a given metric is left to the embedder.
type DistanceMetric = vector.DistanceMetric

const (
	MetricCosine     = vector.MetricCosine
	MetricDotProduct = vector.MetricDotProduct
	MetricEuclidean  = vector.MetricEuclidean
)

// VectorEntry pairs a live vector's ID with its embedding, as returned by
// VectorStore.Iter.
type VectorEntry = vector.Entry

// RunStatus is a run's lifecycle state, validated by RunIndex.UpdateStatus
// against the transition table in internal/runlifecycle.
type RunStatus = runlifecycle.Status

const (
	StatusActive    = runlifecycle.Active
	StatusPaused    = runlifecycle.Paused
	StatusCompleted = runlifecycle.Completed
	StatusFailed    = runlifecycle.Failed
	StatusCancelled = runlifecycle.Cancelled
	StatusArchived  = runlifecycle.Archived
)

// Error sentinels usable with errors.Is against any error a façade or
// Database method returns. They wrap internal/txn's typed OpError kinds
// one-for-one.
var (
	ErrNotFound           = txn.NotFound
	ErrAlreadyExists      = txn.AlreadyExists
	ErrVersionConflict    = txn.VersionConflict
	ErrWriteConflict      = txn.WriteConflict
	ErrJSONPathConflict   = txn.JSONPathConflict
	ErrJSONStaleRead      = txn.JSONStaleRead
	ErrInvalidTransition  = txn.InvalidTransition
	ErrInvalidOperation   = txn.InvalidOperation
	ErrStorage            = txn.Storage
	ErrSerialization      = txn.Serialization
	ErrDimensionMismatch  = txn.DimensionMismatch
	ErrCollectionNotFound = txn.CollectionNotFound
)
