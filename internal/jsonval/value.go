package jsonval

import "github.com/stratadb-labs/strata-core-sub010/internal/value"

// JSON documents reuse the engine-wide tagged Value tree (internal/value)
// rather than a JSON-specific tree type: a JSON object is exactly
// value.KindMap (order-preserving) and a JSON array is exactly
// value.KindList. These aliases let this package's call sites read as
// JSON vocabulary without a second conversion layer.
type Value = value.Value
type Kind = value.Kind
type Map = value.Map
type List = value.List

const (
	KindNull    = value.KindNull
	KindBool    = value.KindBool
	KindInt64   = value.KindInt64
	KindFloat64 = value.KindFloat64
	KindString  = value.KindString
	KindBytes   = value.KindBytes
	KindMap     = value.KindMap
	KindList    = value.KindList
)

// Document is the JSON primitive's stored entity.
type Document struct {
	DocID     string
	Value     Value
	Version   uint64
	CreatedAt int64 // unix nanos
	UpdatedAt int64 // unix nanos
}
