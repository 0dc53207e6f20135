package jsonval

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/stratadb-labs/strata-core-sub010/internal/value"
)

// Marshal serializes v to its canonical on-disk JSON encoding. Objects
// are emitted via a small ordered-object wrapper (rather than handing a
// Go map to encoding/json, which would sort keys) so the serialized bytes
// preserve insertion order exactly like the in-memory tree does
// (invariant 8).
func Marshal(v Value) ([]byte, error) {
	return json.Marshal(toWire(v))
}

// Unmarshal parses previously-Marshal'ed bytes back into a Value tree.
// It streams the input through json.Decoder's token API rather than
// decoding into map[string]interface{}, specifically so that object key
// order in the source bytes is preserved in the resulting Map — decoding
// into a Go map would lose that order irrecoverably.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("jsonval: decode: %w", err)
	}
	return v, nil
}

// orderedObject preserves key insertion order through json.Marshal by
// emitting raw JSON itself rather than delegating to the map codec.
type orderedObject struct {
	keys   []string
	values []json.RawMessage
}

func (o orderedObject) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range o.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, o.values[i]...)
	}
	buf = append(buf, '}')
	return buf, nil
}

func toWire(v Value) interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		b, _ := v.AsBool()
		return b
	case KindInt64:
		i, _ := v.AsInt64()
		return i
	case KindFloat64:
		f, _ := v.AsFloat64()
		return f
	case KindString:
		s, _ := v.AsString()
		return s
	case KindBytes:
		b, _ := v.AsBytes()
		return b // encoding/json base64-encodes []byte automatically
	case KindMap:
		m, _ := v.AsMap()
		obj := orderedObject{keys: m.Keys()}
		for _, k := range obj.keys {
			child, _ := m.Get(k)
			raw, err := json.Marshal(toWire(child))
			if err != nil {
				raw = []byte("null")
			}
			obj.values = append(obj.values, raw)
		}
		return obj
	case KindList:
		l, _ := v.AsList()
		items := make([]interface{}, l.Len())
		for i, child := range l.Items() {
			items[i] = toWire(child)
		}
		return items
	default:
		return nil
	}
}

// decodeValue reads one JSON value from dec's token stream.
func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := value.NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("jsonval: expected object key, got %v", keyTok)
				}
				child, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				m.Set(key, child)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return value.MapValue(m), nil
		case '[':
			l := value.NewList()
			for dec.More() {
				child, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				l.Append(child)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return value.ListValue(l), nil
		default:
			return Value{}, fmt.Errorf("jsonval: unexpected delimiter %v", t)
		}
	case nil:
		return value.Null(), nil
	case bool:
		return value.Bool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return value.Int64(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("jsonval: invalid number %q: %w", t, err)
		}
		return value.Float64(f), nil
	case string:
		return value.String(t), nil
	default:
		return Value{}, fmt.Errorf("jsonval: unsupported token %T", tok)
	}
}

