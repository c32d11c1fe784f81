package document

import (
	"bytes"
	"errors"
	"fmt"
	"math"
)

var (
	ErrMissingKey = errors.New("document: missing key")
	ErrType       = errors.New("document: type mismatch")
	ErrDecode     = errors.New("document: decode failed")
	ErrEncode     = errors.New("document: encode failed")
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindMissing Kind = iota
	KindNil
	KindBool
	KindUint
	KindInt
	KindFloat
	KindDouble
	KindString
	KindBinary
	KindArray
	KindMap
	KindUnsupported
)

var kindNames = [...]string{
	KindMissing:     "missing",
	KindNil:         "nil",
	KindBool:        "bool",
	KindUint:        "uint",
	KindInt:         "int",
	KindFloat:       "float",
	KindDouble:      "double",
	KindString:      "string",
	KindBinary:      "binary",
	KindArray:       "array",
	KindMap:         "map",
	KindUnsupported: "unsupported",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Entry is one key/value pair of a map, kept in insertion order.
type Entry struct {
	Key   Value
	Value Value
}

// Value is an immutable node of a dynamically typed document tree.
// String and Binary payloads produced by Parse alias the parsed buffer.
// The zero Value is Missing.
type Value struct {
	kind    Kind
	u       uint64
	i       int64
	f       float64
	b       []byte
	items   []Value
	entries []Entry
}

// Missing is the result of an optional lookup that found nothing.
// It is never encoded.
var Missing = Value{}

func Nil() Value                 { return Value{kind: KindNil} }
func Bool(v bool) Value          { return Value{kind: KindBool, u: boolBits(v)} }
func Uint(v uint64) Value        { return Value{kind: KindUint, u: v} }
func Int(v int64) Value          { return Value{kind: KindInt, i: v} }
func Float(v float32) Value      { return Value{kind: KindFloat, f: float64(v)} }
func Double(v float64) Value     { return Value{kind: KindDouble, f: v} }
func String(s string) Value      { return Value{kind: KindString, b: []byte(s)} }
func StringBytes(b []byte) Value { return Value{kind: KindString, b: b} }
func Binary(b []byte) Value      { return Value{kind: KindBinary, b: b} }
func Array(items ...Value) Value { return Value{kind: KindArray, items: items} }
func Map(entries ...Entry) Value { return Value{kind: KindMap, entries: entries} }

// Unsupported marks a wire value the model does not represent, such as a
// msgpack extension. The raw code is kept for diagnostics.
func Unsupported(code byte) Value { return Value{kind: KindUnsupported, u: uint64(code)} }

// Pair builds a string-keyed map entry.
func Pair(key string, v Value) Entry {
	return Entry{Key: String(key), Value: v}
}

func boolBits(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsMissing() bool {
	return v.kind == KindMissing
}

func (v Value) typeErr(want string) error {
	return fmt.Errorf("%w: want=%s got=%s", ErrType, want, v.kind)
}

// Get returns the value stored under a string key.
func (v Value) Get(key string) (Value, error) {
	if v.kind != KindMap {
		return Missing, v.typeErr("map")
	}
	if found := v.Lookup(key); !found.IsMissing() {
		return found, nil
	}
	return Missing, fmt.Errorf("%w: %q", ErrMissingKey, key)
}

// Lookup is Get without the error; absent keys and non-maps yield Missing.
func (v Value) Lookup(key string) Value {
	if v.kind != KindMap {
		return Missing
	}
	for _, e := range v.entries {
		if e.Key.kind == KindString && string(e.Key.b) == key {
			return e.Value
		}
	}
	return Missing
}

// Index returns the ith array element, or Missing when out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.items) {
		return Missing
	}
	return v.items[i]
}

// Len reports element count for containers and byte length for strings
// and binaries.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindMap:
		return len(v.entries)
	case KindString, KindBinary:
		return len(v.b)
	default:
		return 0
	}
}

func (v Value) Entries() []Entry {
	if v.kind != KindMap {
		return nil
	}
	return v.entries
}

func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.items
}

func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, v.typeErr("bool")
	}
	return v.u == 1, nil
}

// Uint accepts unsigned values and non-negative signed values.
func (v Value) Uint() (uint64, error) {
	switch v.kind {
	case KindUint:
		return v.u, nil
	case KindInt:
		if v.i >= 0 {
			return uint64(v.i), nil
		}
		return 0, fmt.Errorf("%w: negative int %d", ErrType, v.i)
	default:
		return 0, v.typeErr("uint")
	}
}

func (v Value) Int() (int64, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindUint:
		if v.u <= math.MaxInt64 {
			return int64(v.u), nil
		}
		return 0, fmt.Errorf("%w: uint %d overflows int64", ErrType, v.u)
	default:
		return 0, v.typeErr("int")
	}
}

// Float64 converts any numeric kind.
func (v Value) Float64() (float64, error) {
	switch v.kind {
	case KindFloat, KindDouble:
		return v.f, nil
	case KindUint:
		return float64(v.u), nil
	case KindInt:
		return float64(v.i), nil
	default:
		return 0, v.typeErr("number")
	}
}

func (v Value) Float32() (float32, error) {
	f, err := v.Float64()
	if err != nil {
		return 0, err
	}
	return float32(f), nil
}

func (v Value) Str() (string, error) {
	if v.kind != KindString {
		return "", v.typeErr("string")
	}
	return string(v.b), nil
}

// Bytes returns the raw payload of a String or Binary without copying.
func (v Value) Bytes() ([]byte, error) {
	if v.kind != KindString && v.kind != KindBinary {
		return nil, v.typeErr("string|binary")
	}
	return v.b, nil
}

// Equal reports deep equality. Floats compare by bit pattern.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindMissing, KindNil:
		return true
	case KindBool, KindUint, KindUnsupported:
		return v.u == o.u
	case KindInt:
		return v.i == o.i
	case KindFloat, KindDouble:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case KindString, KindBinary:
		return bytes.Equal(v.b, o.b)
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.entries) != len(o.entries) {
			return false
		}
		for i := range v.entries {
			if !v.entries[i].Key.Equal(o.entries[i].Key) || !v.entries[i].Value.Equal(o.entries[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}
