package value

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind tags the dynamic type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
	KindExtern // collaborator-attached state, never produced by a decoder
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindExtern:
		return "extern"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is a tagged union over the shapes a decoded message can carry.
// The zero Value is null.
type Value struct {
	kind Kind
	n    uint64 // bool, int (two's complement), uint
	f    float64
	s    string
	b    []byte
	list []Value
	m    *Record
	ext  any
}

func Null() Value { return Value{} }
func Bool(v bool) Value { return Value{kind: KindBool, n: boolBits(v)} }
func Int(v int64) Value { return Value{kind: KindInt, n: uint64(v)} }
func Uint(v uint64) Value { return Value{kind: KindUint, n: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }
func Bytes(v []byte) Value { return Value{kind: KindBytes, b: v} }
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }
func Extern(v any) Value { return Value{kind: KindExtern, ext: v} }

// Map wraps a record. A nil record yields null.
func Map(r *Record) Value {
	if r == nil {
		return Value{}
	}
	return Value{kind: KindMap, m: r}
}

func boolBits(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.n == 1, true
}

// AsInt returns the value as int64. Unsigned values that fit are accepted.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return int64(v.n), true
	case KindUint:
		if v.n > math.MaxInt64 {
			return 0, false
		}
		return int64(v.n), true
	}
	return 0, false
}

// AsUint returns the value as uint64. Non-negative signed values are accepted.
func (v Value) AsUint() (uint64, bool) {
	switch v.kind {
	case KindUint:
		return v.n, true
	case KindInt:
		if int64(v.n) < 0 {
			return 0, false
		}
		return v.n, true
	}
	return 0, false
}

// AsFloat returns the value as float64, widening integers.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(int64(v.n)), true
	case KindUint:
		return float64(v.n), true
	}
	return 0, false
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.b, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) AsMap() (*Record, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

func (v Value) AsExtern() (any, bool) {
	if v.kind != KindExtern {
		return nil, false
	}
	return v.ext, true
}

// FromAny converts decoder output into a Value. Maps with non-string keys
// have their keys formatted with %v; unrecognized types become Extern.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case *Record:
		return Map(t)
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return Uint(uint64(t))
	case uint8:
		return Uint(uint64(t))
	case uint16:
		return Uint(uint64(t))
	case uint32:
		return Uint(uint64(t))
	case uint64:
		return Uint(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case []any:
		vs := make([]Value, len(t))
		for i, e := range t {
			vs[i] = FromAny(e)
		}
		return List(vs...)
	case map[string]any:
		r := NewRecord()
		for _, k := range sortedKeys(t) {
			r.Set(k, FromAny(t[k]))
		}
		return Map(r)
	case map[any]any:
		conv := make(map[string]any, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprint(k)
			}
			conv[ks] = e
		}
		return FromAny(conv)
	default:
		return Extern(x)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Any converts the Value back to plain Go types for encoding.
// Extern values are returned as-is.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.n == 1
	case KindInt:
		return int64(v.n)
	case KindUint:
		return v.n
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Any()
		}
		return out
	case KindMap:
		return v.m.Any()
	case KindExtern:
		return v.ext
	}
	return nil
}

// Equal reports deep equality. Integers compare by numeric value across
// signed and unsigned kinds; extern values compare with ==.
func Equal(a, b Value) bool {
	if ai, ok := a.AsInt(); ok {
		if bi, ok := b.AsInt(); ok {
			return ai == bi
		}
	}
	if au, ok := a.AsUint(); ok {
		if bu, ok := b.AsUint(); ok {
			return au == bu
		}
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.n == b.n
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindBytes:
		return string(a.b) == string(b.b)
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return a.m.Equal(b.m)
	case KindExtern:
		return a.ext == b.ext
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprint(v.n == 1)
	case KindInt:
		return fmt.Sprint(int64(v.n))
	case KindUint:
		return fmt.Sprint(v.n)
	case KindFloat:
		return fmt.Sprint(v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindBytes:
		return fmt.Sprintf("bytes[%d]", len(v.b))
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		return v.m.String()
	case KindExtern:
		return fmt.Sprintf("extern(%T)", v.ext)
	}
	return "?"
}
