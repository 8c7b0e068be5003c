package value

import "strings"

// Record is an ordered, string-keyed mapping of Values. Iteration follows
// first-insertion order; overwriting a key keeps its position.
type Record struct {
	keys []string
	vals map[string]Value
}

func NewRecord() *Record {
	return &Record{vals: make(map[string]Value, 8)}
}

// RecordOf builds a record from alternating key/value arguments. Values
// go through FromAny. It panics on a non-string key.
func RecordOf(kv ...any) *Record {
	r := NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), FromAny(kv[i+1]))
	}
	return r
}

func (r *Record) Set(key string, v Value) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

func (r *Record) Get(key string) (Value, bool) {
	v, ok := r.vals[key]
	return v, ok
}

func (r *Record) Has(key string) bool {
	_, ok := r.vals[key]
	return ok
}

func (r *Record) Delete(key string) {
	if _, ok := r.vals[key]; !ok {
		return
	}
	delete(r.vals, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

func (r *Record) Len() int { return len(r.keys) }

// Keys returns a copy of the keys in iteration order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Record) Each(fn func(key string, v Value)) {
	for _, k := range r.keys {
		fn(k, r.vals[k])
	}
}

// Merge copies every key of partial into r, overwriting existing values.
// Keys absent from partial are left untouched.
func (r *Record) Merge(partial *Record) {
	if partial == nil {
		return
	}
	for _, k := range partial.keys {
		r.Set(k, partial.vals[k])
	}
}

// Clone returns a shallow copy.
func (r *Record) Clone() *Record {
	c := &Record{
		keys: make([]string, len(r.keys)),
		vals: make(map[string]Value, len(r.vals)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.vals {
		c.vals[k] = v
	}
	return c
}

// Equal compares keys and values, ignoring key order.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if len(r.vals) != len(o.vals) {
		return false
	}
	for k, v := range r.vals {
		ov, ok := o.vals[k]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}

// Any converts the record to a plain map for encoding. Extern values are
// local state and are skipped.
func (r *Record) Any() map[string]any {
	out := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		v := r.vals[k]
		if v.kind == KindExtern {
			continue
		}
		out[k] = v.Any()
	}
	return out
}

func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(r.vals[k].String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// ── typed accessors ──

func (r *Record) Str(key string) (string, bool) { return r.vals[key].AsString() }

func (r *Record) Uint(key string) (uint64, bool) { return r.vals[key].AsUint() }
func (r *Record) Int(key string) (int64, bool) { return r.vals[key].AsInt() }
func (r *Record) Float(key string) (float64, bool) { return r.vals[key].AsFloat() }
func (r *Record) Bool(key string) (bool, bool) { return r.vals[key].AsBool() }
func (r *Record) List(key string) ([]Value, bool) { return r.vals[key].AsList() }
func (r *Record) Map(key string) (*Record, bool) { return r.vals[key].AsMap() }
func (r *Record) Bytes(key string) ([]byte, bool) { return r.vals[key].AsBytes() }
func (r *Record) Extern(key string) (any, bool) { return r.vals[key].AsExtern() }

// SetExtern attaches collaborator state under key.
func (r *Record) SetExtern(key string, x any) { r.Set(key, Extern(x)) }

func (r *Record) StringOr(key, def string) string {
	if v, ok := r.vals[key].AsString(); ok {
		return v
	}
	return def
}

func (r *Record) UintOr(key string, def uint64) uint64 {
	if v, ok := r.vals[key].AsUint(); ok {
		return v
	}
	return def
}

func (r *Record) FloatOr(key string, def float64) float64 {
	if v, ok := r.vals[key].AsFloat(); ok {
		return v
	}
	return def
}

func (r *Record) BoolOr(key string, def bool) bool {
	if v, ok := r.vals[key].AsBool(); ok {
		return v
	}
	return def
}
