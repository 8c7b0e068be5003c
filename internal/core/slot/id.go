package slot

import (
	"fmt"
	"math"

	"github.com/noodles/ramen/internal/core/value"
)

// KeyID is the record attribute that carries a slot's identifier.
const KeyID = "id"

const nullComponent = math.MaxUint32

// ID addresses one slot of a collection: an index plus the generation the
// server assigned when the index was (re)used.
type ID struct {
	Index      uint32
	Generation uint32
}

// Null is the "no reference" sentinel. It is never a live key.
var Null = ID{Index: nullComponent, Generation: nullComponent}

func New(index, generation uint32) ID {
	return ID{Index: index, Generation: generation}
}

// IsNull reports whether either component holds the sentinel value.
func (id ID) IsNull() bool {
	return id.Index == nullComponent || id.Generation == nullComponent
}

func (id ID) Equal(o ID) bool { return id == o }

func (id ID) String() string {
	if id.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%d/%d", id.Index, id.Generation)
}

// Value encodes the id in its wire shape, a two element list.
func (id ID) Value() value.Value {
	return value.List(value.Uint(uint64(id.Index)), value.Uint(uint64(id.Generation)))
}

// FromValue parses a two element list of unsigned integers. Components at
// or above the sentinel collapse to it, so oversized ids read as null.
func FromValue(v value.Value) (ID, bool) {
	parts, ok := v.AsList()
	if !ok || len(parts) != 2 {
		return ID{}, false
	}
	idx, ok := parts[0].AsUint()
	if !ok {
		return ID{}, false
	}
	gen, ok := parts[1].AsUint()
	if !ok {
		return ID{}, false
	}
	return ID{Index: clamp(idx), Generation: clamp(gen)}, true
}

func clamp(v uint64) uint32 {
	if v >= nullComponent {
		return nullComponent
	}
	return uint32(v)
}

// IDOf reads the identifier stored under KeyID.
func IDOf(rec *value.Record) (ID, bool) {
	if rec == nil {
		return ID{}, false
	}
	v, ok := rec.Get(KeyID)
	if !ok {
		return ID{}, false
	}
	return FromValue(v)
}

// IsNullRef reports whether a reference attribute points at nothing: absent,
// null, the null id, or a shape that cannot name a slot. Callers check this
// before any store lookup.
func IsNullRef(v value.Value) bool {
	if v.IsNull() {
		return true
	}
	if id, ok := FromValue(v); ok {
		return id.IsNull()
	}
	if idx, ok := v.AsUint(); ok {
		return idx >= nullComponent
	}
	return true
}
