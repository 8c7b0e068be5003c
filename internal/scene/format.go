package scene

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/noodles/ramen/internal/core/value"
)

var (
	ErrUnknownFormat = errors.New("unknown format")
	ErrStreamRange   = errors.New("stream out of range")
)

// streamField reads a count, offset or stride. Values above MaxInt32 are
// rejected so that later arithmetic on them cannot overflow.
func streamField(rec *value.Record, key string) (int, error) {
	v := rec.UintOr(key, 0)
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s %d", ErrStreamRange, key, v)
	}
	return int(v), nil
}

// checkSpan reports whether count elements of size bytes, stride bytes
// apart and starting at offset, fit in n bytes. stride must be >= size > 0.
func checkSpan(what string, n, offset, stride, size, count int) error {
	if offset < 0 || count < 0 || offset > n-size || count-1 > (n-offset-size)/stride {
		return fmt.Errorf("%w: %s x%d at offset %d stride %d, have %d bytes",
			ErrStreamRange, what, count, offset, stride, n)
	}
	return nil
}

type scalar uint8

const (
	scalarU8 scalar = iota
	scalarU16
	scalarU32
	scalarF32
)

func (s scalar) size() int {
	switch s {
	case scalarU8:
		return 1
	case scalarU16:
		return 2
	default:
		return 4
	}
}

// Format describes one element of an attribute or index stream.
type Format struct {
	Name       string
	Components int
	scalar     scalar
}

// ByteSize is the packed size of one element.
func (f Format) ByteSize() int { return f.Components * f.scalar.size() }

// IsFloat reports whether components are 32-bit floats.
func (f Format) IsFloat() bool { return f.scalar == scalarF32 }

var formats = map[string]Format{
	"U8":      {"U8", 1, scalarU8},
	"U8VEC4":  {"U8VEC4", 4, scalarU8},
	"U16":     {"U16", 1, scalarU16},
	"U16VEC2": {"U16VEC2", 2, scalarU16},
	"U32":     {"U32", 1, scalarU32},
	"VEC2":    {"VEC2", 2, scalarF32},
	"VEC3":    {"VEC3", 3, scalarF32},
	"VEC4":    {"VEC4", 4, scalarF32},
	"MAT3":    {"MAT3", 9, scalarF32},
	"MAT4":    {"MAT4", 16, scalarF32},
}

// LookupFormat returns the format named name.
func LookupFormat(name string) (Format, error) {
	f, ok := formats[name]
	if !ok {
		return Format{}, fmt.Errorf("%w %q", ErrUnknownFormat, name)
	}
	return f, nil
}

// decodeStrided reads count elements of f from b, starting at offset and
// advancing stride bytes per element. A stride below the element size is
// raised to it. Components are returned flattened.
func decodeStrided(f Format, b []byte, offset, stride, count int) ([]float32, error) {
	size := f.ByteSize()
	if stride < size {
		stride = size
	}
	if count == 0 {
		return nil, nil
	}
	if err := checkSpan(f.Name, len(b), offset, stride, size, count); err != nil {
		return nil, err
	}
	out := make([]float32, 0, count*f.Components)
	cs := f.scalar.size()
	for i := 0; i < count; i++ {
		at := offset + i*stride
		for c := 0; c < f.Components; c++ {
			out = append(out, readScalar(f.scalar, b[at+c*cs:]))
		}
	}
	return out, nil
}

func readScalar(s scalar, b []byte) float32 {
	switch s {
	case scalarU8:
		return float32(b[0])
	case scalarU16:
		return float32(binary.LittleEndian.Uint16(b))
	case scalarU32:
		return float32(binary.LittleEndian.Uint32(b))
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
}

// decodeIndices reads count unsigned indices of an U8, U16 or U32 format.
func decodeIndices(f Format, b []byte, offset, stride, count int) ([]uint32, error) {
	if f.Components != 1 || f.IsFloat() {
		return nil, fmt.Errorf("%w %q for indices", ErrUnknownFormat, f.Name)
	}
	size := f.ByteSize()
	if stride < size {
		stride = size
	}
	if count == 0 {
		return nil, nil
	}
	if err := checkSpan(f.Name+" indices", len(b), offset, stride, size, count); err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := range out {
		at := offset + i*stride
		switch f.scalar {
		case scalarU8:
			out[i] = uint32(b[at])
		case scalarU16:
			out[i] = uint32(binary.LittleEndian.Uint16(b[at:]))
		default:
			out[i] = binary.LittleEndian.Uint32(b[at:])
		}
	}
	return out, nil
}
