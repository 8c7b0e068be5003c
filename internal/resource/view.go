package resource

import (
	"errors"
	"fmt"

	"github.com/noodles/ramen/internal/core/value"
)

var (
	ErrOutOfRange = errors.New("view exceeds buffer")
	ErrNoBuffer   = errors.New("view has no source buffer")
)

// View is a byte range of a buffer. A zero Length runs to the end of the
// buffer.
type View struct {
	Source value.Value // reference to the buffer record
	Offset uint64
	Length uint64
}

// ViewOf reads a bufferview record.
func ViewOf(rec *value.Record) (View, error) {
	src, ok := rec.Get("source_buffer")
	if !ok {
		return View{}, ErrNoBuffer
	}
	return View{
		Source: src,
		Offset: rec.UintOr("offset", 0),
		Length: rec.UintOr("length", 0),
	}, nil
}

// Slice returns the viewed bytes of b without copying.
func (v View) Slice(b []byte) ([]byte, error) {
	n := uint64(len(b))
	if v.Offset > n {
		return nil, fmt.Errorf("%w: offset %d, buffer %d", ErrOutOfRange, v.Offset, n)
	}
	if v.Length == 0 {
		return b[v.Offset:], nil
	}
	end := v.Offset + v.Length
	if end < v.Offset || end > n {
		return nil, fmt.Errorf("%w: [%d, %d), buffer %d", ErrOutOfRange, v.Offset, end, n)
	}
	return b[v.Offset:end], nil
}
