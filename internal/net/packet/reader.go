package packet

import (
	"errors"
	"fmt"

	"github.com/noodles/ramen/internal/core/value"
)

var (
	ErrNotList      = errors.New("frame is not a list")
	ErrOddFrame     = errors.New("frame has an odd number of elements")
	ErrBadMessageID = errors.New("message id is not a non-negative integer")
)

// Decoder turns one binary frame into a Value.
type Decoder interface {
	Decode(data []byte) (value.Value, error)
}

// Message is one (id, payload) pair of a frame.
type Message struct {
	ID      uint64
	Payload value.Value
}

// Reader walks the pairs of a decoded frame in order.
//
//	for r.Next() {
//		m, err := r.Message()
//		...
//	}
type Reader struct {
	items []value.Value
	off   int
}

// DecodeFrame decodes data and validates the frame shape.
func DecodeFrame(dec Decoder, data []byte) (*Reader, error) {
	v, err := dec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return NewReader(v)
}

// NewReader validates that frame is an even-length list.
func NewReader(frame value.Value) (*Reader, error) {
	items, ok := frame.AsList()
	if !ok {
		return nil, fmt.Errorf("%w (got %s)", ErrNotList, frame.Kind())
	}
	if len(items)%2 != 0 {
		return nil, fmt.Errorf("%w: %d", ErrOddFrame, len(items))
	}
	return &Reader{items: items, off: -2}, nil
}

// Next advances to the next pair.
func (r *Reader) Next() bool {
	if r.off+2 >= len(r.items) {
		r.off = len(r.items)
		return false
	}
	r.off += 2
	return true
}

// Message returns the current pair. A malformed id yields ErrBadMessageID;
// the caller skips that pair and keeps reading.
func (r *Reader) Message() (Message, error) {
	if r.off < 0 || r.off >= len(r.items) {
		return Message{}, errors.New("reader not positioned on a message")
	}
	id, ok := r.items[r.off].AsUint()
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrBadMessageID, r.items[r.off])
	}
	return Message{ID: id, Payload: r.items[r.off+1]}, nil
}

// Len returns the number of pairs in the frame.
func (r *Reader) Len() int { return len(r.items) / 2 }

// Remaining returns the number of pairs not yet visited.
func (r *Reader) Remaining() int {
	if r.off < 0 {
		return r.Len()
	}
	n := (len(r.items) - r.off - 2) / 2
	if n < 0 {
		return 0
	}
	return n
}
