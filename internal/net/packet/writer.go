package packet

import "github.com/noodles/ramen/internal/core/value"

// Encoder turns plain Go values into one binary frame.
type Encoder interface {
	Encode(v any) ([]byte, error)
}

// Writer accumulates outbound (id, payload) pairs for a single frame.
type Writer struct {
	items []any
}

func NewWriter() *Writer {
	return &Writer{items: make([]any, 0, 8)}
}

// Write appends one message.
func (w *Writer) Write(id uint64, payload *value.Record) {
	w.items = append(w.items, id, payload.Any())
}

// Len returns the number of queued messages.
func (w *Writer) Len() int { return len(w.items) / 2 }

// Bytes encodes the queued messages as one frame.
func (w *Writer) Bytes(enc Encoder) ([]byte, error) {
	return enc.Encode(w.items)
}

// Reset drops every queued message.
func (w *Writer) Reset() {
	clear(w.items)
	w.items = w.items[:0]
}
