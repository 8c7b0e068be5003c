package scene

import (
	"errors"
	"fmt"

	"github.com/noodles/ramen/internal/client"
	"github.com/noodles/ramen/internal/core/future"
	"github.com/noodles/ramen/internal/core/slot"
	"github.com/noodles/ramen/internal/core/value"
	"github.com/noodles/ramen/internal/net/packet"
	"github.com/noodles/ramen/internal/resource"
)

const keyBytes = "bytes"

var ErrMissingRef = errors.New("reference to an unknown object")

// onBufferCreate starts resolving the buffer's bytes and parks the future on
// the record.
func (s *Scene) onBufferCreate(c *client.Client, rec *value.Record) {
	rec.SetExtern(keyBytes, s.fetcher.Fetch(s.ctx, rec))
}

// bufferBytes returns the bytes future of the referenced buffer.
func bufferBytes(c *client.Client, ref value.Value) (*future.Future[[]byte], error) {
	rec, ok := c.Resolve(packet.CollectionBuffer, ref)
	if !ok {
		return nil, fmt.Errorf("%w: buffer %s", ErrMissingRef, ref)
	}
	x, ok := rec.Extern(keyBytes)
	if !ok {
		return nil, fmt.Errorf("buffer %s has no byte source attached", ref)
	}
	f, ok := x.(*future.Future[[]byte])
	if !ok {
		return nil, fmt.Errorf("buffer %s carries %T", ref, x)
	}
	return f, nil
}

// viewBytes resolves a bufferview reference to a future of the viewed bytes.
// Lookups happen now, on the dispatch goroutine; slicing happens when the
// buffer arrives.
func viewBytes(c *client.Client, ref value.Value) (*future.Future[[]byte], error) {
	if slot.IsNullRef(ref) {
		return nil, fmt.Errorf("%w: null bufferview", ErrMissingRef)
	}
	rec, ok := c.Resolve(packet.CollectionBufferView, ref)
	if !ok {
		return nil, fmt.Errorf("%w: bufferview %s", ErrMissingRef, ref)
	}
	view, err := resource.ViewOf(rec)
	if err != nil {
		return nil, err
	}
	src, err := bufferBytes(c, view.Source)
	if err != nil {
		return nil, err
	}
	return future.Map(src, view.Slice), nil
}
