package net

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/noodles/ramen/internal/core/value"
)

// Codec converts between binary frames and values.
type Codec interface {
	Decode(data []byte) (value.Value, error)
	Encode(v any) ([]byte, error)
}

// CBORCodec is the frame codec used on the wire.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBORCodec() (*CBORCodec, error) {
	enc, err := cbor.EncOptions{
		Sort: cbor.SortNone,
		Time: cbor.TimeUnix,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	dec, err := cbor.DecOptions{
		MaxArrayElements: 1 << 24,
		MaxMapPairs:      1 << 24,
		MaxNestedLevels:  64,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}
	return &CBORCodec{enc: enc, dec: dec}, nil
}

// Decode unmarshals data and converts it into a Value. Tags are unwrapped to
// their content; typed arrays therefore arrive as byte strings.
func (c *CBORCodec) Decode(data []byte) (value.Value, error) {
	var x any
	if err := c.dec.Unmarshal(data, &x); err != nil {
		return value.Null(), err
	}
	return value.FromAny(untag(x)), nil
}

func (c *CBORCodec) Encode(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func untag(x any) any {
	switch t := x.(type) {
	case cbor.Tag:
		return untag(t.Content)
	case []any:
		for i := range t {
			t[i] = untag(t[i])
		}
		return t
	case map[any]any:
		for k, v := range t {
			t[k] = untag(v)
		}
		return t
	default:
		return x
	}
}
